package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"wxaloft/internal/escape"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"sslmode"`
	MaxConns int32  `toml:"max_conns"`
}

// PostgresStore is the production Store.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres opens a connection pool. Server notices are logged as
// warnings on log.
func OpenPostgres(ctx context.Context, cfg PostgresConfig, log *zap.Logger) (*PostgresStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, sslmode)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.ConnConfig.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		log.Warn("database notice",
			zap.String("severity", n.Severity),
			zap.String("code", n.Code),
			zap.String("message", escape.Quote(n.Message)))
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool, log: log}, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Migrate creates the tables and the kilometers function.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const postgresSchema = `
CREATE OR REPLACE FUNCTION kilometers(lat1 DOUBLE PRECISION, lon1 DOUBLE PRECISION,
	lat2 DOUBLE PRECISION, lon2 DOUBLE PRECISION)
RETURNS DOUBLE PRECISION AS $$
	SELECT 2 * 6371 * asin(least(1.0, sqrt(
		power(sin(radians(lat2 - lat1) / 2), 2) +
		cos(radians(lat1)) * cos(radians(lat2)) * power(sin(radians(lon2 - lon1) / 2), 2))))
$$ LANGUAGE sql IMMUTABLE STRICT;

CREATE TABLE IF NOT EXISTS locations (
	id          SERIAL PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS clients (
	id          SERIAL PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	auth        TEXT UNIQUE,
	log_all     BOOLEAN NOT NULL DEFAULT FALSE,
	record_wx   BOOLEAN NOT NULL DEFAULT TRUE,
	location_id INTEGER REFERENCES locations(id)
);

CREATE TABLE IF NOT EXISTS frequencies (
	client_id   INTEGER NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
	channel     INTEGER NOT NULL,
	frequency   DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (client_id, channel)
);

CREATE TABLE IF NOT EXISTS areas (
	id          SERIAL PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	latitude    DOUBLE PRECISION NOT NULL,
	longitude   DOUBLE PRECISION NOT NULL,
	timezone    TEXT NOT NULL DEFAULT 'UTC'
);

CREATE INDEX IF NOT EXISTS idx_areas_latitude ON areas(latitude);

CREATE TABLE IF NOT EXISTS observations (
	id          BIGSERIAL PRIMARY KEY,
	received    TIMESTAMPTZ NOT NULL,
	observed    TIMESTAMPTZ NOT NULL,
	frequency   DOUBLE PRECISION NOT NULL,
	client_id   INTEGER NOT NULL REFERENCES clients(id),
	altitude    INTEGER NOT NULL,
	wind_speed  INTEGER,
	wind_dir    INTEGER,
	temperature DOUBLE PRECISION,
	source      TEXT NOT NULL,
	latitude    DOUBLE PRECISION NOT NULL,
	longitude   DOUBLE PRECISION NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (observed, source, latitude, longitude, altitude)
);

CREATE INDEX IF NOT EXISTS idx_observations_observed ON observations(observed);

CREATE TABLE IF NOT EXISTS obs_area (
	observation_id BIGINT NOT NULL REFERENCES observations(id) ON DELETE CASCADE,
	area_id        INTEGER NOT NULL REFERENCES areas(id) ON DELETE CASCADE,
	PRIMARY KEY (observation_id, area_id)
);

CREATE INDEX IF NOT EXISTS idx_obs_area_area ON obs_area(area_id);
`

const (
	pgInsertObservation = "wx_insert_observation"
	pgLinkAreas         = "wx_link_areas"
)

const pgInsertObservationSQL = `
	INSERT INTO observations (received, observed, frequency, client_id, altitude,
		wind_speed, wind_dir, temperature, source, latitude, longitude)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING id`

const pgLinkAreasSQL = `
	INSERT INTO obs_area (observation_id, area_id)
	SELECT $1, id FROM areas
	WHERE latitude BETWEEN $2::DOUBLE PRECISION - $5::DOUBLE PRECISION
		AND $2::DOUBLE PRECISION + $5::DOUBLE PRECISION
	AND kilometers(latitude, longitude, $2, $3) <= $4
	ON CONFLICT DO NOTHING`

// isUniqueViolation reports SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Acquire reserves a pooled connection.
func (s *PostgresStore) Acquire(ctx context.Context) (Session, error) {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &pgSession{conn: c}, nil
}

type pgSession struct {
	conn *pgxpool.Conn
}

func (s *pgSession) Release() {
	s.conn.Release()
}

func (s *pgSession) LookupReceiver(ctx context.Context, hash []byte) (Receiver, error) {
	var r Receiver
	err := s.conn.QueryRow(ctx,
		`SELECT id, name, log_all, record_wx FROM clients WHERE auth = $1`, string(hash),
	).Scan(&r.ID, &r.Name, &r.LogAll, &r.RecordWx)
	if errors.Is(err, pgx.ErrNoRows) {
		return Receiver{}, ErrNotFound
	}
	if err != nil {
		return Receiver{}, readError("lookup receiver", err)
	}
	return r, nil
}

func (s *pgSession) LookupFrequency(ctx context.Context, clientID int64, channel int) (float64, error) {
	var mhz float64
	err := s.conn.QueryRow(ctx,
		`SELECT frequency FROM frequencies WHERE client_id = $1 AND channel = $2`, clientID, channel,
	).Scan(&mhz)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, readError("lookup frequency", err)
	}
	return mhz, nil
}

func (s *pgSession) PrepareObservations(ctx context.Context) (ObservationWriter, error) {
	c := s.conn.Conn()
	if _, err := c.Prepare(ctx, pgInsertObservation, pgInsertObservationSQL); err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	if _, err := c.Prepare(ctx, pgLinkAreas, pgLinkAreasSQL); err != nil {
		return nil, fmt.Errorf("prepare link: %w", err)
	}
	return &pgWriter{conn: s.conn}, nil
}

// pgWriter runs statements prepared by name on its connection. pgx keeps
// them for the connection's lifetime, so Close has nothing to free.
type pgWriter struct {
	conn *pgxpool.Conn
}

func (w *pgWriter) Insert(ctx context.Context, o Observation) (int64, error) {
	var id int64
	err := w.conn.QueryRow(ctx, pgInsertObservation,
		o.Received, o.Observed, o.Frequency, o.ClientID, o.Altitude,
		o.WindSpeed, o.WindDirection, o.Temperature, o.Source, o.Latitude, o.Longitude,
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, writeError("insert observation", err)
	}
	return id, nil
}

func (w *pgWriter) LinkAreas(ctx context.Context, observationID int64, lat, lon, radiusKm float64) (int64, error) {
	tag, err := w.conn.Exec(ctx, pgLinkAreas, observationID, lat, lon, radiusKm, latitudeWindow(radiusKm))
	if err != nil {
		return 0, writeError("link areas", err)
	}
	return tag.RowsAffected(), nil
}

func (w *pgWriter) Close() error { return nil }

func (s *PostgresStore) LookupArea(ctx context.Context, idOrName string) (Area, error) {
	const cols = `SELECT id, name, latitude, longitude, timezone FROM areas`
	scan := func(row pgx.Row) (Area, error) {
		var a Area
		err := row.Scan(&a.ID, &a.Name, &a.Latitude, &a.Longitude, &a.Timezone)
		return a, err
	}

	if id, err := strconv.ParseInt(idOrName, 10, 64); err == nil {
		a, err := scan(s.pool.QueryRow(ctx, cols+` WHERE id = $1`, id))
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return Area{}, readError("lookup area", err)
		}
	}
	a, err := scan(s.pool.QueryRow(ctx, cols+` WHERE name = $1`, idOrName))
	if errors.Is(err, pgx.ErrNoRows) {
		return Area{}, ErrNotFound
	}
	if err != nil {
		return Area{}, readError("lookup area", err)
	}
	return a, nil
}

func (s *PostgresStore) ObservationsForArea(ctx context.Context, areaID int64, since time.Time) ([]Observation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT o.id, o.received, o.observed, o.frequency, o.client_id, o.altitude,
			o.wind_speed, o.wind_dir, o.temperature, o.source, o.latitude, o.longitude
		FROM observations o
		JOIN obs_area oa ON o.id = oa.observation_id
		WHERE oa.area_id = $1 AND o.observed > $2
		ORDER BY o.observed, o.id`, areaID, since)
	if err != nil {
		return nil, readError("query observations", err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.ID, &o.Received, &o.Observed, &o.Frequency, &o.ClientID, &o.Altitude,
			&o.WindSpeed, &o.WindDirection, &o.Temperature, &o.Source, &o.Latitude, &o.Longitude); err != nil {
			return nil, readError("scan observation", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, readError("iterate observations", err)
	}
	return out, nil
}

func (s *PostgresStore) FindClient(ctx context.Context, idOrName string) (Client, error) {
	const q = `SELECT c.id, c.name, COALESCE(l.name, '')
		FROM clients c LEFT JOIN locations l ON l.id = c.location_id`
	scan := func(row pgx.Row) (Client, error) {
		var c Client
		err := row.Scan(&c.ID, &c.Name, &c.Location)
		return c, err
	}

	if id, err := strconv.ParseInt(idOrName, 10, 64); err == nil {
		c, err := scan(s.pool.QueryRow(ctx, q+` WHERE c.id = $1`, id))
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return Client{}, readError("find client", err)
		}
	}
	c, err := scan(s.pool.QueryRow(ctx, q+` WHERE c.name = $1`, idOrName))
	if errors.Is(err, pgx.ErrNoRows) {
		return Client{}, ErrNotFound
	}
	if err != nil {
		return Client{}, readError("find client", err)
	}
	return c, nil
}

func (s *PostgresStore) SetClientAuth(ctx context.Context, clientID int64, hash []byte) error {
	tag, err := s.pool.Exec(ctx, `UPDATE clients SET auth = $2 WHERE id = $1`, clientID, string(hash))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return writeError("set client auth", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) PurgeObservations(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM observations WHERE observed < $1`, before)
	if err != nil {
		return 0, writeError("purge observations", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) AddClient(ctx context.Context, c NewClient) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, writeError("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locationID *int64
	if c.Location != "" {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO locations (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, c.Location).Scan(&id)
		if err != nil {
			return 0, writeError("upsert location", err)
		}
		locationID = &id
	}

	var auth *string
	if c.AuthHash != nil {
		h := string(c.AuthHash)
		auth = &h
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO clients (name, auth, log_all, record_wx, location_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, c.Name, auth, c.LogAll, c.RecordWx, locationID).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, writeError("insert client", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, writeError("commit", err)
	}
	return id, nil
}

func (s *PostgresStore) SetFrequency(ctx context.Context, clientID int64, channel int, mhz float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO frequencies (client_id, channel, frequency) VALUES ($1, $2, $3)
		ON CONFLICT (client_id, channel) DO UPDATE SET frequency = EXCLUDED.frequency`,
		clientID, channel, mhz)
	if err != nil {
		return writeError("set frequency", err)
	}
	return nil
}

func (s *PostgresStore) AddArea(ctx context.Context, a Area) (int64, error) {
	tz := a.Timezone
	if tz == "" {
		tz = "UTC"
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO areas (name, latitude, longitude, timezone) VALUES ($1, $2, $3, $4)
		RETURNING id`, a.Name, a.Latitude, a.Longitude, tz).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, writeError("insert area", err)
	}
	return id, nil
}
