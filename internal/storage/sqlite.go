package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	Path     string `toml:"path"`
	MaxConns int    `toml:"max_conns"`
}

// sqliteTime is how timestamps are stored: UTC, millisecond precision, so
// text order is time order.
const sqliteTime = "2006-01-02T15:04:05.000Z"

// SQLiteStore is a Store in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

var registerOnce sync.Once

// registerFunctions installs kilometers() for every SQLite connection in
// the process.
func registerFunctions() error {
	var err error
	registerOnce.Do(func() {
		err = sqlite.RegisterDeterministicScalarFunction("kilometers", 4,
			func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				var v [4]float64
				for i, a := range args {
					switch x := a.(type) {
					case float64:
						v[i] = x
					case int64:
						v[i] = float64(x)
					case nil:
						return nil, nil
					default:
						return nil, fmt.Errorf("kilometers: argument %d has type %T", i+1, a)
					}
				}
				return Kilometers(v[0], v[1], v[2], v[3]), nil
			})
	})
	return err
}

// OpenSQLite opens or creates the database file.
func OpenSQLite(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" || strings.Contains(cfg.Path, ":memory:") {
		return nil, fmt.Errorf("open sqlite: a database file path is required")
	}
	if err := registerFunctions(); err != nil {
		return nil, fmt.Errorf("register sqlite functions: %w", err)
	}

	params := make(url.Values)
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_txlock", "immediate")

	path, hasScheme := strings.CutPrefix(cfg.Path, "file:")
	dsn := "file:" + path + "?" + params.Encode()
	if hasScheme && strings.Contains(path, "?") {
		dsn = cfg.Path + "&" + params.Encode()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates the tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS locations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS clients (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL UNIQUE,
	auth        TEXT UNIQUE,
	log_all     INTEGER NOT NULL DEFAULT 0,
	record_wx   INTEGER NOT NULL DEFAULT 1,
	location_id INTEGER REFERENCES locations(id)
);

CREATE TABLE IF NOT EXISTS frequencies (
	client_id   INTEGER NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
	channel     INTEGER NOT NULL,
	frequency   REAL NOT NULL,
	PRIMARY KEY (client_id, channel)
);

CREATE TABLE IF NOT EXISTS areas (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL UNIQUE,
	latitude    REAL NOT NULL,
	longitude   REAL NOT NULL,
	timezone    TEXT NOT NULL DEFAULT 'UTC'
);

CREATE INDEX IF NOT EXISTS idx_areas_latitude ON areas(latitude);

CREATE TABLE IF NOT EXISTS observations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	received    TEXT NOT NULL,
	observed    TEXT NOT NULL,
	frequency   REAL NOT NULL,
	client_id   INTEGER NOT NULL REFERENCES clients(id),
	altitude    INTEGER NOT NULL,
	wind_speed  INTEGER,
	wind_dir    INTEGER,
	temperature REAL,
	source      TEXT NOT NULL,
	latitude    REAL NOT NULL,
	longitude   REAL NOT NULL,
	created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	UNIQUE (observed, source, latitude, longitude, altitude)
);

CREATE INDEX IF NOT EXISTS idx_observations_observed ON observations(observed);

CREATE TABLE IF NOT EXISTS obs_area (
	observation_id INTEGER NOT NULL REFERENCES observations(id) ON DELETE CASCADE,
	area_id        INTEGER NOT NULL REFERENCES areas(id) ON DELETE CASCADE,
	PRIMARY KEY (observation_id, area_id)
);

CREATE INDEX IF NOT EXISTS idx_obs_area_area ON obs_area(area_id);
`

// isSQLiteUnique reports a UNIQUE or PRIMARY KEY constraint failure.
func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	return false
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(sqliteTime, s)
}

// Acquire reserves one connection from the pool.
func (s *SQLiteStore) Acquire(ctx context.Context) (Session, error) {
	c, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &sqliteSession{conn: c}, nil
}

type sqliteSession struct {
	conn *sql.Conn
}

func (s *sqliteSession) Release() {
	_ = s.conn.Close()
}

func (s *sqliteSession) LookupReceiver(ctx context.Context, hash []byte) (Receiver, error) {
	var r Receiver
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, name, log_all, record_wx FROM clients WHERE auth = ?`, string(hash),
	).Scan(&r.ID, &r.Name, &r.LogAll, &r.RecordWx)
	if errors.Is(err, sql.ErrNoRows) {
		return Receiver{}, ErrNotFound
	}
	if err != nil {
		return Receiver{}, readError("lookup receiver", err)
	}
	return r, nil
}

func (s *sqliteSession) LookupFrequency(ctx context.Context, clientID int64, channel int) (float64, error) {
	var mhz float64
	err := s.conn.QueryRowContext(ctx,
		`SELECT frequency FROM frequencies WHERE client_id = ? AND channel = ?`, clientID, channel,
	).Scan(&mhz)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, readError("lookup frequency", err)
	}
	return mhz, nil
}

func (s *sqliteSession) PrepareObservations(ctx context.Context) (ObservationWriter, error) {
	insert, err := s.conn.PrepareContext(ctx, `
		INSERT INTO observations (received, observed, frequency, client_id, altitude,
			wind_speed, wind_dir, temperature, source, latitude, longitude)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	link, err := s.conn.PrepareContext(ctx, `
		INSERT OR IGNORE INTO obs_area (observation_id, area_id)
		SELECT ?1, id FROM areas
		WHERE latitude BETWEEN ?2 - ?5 AND ?2 + ?5
		AND kilometers(latitude, longitude, ?2, ?3) <= ?4`)
	if err != nil {
		_ = insert.Close()
		return nil, fmt.Errorf("prepare link: %w", err)
	}
	return &sqliteWriter{insert: insert, link: link}, nil
}

type sqliteWriter struct {
	insert *sql.Stmt
	link   *sql.Stmt
}

func (w *sqliteWriter) Insert(ctx context.Context, o Observation) (int64, error) {
	res, err := w.insert.ExecContext(ctx,
		formatTime(o.Received), formatTime(o.Observed), o.Frequency, o.ClientID, o.Altitude,
		o.WindSpeed, o.WindDirection, o.Temperature, o.Source, o.Latitude, o.Longitude)
	if isSQLiteUnique(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, writeError("insert observation", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, writeError("observation id", err)
	}
	return id, nil
}

func (w *sqliteWriter) LinkAreas(ctx context.Context, observationID int64, lat, lon, radiusKm float64) (int64, error) {
	res, err := w.link.ExecContext(ctx, observationID, lat, lon, radiusKm, latitudeWindow(radiusKm))
	if err != nil {
		return 0, writeError("link areas", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, writeError("link count", err)
	}
	return n, nil
}

func (w *sqliteWriter) Close() error {
	return errors.Join(w.insert.Close(), w.link.Close())
}

func (s *SQLiteStore) LookupArea(ctx context.Context, idOrName string) (Area, error) {
	const cols = `SELECT id, name, latitude, longitude, timezone FROM areas`
	scan := func(row *sql.Row) (Area, error) {
		var a Area
		err := row.Scan(&a.ID, &a.Name, &a.Latitude, &a.Longitude, &a.Timezone)
		return a, err
	}

	if id, err := strconv.ParseInt(idOrName, 10, 64); err == nil {
		a, err := scan(s.db.QueryRowContext(ctx, cols+` WHERE id = ?`, id))
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Area{}, readError("lookup area", err)
		}
	}
	a, err := scan(s.db.QueryRowContext(ctx, cols+` WHERE name = ?`, idOrName))
	if errors.Is(err, sql.ErrNoRows) {
		return Area{}, ErrNotFound
	}
	if err != nil {
		return Area{}, readError("lookup area", err)
	}
	return a, nil
}

func (s *SQLiteStore) ObservationsForArea(ctx context.Context, areaID int64, since time.Time) ([]Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.received, o.observed, o.frequency, o.client_id, o.altitude,
			o.wind_speed, o.wind_dir, o.temperature, o.source, o.latitude, o.longitude
		FROM observations o
		JOIN obs_area oa ON o.id = oa.observation_id
		WHERE oa.area_id = ? AND o.observed > ?
		ORDER BY o.observed, o.id`, areaID, formatTime(since))
	if err != nil {
		return nil, readError("query observations", err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var (
			o                  Observation
			received, observed string
			speed, dir         sql.NullInt64
			temp               sql.NullFloat64
		)
		if err := rows.Scan(&o.ID, &received, &observed, &o.Frequency, &o.ClientID, &o.Altitude,
			&speed, &dir, &temp, &o.Source, &o.Latitude, &o.Longitude); err != nil {
			return nil, readError("scan observation", err)
		}
		if o.Received, err = parseTime(received); err != nil {
			return nil, readError("parse received", err)
		}
		if o.Observed, err = parseTime(observed); err != nil {
			return nil, readError("parse observed", err)
		}
		if speed.Valid {
			v := int(speed.Int64)
			o.WindSpeed = &v
		}
		if dir.Valid {
			v := int(dir.Int64)
			o.WindDirection = &v
		}
		if temp.Valid {
			o.Temperature = &temp.Float64
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, readError("iterate observations", err)
	}
	return out, nil
}

func (s *SQLiteStore) FindClient(ctx context.Context, idOrName string) (Client, error) {
	const q = `SELECT c.id, c.name, COALESCE(l.name, '')
		FROM clients c LEFT JOIN locations l ON l.id = c.location_id`
	scan := func(row *sql.Row) (Client, error) {
		var c Client
		err := row.Scan(&c.ID, &c.Name, &c.Location)
		return c, err
	}

	if id, err := strconv.ParseInt(idOrName, 10, 64); err == nil {
		c, err := scan(s.db.QueryRowContext(ctx, q+` WHERE c.id = ?`, id))
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Client{}, readError("find client", err)
		}
	}
	c, err := scan(s.db.QueryRowContext(ctx, q+` WHERE c.name = ?`, idOrName))
	if errors.Is(err, sql.ErrNoRows) {
		return Client{}, ErrNotFound
	}
	if err != nil {
		return Client{}, readError("find client", err)
	}
	return c, nil
}

func (s *SQLiteStore) SetClientAuth(ctx context.Context, clientID int64, hash []byte) error {
	res, err := s.db.ExecContext(ctx, `UPDATE clients SET auth = ? WHERE id = ?`, string(hash), clientID)
	if isSQLiteUnique(err) {
		return ErrDuplicate
	}
	if err != nil {
		return writeError("set client auth", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) PurgeObservations(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM observations WHERE observed < ?`, formatTime(before))
	if err != nil {
		return 0, writeError("purge observations", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, writeError("purge count", err)
	}
	return n, nil
}

func (s *SQLiteStore) AddClient(ctx context.Context, c NewClient) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, writeError("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	var locationID *int64
	if c.Location != "" {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO locations (name) VALUES (?)`, c.Location); err != nil {
			return 0, writeError("insert location", err)
		}
		var id int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM locations WHERE name = ?`, c.Location).Scan(&id); err != nil {
			return 0, readError("lookup location", err)
		}
		locationID = &id
	}

	var auth *string
	if c.AuthHash != nil {
		h := string(c.AuthHash)
		auth = &h
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO clients (name, auth, log_all, record_wx, location_id) VALUES (?, ?, ?, ?, ?)`,
		c.Name, auth, c.LogAll, c.RecordWx, locationID)
	if isSQLiteUnique(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, writeError("insert client", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, writeError("client id", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, writeError("commit", err)
	}
	return id, nil
}

func (s *SQLiteStore) SetFrequency(ctx context.Context, clientID int64, channel int, mhz float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO frequencies (client_id, channel, frequency) VALUES (?, ?, ?)
		ON CONFLICT (client_id, channel) DO UPDATE SET frequency = excluded.frequency`,
		clientID, channel, mhz)
	if err != nil {
		return writeError("set frequency", err)
	}
	return nil
}

func (s *SQLiteStore) AddArea(ctx context.Context, a Area) (int64, error) {
	tz := a.Timezone
	if tz == "" {
		tz = "UTC"
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO areas (name, latitude, longitude, timezone) VALUES (?, ?, ?, ?)`,
		a.Name, a.Latitude, a.Longitude, tz)
	if isSQLiteUnique(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, writeError("insert area", err)
	}
	return res.LastInsertId()
}
