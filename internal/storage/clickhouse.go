package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Enabled  bool   `toml:"enabled"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// ArchiveRecord is one accepted message as kept in the archive.
type ArchiveRecord struct {
	Received     time.Time
	Receiver     string
	Frequency    float64
	Mode         string
	Label        string
	BlockID      string
	Registration string
	FlightID     string
	Text         string
	Stored       uint32 // observations stored from this message
}

// ClickHouseArchive appends accepted messages to an analytics table. It is
// write-only; nothing reads the archive back into the service.
type ClickHouseArchive struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseArchive, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseArchive{conn: conn}, nil
}

// Close closes the connection.
func (a *ClickHouseArchive) Close() error {
	return a.conn.Close()
}

// CreateSchema creates the archive table.
func (a *ClickHouseArchive) CreateSchema(ctx context.Context) error {
	err := a.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS acars_messages (
		received        DateTime64(3),
		receiver        LowCardinality(String),
		frequency       Float64,
		mode            LowCardinality(String),
		label           LowCardinality(String),
		block_id        LowCardinality(String),
		registration    LowCardinality(String),
		flight_id       LowCardinality(String),
		text            String,
		observations    UInt32,
		created_at      DateTime64(3) DEFAULT now64(3)
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(received)
	ORDER BY (label, receiver, received)
	SETTINGS index_granularity = 8192`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Archive appends one record.
func (a *ClickHouseArchive) Archive(ctx context.Context, r ArchiveRecord) error {
	err := a.conn.Exec(ctx, `
		INSERT INTO acars_messages (received, receiver, frequency, mode, label, block_id,
			registration, flight_id, text, observations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Received, r.Receiver, r.Frequency, r.Mode, r.Label, r.BlockID,
		r.Registration, r.FlightID, r.Text, r.Stored)
	if err != nil {
		return writeError("archive message", err)
	}
	return nil
}

// CountByLabel returns how many archived messages carry each label since
// the given time.
func (a *ClickHouseArchive) CountByLabel(ctx context.Context, since time.Time) (map[string]uint64, error) {
	rows, err := a.conn.Query(ctx,
		`SELECT label, count() FROM acars_messages WHERE received >= ? GROUP BY label`, since)
	if err != nil {
		return nil, readError("count by label", err)
	}
	defer rows.Close()

	out := make(map[string]uint64)
	for rows.Next() {
		var (
			label string
			n     uint64
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, readError("scan label count", err)
		}
		out[label] = n
	}
	return out, rows.Err()
}
