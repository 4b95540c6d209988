package storage

import (
	"context"
	"strconv"
	"testing"
	"time"
)

func setupTestClickHouse(t *testing.T) *ClickHouseArchive {
	t.Helper()

	cfg := ClickHouseConfig{
		Host:     envOr("CLICKHOUSE_HOST", "localhost"),
		Port:     9000,
		Database: envOr("CLICKHOUSE_DATABASE", "default"),
		User:     envOr("CLICKHOUSE_USER", "default"),
		Password: envOr("CLICKHOUSE_PASSWORD", ""),
	}
	if p, err := strconv.Atoi(envOr("CLICKHOUSE_PORT", "")); err == nil {
		cfg.Port = p
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := OpenClickHouse(ctx, cfg)
	if err != nil {
		return nil
	}
	if err := ch.CreateSchema(ctx); err != nil {
		_ = ch.Close()
		return nil
	}
	return ch
}

func TestClickHouseArchive(t *testing.T) {
	ch := setupTestClickHouse(t)
	if ch == nil {
		t.Skip("ClickHouse not available")
	}
	defer ch.Close()

	ctx := context.Background()
	start := time.Now().Add(-time.Second)
	label := "T" + strconv.FormatInt(time.Now().UnixNano()%10, 10)

	for i := 0; i < 3; i++ {
		err := ch.Archive(ctx, ArchiveRecord{
			Received:     time.Now(),
			Receiver:     "test-receiver",
			Frequency:    131.55,
			Mode:         "2",
			Label:        label,
			BlockID:      "1",
			Registration: "N123AB",
			FlightID:     "UA0123",
			Text:         "02A...",
			Stored:       uint32(i),
		})
		if err != nil {
			t.Fatalf("Archive: %v", err)
		}
	}

	counts, err := ch.CountByLabel(ctx, start)
	if err != nil {
		t.Fatalf("CountByLabel: %v", err)
	}
	if counts[label] < 3 {
		t.Errorf("counts[%s] = %d, want at least 3", label, counts[label])
	}
}
