package events

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// BatchWriter is the part of the ClickHouse client the recorder uses.
type BatchWriter interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	BatchInsert(ctx context.Context, query string, rows [][]interface{}) error
}

type ClickHouseRecorder struct {
	conn  BatchWriter
	table string
}

func NewClickHouseRecorder(conn BatchWriter, table string) *ClickHouseRecorder {
	return &ClickHouseRecorder{conn: conn, table: table}
}

// EnsureTable creates the events table when it does not exist yet.
func (r *ClickHouseRecorder) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	event_bucket UInt16,
	event_date   Date,
	event_time   DateTime64(3, 'UTC'),
	event_id     UUID,
	identity     String,
	event_type   LowCardinality(String),
	purpose      LowCardinality(String),
	details      Map(String, String)
) ENGINE = MergeTree
PARTITION BY toYYYYMM(event_date)
ORDER BY (event_bucket, identity, event_time)`, r.table)

	if err := r.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", r.table, err)
	}
	return nil
}

func (r *ClickHouseRecorder) Record(ctx context.Context, event SecurityEvent) error {
	return r.RecordBatch(ctx, []SecurityEvent{event})
}

func (r *ClickHouseRecorder) RecordBatch(ctx context.Context, batch []SecurityEvent) error {
	if len(batch) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(batch))
	for _, e := range batch {
		details := e.Details
		if details == nil {
			details = map[string]string{}
		}
		rows = append(rows, []interface{}{
			uint16(e.EventBucket),
			e.EventTime,
			e.EventTime,
			e.EventID,
			e.Identity,
			string(e.EventType),
			e.Purpose,
			details,
		})
	}

	query := fmt.Sprintf("INSERT INTO %s (event_bucket, event_date, event_time, event_id, identity, event_type, purpose, details)", r.table)
	if err := r.conn.BatchInsert(ctx, query, rows); err != nil {
		return fmt.Errorf("clickhouse: record %d events: %w", len(rows), err)
	}
	return nil
}

// RowQuerier is the read side of the ClickHouse client.
type RowQuerier interface {
	QueryRows(ctx context.Context, query string, args ...interface{}) (driver.Rows, error)
}

// ClickHouseHistory reads an identity's events back from the events table.
type ClickHouseHistory struct {
	conn  RowQuerier
	table string
}

func NewClickHouseHistory(conn RowQuerier, table string) *ClickHouseHistory {
	return &ClickHouseHistory{conn: conn, table: table}
}

func (h *ClickHouseHistory) Recent(ctx context.Context, identity string, limit int) ([]SecurityEvent, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := fmt.Sprintf(`SELECT toString(event_id), event_bucket, event_time, identity, event_type, purpose, details
FROM %s WHERE identity = ? ORDER BY event_time DESC LIMIT ?`, h.table)

	rows, err := h.conn.QueryRows(ctx, query, identity, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("clickhouse: query history: %w", err)
	}
	defer rows.Close()

	history := make([]SecurityEvent, 0, limit)
	for rows.Next() {
		var (
			e         SecurityEvent
			bucket    uint16
			eventType string
		)
		if err := rows.Scan(&e.EventID, &bucket, &e.EventTime, &e.Identity, &eventType, &e.Purpose, &e.Details); err != nil {
			return nil, fmt.Errorf("clickhouse: scan history row: %w", err)
		}
		e.EventBucket = int(bucket)
		e.EventType = EventType(eventType)
		e.EventTime = e.EventTime.UTC()
		e.EventDate = e.EventTime.Format("2006-01-02")
		history = append(history, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clickhouse: read history: %w", err)
	}
	return history, nil
}
