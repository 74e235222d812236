package events

import (
	"context"
	"fmt"
)

// StatementExecutor runs one CQL statement.
type StatementExecutor interface {
	Exec(ctx context.Context, stmt string, values ...interface{}) error
}

// ScyllaRecorder writes events into a table partitioned by bucket and day,
// newest first, for per-identity audit reads.
type ScyllaRecorder struct {
	session StatementExecutor
	table   string
	ttl     int
}

// NewScyllaRecorder keeps rows for retentionDays; zero keeps them forever.
func NewScyllaRecorder(session StatementExecutor, table string, retentionDays int) *ScyllaRecorder {
	return &ScyllaRecorder{session: session, table: table, ttl: retentionDays * 24 * 60 * 60}
}

func (r *ScyllaRecorder) EnsureTable(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	event_bucket int,
	event_date   text,
	event_time   timestamp,
	event_id     uuid,
	identity     text,
	event_type   text,
	purpose      text,
	details      map<text, text>,
	PRIMARY KEY ((event_bucket, event_date), event_time, event_id)
) WITH CLUSTERING ORDER BY (event_time DESC, event_id ASC)`, r.table)

	if err := r.session.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create %s: %w", r.table, err)
	}
	return nil
}

func (r *ScyllaRecorder) Record(ctx context.Context, event SecurityEvent) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (event_bucket, event_date, event_time, event_id, identity, event_type, purpose, details)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?) USING TTL ?`, r.table)

	err := r.session.Exec(ctx, stmt,
		event.EventBucket,
		event.EventDate,
		event.EventTime,
		event.EventID,
		event.Identity,
		string(event.EventType),
		event.Purpose,
		event.Details,
		r.ttl,
	)
	if err != nil {
		return fmt.Errorf("scylla: record %s: %w", event.EventType, err)
	}
	return nil
}
