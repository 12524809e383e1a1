// Package eventlog is the append-only audit trail of domain changes.
// Events are written inside the caller's transaction so the trail never
// disagrees with the rows it describes.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"schoollib/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")

const (
	AggregateUser        = "user"
	AggregateBook        = "book"
	AggregateLoan        = "loan"
	AggregateReservation = "reservation"
)

// Event is one recorded change of an aggregate.
type Event struct {
	ID            int64               `json:"id" db:"id"`
	AggregateID   uuid.UUID           `json:"aggregate_id" db:"aggregate_id"`
	AggregateType string              `json:"aggregate_type" db:"aggregate_type"`
	EventType     string              `json:"event_type" db:"event_type"`
	EventData     jsoniter.RawMessage `json:"event_data" db:"event_data"`
	Version       int                 `json:"version" db:"version"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`
}

type Log struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

func New(db *sqlx.DB) *Log {
	return &Log{
		db:     db,
		tracer: otel.Tracer("schoollib/eventlog"),
	}
}

// Append records one event for the aggregate at the next version. It must
// run inside tx; a concurrent writer on the same aggregate surfaces as
// ErrConcurrencyConflict.
func (l *Log) Append(ctx context.Context, tx *sqlx.Tx, aggregateID uuid.UUID, aggregateType, eventType string, payload any) error {
	ctx, span := l.tracer.Start(ctx, "eventlog.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.String("aggregate.type", aggregateType),
			attribute.String("event.type", eventType),
		),
	)
	defer span.End()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	var version int
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO events (aggregate_id, aggregate_type, event_type, event_data, version, created_at)
		SELECT $1, $2, $3, $4, COALESCE(MAX(version), 0) + 1, $5
		FROM events
		WHERE aggregate_id = $1
		RETURNING version
	`, aggregateID, aggregateType, eventType, data, time.Now().UTC()).Scan(&version)
	if err != nil {
		if store.IsUniqueViolation(err) {
			span.SetAttributes(attribute.Bool("conflict.detected", true))
			return ErrConcurrencyConflict
		}
		return fmt.Errorf("insert event: %w", err)
	}

	span.SetAttributes(attribute.Int("event.version", version))
	return nil
}

// Load returns the events of one aggregate in version order.
func (l *Log) Load(ctx context.Context, aggregateID uuid.UUID) ([]Event, error) {
	ctx, span := l.tracer.Start(ctx, "eventlog.load",
		trace.WithAttributes(attribute.String("aggregate.id", aggregateID.String())),
	)
	defer span.End()

	events := []Event{}
	err := l.db.SelectContext(ctx, &events, `
		SELECT id, aggregate_id, aggregate_type, event_type, event_data, version, created_at
		FROM events
		WHERE aggregate_id = $1
		ORDER BY version ASC
	`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return events, nil
}

// Stream pages through every event after fromID, oldest first.
func (l *Log) Stream(ctx context.Context, fromID int64, batchSize int) ([]Event, error) {
	ctx, span := l.tracer.Start(ctx, "eventlog.stream",
		trace.WithAttributes(
			attribute.Int64("from.id", fromID),
			attribute.Int("batch.size", batchSize),
		),
	)
	defer span.End()

	events := []Event{}
	err := l.db.SelectContext(ctx, &events, `
		SELECT id, aggregate_id, aggregate_type, event_type, event_data, version, created_at
		FROM events
		WHERE id > $1
		ORDER BY id ASC
		LIMIT $2
	`, fromID, batchSize)
	if err != nil {
		return nil, fmt.Errorf("query event stream: %w", err)
	}

	span.SetAttributes(attribute.Int("events.streamed", len(events)))
	return events, nil
}
