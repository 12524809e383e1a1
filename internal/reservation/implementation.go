package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"schoollib/internal/apperr"
	"schoollib/internal/catalog"
	"schoollib/internal/eventlog"
	"schoollib/internal/membership"
	"schoollib/internal/store"
)

var columns = []any{"id", "user_id", "book_id", "reserved_at", "status", "notified_at"}

type service struct {
	db      *sqlx.DB
	events  *eventlog.Log
	catalog catalog.Service
	members membership.Service
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

func NewService(db *sqlx.DB, events *eventlog.Log, books catalog.Service, members membership.Service, logger *slog.Logger) Service {
	return &service{
		db:      db,
		events:  events,
		catalog: books,
		members: members,
		logger:  logger,
		tracer:  otel.Tracer("schoollib/reservation"),
		now:     time.Now,
	}
}

func (s *service) CreateReservation(ctx context.Context, userID, bookID uuid.UUID) (*Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.create", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("book.id", bookID.String()),
	))
	defer span.End()

	if _, err := s.members.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetBook(ctx, bookID); err != nil {
		return nil, err
	}

	r := &Reservation{
		ID:         uuid.New(),
		UserID:     userID,
		BookID:     bookID,
		ReservedAt: s.now().UTC(),
		Status:     StatusWaiting,
	}
	err := store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO reservations (id, user_id, book_id, reserved_at, status, notified_at)
			VALUES (:id, :user_id, :book_id, :reserved_at, :status, :notified_at)
		`, r)
		if err != nil {
			return err
		}
		return s.events.Append(ctx, tx, r.ID, eventlog.AggregateReservation, "ReservationCreated", ReservationCreatedEvent{
			ReservationID: r.ID,
			UserID:        userID,
			BookID:        bookID,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create reservation: %w", err)
	}

	s.logger.InfoContext(ctx, "reservation created", "reservation_id", r.ID, "user_id", userID, "book_id", bookID)
	return r, nil
}

func (s *service) ListReservations(ctx context.Context, f Filter) ([]Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.list")
	defer span.End()

	out := []Reservation{}
	if err := store.Select(ctx, s.db, listQuery(f), &out); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return out, nil
}

func listQuery(f Filter) *goqu.SelectDataset {
	ds := store.Dialect.From("reservations").Select(columns...).Order(goqu.C("reserved_at").Asc(), goqu.C("id").Asc())
	if f.UserID != nil {
		ds = ds.Where(goqu.C("user_id").Eq(f.UserID.String()))
	}
	if f.BookID != nil {
		ds = ds.Where(goqu.C("book_id").Eq(f.BookID.String()))
	}
	return f.Page.Apply(ds)
}

func (s *service) GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	r := &Reservation{}
	ds := store.Dialect.From("reservations").Select(columns...).Where(goqu.C("id").Eq(id.String()))
	if err := store.Get(ctx, s.db, ds, r); err != nil {
		if store.IsNoRows(err) {
			return nil, apperr.NotFound("Reservation not found")
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

// CancelReservation moves a waiting or available entry to cancelled.
func (s *service) CancelReservation(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.cancel", trace.WithAttributes(attribute.String("reservation.id", id.String())))
	defer span.End()

	r := &Reservation{}
	err := store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		ds := store.Dialect.From("reservations").Select(columns...).
			Where(
				goqu.C("id").Eq(id.String()),
				goqu.C("status").In(string(StatusWaiting), string(StatusAvailable)),
			).
			ForUpdate(goqu.Wait)
		if err := store.Get(ctx, tx, ds, r); err != nil {
			if store.IsNoRows(err) {
				return apperr.NotFound("Reservation not found or already closed")
			}
			return err
		}

		previous := r.Status
		if _, err := tx.ExecContext(ctx, `UPDATE reservations SET status = 'cancelled' WHERE id = $1`, r.ID); err != nil {
			return err
		}
		r.Status = StatusCancelled
		return s.events.Append(ctx, tx, r.ID, eventlog.AggregateReservation, "ReservationCancelled", ReservationCancelledEvent{
			ReservationID: r.ID,
			Previous:      previous,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("cancel reservation: %w", err)
	}

	s.logger.InfoContext(ctx, "reservation cancelled", "reservation_id", r.ID)
	return r, nil
}
