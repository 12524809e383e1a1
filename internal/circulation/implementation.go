package circulation

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
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"schoollib/internal/apperr"
	"schoollib/internal/catalog"
	"schoollib/internal/eventlog"
	"schoollib/internal/membership"
	"schoollib/internal/store"
)

var loanColumns = []any{"id", "user_id", "book_id", "borrowed_at", "due_at", "returned_at", "status", "fine"}

// Options are the lending rules.
type Options struct {
	DefaultDays int
	FinePerDay  float64
}

type instruments struct {
	created metric.Int64Counter
	returns metric.Int64Counter
	overdue metric.Int64Counter
	fines   metric.Float64Counter
}

// service implements the Service interface.
type service struct {
	db      *sqlx.DB
	events  *eventlog.Log
	catalog catalog.Service
	members membership.Service
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics instruments
	now     func() time.Time
}

// NewService creates the loan ledger. Books and users are looked up
// through their own services; copy counters are adjusted here, inside
// the loan transaction.
func NewService(db *sqlx.DB, events *eventlog.Log, books catalog.Service, members membership.Service, opts Options, logger *slog.Logger) (Service, error) {
	meter := otel.Meter("schoollib/circulation")
	var m instruments
	var err error
	if m.created, err = meter.Int64Counter("schoollib.loans.created", metric.WithDescription("Loans created")); err != nil {
		return nil, err
	}
	if m.returns, err = meter.Int64Counter("schoollib.loans.returned", metric.WithDescription("Loans returned")); err != nil {
		return nil, err
	}
	if m.overdue, err = meter.Int64Counter("schoollib.loans.marked_overdue", metric.WithDescription("Loans moved to overdue by the sweep")); err != nil {
		return nil, err
	}
	if m.fines, err = meter.Float64Counter("schoollib.loans.fines", metric.WithDescription("Fines charged on return"), metric.WithUnit("EUR")); err != nil {
		return nil, err
	}
	if opts.DefaultDays == 0 {
		opts.DefaultDays = 14
	}

	return &service{
		db:      db,
		events:  events,
		catalog: books,
		members: members,
		opts:    opts,
		logger:  logger,
		tracer:  otel.Tracer("schoollib/circulation"),
		metrics: m,
		now:     time.Now,
	}, nil
}

// CreateLoan lends one copy. The duplicate check, the conditional
// decrement and the insert run in one transaction; the partial unique
// index on active loans closes the race between concurrent requests.
func (s *service) CreateLoan(ctx context.Context, userID, bookID uuid.UUID, days int) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.create_loan", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("book.id", bookID.String()),
	))
	defer span.End()

	if days == 0 {
		days = s.opts.DefaultDays
	}
	if days < MinLoanDays || days > MaxLoanDays {
		return nil, apperr.Validation("due_days must be between %d and %d", MinLoanDays, MaxLoanDays)
	}

	user, err := s.members.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, apperr.Validation("User account is inactive")
	}
	if _, err := s.catalog.GetBook(ctx, bookID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	loan := &Loan{
		ID:         uuid.New(),
		UserID:     userID,
		BookID:     bookID,
		BorrowedAt: now,
		DueAt:      now.Add(time.Duration(days) * 24 * time.Hour),
		Status:     StatusBorrowed,
	}

	err = store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var held bool
		err := tx.GetContext(ctx, &held, `
			SELECT EXISTS (
				SELECT 1 FROM loans
				WHERE user_id = $1 AND book_id = $2 AND status IN ('borrowed', 'overdue')
			)
		`, userID, bookID)
		if err != nil {
			return err
		}
		if held {
			return apperr.Conflict("User already has an active loan for this book")
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE books
			SET available_copies = available_copies - 1, updated_at = $2
			WHERE id = $1 AND available_copies > 0
		`, bookID, now)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return apperr.Unavailable("Book not available")
		}

		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO loans (id, user_id, book_id, borrowed_at, due_at, returned_at, status, fine)
			VALUES (:id, :user_id, :book_id, :borrowed_at, :due_at, :returned_at, :status, :fine)
		`, loan)
		if err != nil {
			if store.IsUniqueViolation(err) {
				return apperr.Conflict("User already has an active loan for this book")
			}
			return err
		}

		return s.events.Append(ctx, tx, loan.ID, eventlog.AggregateLoan, "LoanCreated", LoanCreatedEvent{
			LoanID: loan.ID,
			UserID: userID,
			BookID: bookID,
			DueAt:  loan.DueAt,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create loan: %w", err)
	}

	s.metrics.created.Add(ctx, 1)
	span.SetAttributes(attribute.String("loan.id", loan.ID.String()))
	s.logger.InfoContext(ctx, "loan created", "loan_id", loan.ID, "user_id", userID, "book_id", bookID, "due_at", loan.DueAt)
	return loan, nil
}

// ReturnLoan closes a borrowed or overdue loan, charges the fine and
// gives the copy back to the book.
func (s *service) ReturnLoan(ctx context.Context, loanID uuid.UUID) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return_loan", trace.WithAttributes(attribute.String("loan.id", loanID.String())))
	defer span.End()

	loan := &Loan{}
	err := store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		ds := store.Dialect.From("loans").Select(loanColumns...).
			Where(
				goqu.C("id").Eq(loanID.String()),
				goqu.C("status").In(string(StatusBorrowed), string(StatusOverdue)),
			).
			ForUpdate(goqu.Wait)
		if err := store.Get(ctx, tx, ds, loan); err != nil {
			if store.IsNoRows(err) {
				return apperr.NotFound("Loan not found or already returned")
			}
			return err
		}

		now := s.now().UTC()
		loan.Fine = Fine(loan.DueAt, now, s.opts.FinePerDay)
		loan.Status = StatusReturned
		loan.ReturnedAt = &now

		_, err := tx.ExecContext(ctx, `
			UPDATE loans SET status = 'returned', returned_at = $2, fine = $3 WHERE id = $1
		`, loan.ID, now, loan.Fine)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE books
			SET available_copies = available_copies + 1, updated_at = $2
			WHERE id = $1 AND available_copies < total_copies
		`, loan.BookID, now)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			s.logger.WarnContext(ctx, "returned copy not credited", "loan_id", loan.ID, "book_id", loan.BookID)
		}

		return s.events.Append(ctx, tx, loan.ID, eventlog.AggregateLoan, "LoanReturned", LoanReturnedEvent{
			LoanID:     loan.ID,
			BookID:     loan.BookID,
			ReturnedAt: now,
			Fine:       loan.Fine,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("return loan: %w", err)
	}

	s.metrics.returns.Add(ctx, 1)
	if loan.Fine > 0 {
		s.metrics.fines.Add(ctx, loan.Fine)
	}
	s.logger.InfoContext(ctx, "loan returned", "loan_id", loan.ID, "fine", loan.Fine)
	return loan, nil
}

func (s *service) SweepOverdue(ctx context.Context) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.sweep_overdue")
	defer span.End()

	res, err := s.db.ExecContext(ctx, `
		UPDATE loans SET status = 'overdue' WHERE status = 'borrowed' AND due_at < $1
	`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep overdue loans: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.metrics.overdue.Add(ctx, n)
		s.logger.InfoContext(ctx, "loans marked overdue", "count", n)
	}
	span.SetAttributes(attribute.Int64("loans.marked", n))
	return n, nil
}

// ListLoans sweeps first so every returned status is current, then lists
// newest first.
func (s *service) ListLoans(ctx context.Context, f Filter) ([]Loan, error) {
	if _, err := s.SweepOverdue(ctx); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "circulation.list_loans")
	defer span.End()

	loans := []Loan{}
	if err := store.Select(ctx, s.db, listQuery(f), &loans); err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	span.SetAttributes(attribute.Int("loans.count", len(loans)))
	return loans, nil
}

func listQuery(f Filter) *goqu.SelectDataset {
	ds := store.Dialect.From("loans").Select(loanColumns...).Order(goqu.C("borrowed_at").Desc(), goqu.C("id").Asc())
	if f.UserID != nil {
		ds = ds.Where(goqu.C("user_id").Eq(f.UserID.String()))
	}
	if f.Status != nil {
		ds = ds.Where(goqu.C("status").Eq(string(*f.Status)))
	}
	return f.Page.Apply(ds)
}

func (s *service) GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	if _, err := s.SweepOverdue(ctx); err != nil {
		return nil, err
	}
	loan := &Loan{}
	ds := store.Dialect.From("loans").Select(loanColumns...).Where(goqu.C("id").Eq(id.String()))
	if err := store.Get(ctx, s.db, ds, loan); err != nil {
		if store.IsNoRows(err) {
			return nil, apperr.NotFound("Loan not found")
		}
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return loan, nil
}

func (s *service) History(ctx context.Context, id uuid.UUID) ([]eventlog.Event, error) {
	if _, err := s.GetLoan(ctx, id); err != nil {
		return nil, err
	}
	return s.events.Load(ctx, id)
}

// Enrich attaches books, and users when withUser is set. Loans whose
// book or user no longer exists are returned without it.
func (s *service) Enrich(ctx context.Context, loans []Loan, withUser bool) ([]LoanView, error) {
	bookIDs := make([]uuid.UUID, 0, len(loans))
	userIDs := make([]uuid.UUID, 0, len(loans))
	for _, l := range loans {
		bookIDs = append(bookIDs, l.BookID)
		userIDs = append(userIDs, l.UserID)
	}

	books, err := s.catalog.GetBooks(ctx, bookIDs)
	if err != nil {
		return nil, err
	}
	var users map[uuid.UUID]*membership.User
	if withUser {
		if users, err = s.members.GetUsers(ctx, userIDs); err != nil {
			return nil, err
		}
	}

	views := make([]LoanView, len(loans))
	for i, l := range loans {
		views[i] = LoanView{Loan: l, Book: books[l.BookID]}
		if withUser {
			views[i].User = users[l.UserID]
		}
	}
	return views, nil
}
