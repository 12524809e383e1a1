package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"schoollib/internal/config"
	"schoollib/internal/store"
)

const (
	popularWindow = 30 * 24 * time.Hour
	monthlyWindow = 180 * 24 * time.Hour
	popularLimit  = 5
	recentLimit   = 10
)

type service struct {
	db      *sqlx.DB
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

func NewService(db *sqlx.DB, cfg config.ReportsConfig, logger *slog.Logger) Service {
	return &service{
		db:      db,
		breaker: newBreaker(cfg, logger),
		logger:  logger,
		tracer:  otel.Tracer("schoollib/reports"),
		now:     time.Now,
	}
}

// DashboardStats runs its four parts concurrently; the first failure
// cancels the rest.
func (s *service) DashboardStats(ctx context.Context) (*Dashboard, error) {
	ctx, span := s.tracer.Start(ctx, "reports.dashboard")
	defer span.End()

	d := &Dashboard{PopularBooks: []PopularBook{}, RecentActivity: []RecentLoan{}}
	now := s.now().UTC()

	err := s.guard(func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return s.db.GetContext(gctx, &d.Overview, `
				SELECT
					(SELECT COUNT(*) FROM books) AS total_books,
					(SELECT COALESCE(SUM(available_copies), 0) FROM books) AS available_books,
					(SELECT COUNT(*) FROM users) AS total_users,
					(SELECT COUNT(*) FROM loans WHERE status = 'borrowed') AS active_loans,
					(SELECT COUNT(*) FROM loans WHERE status = 'overdue') AS overdue_loans
			`)
		})
		g.Go(func() error {
			return s.db.SelectContext(gctx, &d.PopularBooks, `
				SELECT l.book_id, b.title, b.authors, COUNT(*) AS loan_count
				FROM loans l
				JOIN books b ON b.id = l.book_id
				WHERE l.borrowed_at >= $1
				GROUP BY l.book_id, b.title, b.authors
				ORDER BY loan_count DESC, b.title
				LIMIT $2
			`, now.Add(-popularWindow), popularLimit)
		})
		g.Go(func() error {
			return s.db.SelectContext(gctx, &d.RecentActivity, `
				SELECT l.id, b.title AS book_title, u.full_name AS user_name, l.borrowed_at, l.due_at, l.status
				FROM loans l
				JOIN books b ON b.id = l.book_id
				JOIN users u ON u.id = l.user_id
				ORDER BY l.borrowed_at DESC
				LIMIT $1
			`, recentLimit)
		})
		g.Go(func() error {
			var rows []monthRow
			err := s.db.SelectContext(gctx, &rows, `
				SELECT
					EXTRACT(YEAR FROM borrowed_at AT TIME ZONE 'UTC')::int AS year,
					EXTRACT(MONTH FROM borrowed_at AT TIME ZONE 'UTC')::int AS month,
					COUNT(*) AS total_loans,
					COUNT(returned_at) AS returned_loans
				FROM loans
				WHERE borrowed_at >= $1
				GROUP BY 1, 2
				ORDER BY 1, 2
			`, now.Add(-monthlyWindow))
			d.MonthlyStats = monthlyStats(rows)
			return err
		})
		return g.Wait()
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	return d, nil
}

func (s *service) LoansReport(ctx context.Context, f LoanFilter) (*LoansReport, error) {
	ctx, span := s.tracer.Start(ctx, "reports.loans")
	defer span.End()

	rows := []LoanRow{}
	err := s.guard(func() error {
		return store.Select(ctx, s.db, loansQuery(f), &rows)
	})
	if err != nil {
		return nil, fmt.Errorf("loans report: %w", err)
	}

	summary := summarizeLoans(rows, s.now().UTC())
	span.SetAttributes(attribute.Int("report.rows", len(rows)))
	return &LoansReport{Summary: summary, Loans: rows}, nil
}

// loansQuery joins loans with their book and borrower. Loans whose book or
// user has been deleted are left out.
func loansQuery(f LoanFilter) *goqu.SelectDataset {
	ds := store.Dialect.From(goqu.T("loans").As("l")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("l.book_id")))).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("l.user_id")))).
		Select(
			goqu.I("l.id"),
			goqu.I("b.title").As("book_title"),
			goqu.I("b.authors").As("book_authors"),
			goqu.I("b.isbn").As("book_isbn"),
			goqu.I("u.full_name").As("user_name"),
			goqu.I("u.email").As("user_email"),
			goqu.I("u.role").As("user_role"),
			goqu.I("u.class_name").As("user_class"),
			goqu.I("l.borrowed_at"),
			goqu.I("l.due_at"),
			goqu.I("l.returned_at"),
			goqu.I("l.status"),
			goqu.I("l.fine"),
		).
		Order(goqu.I("l.borrowed_at").Desc(), goqu.I("l.id").Asc())

	if f.Start != nil {
		ds = ds.Where(goqu.I("l.borrowed_at").Gte(*f.Start))
	}
	if f.End != nil {
		ds = ds.Where(goqu.I("l.borrowed_at").Lte(*f.End))
	}
	if f.Status != nil {
		ds = ds.Where(goqu.I("l.status").Eq(*f.Status))
	}
	if f.UserRole != nil {
		ds = ds.Where(goqu.I("u.role").Eq(string(*f.UserRole)))
	}
	return ds
}

func (s *service) BooksReport(ctx context.Context, f BookFilter) (*BooksReport, error) {
	ctx, span := s.tracer.Start(ctx, "reports.books")
	defer span.End()

	rows := []BookRow{}
	err := s.guard(func() error {
		return store.Select(ctx, s.db, booksQuery(f), &rows)
	})
	if err != nil {
		return nil, fmt.Errorf("books report: %w", err)
	}

	summary, cats := summarizeBooks(rows)
	return &BooksReport{Summary: summary, CategoryStats: cats, Books: rows}, nil
}

func booksQuery(f BookFilter) *goqu.SelectDataset {
	ds := store.Dialect.From(goqu.T("books").As("b")).
		LeftJoin(goqu.T("loans").As("l"), goqu.On(goqu.I("l.book_id").Eq(goqu.I("b.id")))).
		Select(
			goqu.I("b.id"),
			goqu.I("b.title"),
			goqu.I("b.authors"),
			goqu.I("b.isbn"),
			goqu.I("b.publisher"),
			goqu.I("b.year"),
			goqu.I("b.categories"),
			goqu.I("b.total_copies"),
			goqu.I("b.available_copies"),
			goqu.I("b.location"),
			goqu.I("b.created_at"),
			goqu.COUNT(goqu.I("l.id")).As("total_loans"),
			goqu.L("COUNT(l.id) FILTER (WHERE l.status IN ('borrowed', 'overdue'))").As("active_loans"),
		).
		GroupBy(goqu.I("b.id")).
		Order(goqu.I("b.title").Asc())

	if f.Category != nil {
		ds = ds.Where(goqu.L("? = ANY(b.categories)", *f.Category))
	}
	switch f.Availability {
	case AvailabilityAvailable:
		ds = ds.Where(goqu.I("b.available_copies").Gt(0))
	case AvailabilityUnavailable:
		ds = ds.Where(goqu.I("b.available_copies").Eq(0))
	}
	return ds
}

func (s *service) UsersReport(ctx context.Context, f UserFilter) (*UsersReport, error) {
	ctx, span := s.tracer.Start(ctx, "reports.users")
	defer span.End()

	rows := []UserRow{}
	err := s.guard(func() error {
		return store.Select(ctx, s.db, usersQuery(f), &rows)
	})
	if err != nil {
		return nil, fmt.Errorf("users report: %w", err)
	}

	summary, roles := summarizeUsers(rows)
	return &UsersReport{Summary: summary, RoleStats: roles, Users: rows}, nil
}

func usersQuery(f UserFilter) *goqu.SelectDataset {
	ds := store.Dialect.From(goqu.T("users").As("u")).
		LeftJoin(goqu.T("loans").As("l"), goqu.On(goqu.I("l.user_id").Eq(goqu.I("u.id")))).
		Select(
			goqu.I("u.id"),
			goqu.I("u.username"),
			goqu.I("u.full_name"),
			goqu.I("u.email"),
			goqu.I("u.role"),
			goqu.I("u.class_name"),
			goqu.I("u.active"),
			goqu.I("u.created_at"),
			goqu.COUNT(goqu.I("l.id")).As("total_loans"),
			goqu.L("COUNT(l.id) FILTER (WHERE l.status IN ('borrowed', 'overdue'))").As("active_loans"),
			goqu.L("COUNT(l.id) FILTER (WHERE l.status = 'overdue')").As("overdue_loans"),
			goqu.COALESCE(goqu.SUM(goqu.I("l.fine")), 0).As("total_fines"),
			goqu.MAX(goqu.I("l.borrowed_at")).As("last_loan_date"),
		).
		GroupBy(goqu.I("u.id")).
		Order(goqu.I("total_loans").Desc(), goqu.I("u.username").Asc())

	if f.Role != nil {
		ds = ds.Where(goqu.I("u.role").Eq(string(*f.Role)))
	}
	if f.ClassName != nil {
		ds = ds.Where(goqu.I("u.class_name").Eq(*f.ClassName))
	}
	return ds
}
