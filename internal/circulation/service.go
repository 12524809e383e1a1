package circulation

import (
	"context"

	"github.com/google/uuid"

	"schoollib/internal/eventlog"
)

// Service defines the interface for the loan ledger.
type Service interface {
	// CreateLoan lends a copy for days days; zero selects the default period.
	CreateLoan(ctx context.Context, userID, bookID uuid.UUID, days int) (*Loan, error)
	ReturnLoan(ctx context.Context, loanID uuid.UUID) (*Loan, error)
	ListLoans(ctx context.Context, f Filter) ([]Loan, error)
	GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error)
	// SweepOverdue marks borrowed loans past due as overdue.
	SweepOverdue(ctx context.Context) (int64, error)
	History(ctx context.Context, id uuid.UUID) ([]eventlog.Event, error)
	Enrich(ctx context.Context, loans []Loan, withUser bool) ([]LoanView, error)
}
