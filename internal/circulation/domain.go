package circulation

import (
	"time"

	"github.com/google/uuid"

	"schoollib/internal/catalog"
	"schoollib/internal/membership"
	"schoollib/internal/store"
)

// Status is the loan state. Returned is terminal; overdue is reached
// lazily from borrowed once the due date has passed.
type Status string

const (
	StatusBorrowed Status = "borrowed"
	StatusOverdue  Status = "overdue"
	StatusReturned Status = "returned"
)

func (s Status) Valid() bool {
	return s == StatusBorrowed || s == StatusOverdue || s == StatusReturned
}

// Active loans hold a copy of the book.
func (s Status) Active() bool {
	return s == StatusBorrowed || s == StatusOverdue
}

const (
	MinLoanDays = 1
	MaxLoanDays = 90
)

// Loan records one copy lent to one user. Loans are never deleted.
type Loan struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	BookID     uuid.UUID  `json:"book_id" db:"book_id"`
	BorrowedAt time.Time  `json:"borrowed_at" db:"borrowed_at"`
	DueAt      time.Time  `json:"due_at" db:"due_at"`
	ReturnedAt *time.Time `json:"returned_at" db:"returned_at"`
	Status     Status     `json:"status" db:"status"`
	Fine       float64    `json:"fine" db:"fine"`
}

// LoanView is a loan with its book and, for staff callers, its borrower.
type LoanView struct {
	Loan
	Book *catalog.Book    `json:"book,omitempty"`
	User *membership.User `json:"user,omitempty"`
}

type Filter struct {
	Page   store.Page
	UserID *uuid.UUID
	Status *Status
}

// Fine charges perDay for every whole day elapsed past due. Partial days
// are not charged and nothing is owed on or before the due instant.
func Fine(due, now time.Time, perDay float64) float64 {
	if !now.After(due) {
		return 0
	}
	days := int64(now.Sub(due) / (24 * time.Hour))
	return float64(days) * perDay
}

// DaysOverdue counts whole days past due, zero when not yet due.
func DaysOverdue(due, now time.Time) int {
	if !now.After(due) {
		return 0
	}
	return int(now.Sub(due) / (24 * time.Hour))
}

// LoanCreatedEvent is recorded when a copy is lent.
type LoanCreatedEvent struct {
	LoanID uuid.UUID `json:"loan_id"`
	UserID uuid.UUID `json:"user_id"`
	BookID uuid.UUID `json:"book_id"`
	DueAt  time.Time `json:"due_at"`
}

// LoanReturnedEvent is recorded when a copy comes back.
type LoanReturnedEvent struct {
	LoanID     uuid.UUID `json:"loan_id"`
	BookID     uuid.UUID `json:"book_id"`
	ReturnedAt time.Time `json:"returned_at"`
	Fine       float64   `json:"fine"`
}
