package reports

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"schoollib/internal/auth"
)

type Overview struct {
	TotalBooks     int `json:"total_books" db:"total_books"`
	AvailableBooks int `json:"available_books" db:"available_books"`
	TotalUsers     int `json:"total_users" db:"total_users"`
	ActiveLoans    int `json:"active_loans" db:"active_loans"`
	OverdueLoans   int `json:"overdue_loans" db:"overdue_loans"`
}

type PopularBook struct {
	BookID    uuid.UUID      `json:"book_id" db:"book_id"`
	Title     string         `json:"book_title" db:"title"`
	Authors   pq.StringArray `json:"book_authors" db:"authors"`
	LoanCount int            `json:"loan_count" db:"loan_count"`
}

type RecentLoan struct {
	ID         uuid.UUID `json:"id" db:"id"`
	BookTitle  string    `json:"book_title" db:"book_title"`
	UserName   string    `json:"user_name" db:"user_name"`
	BorrowedAt time.Time `json:"borrowed_at" db:"borrowed_at"`
	DueAt      time.Time `json:"due_at" db:"due_at"`
	Status     string    `json:"status" db:"status"`
}

// MonthlyStat covers one calendar month; Month is "YYYY-M".
type MonthlyStat struct {
	Month         string `json:"month"`
	TotalLoans    int    `json:"total_loans"`
	ReturnedLoans int    `json:"returned_loans"`
	ActiveLoans   int    `json:"active_loans"`
}

type Dashboard struct {
	Overview       Overview      `json:"overview"`
	PopularBooks   []PopularBook `json:"popular_books"`
	RecentActivity []RecentLoan  `json:"recent_activity"`
	MonthlyStats   []MonthlyStat `json:"monthly_stats"`
}

type LoanFilter struct {
	Start    *time.Time
	End      *time.Time
	Status   *string
	UserRole *auth.Role
}

type LoanRow struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	BookTitle   string         `json:"book_title" db:"book_title"`
	BookAuthors pq.StringArray `json:"book_authors" db:"book_authors"`
	BookISBN    *string        `json:"book_isbn" db:"book_isbn"`
	UserName    string         `json:"user_name" db:"user_name"`
	UserEmail   string         `json:"user_email" db:"user_email"`
	UserRole    auth.Role      `json:"user_role" db:"user_role"`
	UserClass   *string        `json:"user_class" db:"user_class"`
	BorrowedAt  time.Time      `json:"borrowed_at" db:"borrowed_at"`
	DueAt       time.Time      `json:"due_at" db:"due_at"`
	ReturnedAt  *time.Time     `json:"returned_at" db:"returned_at"`
	Status      string         `json:"status" db:"status"`
	Fine        float64        `json:"fine" db:"fine"`
	DaysOverdue int            `json:"days_overdue" db:"-"`
}

type LoansSummary struct {
	TotalLoans      int            `json:"total_loans"`
	TotalFines      float64        `json:"total_fines"`
	StatusBreakdown map[string]int `json:"status_breakdown"`
}

type LoansReport struct {
	Summary LoansSummary `json:"summary"`
	Loans   []LoanRow    `json:"loans"`
}

// Availability narrows BooksReport.
type Availability string

const (
	AvailabilityAll         Availability = "all"
	AvailabilityAvailable   Availability = "available"
	AvailabilityUnavailable Availability = "unavailable"
)

func (a Availability) Valid() bool {
	return a == AvailabilityAll || a == AvailabilityAvailable || a == AvailabilityUnavailable
}

type BookFilter struct {
	Category     *string
	Availability Availability
}

type BookRow struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	Title           string         `json:"title" db:"title"`
	Authors         pq.StringArray `json:"authors" db:"authors"`
	ISBN            *string        `json:"isbn" db:"isbn"`
	Publisher       *string        `json:"publisher" db:"publisher"`
	Year            *int           `json:"year" db:"year"`
	Categories      pq.StringArray `json:"categories" db:"categories"`
	TotalCopies     int            `json:"total_copies" db:"total_copies"`
	AvailableCopies int            `json:"available_copies" db:"available_copies"`
	Location        *string        `json:"location" db:"location"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	TotalLoans      int            `json:"total_loans" db:"total_loans"`
	ActiveLoans     int            `json:"active_loans" db:"active_loans"`
	PopularityScore float64        `json:"popularity_score" db:"-"`
}

type BooksSummary struct {
	TotalBooks           int     `json:"total_books"`
	TotalCopies          int     `json:"total_copies"`
	AvailableCopies      int     `json:"available_copies"`
	LoanRate             float64 `json:"loan_rate"`
	TotalHistoricalLoans int     `json:"total_historical_loans"`
}

type CategoryStat struct {
	Books      int `json:"books"`
	TotalLoans int `json:"total_loans"`
}

type BooksReport struct {
	Summary       BooksSummary            `json:"summary"`
	CategoryStats map[string]CategoryStat `json:"category_stats"`
	Books         []BookRow               `json:"books"`
}

type UserFilter struct {
	Role      *auth.Role
	ClassName *string
}

type UserRow struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	FullName     string     `json:"full_name" db:"full_name"`
	Email        string     `json:"email" db:"email"`
	Role         auth.Role  `json:"role" db:"role"`
	ClassName    *string    `json:"class_name" db:"class_name"`
	Active       bool       `json:"active" db:"active"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	TotalLoans   int        `json:"total_loans" db:"total_loans"`
	ActiveLoans  int        `json:"active_loans" db:"active_loans"`
	OverdueLoans int        `json:"overdue_loans" db:"overdue_loans"`
	TotalFines   float64    `json:"total_fines" db:"total_fines"`
	LastLoanDate *time.Time `json:"last_loan_date" db:"last_loan_date"`
}

type UsersSummary struct {
	TotalUsers      int     `json:"total_users"`
	ActiveUsers     int     `json:"active_users"`
	TotalLoans      int     `json:"total_loans"`
	TotalFines      float64 `json:"total_fines"`
	AvgLoansPerUser float64 `json:"avg_loans_per_user"`
}

type RoleStat struct {
	Count      int `json:"count"`
	TotalLoans int `json:"total_loans"`
}

type UsersReport struct {
	Summary   UsersSummary           `json:"summary"`
	RoleStats map[auth.Role]RoleStat `json:"role_stats"`
	Users     []UserRow              `json:"users"`
}
