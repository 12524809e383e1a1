package reports

import "context"

// Service computes read-only reports over live data. Nothing is cached.
type Service interface {
	DashboardStats(ctx context.Context) (*Dashboard, error)
	LoansReport(ctx context.Context, f LoanFilter) (*LoansReport, error)
	BooksReport(ctx context.Context, f BookFilter) (*BooksReport, error)
	UsersReport(ctx context.Context, f UserFilter) (*UsersReport, error)
}
