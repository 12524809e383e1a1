package transfer

import (
	"context"
	"io"

	"schoollib/internal/auth"
	"schoollib/internal/reports"
)

// Service moves books, users and loans in and out as CSV. Imports keep
// going past bad rows and report each one.
type Service interface {
	ImportBooks(ctx context.Context, src io.Reader) (*BookImportResult, error)
	ImportUsers(ctx context.Context, src io.Reader) (*UserImportResult, error)
	ExportBooks(ctx context.Context, w io.Writer, category *string) error
	ExportUsers(ctx context.Context, w io.Writer, role *auth.Role) error
	ExportLoans(ctx context.Context, w io.Writer, f reports.LoanFilter) error
}
