package transfer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"schoollib/internal/apperr"
	"schoollib/internal/auth"
	"schoollib/internal/catalog"
	"schoollib/internal/membership"
	"schoollib/internal/reports"
)

type service struct {
	catalog catalog.Service
	members membership.Service
	reports reports.Service
	logger  *slog.Logger
	tracer  trace.Tracer
}

func NewService(books catalog.Service, members membership.Service, rep reports.Service, logger *slog.Logger) Service {
	return &service{
		catalog: books,
		members: members,
		reports: rep,
		logger:  logger,
		tracer:  otel.Tracer("schoollib/transfer"),
	}
}

func (s *service) ImportBooks(ctx context.Context, src io.Reader) (*BookImportResult, error) {
	ctx, span := s.tracer.Start(ctx, "transfer.import_books")
	defer span.End()

	r, err := newReader(src)
	if err != nil {
		return nil, err
	}

	res := &BookImportResult{Errors: []RowError{}}
	for {
		rec, row, err := r.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, RowError{Row: row, Error: "Invalid data format: " + err.Error()})
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		updated, err := s.importBook(ctx, rec)
		switch {
		case err != nil:
			res.Errors = append(res.Errors, RowError{Row: row, Error: err.Error()})
		case updated:
			res.Updated++
		default:
			res.Created++
		}
	}

	span.SetAttributes(
		attribute.Int("import.created", res.Created),
		attribute.Int("import.updated", res.Updated),
		attribute.Int("import.errors", len(res.Errors)),
	)
	s.logger.InfoContext(ctx, "books imported", "created", res.Created, "updated", res.Updated, "errors", len(res.Errors))
	return res, nil
}

// rowError is a client-facing per-row message.
type rowError string

func (e rowError) Error() string { return string(e) }

func rowErrorf(format string, args ...any) error {
	return rowError(fmt.Sprintf(format, args...))
}

// importBook adds copies to a matching book or creates a new one. It
// reports whether an existing book was updated.
func (s *service) importBook(ctx context.Context, rec record) (bool, error) {
	if miss := rec.missing("title", "authors", "total_copies"); len(miss) > 0 {
		return false, rowErrorf("Missing required fields: %s", strings.Join(miss, ", "))
	}
	authors := splitList(rec.get("authors"))
	if len(authors) == 0 {
		return false, rowErrorf("Missing required fields: authors")
	}
	copies, err := strconv.Atoi(rec.get("total_copies"))
	if err != nil || copies < 1 {
		return false, rowErrorf("Invalid data format: total_copies must be a positive integer, got %q", rec.get("total_copies"))
	}
	title := rec.get("title")

	existing, err := s.catalog.MatchBook(ctx, rec.get("isbn"), title, authors[0])
	switch {
	case err == nil:
		if _, err := s.catalog.AddCopies(ctx, existing.ID, copies); err != nil {
			return false, unexpected(err)
		}
		return true, nil
	case !apperr.Is(err, apperr.ErrNotFound):
		return false, unexpected(err)
	}

	candidate := catalog.NewBook{
		Title:       title,
		Authors:     authors,
		ISBN:        rec.optional("isbn"),
		Publisher:   rec.optional("publisher"),
		Description: rec.optional("description"),
		Categories:  splitList(rec.get("categories")),
		Tags:        []string{},
		Location:    rec.optional("location"),
		CoverURL:    rec.optional("cover_url"),
		TotalCopies: copies,
	}
	// A year the catalog would reject is dropped rather than failing the row.
	if y, err := strconv.Atoi(rec.get("year")); err == nil && y >= minYear && y <= maxYear {
		candidate.Year = &y
	}
	if _, err := s.catalog.CreateBook(ctx, candidate); err != nil {
		return false, unexpected(err)
	}
	return false, nil
}

func (s *service) ImportUsers(ctx context.Context, src io.Reader) (*UserImportResult, error) {
	ctx, span := s.tracer.Start(ctx, "transfer.import_users")
	defer span.End()

	r, err := newReader(src)
	if err != nil {
		return nil, err
	}

	res := &UserImportResult{Errors: []RowError{}}
	for {
		rec, row, err := r.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, RowError{Row: row, Error: "Invalid data format: " + err.Error()})
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err = s.importUser(ctx, rec)
		switch {
		case err == nil:
			res.Created++
		case errors.Is(err, errDuplicate):
			res.Duplicates++
			res.Errors = append(res.Errors, RowError{Row: row, Error: fmt.Sprintf("User %s already exists", rec.get("username"))})
		default:
			res.Errors = append(res.Errors, RowError{Row: row, Error: err.Error()})
		}
	}

	span.SetAttributes(
		attribute.Int("import.created", res.Created),
		attribute.Int("import.duplicates", res.Duplicates),
		attribute.Int("import.errors", len(res.Errors)),
	)
	s.logger.InfoContext(ctx, "users imported", "created", res.Created, "duplicates", res.Duplicates, "errors", len(res.Errors))
	return res, nil
}

var errDuplicate = errors.New("duplicate user")

func (s *service) importUser(ctx context.Context, rec record) error {
	if miss := rec.missing("username", "email", "full_name", "role"); len(miss) > 0 {
		return rowErrorf("Missing required fields: %s", strings.Join(miss, ", "))
	}
	role := auth.Role(strings.ToLower(rec.get("role")))
	if !role.Valid() {
		return rowErrorf("Invalid role: %s", rec.get("role"))
	}

	username, email := rec.get("username"), rec.get("email")
	taken, err := s.members.Exists(ctx, username, email)
	if err != nil {
		return unexpected(err)
	}
	if taken {
		return errDuplicate
	}

	password := rec.get("password")
	if password == "" {
		password = username + "123"
	}
	_, err = s.members.CreateUser(ctx, membership.NewUser{
		Username:  username,
		Email:     email,
		FullName:  rec.get("full_name"),
		Role:      role,
		ClassName: rec.optional("class"),
		Phone:     rec.optional("phone"),
		Password:  password,
	})
	if apperr.Is(err, apperr.ErrConflict) {
		return errDuplicate
	}
	if err != nil {
		return unexpected(err)
	}
	return nil
}

// unexpected maps a service error to its row message. Validation
// failures describe the bad cell; anything else is reported verbatim.
func unexpected(err error) error {
	if apperr.Is(err, apperr.ErrValidation) {
		return rowErrorf("Invalid data format: %s", apperr.Message(err, err.Error()))
	}
	return rowErrorf("Unexpected error: %v", err)
}

func (s *service) ExportBooks(ctx context.Context, w io.Writer, category *string) error {
	books, err := s.catalog.ListBooks(ctx, catalog.Filter{Category: category})
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(bookExportColumns); err != nil {
		return err
	}
	for _, b := range books {
		err := cw.Write([]string{
			b.ID.String(),
			b.Title,
			strings.Join(b.Authors, ", "),
			deref(b.ISBN),
			deref(b.Publisher),
			year(b.Year),
			deref(b.Description),
			strings.Join(b.Categories, ", "),
			strconv.Itoa(b.TotalCopies),
			strconv.Itoa(b.AvailableCopies),
			deref(b.Location),
			deref(b.CoverURL),
			timestamp(&b.CreatedAt),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *service) ExportUsers(ctx context.Context, w io.Writer, role *auth.Role) error {
	users, err := s.members.ListUsers(ctx, membership.Filter{Role: role})
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(userExportColumns); err != nil {
		return err
	}
	for _, u := range users {
		err := cw.Write([]string{
			u.ID.String(),
			u.Username,
			u.Email,
			u.FullName,
			string(u.Role),
			deref(u.ClassName),
			deref(u.Phone),
			strconv.FormatBool(u.Active),
			timestamp(&u.CreatedAt),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *service) ExportLoans(ctx context.Context, w io.Writer, f reports.LoanFilter) error {
	rep, err := s.reports.LoansReport(ctx, f)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(loanExportColumns); err != nil {
		return err
	}
	for _, l := range rep.Loans {
		err := cw.Write([]string{
			l.ID.String(),
			l.BookTitle,
			strings.Join(l.BookAuthors, ", "),
			deref(l.BookISBN),
			l.UserName,
			l.UserEmail,
			string(l.UserRole),
			deref(l.UserClass),
			timestamp(&l.BorrowedAt),
			timestamp(&l.DueAt),
			timestamp(l.ReturnedAt),
			l.Status,
			strconv.FormatFloat(l.Fine, 'f', -1, 64),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTemplate writes the import header for kind and one example row.
func WriteTemplate(w io.Writer, kind Kind) error {
	var header []string
	switch kind {
	case KindBooks:
		header = bookImportColumns
	case KindUsers:
		header = userImportColumns
	default:
		return apperr.NotFound("No template for %s", kind)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.Write(templates[kind]); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func year(y *int) string {
	if y == nil {
		return ""
	}
	return strconv.Itoa(*y)
}

func timestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
