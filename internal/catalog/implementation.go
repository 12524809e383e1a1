package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"schoollib/internal/apperr"
	"schoollib/internal/eventlog"
	"schoollib/internal/store"
	"schoollib/internal/validation"
)

var bookColumns = []any{
	"id", "title", "authors", "isbn", "publisher", "year", "description", "categories", "tags",
	"location", "cover_url", "total_copies", "available_copies", "created_at", "updated_at",
}

// service implements the Service interface.
type service struct {
	db     *sqlx.DB
	events *eventlog.Log
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewService creates the catalog store.
func NewService(db *sqlx.DB, events *eventlog.Log, logger *slog.Logger) Service {
	return &service{
		db:     db,
		events: events,
		logger: logger,
		tracer: otel.Tracer("schoollib/catalog"),
		now:    time.Now,
	}
}

func (s *service) CreateBook(ctx context.Context, candidate NewBook) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.create_book")
	defer span.End()

	candidate.Title = strings.TrimSpace(candidate.Title)
	if err := validation.Struct(candidate); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	book := &Book{
		ID:              uuid.New(),
		Title:           candidate.Title,
		Authors:         cleanList(candidate.Authors),
		ISBN:            candidate.ISBN,
		Publisher:       candidate.Publisher,
		Year:            candidate.Year,
		Description:     candidate.Description,
		Categories:      cleanList(candidate.Categories),
		Tags:            cleanList(candidate.Tags),
		Location:        candidate.Location,
		CoverURL:        candidate.CoverURL,
		TotalCopies:     candidate.TotalCopies,
		AvailableCopies: candidate.TotalCopies,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if len(book.Authors) == 0 {
		return nil, apperr.Validation("authors must contain at least 1 item(s)")
	}
	span.SetAttributes(attribute.String("book.id", book.ID.String()))

	err := store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertBook, book); err != nil {
			return err
		}
		return s.events.Append(ctx, tx, book.ID, eventlog.AggregateBook, "BookAdded", BookAddedEvent{
			ID:          book.ID,
			Title:       book.Title,
			TotalCopies: book.TotalCopies,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("insert book: %w", err)
	}

	s.logger.InfoContext(ctx, "book added", "book_id", book.ID, "title", book.Title, "copies", book.TotalCopies)
	return book, nil
}

const insertBook = `
	INSERT INTO books (id, title, authors, isbn, publisher, year, description, categories, tags,
		location, cover_url, total_copies, available_copies, created_at, updated_at)
	VALUES (:id, :title, :authors, :isbn, :publisher, :year, :description, :categories, :tags,
		:location, :cover_url, :total_copies, :available_copies, :created_at, :updated_at)
`

func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	return s.getBook(ctx, s.db, id, false)
}

func (s *service) getBook(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID, lock bool) (*Book, error) {
	ds := store.Dialect.From("books").Select(bookColumns...).Where(goqu.C("id").Eq(id.String()))
	if lock {
		ds = ds.ForUpdate(goqu.Wait)
	}
	book := &Book{}
	if err := store.Get(ctx, q, ds, book); err != nil {
		if store.IsNoRows(err) {
			return nil, apperr.NotFound("Book not found")
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return book, nil
}

func (s *service) GetBooks(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Book, error) {
	out := make(map[uuid.UUID]*Book, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	books := []Book{}
	ds := store.Dialect.From("books").Select(bookColumns...).Where(goqu.C("id").In(uuidStrings(ids)))
	if err := store.Select(ctx, s.db, ds, &books); err != nil {
		return nil, fmt.Errorf("get books: %w", err)
	}
	for i := range books {
		out[books[i].ID] = &books[i]
	}
	return out, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// ListBooks returns books ordered by title.
func (s *service) ListBooks(ctx context.Context, f Filter) ([]Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.list_books")
	defer span.End()

	books := []Book{}
	if err := store.Select(ctx, s.db, listQuery(f), &books); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	span.SetAttributes(attribute.Int("books.count", len(books)))
	return books, nil
}

func listQuery(f Filter) *goqu.SelectDataset {
	ds := store.Dialect.From("books").Select(bookColumns...).Order(goqu.C("title").Asc(), goqu.C("id").Asc())
	if f.Search != nil && *f.Search != "" {
		pattern := store.Contains(*f.Search)
		ds = ds.Where(goqu.Or(
			goqu.C("title").ILike(pattern),
			goqu.L("array_to_string(authors, ' ') ILIKE ?", pattern),
			goqu.C("isbn").ILike(pattern),
			goqu.C("description").ILike(pattern),
		))
	}
	if f.Category != nil && *f.Category != "" {
		ds = ds.Where(goqu.L("? = ANY(categories)", *f.Category))
	}
	if f.Available != nil {
		if *f.Available {
			ds = ds.Where(goqu.C("available_copies").Gt(0))
		} else {
			ds = ds.Where(goqu.C("available_copies").Eq(0))
		}
	}
	return f.Page.Apply(ds)
}

// UpdateBook merges upd into the stored book. A change of total copies
// moves available copies by the same amount.
func (s *service) UpdateBook(ctx context.Context, id uuid.UUID, upd BookUpdate) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.update_book", trace.WithAttributes(attribute.String("book.id", id.String())))
	defer span.End()

	if err := validation.Struct(upd); err != nil {
		return nil, err
	}

	var book *Book
	err := store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		current, err := s.getBook(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := merge(current, upd); err != nil {
			return err
		}
		current.UpdatedAt = s.now().UTC()

		_, err = tx.NamedExecContext(ctx, `
			UPDATE books SET title = :title, authors = :authors, isbn = :isbn, publisher = :publisher,
				year = :year, description = :description, categories = :categories, tags = :tags,
				location = :location, cover_url = :cover_url, total_copies = :total_copies,
				available_copies = :available_copies, updated_at = :updated_at
			WHERE id = :id
		`, current)
		if err != nil {
			return err
		}
		book = current
		return s.events.Append(ctx, tx, id, eventlog.AggregateBook, "BookUpdated", BookUpdatedEvent{
			ID:              id,
			TotalCopies:     current.TotalCopies,
			AvailableCopies: current.AvailableCopies,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("update book: %w", err)
	}
	return book, nil
}

func merge(b *Book, upd BookUpdate) error {
	if upd.Title != nil {
		b.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.Authors != nil {
		b.Authors = cleanList(*upd.Authors)
		if len(b.Authors) == 0 {
			return apperr.Validation("authors must contain at least 1 item(s)")
		}
	}
	if upd.ISBN != nil {
		b.ISBN = upd.ISBN
	}
	if upd.Publisher != nil {
		b.Publisher = upd.Publisher
	}
	if upd.Year != nil {
		b.Year = upd.Year
	}
	if upd.Description != nil {
		b.Description = upd.Description
	}
	if upd.Categories != nil {
		b.Categories = cleanList(*upd.Categories)
	}
	if upd.Tags != nil {
		b.Tags = cleanList(*upd.Tags)
	}
	if upd.Location != nil {
		b.Location = upd.Location
	}
	if upd.CoverURL != nil {
		b.CoverURL = upd.CoverURL
	}
	if upd.TotalCopies != nil {
		delta := *upd.TotalCopies - b.TotalCopies
		if b.AvailableCopies+delta < 0 {
			return apperr.Validation("total_copies cannot be lower than the %d copies currently on loan",
				b.TotalCopies-b.AvailableCopies)
		}
		b.TotalCopies = *upd.TotalCopies
		b.AvailableCopies += delta
	}
	return nil
}

// DeleteBook removes a book unless one of its loans is borrowed or
// overdue. The check and the delete share one transaction holding the
// book row lock, which loan creation also takes.
func (s *service) DeleteBook(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "catalog.delete_book", trace.WithAttributes(attribute.String("book.id", id.String())))
	defer span.End()

	err := store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		book, err := s.getBook(ctx, tx, id, true)
		if err != nil {
			return err
		}

		var active int
		err = tx.GetContext(ctx, &active, `
			SELECT COUNT(*) FROM loans WHERE book_id = $1 AND status IN ('borrowed', 'overdue')
		`, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return apperr.Conflict("Cannot delete book with active loans")
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id); err != nil {
			return err
		}
		return s.events.Append(ctx, tx, id, eventlog.AggregateBook, "BookRemoved", BookRemovedEvent{ID: id, Title: book.Title})
	})
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	s.logger.InfoContext(ctx, "book removed", "book_id", id)
	return nil
}

func (s *service) MatchBook(ctx context.Context, isbn, title, author string) (*Book, error) {
	ds := store.Dialect.From("books").Select(bookColumns...).Order(goqu.C("created_at").Asc()).Limit(1)
	if isbn = strings.TrimSpace(isbn); isbn != "" {
		ds = ds.Where(goqu.C("isbn").Eq(isbn))
	} else {
		ds = ds.Where(goqu.C("title").Eq(strings.TrimSpace(title)), goqu.L("? = ANY(authors)", strings.TrimSpace(author)))
	}
	book := &Book{}
	if err := store.Get(ctx, s.db, ds, book); err != nil {
		if store.IsNoRows(err) {
			return nil, apperr.NotFound("Book not found")
		}
		return nil, fmt.Errorf("match book: %w", err)
	}
	return book, nil
}

func (s *service) AddCopies(ctx context.Context, id uuid.UUID, n int) (*Book, error) {
	if n < 1 {
		return nil, apperr.Validation("copies to add must be positive")
	}
	ctx, span := s.tracer.Start(ctx, "catalog.add_copies", trace.WithAttributes(
		attribute.String("book.id", id.String()),
		attribute.Int("copies.added", n),
	))
	defer span.End()

	book := &Book{}
	err := store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, `
			UPDATE books
			SET total_copies = total_copies + $1, available_copies = available_copies + $1, updated_at = $2
			WHERE id = $3
			RETURNING id, title, authors, isbn, publisher, year, description, categories, tags,
				location, cover_url, total_copies, available_copies, created_at, updated_at
		`, n, s.now().UTC(), id).StructScan(book)
		if err != nil {
			if store.IsNoRows(err) {
				return apperr.NotFound("Book not found")
			}
			return err
		}
		return s.events.Append(ctx, tx, id, eventlog.AggregateBook, "CopiesAdded", CopiesAddedEvent{ID: id, Added: n})
	})
	if err != nil {
		return nil, fmt.Errorf("add copies: %w", err)
	}
	return book, nil
}

// cleanList trims entries, drops blanks and never returns nil so that
// NOT NULL array columns and JSON output stay well-formed.
func cleanList(in []string) pq.StringArray {
	out := pq.StringArray{}
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
