package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the catalog store.
type Service interface {
	CreateBook(ctx context.Context, candidate NewBook) (*Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	// GetBooks loads several books at once; missing ids are absent from
	// the result.
	GetBooks(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Book, error)
	ListBooks(ctx context.Context, f Filter) ([]Book, error)
	UpdateBook(ctx context.Context, id uuid.UUID, upd BookUpdate) (*Book, error)
	DeleteBook(ctx context.Context, id uuid.UUID) error
	// MatchBook finds an existing title by ISBN, or by title and author
	// when isbn is empty.
	MatchBook(ctx context.Context, isbn, title, author string) (*Book, error)
	// AddCopies raises both total and available copies by n.
	AddCopies(ctx context.Context, id uuid.UUID, n int) (*Book, error)
}
