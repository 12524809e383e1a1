package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"schoollib/internal/store"
)

// Book is a catalog title with its copy counters.
// 0 <= AvailableCopies <= TotalCopies always holds.
type Book struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	Title           string         `json:"title" db:"title"`
	Authors         pq.StringArray `json:"authors" db:"authors"`
	ISBN            *string        `json:"isbn,omitempty" db:"isbn"`
	Publisher       *string        `json:"publisher,omitempty" db:"publisher"`
	Year            *int           `json:"year,omitempty" db:"year"`
	Description     *string        `json:"description,omitempty" db:"description"`
	Categories      pq.StringArray `json:"categories" db:"categories"`
	Tags            pq.StringArray `json:"tags" db:"tags"`
	Location        *string        `json:"location,omitempty" db:"location"`
	CoverURL        *string        `json:"cover_url,omitempty" db:"cover_url"`
	TotalCopies     int            `json:"total_copies" db:"total_copies"`
	AvailableCopies int            `json:"available_copies" db:"available_copies"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// NewBook is a candidate catalog entry.
type NewBook struct {
	Title       string   `json:"title" validate:"required,min=1,max=200"`
	Authors     []string `json:"authors" validate:"min=1,dive,required"`
	ISBN        *string  `json:"isbn" validate:"omitempty,max=20"`
	Publisher   *string  `json:"publisher" validate:"omitempty,max=100"`
	Year        *int     `json:"year" validate:"omitempty,gte=1000,lte=2030"`
	Description *string  `json:"description" validate:"omitempty,max=2000"`
	Categories  []string `json:"categories"`
	Tags        []string `json:"tags"`
	Location    *string  `json:"location" validate:"omitempty,max=100"`
	CoverURL    *string  `json:"cover_url"`
	TotalCopies int      `json:"total_copies" validate:"gte=1"`
}

// BookUpdate is a partial change; nil fields are left untouched.
type BookUpdate struct {
	Title       *string   `json:"title" validate:"omitempty,min=1,max=200"`
	Authors     *[]string `json:"authors" validate:"omitempty,min=1,dive,required"`
	ISBN        *string   `json:"isbn" validate:"omitempty,max=20"`
	Publisher   *string   `json:"publisher" validate:"omitempty,max=100"`
	Year        *int      `json:"year" validate:"omitempty,gte=1000,lte=2030"`
	Description *string   `json:"description" validate:"omitempty,max=2000"`
	Categories  *[]string `json:"categories"`
	Tags        *[]string `json:"tags"`
	Location    *string   `json:"location" validate:"omitempty,max=100"`
	CoverURL    *string   `json:"cover_url"`
	TotalCopies *int      `json:"total_copies" validate:"omitempty,gte=1"`
}

// Filter narrows ListBooks. Search is a case-insensitive substring match
// over title, authors, isbn and description.
type Filter struct {
	Page      store.Page
	Search    *string
	Category  *string
	Available *bool
}

// BookAddedEvent is recorded when a title enters the catalog.
type BookAddedEvent struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	TotalCopies int       `json:"total_copies"`
}

// BookUpdatedEvent records copy counters after an edit.
type BookUpdatedEvent struct {
	ID              uuid.UUID `json:"id"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
}

// CopiesAddedEvent is recorded when an import adds copies to a known title.
type CopiesAddedEvent struct {
	ID    uuid.UUID `json:"id"`
	Added int       `json:"added"`
}

// BookRemovedEvent is recorded when a title leaves the catalog.
type BookRemovedEvent struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}
