package reservation

import (
	"time"

	"github.com/google/uuid"

	"schoollib/internal/store"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusAvailable Status = "available"
	StatusCancelled Status = "cancelled"
	StatusFulfilled Status = "fulfilled"
)

// Open reservations can still be cancelled.
func (s Status) Open() bool {
	return s == StatusWaiting || s == StatusAvailable
}

// Reservation is one place in a book's wait list.
type Reservation struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	BookID     uuid.UUID  `json:"book_id" db:"book_id"`
	ReservedAt time.Time  `json:"reserved_at" db:"reserved_at"`
	Status     Status     `json:"status" db:"status"`
	NotifiedAt *time.Time `json:"notified_at" db:"notified_at"`
}

type Filter struct {
	Page   store.Page
	UserID *uuid.UUID
	BookID *uuid.UUID
}

type ReservationCreatedEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	UserID        uuid.UUID `json:"user_id"`
	BookID        uuid.UUID `json:"book_id"`
}

type ReservationCancelledEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	Previous      Status    `json:"previous_status"`
}
