package reservation

import (
	"context"

	"github.com/google/uuid"
)

// Service manages the reservation wait list. Entries are never promoted
// automatically; staff act on them by hand.
type Service interface {
	CreateReservation(ctx context.Context, userID, bookID uuid.UUID) (*Reservation, error)
	ListReservations(ctx context.Context, f Filter) ([]Reservation, error)
	GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error)
	CancelReservation(ctx context.Context, id uuid.UUID) (*Reservation, error)
}
