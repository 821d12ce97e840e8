package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"mealduty-service/internal/models"
)

var ErrNotFound = errors.New("booking not found")

// Store persists bookings addressed by their (date, meal) natural key.
// Implementations are safe for concurrent use; concurrent writes to the
// same key are last-write-wins.
type Store interface {
	// Upsert replaces the booking stored under b.Key() or inserts it.
	// Empty Reason and ReimbursedBy clear any previously stored value.
	// b.UpdatedAt is persisted as the mutation time and used as createdAt on insert.
	Upsert(ctx context.Context, b models.Booking) (created bool, err error)
	// MarkReimbursed sets remboursee=true and updatedAt=at. Returns ErrNotFound
	// when no booking matches key.
	MarkReimbursed(ctx context.Context, key models.Key, at time.Time) error
	// Delete removes the booking. Returns ErrNotFound when no booking matches key.
	Delete(ctx context.Context, key models.Key) error
	// List returns every stored booking in no particular order.
	List(ctx context.Context) ([]models.Booking, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open connects to the backend named by the scheme of rawURL:
// mongodb / mongodb+srv, postgres / postgresql, or memory.
func Open(ctx context.Context, rawURL string) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	switch u.Scheme {
	case "mongodb", "mongodb+srv":
		return OpenMongo(ctx, rawURL)
	case "postgres", "postgresql":
		return OpenPostgres(ctx, rawURL)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported database scheme %q", u.Scheme)
	}
}
