package store

import (
	"context"
	"sync"
	"time"

	"mealduty-service/internal/models"
)

// Memory keeps bookings in a map. Used for local development and tests.
type Memory struct {
	mu   sync.RWMutex
	data map[models.Key]models.Booking
}

func NewMemory() *Memory {
	return &Memory{data: map[models.Key]models.Booking{}}
}

func (m *Memory) Upsert(_ context.Context, b models.Booking) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, found := m.data[b.Key()]
	if found {
		b.CreatedAt = existing.CreatedAt
	} else {
		b.CreatedAt = b.UpdatedAt
	}
	m.data[b.Key()] = b
	return !found, nil
}

func (m *Memory) MarkReimbursed(_ context.Context, key models.Key, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.data[key]
	if !ok {
		return ErrNotFound
	}
	b.Remboursee = true
	b.UpdatedAt = at
	m.data[key] = b
	return nil
}

func (m *Memory) Delete(_ context.Context, key models.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[key]; !ok {
		return ErrNotFound
	}
	delete(m.data, key)
	return nil
}

func (m *Memory) List(_ context.Context) ([]models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Booking, 0, len(m.data))
	for _, b := range m.data {
		out = append(out, b)
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error  { return nil }
func (m *Memory) Close(context.Context) error { return nil }
