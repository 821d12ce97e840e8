package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mealduty-service/internal/models"
)

type PostgresStore struct {
	DB *pgxpool.Pool
}

const createBookingsTable = `
CREATE TABLE IF NOT EXISTS bookings (
	date          TEXT NOT NULL,
	meal          TEXT NOT NULL,
	reason        TEXT,
	reimbursed_by TEXT,
	remboursee    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (date, meal)
)`

func OpenPostgres(ctx context.Context, dbURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createBookingsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create bookings table: %w", err)
	}
	log.Println("[store] connected to postgres")
	return &PostgresStore{DB: pool}, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *PostgresStore) Upsert(ctx context.Context, b models.Booking) (bool, error) {
	// xmax is 0 only for a freshly inserted row
	q := `INSERT INTO bookings (date, meal, reason, reimbursed_by, remboursee, created_at, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$6)
	      ON CONFLICT (date, meal) DO UPDATE
	      SET reason=EXCLUDED.reason, reimbursed_by=EXCLUDED.reimbursed_by,
	          remboursee=EXCLUDED.remboursee, updated_at=EXCLUDED.updated_at
	      RETURNING (xmax = 0)`

	var inserted bool
	err := s.DB.QueryRow(ctx, q,
		b.Date, string(b.Meal), nullIfEmpty(b.Reason), nullIfEmpty(b.ReimbursedBy),
		b.Remboursee, b.UpdatedAt.UTC(),
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert booking: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) MarkReimbursed(ctx context.Context, key models.Key, at time.Time) error {
	q := `UPDATE bookings SET remboursee=TRUE, updated_at=$1 WHERE date=$2 AND meal=$3`
	res, err := s.DB.Exec(ctx, q, at.UTC(), key.Date, string(key.Meal))
	if err != nil {
		return fmt.Errorf("mark booking reimbursed: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key models.Key) error {
	res, err := s.DB.Exec(ctx, `DELETE FROM bookings WHERE date=$1 AND meal=$2`, key.Date, string(key.Meal))
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.Booking, error) {
	q := `SELECT date, meal, reason, reimbursed_by, remboursee, created_at, updated_at FROM bookings`
	rows, err := s.DB.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	out := []models.Booking{}
	for rows.Next() {
		var (
			b                    models.Booking
			meal                 string
			reason, reimbursedBy *string
		)
		if err := rows.Scan(&b.Date, &meal, &reason, &reimbursedBy,
			&b.Remboursee, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		b.Meal = models.Meal(meal)
		if reason != nil {
			b.Reason = *reason
		}
		if reimbursedBy != nil {
			b.ReimbursedBy = *reimbursedBy
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.DB.Ping(ctx)
}

func (s *PostgresStore) Close(context.Context) error {
	s.DB.Close()
	return nil
}
