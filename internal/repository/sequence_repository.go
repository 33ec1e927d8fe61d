package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SequenceRepository allocates per-(driver, week) parcel numbers. The counter
// lives in the parcel_sequences table and is advanced by a single upsert so
// concurrent intakes can never observe the same value. A client-side
// read-then-write is explicitly not allowed here.
type SequenceRepository struct {
	db *sqlx.DB
}

// NewSequenceRepository constructs the repository.
func NewSequenceRepository(db *sqlx.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// Next atomically increments and returns the counter for the scope. The first
// allocation in a scope returns 1; gaps may appear when a later intake step
// fails, duplicates may not.
func (r *SequenceRepository) Next(ctx context.Context, driverID, weekID string) (int, error) {
	const query = `INSERT INTO parcel_sequences (driver_id, week_id, counter)
	VALUES ($1, $2, 1)
	ON CONFLICT (driver_id, week_id)
	DO UPDATE SET counter = parcel_sequences.counter + 1
	RETURNING counter`
	var counter int
	if err := r.db.GetContext(ctx, &counter, query, driverID, weekID); err != nil {
		return 0, fmt.Errorf("next sequence for %s/%s: %w", driverID, weekID, err)
	}
	return counter, nil
}
