package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/xdmy1/colete/internal/models"
)

const parcelColumns = `id, human_id, numeric_id, driver_id, week_id, origin_code, delivery_destination,
       sender_details, receiver_details, content_description, appearance, weight, price, currency,
       photo_url, route_order, labels, status, is_archived, client_satisfied, delivery_note,
       delivered_at, created_at, updated_at`

// ParcelRepository persists parcels.
type ParcelRepository struct {
	db *sqlx.DB
}

// NewParcelRepository constructs the repository.
func NewParcelRepository(db *sqlx.DB) *ParcelRepository {
	return &ParcelRepository{db: db}
}

// Create inserts a new parcel row.
func (r *ParcelRepository) Create(ctx context.Context, parcel *models.Parcel) error {
	if parcel.ID == "" {
		parcel.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if parcel.CreatedAt.IsZero() {
		parcel.CreatedAt = now
	}
	parcel.UpdatedAt = now
	if parcel.Labels == nil {
		parcel.Labels = []string{}
	}
	if parcel.Status == "" {
		parcel.Status = models.StatusPending
	}
	const query = `INSERT INTO parcels
	(id, human_id, numeric_id, driver_id, week_id, origin_code, delivery_destination,
	 sender_details, receiver_details, content_description, appearance, weight, price, currency,
	 photo_url, route_order, labels, status, is_archived, client_satisfied, delivery_note,
	 delivered_at, created_at, updated_at)
	VALUES (:id, :human_id, :numeric_id, :driver_id, :week_id, :origin_code, :delivery_destination,
	 :sender_details, :receiver_details, :content_description, :appearance, :weight, :price, :currency,
	 :photo_url, :route_order, :labels, :status, :is_archived, :client_satisfied, :delivery_note,
	 :delivered_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, parcel); err != nil {
		return fmt.Errorf("create parcel: %w", err)
	}
	return nil
}

// GetByID fetches a parcel by identifier.
func (r *ParcelRepository) GetByID(ctx context.Context, id string) (*models.Parcel, error) {
	query := fmt.Sprintf(`SELECT %s FROM parcels WHERE id = $1`, parcelColumns)
	var parcel models.Parcel
	if err := r.db.GetContext(ctx, &parcel, query, id); err != nil {
		return nil, err
	}
	return &parcel, nil
}

// List returns parcels matching the filter. Active parcels come back in
// manual route order; archived parcels newest first.
func (r *ParcelRepository) List(ctx context.Context, filter models.ParcelFilter) ([]models.Parcel, error) {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("SELECT %s FROM parcels", parcelColumns))
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 4)

	args = append(args, filter.Archived)
	conditions = append(conditions, fmt.Sprintf("is_archived = $%d", len(args)))
	if filter.DriverID != "" {
		args = append(args, filter.DriverID)
		conditions = append(conditions, fmt.Sprintf("driver_id = $%d", len(args)))
	}
	if filter.WeekID != "" {
		args = append(args, filter.WeekID)
		conditions = append(conditions, fmt.Sprintf("week_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	builder.WriteString(" WHERE ")
	builder.WriteString(strings.Join(conditions, " AND "))
	if filter.Archived {
		builder.WriteString(" ORDER BY created_at DESC")
	} else {
		builder.WriteString(" ORDER BY route_order ASC")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var parcels []models.Parcel
	if err := r.db.SelectContext(ctx, &parcels, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list parcels: %w", err)
	}
	return parcels, nil
}

// NextRouteOrder returns the insertion position for a driver's next parcel.
func (r *ParcelRepository) NextRouteOrder(ctx context.Context, driverID string) (int, error) {
	const query = `SELECT COALESCE(MAX(route_order) + 1, 0) FROM parcels
	WHERE driver_id = $1 AND is_archived = FALSE`
	var order int
	if err := r.db.GetContext(ctx, &order, query, driverID); err != nil {
		return 0, fmt.Errorf("next route order: %w", err)
	}
	return order, nil
}

// MarkDelivered transitions a pending parcel to delivered with feedback. The
// status guard makes the transition one-way; zero rows means the parcel is
// missing or already delivered.
func (r *ParcelRepository) MarkDelivered(ctx context.Context, id string, satisfied bool, note *string, deliveredAt time.Time) error {
	const query = `UPDATE parcels
	SET status = 'delivered', client_satisfied = $2, delivery_note = $3, delivered_at = $4, updated_at = $4
	WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id, satisfied, note, deliveredAt)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check delivered rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Reassign moves one parcel to another driver and appends the transfer label
// in the same statement. The label append is guarded by a containment check so
// repeated transfers never duplicate it.
func (r *ParcelRepository) Reassign(ctx context.Context, id, targetDriverID, label string, updatedAt time.Time) error {
	const query = `UPDATE parcels
	SET driver_id = $2,
	    labels = CASE WHEN $3 = ANY(labels) THEN labels ELSE array_append(labels, $3) END,
	    updated_at = $4
	WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, targetDriverID, label, updatedAt)
	if err != nil {
		return fmt.Errorf("reassign parcel: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check reassign rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateParcelParams groups the admin-correctable columns. Price travels with
// weight: when weight changes the recomputed price lands in the same UPDATE.
type UpdateParcelParams struct {
	ID                 string
	SenderDetails      *models.ContactDetails
	ReceiverDetails    *models.ContactDetails
	ContentDescription *string
	Weight             *float64
	Price              *float64
}

// UpdateDetails applies a manual correction.
func (r *ParcelRepository) UpdateDetails(ctx context.Context, params UpdateParcelParams) error {
	setParts := make([]string, 0, 6)
	namedArgs := map[string]interface{}{
		"id":         params.ID,
		"updated_at": time.Now().UTC(),
	}
	if params.SenderDetails != nil {
		setParts = append(setParts, "sender_details = :sender_details")
		namedArgs["sender_details"] = *params.SenderDetails
	}
	if params.ReceiverDetails != nil {
		setParts = append(setParts, "receiver_details = :receiver_details")
		namedArgs["receiver_details"] = *params.ReceiverDetails
	}
	if params.ContentDescription != nil {
		setParts = append(setParts, "content_description = :content_description")
		namedArgs["content_description"] = *params.ContentDescription
	}
	if params.Weight != nil {
		// The stored price is a cache of f(weight, rate); a weight change
		// must carry the recomputed price in the same statement.
		if params.Price == nil {
			return fmt.Errorf("update parcel details: weight change requires recomputed price")
		}
		setParts = append(setParts, "weight = :weight", "price = :price")
		namedArgs["weight"] = *params.Weight
		namedArgs["price"] = *params.Price
	}
	if len(setParts) == 0 {
		return nil
	}
	setParts = append(setParts, "updated_at = :updated_at")
	query := fmt.Sprintf("UPDATE parcels SET %s WHERE id = :id", strings.Join(setParts, ", "))
	res, err := r.db.NamedExecContext(ctx, query, namedArgs)
	if err != nil {
		return fmt.Errorf("update parcel details: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetRouteOrder stores the manual position for one parcel.
func (r *ParcelRepository) SetRouteOrder(ctx context.Context, id string, order int, updatedAt time.Time) error {
	const query = `UPDATE parcels SET route_order = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, order, updatedAt)
	if err != nil {
		return fmt.Errorf("set route order: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check route order rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ArchiveDelivered flips every delivered, unarchived parcel to archived in a
// single set-based statement and reports how many rows moved. Running it again
// immediately archives zero rows, which keeps the weekly sweep idempotent.
func (r *ParcelRepository) ArchiveDelivered(ctx context.Context, archivedAt time.Time) (int64, error) {
	const query = `UPDATE parcels SET is_archived = TRUE, updated_at = $1
	WHERE status = 'delivered' AND is_archived = FALSE`
	res, err := r.db.ExecContext(ctx, query, archivedAt)
	if err != nil {
		return 0, fmt.Errorf("archive delivered parcels: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check archive rows: %w", err)
	}
	return rows, nil
}

// ContactPair carries one parcel's sender and receiver contacts.
type ContactPair struct {
	Sender   models.ContactDetails `db:"sender_details"`
	Receiver models.ContactDetails `db:"receiver_details"`
}

// ContactPairs returns the contacts recorded on past parcels, newest first so
// the most recent details for a phone number come back before stale ones. An
// empty driverID spans all drivers.
func (r *ParcelRepository) ContactPairs(ctx context.Context, driverID string) ([]ContactPair, error) {
	builder := strings.Builder{}
	builder.WriteString("SELECT sender_details, receiver_details FROM parcels")
	args := make([]interface{}, 0, 1)
	if driverID != "" {
		args = append(args, driverID)
		builder.WriteString(" WHERE driver_id = $1")
	}
	builder.WriteString(" ORDER BY created_at DESC")

	var pairs []ContactPair
	if err := r.db.SelectContext(ctx, &pairs, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list contact pairs: %w", err)
	}
	return pairs, nil
}

// ArchivedWeeks lists the distinct week buckets present in the archive,
// newest first.
func (r *ParcelRepository) ArchivedWeeks(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT week_id FROM parcels WHERE is_archived = TRUE ORDER BY week_id DESC`
	var weeks []string
	if err := r.db.SelectContext(ctx, &weeks, query); err != nil {
		return nil, fmt.Errorf("list archived weeks: %w", err)
	}
	return weeks, nil
}

// Delete removes a parcel permanently. Admin-only at the service layer.
func (r *ParcelRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM parcels WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete parcel: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
