package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tipdoor/tipdoor/internal/domain/delivery"
)

const (
	partnerColumns = `id, name, phone, vehicle_type, is_available, service_area, created_at`

	// Placeholder matching: an available partner is a candidate when its
	// free-text service area contains the order's address string.
	findCandidatesSQL = `SELECT ` + partnerColumns + ` FROM delivery_partners
		WHERE is_available = TRUE AND service_area ILIKE '%' || $1 || '%'
		ORDER BY id`

	getPartnerSQL = `SELECT ` + partnerColumns + ` FROM delivery_partners WHERE id = $1`

	insertAssignmentSQL = `INSERT INTO delivery_assignments (id, order_id, partner_id, status)
		VALUES ($1, $2, $3, $4)`

	assignmentColumns = `id, order_id, partner_id, status, assigned_at, estimated_delivery_time`

	getAssignmentSQL = `SELECT ` + assignmentColumns + ` FROM delivery_assignments WHERE id = $1`

	listPartnerAssignmentsSQL = `SELECT ` + assignmentColumns + ` FROM delivery_assignments
		WHERE partner_id = $1 ORDER BY assigned_at DESC`

	updateAssignmentStatusSQL = `UPDATE delivery_assignments SET status = $2 WHERE id = $1`
)

var _ delivery.Repository = (*DeliveryRepository)(nil)

// DeliveryRepository implements delivery.Repository backed by PostgreSQL.
type DeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewDeliveryRepository returns a DeliveryRepository that uses the given pool.
func NewDeliveryRepository(pool *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{pool: pool}
}

// FindCandidates returns available partners whose service area contains
// the given address string.
func (r *DeliveryRepository) FindCandidates(ctx context.Context, address string) ([]delivery.Partner, error) {
	rows, err := r.pool.Query(ctx, findCandidatesSQL, address)
	if err != nil {
		return nil, fmt.Errorf("finding delivery candidates: %w", err)
	}
	return pgx.CollectRows(rows, scanPartner)
}

// GetPartner returns one delivery partner by id.
func (r *DeliveryRepository) GetPartner(ctx context.Context, id string) (*delivery.Partner, error) {
	rows, err := r.pool.Query(ctx, getPartnerSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting partner %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPartner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, delivery.ErrPartnerNotFound
		}
		return nil, fmt.Errorf("getting partner %q: %w", id, err)
	}
	return &p, nil
}

// CreateAssignment persists a new delivery assignment.
func (r *DeliveryRepository) CreateAssignment(ctx context.Context, a *delivery.Assignment) error {
	_, err := r.pool.Exec(ctx, insertAssignmentSQL, a.ID, a.OrderID, a.PartnerID, string(a.Status))
	if err != nil {
		return fmt.Errorf("creating assignment %q: %w", a.ID, err)
	}
	return nil
}

// GetAssignment returns one assignment by id.
func (r *DeliveryRepository) GetAssignment(ctx context.Context, id string) (*delivery.Assignment, error) {
	rows, err := r.pool.Query(ctx, getAssignmentSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting assignment %q: %w", id, err)
	}

	a, err := pgx.CollectExactlyOneRow(rows, scanAssignment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, delivery.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("getting assignment %q: %w", id, err)
	}
	return &a, nil
}

// ListAssignmentsByPartner returns the partner's assignments, newest first.
func (r *DeliveryRepository) ListAssignmentsByPartner(ctx context.Context, partnerID string) ([]delivery.Assignment, error) {
	rows, err := r.pool.Query(ctx, listPartnerAssignmentsSQL, partnerID)
	if err != nil {
		return nil, fmt.Errorf("listing assignments for partner %q: %w", partnerID, err)
	}
	return pgx.CollectRows(rows, scanAssignment)
}

// UpdateAssignmentStatus sets an assignment's status.
func (r *DeliveryRepository) UpdateAssignmentStatus(ctx context.Context, id string, status delivery.AssignmentStatus) error {
	tag, err := r.pool.Exec(ctx, updateAssignmentStatusSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("updating assignment %q status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return delivery.ErrAssignmentNotFound
	}
	return nil
}

func scanPartner(row pgx.CollectableRow) (delivery.Partner, error) {
	var p delivery.Partner
	err := row.Scan(
		&p.ID, &p.Name, &p.Phone, &p.VehicleType,
		&p.Available, &p.ServiceArea, &p.CreatedAt,
	)
	return p, err
}

func scanAssignment(row pgx.CollectableRow) (delivery.Assignment, error) {
	var (
		a      delivery.Assignment
		status string
	)
	err := row.Scan(
		&a.ID, &a.OrderID, &a.PartnerID, &status,
		&a.AssignedAt, &a.EstimatedDeliveryTime,
	)
	a.Status = delivery.AssignmentStatus(status)
	return a, err
}
