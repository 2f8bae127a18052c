package delivery

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/tipdoor/tipdoor/internal/domain/order"
)

// AssignmentStatus is the state of one delivery assignment.
type AssignmentStatus string

const (
	AssignmentAssigned  AssignmentStatus = "ASSIGNED"
	AssignmentPickedUp  AssignmentStatus = "PICKED_UP"
	AssignmentInTransit AssignmentStatus = "IN_TRANSIT"
	AssignmentDelivered AssignmentStatus = "DELIVERED"
	AssignmentFailed    AssignmentStatus = "FAILED"
)

// Sentinel errors for delivery operations.
var (
	ErrAssignmentNotFound = errors.New("delivery assignment not found")
	ErrPartnerNotFound    = errors.New("delivery partner not found")
	ErrNotAssignedPartner = errors.New("not the assigned delivery partner")
	ErrStatusNotAllowed   = errors.New("status must be ASSIGNED or DELIVERED")
	ErrAlreadyDelivered   = errors.New("cannot change status of a delivered assignment")
)

// Partner is a delivery partner profile. ServiceArea is a free-text
// description; the matcher treats it as a containment target, not a
// geographic shape.
type Partner struct {
	ID          string
	Name        string
	Phone       string
	VehicleType string
	Available   bool
	ServiceArea string
	CreatedAt   time.Time
}

// Assignment links an order to the partner delivering it.
type Assignment struct {
	ID                    string
	OrderID               string
	PartnerID             string
	Status                AssignmentStatus
	AssignedAt            time.Time
	EstimatedDeliveryTime *time.Time
}

// CandidateFinder matches delivery partners to an order address. The
// contract is deliberately loose — the current implementation is textual
// containment of the address in the partner's service area, and may be
// replaced without touching callers.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, address string) ([]Partner, error)
}

// Repository defines persistence operations for partners and assignments.
type Repository interface {
	CandidateFinder
	GetPartner(ctx context.Context, id string) (*Partner, error)
	CreateAssignment(ctx context.Context, a *Assignment) error
	GetAssignment(ctx context.Context, id string) (*Assignment, error)
	ListAssignmentsByPartner(ctx context.Context, partnerID string) ([]Assignment, error)
	UpdateAssignmentStatus(ctx context.Context, id string, status AssignmentStatus) error
}

// Notifier delivers a single "you have a candidate order" message to a
// partner. At-least-once, best-effort; callers log and drop failures.
type Notifier interface {
	NotifyCandidate(ctx context.Context, p Partner, o *order.Order) error
}
