package delivery

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/tipdoor/tipdoor/internal/domain/order"
)

// Service implements delivery assignment management: creating an
// assignment for an approved order and the partner-driven assignment
// status path.
type Service struct {
	repo   Repository
	orders order.Repository
}

// NewService creates a delivery Service.
func NewService(repo Repository, orders order.Repository) *Service {
	return &Service{repo: repo, orders: orders}
}

// Assign creates an assignment linking the order to a partner and moves
// the order to ASSIGNED. The acting vendor must own at least one item in
// the order.
func (s *Service) Assign(ctx context.Context, orderID, partnerID, vendorID string) (*Assignment, error) {
	owns, err := s.orders.VendorOwnsItem(ctx, orderID, vendorID)
	if err != nil {
		return nil, errors.Wrap(err, "check vendor ownership")
	}
	if !owns {
		return nil, order.ErrForbidden
	}

	if _, err := s.orders.GetByID(ctx, orderID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetPartner(ctx, partnerID); err != nil {
		return nil, err
	}

	a := &Assignment{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		PartnerID: partnerID,
		Status:    AssignmentAssigned,
	}
	if err := s.repo.CreateAssignment(ctx, a); err != nil {
		return nil, errors.Wrap(err, "create assignment")
	}

	if err := s.orders.UpdateStatus(ctx, orderID, order.StatusAssigned); err != nil {
		return nil, errors.Wrap(err, "sync order status")
	}

	return a, nil
}

// ListForPartner returns the partner's assignments, newest first.
func (s *Service) ListForPartner(ctx context.Context, partnerID string) ([]Assignment, error) {
	return s.repo.ListAssignmentsByPartner(ctx, partnerID)
}

// UpdateAssignmentStatus is the lighter partner-driven path. Only the
// assigned partner may act, only ASSIGNED and DELIVERED are accepted,
// and DELIVERED is terminal: once set, no further change is possible.
// Reaching DELIVERED also moves the order itself to DELIVERED.
func (s *Service) UpdateAssignmentStatus(ctx context.Context, assignmentID, partnerID string, target AssignmentStatus) (*Assignment, error) {
	if target != AssignmentAssigned && target != AssignmentDelivered {
		return nil, ErrStatusNotAllowed
	}

	a, err := s.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a.PartnerID != partnerID {
		return nil, ErrNotAssignedPartner
	}
	if a.Status == AssignmentDelivered {
		return nil, ErrAlreadyDelivered
	}

	if err := s.repo.UpdateAssignmentStatus(ctx, assignmentID, target); err != nil {
		return nil, errors.Wrap(err, "update assignment status")
	}
	a.Status = target

	if target == AssignmentDelivered {
		if err := s.orders.UpdateStatus(ctx, a.OrderID, order.StatusDelivered); err != nil {
			return nil, errors.Wrap(err, "sync order status")
		}
	}

	return a, nil
}
