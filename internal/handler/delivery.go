package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/tipdoor/tipdoor/internal/domain/delivery"
)

type assignmentResponse struct {
	ID                    string     `json:"id"`
	OrderID               string     `json:"order_id"`
	PartnerID             string     `json:"partner_id"`
	Status                string     `json:"status"`
	AssignedAt            time.Time  `json:"assigned_at"`
	EstimatedDeliveryTime *time.Time `json:"estimated_delivery_time,omitempty"`
}

func toAssignmentResponse(a *delivery.Assignment) assignmentResponse {
	return assignmentResponse{
		ID:                    a.ID,
		OrderID:               a.OrderID,
		PartnerID:             a.PartnerID,
		Status:                string(a.Status),
		AssignedAt:            a.AssignedAt,
		EstimatedDeliveryTime: a.EstimatedDeliveryTime,
	}
}

type assignOrderRequest struct {
	OrderID   string `json:"order_id"`
	PartnerID string `json:"partner_id"`
}

// AssignOrder hands an order to a delivery partner. Only a vendor with
// items in the order may assign it.
func (h *Handler) AssignOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	var req assignOrderRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	a, err := h.deliveries.Assign(r.Context(), req.OrderID, req.PartnerID, actor.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toAssignmentResponse(a))
}

// ListAssignments returns the authenticated partner's assignments.
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	assignments, err := h.deliveries.ListForPartner(r.Context(), actor.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]assignmentResponse, len(assignments))
	for i := range assignments {
		out[i] = toAssignmentResponse(&assignments[i])
	}
	respondJSON(w, http.StatusOK, out)
}

type updateAssignmentStatusRequest struct {
	Status string `json:"status"`
}

// UpdateAssignmentStatus lets the assigned partner report progress.
// Delivered assignments are final and also mark the order delivered.
func (h *Handler) UpdateAssignmentStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	var req updateAssignmentStatusRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	target := delivery.AssignmentStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	a, err := h.deliveries.UpdateAssignmentStatus(r.Context(), r.PathValue("id"), actor.ID, target)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toAssignmentResponse(a))
}
