package handlers

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/aster/pkg/approval"
	"github.com/Ramsey-B/aster/pkg/models"
)

// ApprovalGate is the part of approval.Gate the handlers need
type ApprovalGate interface {
	Approve(ctx context.Context, token string) (*models.ApprovalRequest, error)
	StatusByID(ctx context.Context, id uuid.UUID) (models.ApprovalState, *models.ApprovalRequest, error)
}

var _ ApprovalGate = (*approval.Gate)(nil)

// ApprovalHandler serves the link sent in approval emails
type ApprovalHandler struct {
	gate   ApprovalGate
	logger ectologger.Logger
}

func NewApprovalHandler(gate ApprovalGate, logger ectologger.Logger) *ApprovalHandler {
	return &ApprovalHandler{
		gate:   gate,
		logger: logger,
	}
}

// ApprovalResponse never echoes the token back
type ApprovalResponse struct {
	ID         uuid.UUID            `json:"id"`
	State      models.ApprovalState `json:"state"`
	CreatedAt  time.Time            `json:"created_at"`
	ExpiresAt  time.Time            `json:"expires_at"`
	ResolvedAt *time.Time           `json:"resolved_at,omitempty"`
}

func newApprovalResponse(state models.ApprovalState, request *models.ApprovalRequest) ApprovalResponse {
	return ApprovalResponse{
		ID:         request.ID,
		State:      state,
		CreatedAt:  request.CreatedAt,
		ExpiresAt:  request.ExpiresAt,
		ResolvedAt: request.ResolvedAt,
	}
}

// RegisterRoutes registers the approval routes
func (h *ApprovalHandler) RegisterRoutes(g *echo.Group) {
	approvals := g.Group("/approvals")
	// GET so the emailed link works with a single click
	approvals.GET("/approve", h.Approve)
	approvals.GET("/:id", h.Status)
}

// Approve handles GET /approvals/approve?code=<token>
func (h *ApprovalHandler) Approve(c echo.Context) error {
	ctx := c.Request().Context()

	token, err := RequiredParam(c, "code")
	if err != nil {
		return err
	}

	request, err := h.gate.Approve(ctx, token)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithField("approval_id", request.ID).Info("Approval link used")
	return SuccessResponse(c, newApprovalResponse(models.ApprovalStateApproved, request))
}

// Status handles GET /approvals/:id. The route is keyed by id so the token
// never appears in a logged path.
func (h *ApprovalHandler) Status(c echo.Context) error {
	ctx := c.Request().Context()

	param, err := RequiredParam(c, "id")
	if err != nil {
		return err
	}
	id, err := uuid.Parse(param)
	if err != nil {
		return BadRequest("invalid approval id")
	}

	state, request, err := h.gate.StatusByID(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, newApprovalResponse(state, request))
}
