package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

const approvalsTable = "approvals"

var approvalStruct = database.NewStruct(new(models.ApprovalRequest))

// ApprovalRepository implements ApprovalRepo on Postgres
type ApprovalRepository struct {
	*Repository
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db database.DB, logger ectologger.Logger) *ApprovalRepository {
	return &ApprovalRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create stores a new unresolved request
func (r *ApprovalRepository) Create(ctx context.Context, request *models.ApprovalRequest) error {
	ctx, span := tracing.StartSpan(ctx, "ApprovalRepository.Create")
	defer span.End()

	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}

	ib := database.NewInsertBuilder().Into(approvalsTable, "id", "token", "created_at", "expires_at", "approved", "resolved_at")
	ib.Values(request.ID, request.Token, request.CreatedAt, request.ExpiresAt, request.Approved, request.ResolvedAt)

	query, args := ib.Build()
	if _, err := r.Q(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"approval_id": request.ID,
		}).Error("failed to create approval request")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create approval request")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"approval_id": request.ID,
		"expires_at":  request.ExpiresAt,
	}).Debugf("Created %s", approvalsTable)
	return nil
}

// GetByToken looks a request up by its token
func (r *ApprovalRepository) GetByToken(ctx context.Context, token string) (*models.ApprovalRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "ApprovalRepository.GetByToken")
	defer span.End()

	if token == "" {
		return nil, BadRequest("approval token is required")
	}

	sb := approvalStruct.SelectFrom(approvalsTable)
	sb.Where(sb.Equal("token", token))

	query, args := sb.Build()
	var request models.ApprovalRequest
	err := r.Q(ctx).GetContext(ctx, &request, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("approval request does not exist")
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to get approval request by token")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get approval request")
	}
	return &request, nil
}

// Approve resolves an unexpired request as approved. Approving an already
// approved request is a no-op; an expired one is 410 Gone.
func (r *ApprovalRepository) Approve(ctx context.Context, token string, at time.Time) (*models.ApprovalRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "ApprovalRepository.Approve")
	defer span.End()

	if token == "" {
		return nil, BadRequest("approval token is required")
	}

	ub := database.NewUpdateBuilder()
	ub.Update(approvalsTable).
		Set(ub.Assign("approved", true), ub.Assign("resolved_at", at)).
		Where(
			ub.Equal("token", token),
			ub.IsNull("resolved_at"),
			ub.GreaterThan("expires_at", at),
		)

	query, args := ub.Build()
	result, err := r.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to approve request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to approve request")
	}

	request, err := r.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 && !request.Approved {
		return nil, httperror.NewHTTPError(http.StatusGone, "approval request has expired")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"approval_id": request.ID,
		"changed":     affected > 0,
	}).Infof("Approval request approved")
	return request, nil
}

// GetByID looks a request up by its id
func (r *ApprovalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "ApprovalRepository.GetByID")
	defer span.End()

	sb := approvalStruct.SelectFrom(approvalsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var request models.ApprovalRequest
	err := r.Q(ctx).GetContext(ctx, &request, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("approval request %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("approval_id", id).Error("failed to get approval request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get approval request")
	}
	return &request, nil
}

// Expire resolves a pending request as not approved so later clicks on its
// link are refused. A request that was approved first is returned unchanged.
func (r *ApprovalRepository) Expire(ctx context.Context, token string, at time.Time) (*models.ApprovalRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "ApprovalRepository.Expire")
	defer span.End()

	if token == "" {
		return nil, BadRequest("approval token is required")
	}

	ub := database.NewUpdateBuilder()
	ub.Update(approvalsTable).
		Set(ub.Assign("approved", false), ub.Assign("resolved_at", at)).
		Where(ub.Equal("token", token), ub.IsNull("resolved_at"))

	query, args := ub.Build()
	result, err := r.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to expire approval request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to expire approval request")
	}

	request, err := r.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	affected, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"approval_id": request.ID,
		"changed":     affected > 0,
		"approved":    request.Approved,
	}).Infof("Approval request resolved at timeout")
	return request, nil
}

// Consume marks an approved, unexpired and unused request as spent. It
// returns false when the request cannot authorize a promotion.
func (r *ApprovalRepository) Consume(ctx context.Context, token string, at time.Time) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ApprovalRepository.Consume")
	defer span.End()

	if token == "" {
		return false, BadRequest("approval token is required")
	}

	ub := database.NewUpdateBuilder()
	ub.Update(approvalsTable).
		Set(ub.Assign("promoted_at", at)).
		Where(
			ub.Equal("token", token),
			ub.Equal("approved", true),
			ub.IsNull("promoted_at"),
			ub.GreaterThan("expires_at", at),
		)

	query, args := ub.Build()
	result, err := r.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to consume approval request")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to consume approval request")
	}

	affected, _ := result.RowsAffected()
	return affected > 0, nil
}
