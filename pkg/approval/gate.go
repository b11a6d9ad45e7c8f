// Package approval implements the human approval gate that guards promotion.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/clock"
	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/notify"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

const (
	DefaultTokenTTL     = 8 * time.Hour
	DefaultWaitTimeout  = 6 * time.Hour
	DefaultPollInterval = 30 * time.Second
)

// Store persists approval requests
type Store interface {
	Create(ctx context.Context, request *models.ApprovalRequest) error
	GetByToken(ctx context.Context, token string) (*models.ApprovalRequest, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error)
	Approve(ctx context.Context, token string, at time.Time) (*models.ApprovalRequest, error)
	Expire(ctx context.Context, token string, at time.Time) (*models.ApprovalRequest, error)
	Consume(ctx context.Context, token string, at time.Time) (bool, error)
}

// Config controls token lifetime and where the approval link points
type Config struct {
	TokenTTL   time.Duration
	BaseURL    string
	Recipients []string
}

// Gate creates approval requests and waits for them to resolve
type Gate struct {
	store    Store
	notifier notify.Notifier
	clock    clock.Clock
	cfg      Config
	logger   ectologger.Logger
}

// NewGate creates a gate
func NewGate(store Store, notifier notify.Notifier, cfg Config, c clock.Clock, logger ectologger.Logger) *Gate {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if c == nil {
		c = clock.New()
	}
	return &Gate{
		store:    store,
		notifier: notifier,
		clock:    c,
		cfg:      cfg,
		logger:   logger,
	}
}

// Open stores a new request and sends one notification carrying its link. A
// failed notification is logged and does not fail Open.
func (g *Gate) Open(ctx context.Context) (*models.ApprovalRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "ApprovalGate.Open")
	defer span.End()

	token, err := NewToken()
	if err != nil {
		return nil, err
	}
	link, err := Link(g.cfg.BaseURL, token)
	if err != nil {
		return nil, err
	}

	now := g.clock.Now()
	request := &models.ApprovalRequest{
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(g.cfg.TokenTTL),
	}
	if err := g.store.Create(ctx, request); err != nil {
		return nil, err
	}
	metrics.ApprovalOutcomes.WithLabelValues(string(models.ApprovalStateCreated)).Inc()

	log := g.logger.WithContext(ctx).WithField("approval_id", request.ID)
	if err := g.notifier.Send(ctx, notify.ApprovalMessage(link, request.ExpiresAt, g.cfg.Recipients...)); err != nil {
		log.WithError(err).Error("Failed to send approval notification")
	} else {
		log.Infof("Approval requested, expires at %s", request.ExpiresAt.Format(time.RFC3339))
	}
	return request, nil
}

// WaitForApproval polls the store until the request is approved, the token
// expires or waitTimeout elapses. It returns true only for an approval. On
// expiry the request is resolved in the store so the link can no longer
// approve it. Store read errors count as "not approved yet".
func (g *Gate) WaitForApproval(ctx context.Context, token string, waitTimeout, pollInterval time.Duration) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ApprovalGate.WaitForApproval")
	defer span.End()

	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	log := g.logger.WithContext(ctx)
	deadline := g.clock.Now().Add(waitTimeout)

	for {
		request, err := g.store.GetByToken(ctx, token)
		now := g.clock.Now()

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false, err
			}
			log.WithError(err).Warn("Failed to read approval state, will retry")
		} else {
			if request.ApprovedInTime() {
				return g.approved(ctx, request), nil
			}
			if request.Expired(now) {
				log.WithField("approval_id", request.ID).Warn("Approval token expired")
				return g.expire(ctx, token, now)
			}
		}

		if !now.Before(deadline) {
			log.Warnf("No approval within %s", waitTimeout)
			return g.expire(ctx, token, now)
		}

		wait := min(pollInterval, deadline.Sub(now))
		if err := g.clock.Sleep(ctx, wait); err != nil {
			return false, err
		}
	}
}

func (g *Gate) approved(ctx context.Context, request *models.ApprovalRequest) bool {
	metrics.ApprovalOutcomes.WithLabelValues(string(models.ApprovalStateApproved)).Inc()
	g.logger.WithContext(ctx).WithField("approval_id", request.ID).Info("Approval received")
	return true
}

// expire writes the EXPIRED resolution. An approval that landed just before
// the write still wins.
func (g *Gate) expire(ctx context.Context, token string, now time.Time) (bool, error) {
	request, err := g.store.Expire(ctx, token, now)
	if err != nil {
		return false, fmt.Errorf("failed to resolve expired approval: %w", err)
	}
	if request.ApprovedInTime() {
		return g.approved(ctx, request), nil
	}
	metrics.ApprovalOutcomes.WithLabelValues(string(models.ApprovalStateExpired)).Inc()
	return false, nil
}

// Approve resolves the request identified by token as approved
func (g *Gate) Approve(ctx context.Context, token string) (*models.ApprovalRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "ApprovalGate.Approve")
	defer span.End()

	return g.store.Approve(ctx, token, g.clock.Now())
}

// Status reports the current state of the request identified by token
func (g *Gate) Status(ctx context.Context, token string) (models.ApprovalState, *models.ApprovalRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "ApprovalGate.Status")
	defer span.End()

	request, err := g.store.GetByToken(ctx, token)
	if err != nil {
		return "", nil, err
	}
	return StateOf(request, g.clock.Now()), request, nil
}

// StatusByID reports the state of the request with id
func (g *Gate) StatusByID(ctx context.Context, id uuid.UUID) (models.ApprovalState, *models.ApprovalRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "ApprovalGate.StatusByID")
	defer span.End()

	request, err := g.store.GetByID(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return StateOf(request, g.clock.Now()), request, nil
}

// Consume spends an approval on one promotion. It returns false when the
// request is not approved, has expired or was already used. Run it in the
// same transaction as the promotion it authorizes.
func (g *Gate) Consume(ctx context.Context, token string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ApprovalGate.Consume")
	defer span.End()

	return g.store.Consume(ctx, token, g.clock.Now())
}

// StateOf derives the gate state of request at now
func StateOf(request *models.ApprovalRequest, now time.Time) models.ApprovalState {
	switch {
	case request.ApprovedInTime():
		return models.ApprovalStateApproved
	case request.Expired(now):
		return models.ApprovalStateExpired
	default:
		return models.ApprovalStateCreated
	}
}
