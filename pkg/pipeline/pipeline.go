// Package pipeline runs the refresh-and-gate sequence: seed the stage dataset
// from production, scan every category, validate the stage, wait for a human
// approval and only then promote stage over main.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/approval"
	"github.com/Ramsey-B/aster/pkg/clock"
	appctx "github.com/Ramsey-B/aster/pkg/context"
	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
	"github.com/Ramsey-B/aster/pkg/validator"
)

const (
	StageRun      = "run"
	StageSeed     = "seed"
	StageScan     = "scan"
	StageValidate = "validate"
	StageApproval = "approval"
	StagePromote  = "promote"
)

// ErrNotApproved is returned when promotion is requested for a token that
// has not been approved in time
var ErrNotApproved = errors.New("approval request is not approved")

// Catalog is the dataset access the pipeline needs for seeding
type Catalog interface {
	List(ctx context.Context, dataset models.Dataset) ([]models.CatalogEntry, error)
	Replace(ctx context.Context, dataset models.Dataset, entries []models.CatalogEntry) (int, error)
}

type Scanner interface {
	Scan(ctx context.Context, category int, points []models.ProbePoint, limit int) (int, error)
}

type Validator interface {
	Validate(ctx context.Context, dataset models.Dataset) (validator.Summary, error)
}

type Gate interface {
	Open(ctx context.Context) (*models.ApprovalRequest, error)
	WaitForApproval(ctx context.Context, token string, waitTimeout, pollInterval time.Duration) (bool, error)
	Status(ctx context.Context, token string) (models.ApprovalState, *models.ApprovalRequest, error)
	Consume(ctx context.Context, token string) (bool, error)
}

type Promoter interface {
	Promote(ctx context.Context, source models.Dataset) (int, error)
}

// Publisher receives run lifecycle events. Publish failures never fail a run.
type Publisher interface {
	PublishRunEvent(ctx context.Context, event models.RunEvent) error
}

// Config tunes a run
type Config struct {
	Categories        []int
	ProbePoints       []models.ProbePoint
	MaxNewPerCategory int
	WaitTimeout       time.Duration
	PollInterval      time.Duration
}

// Transactor runs fn in one storage transaction carried by ctx
type Transactor func(ctx context.Context, fn func(ctx context.Context) error) error

type Option func(*Pipeline)

// WithTransactor makes spending the approval and replacing main commit
// together
func WithTransactor(tx Transactor) Option {
	return func(p *Pipeline) {
		p.tx = tx
	}
}

// WithPublisher sends run events to publisher
func WithPublisher(publisher Publisher) Option {
	return func(p *Pipeline) {
		p.publisher = publisher
	}
}

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) {
		p.clock = c
	}
}

type Pipeline struct {
	catalog   Catalog
	scanner   Scanner
	validator Validator
	gate      Gate
	promoter  Promoter
	publisher Publisher
	tx        Transactor
	clock     clock.Clock
	cfg       Config
	logger    ectologger.Logger
}

func New(catalog Catalog, scanner Scanner, validator Validator, gate Gate, promoter Promoter, cfg Config, logger ectologger.Logger, opts ...Option) *Pipeline {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = approval.DefaultWaitTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = approval.DefaultPollInterval
	}

	p := &Pipeline{
		catalog:   catalog,
		scanner:   scanner,
		validator: validator,
		gate:      gate,
		promoter:  promoter,
		tx:        func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) },
		clock:     clock.New(),
		cfg:       cfg,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the whole sequence. An expired approval is not an error: the
// result reports Promoted=false and main is untouched.
func (p *Pipeline) Run(ctx context.Context) (*models.RunResult, error) {
	return p.execute(ctx, StageRun, func(ctx context.Context, result *models.RunResult) error {
		if err := p.refresh(ctx, result); err != nil {
			return err
		}

		request, approved, err := p.awaitApproval(ctx, result)
		if err != nil || !approved {
			return err
		}

		return p.promote(ctx, result, request.Token)
	})
}

// Refresh seeds, scans and validates the stage dataset without opening a gate
func (p *Pipeline) Refresh(ctx context.Context) (*models.RunResult, error) {
	return p.execute(ctx, StageRun, p.refresh)
}

// AwaitApproval opens a gate for the current stage snapshot and blocks until
// it resolves
func (p *Pipeline) AwaitApproval(ctx context.Context) (*models.RunResult, error) {
	return p.execute(ctx, StageApproval, func(ctx context.Context, result *models.RunResult) error {
		_, _, err := p.awaitApproval(ctx, result)
		return err
	})
}

// Promote replaces main with stage if the request behind token was approved
// in time and has not authorized a promotion before
func (p *Pipeline) Promote(ctx context.Context, token string) (*models.RunResult, error) {
	return p.execute(ctx, StagePromote, func(ctx context.Context, result *models.RunResult) error {
		state, request, err := p.gate.Status(ctx, token)
		if err != nil {
			return err
		}
		result.ApprovalID = &request.ID
		result.ApprovalState = state
		if state != models.ApprovalStateApproved {
			return fmt.Errorf("%w: state is %s", ErrNotApproved, state)
		}
		if request.Used() {
			return fmt.Errorf("%w: approval was already used", ErrNotApproved)
		}
		return p.promote(ctx, result, token)
	})
}

func (p *Pipeline) execute(ctx context.Context, stage string, fn func(context.Context, *models.RunResult) error) (*models.RunResult, error) {
	result := &models.RunResult{
		RunID:      uuid.New(),
		StartedAt:  p.clock.Now(),
		Categories: []models.CategoryResult{},
	}

	ctx = appctx.SetRunID(ctx, result.RunID.String())
	ctx, span := tracing.StartSpan(ctx, "Pipeline."+stage)
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id": result.RunID,
		"stage":  stage,
	})
	log.Info("Pipeline started")
	p.publish(ctx, result, stage, models.RunStatusStarted, nil)

	err := fn(ctx, result)
	result.CompletedAt = p.clock.Now()

	status := models.RunStatusSucceeded
	if err != nil {
		status = models.RunStatusFailed
		tracing.Fail(span, err, "pipeline failed")
		log.WithError(err).Error("Pipeline failed")
	} else {
		log.WithFields(map[string]any{
			"inserted":       result.Inserted(),
			"active":         result.Active,
			"inactive":       result.Inactive,
			"approval_state": result.ApprovalState,
			"promoted":       result.Promoted,
		}).Info("Pipeline completed")
	}
	metrics.RunDuration.WithLabelValues(string(status)).Observe(result.CompletedAt.Sub(result.StartedAt).Seconds())
	p.publish(ctx, result, stage, status, err)

	return result, err
}

func (p *Pipeline) refresh(ctx context.Context, result *models.RunResult) error {
	if err := p.seed(ctx, result); err != nil {
		return err
	}
	if err := p.scan(ctx, result); err != nil {
		return err
	}
	return p.validate(ctx, result)
}

// seed resets stage to a copy of main so the refresh accumulates onto the
// current production catalog
func (p *Pipeline) seed(ctx context.Context, result *models.RunResult) error {
	ctx = appctx.SetStage(ctx, StageSeed)

	entries, err := p.catalog.List(ctx, models.DatasetMain)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", models.DatasetMain, err)
	}
	seeded, err := p.catalog.Replace(ctx, models.DatasetStage, models.StripIDs(entries))
	if err != nil {
		return fmt.Errorf("failed to seed %s: %w", models.DatasetStage, err)
	}
	result.Seeded = seeded

	p.logger.WithContext(ctx).Infof("Seeded %s with %d entries from %s", models.DatasetStage, seeded, models.DatasetMain)
	p.publish(ctx, result, StageSeed, models.RunStatusSucceeded, nil)
	return nil
}

func (p *Pipeline) scan(ctx context.Context, result *models.RunResult) error {
	ctx = appctx.SetStage(ctx, StageScan)

	for _, category := range p.cfg.Categories {
		inserted, err := p.scanner.Scan(ctx, category, p.cfg.ProbePoints, p.cfg.MaxNewPerCategory)
		categoryResult := models.CategoryResult{Category: category, Inserted: inserted}
		if err != nil {
			categoryResult.Error = err.Error()
			result.Categories = append(result.Categories, categoryResult)
			return fmt.Errorf("scan of category %d failed: %w", category, err)
		}
		result.Categories = append(result.Categories, categoryResult)
	}

	p.logger.WithContext(ctx).Infof("Scanned %d categories, %d new entries", len(p.cfg.Categories), result.Inserted())
	p.publish(ctx, result, StageScan, models.RunStatusSucceeded, nil)
	return nil
}

func (p *Pipeline) validate(ctx context.Context, result *models.RunResult) error {
	ctx = appctx.SetStage(ctx, StageValidate)

	summary, err := p.validator.Validate(ctx, models.DatasetStage)
	result.Validated = summary.Total
	result.Active = summary.Active
	result.Inactive = summary.Inactive
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	p.publish(ctx, result, StageValidate, models.RunStatusSucceeded, nil)
	return nil
}

func (p *Pipeline) awaitApproval(ctx context.Context, result *models.RunResult) (*models.ApprovalRequest, bool, error) {
	ctx = appctx.SetStage(ctx, StageApproval)

	request, err := p.gate.Open(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open approval: %w", err)
	}
	result.ApprovalID = &request.ID
	result.ApprovalState = models.ApprovalStateCreated
	p.publish(ctx, result, StageApproval, models.RunStatusStarted, nil)

	approved, err := p.gate.WaitForApproval(ctx, request.Token, p.cfg.WaitTimeout, p.cfg.PollInterval)
	if err != nil {
		return request, false, fmt.Errorf("approval wait interrupted: %w", err)
	}

	result.ApprovalState = models.ApprovalStateExpired
	if approved {
		result.ApprovalState = models.ApprovalStateApproved
	} else {
		p.logger.WithContext(ctx).WithField("approval_id", request.ID).Warn("Approval expired, production left unchanged")
	}
	p.publish(ctx, result, StageApproval, models.RunStatusSucceeded, nil)
	return request, approved, nil
}

// promote spends the approval behind token and replaces main in one
// transaction, so an approval authorizes exactly one promotion
func (p *Pipeline) promote(ctx context.Context, result *models.RunResult, token string) error {
	ctx = appctx.SetStage(ctx, StagePromote)

	var rows int
	err := p.tx(ctx, func(ctx context.Context) error {
		used, err := p.gate.Consume(ctx, token)
		if err != nil {
			return err
		}
		if !used {
			return fmt.Errorf("%w: approval was already used or has lapsed", ErrNotApproved)
		}

		rows, err = p.promoter.Promote(ctx, models.DatasetStage)
		return err
	})
	if err != nil {
		return fmt.Errorf("promotion failed: %w", err)
	}
	result.Promoted = true
	result.PromotedRows = rows

	p.publish(ctx, result, StagePromote, models.RunStatusSucceeded, nil)
	return nil
}

func (p *Pipeline) publish(ctx context.Context, result *models.RunResult, stage string, status models.RunStatus, cause error) {
	if p.publisher == nil {
		return
	}

	snapshot := *result
	snapshot.Categories = append([]models.CategoryResult(nil), result.Categories...)
	event := models.RunEvent{
		RunID:     result.RunID,
		Stage:     stage,
		Status:    status,
		Timestamp: p.clock.Now(),
		Result:    &snapshot,
		Approval:  result.ApprovalState,
	}
	if cause != nil {
		event.Error = cause.Error()
	}

	if err := p.publisher.PublishRunEvent(ctx, event); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("stage", stage).Warn("Failed to publish run event")
	}
}
