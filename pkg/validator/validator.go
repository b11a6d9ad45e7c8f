// Package validator checks every staged entry against the upstream detail
// endpoint and records whether it is still live.
package validator

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/clock"
	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

const DefaultDelay = 7 * time.Second

// Detail fetches the detail payload for one satellite
type Detail interface {
	TLE(ctx context.Context, externalID int64) (string, error)
}

// Store is the part of the catalog the validator reads and updates
type Store interface {
	List(ctx context.Context, dataset models.Dataset) ([]models.CatalogEntry, error)
	UpdateValidation(ctx context.Context, dataset models.Dataset, externalID int64, active bool, validatedAt time.Time) error
}

// Summary counts validation outcomes
type Summary struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}

// Validator marks each entry active or inactive. Entries are never removed.
type Validator struct {
	detail Detail
	store  Store
	clock  clock.Clock
	delay  time.Duration
	logger ectologger.Logger
}

// New creates a validator that waits delay between consecutive detail requests
func New(detail Detail, store Store, delay time.Duration, c clock.Clock, logger ectologger.Logger) *Validator {
	if c == nil {
		c = clock.New()
	}
	if delay < 0 {
		delay = 0
	}
	return &Validator{
		detail: detail,
		store:  store,
		clock:  c,
		delay:  delay,
		logger: logger,
	}
}

// Validate walks dataset in external id order
func (v *Validator) Validate(ctx context.Context, dataset models.Dataset) (Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "Validator.Validate")
	defer span.End()

	var summary Summary
	entries, err := v.store.List(ctx, dataset)
	if err != nil {
		return summary, err
	}

	for i, entry := range entries {
		if i > 0 && v.delay > 0 {
			if err := v.clock.Sleep(ctx, v.delay); err != nil {
				return summary, err
			}
		}

		active := true
		if _, err := v.detail.TLE(ctx, entry.ExternalID); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return summary, err
			}
			active = false
			v.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"external_id": entry.ExternalID,
				"name":        entry.DisplayName,
			}).Warn("Detail check failed, marking inactive")
		}

		if err := v.store.UpdateValidation(ctx, dataset, entry.ExternalID, active, v.clock.Now()); err != nil {
			return summary, err
		}

		summary.Total++
		if active {
			summary.Active++
			metrics.ValidationsTotal.WithLabelValues("active").Inc()
		} else {
			summary.Inactive++
			metrics.ValidationsTotal.WithLabelValues("inactive").Inc()
		}
	}

	v.logger.WithContext(ctx).WithFields(map[string]any{
		"dataset":  dataset,
		"total":    summary.Total,
		"active":   summary.Active,
		"inactive": summary.Inactive,
	}).Info("Validation complete")
	return summary, nil
}
