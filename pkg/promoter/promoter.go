// Package promoter copies an approved snapshot into the production dataset.
package promoter

import (
	"context"
	"errors"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// ErrSameDataset is returned when asked to promote main onto itself
var ErrSameDataset = errors.New("cannot promote the main dataset onto itself")

// Store reads the snapshot and replaces main
type Store interface {
	List(ctx context.Context, dataset models.Dataset) ([]models.CatalogEntry, error)
	Replace(ctx context.Context, dataset models.Dataset, entries []models.CatalogEntry) (int, error)
}

// Promoter fully replaces main with a snapshot
type Promoter struct {
	store  Store
	logger ectologger.Logger
}

func New(store Store, logger ectologger.Logger) *Promoter {
	return &Promoter{store: store, logger: logger}
}

// Promote replaces main with every entry of source. Surrogate ids are not
// carried over. Callers must only invoke this after an approval.
func (p *Promoter) Promote(ctx context.Context, source models.Dataset) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "Promoter.Promote")
	defer span.End()

	if source == models.DatasetMain {
		return 0, ErrSameDataset
	}

	entries, err := p.store.List(ctx, source)
	if err != nil {
		return 0, err
	}

	promoted, err := p.store.Replace(ctx, models.DatasetMain, models.StripIDs(entries))
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Promotion failed, main left unchanged")
		return 0, err
	}

	metrics.PromotedEntries.Add(float64(promoted))
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"source":   source,
		"promoted": promoted,
	}).Info("Promoted snapshot to main")
	return promoted, nil
}
