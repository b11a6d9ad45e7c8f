// Package scanner discovers new catalog entries by probing the upstream from
// several ground locations.
package scanner

import (
	"context"
	"errors"
	"strconv"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/n2yo"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Source lists candidates overhead a probe point
type Source interface {
	Above(ctx context.Context, point models.ProbePoint, category int) ([]n2yo.Candidate, error)
}

// Store is the part of the catalog the scanner writes to
type Store interface {
	Exists(ctx context.Context, dataset models.Dataset, externalID int64) (bool, error)
	Insert(ctx context.Context, dataset models.Dataset, entry *models.CatalogEntry) (bool, error)
}

// Scanner inserts newly seen satellites into the stage dataset
type Scanner struct {
	source Source
	store  Store
	logger ectologger.Logger
}

// New creates a scanner
func New(source Source, store Store, logger ectologger.Logger) *Scanner {
	return &Scanner{
		source: source,
		store:  store,
		logger: logger,
	}
}

// Scan probes points in order and stages up to limit satellites of category
// that are not already staged. It stops probing once limit is reached. A
// failed probe is skipped; a storage failure aborts the scan.
func (s *Scanner) Scan(ctx context.Context, category int, points []models.ProbePoint, limit int) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "Scanner.Scan")
	defer span.End()

	log := s.logger.WithContext(ctx).WithField("category", category)
	label := strconv.Itoa(category)

	inserted := 0
	for _, point := range points {
		if inserted >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return inserted, err
		}

		candidates, err := s.source.Above(ctx, point, category)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return inserted, err
			}
			metrics.ScanProbeFailures.WithLabelValues(label).Inc()
			log.WithError(err).WithField("point", point.String()).Warn("Probe failed, skipping location")
			continue
		}

		for _, candidate := range candidates {
			if inserted >= limit {
				break
			}

			exists, err := s.store.Exists(ctx, models.DatasetStage, candidate.ExternalID)
			if err != nil {
				return inserted, err
			}
			if exists {
				continue
			}

			entry := &models.CatalogEntry{
				ExternalID:  candidate.ExternalID,
				DisplayName: candidate.Name,
				Category:    category,
				Active:      true,
			}
			added, err := s.store.Insert(ctx, models.DatasetStage, entry)
			if err != nil {
				return inserted, err
			}
			if !added {
				continue
			}

			inserted++
			metrics.ScanInsertsTotal.WithLabelValues(label).Inc()
			log.WithFields(map[string]any{
				"external_id": candidate.ExternalID,
				"name":        candidate.Name,
			}).Debug("Staged new satellite")
		}
	}

	log.Infof("Category %d scan staged %d new satellites", category, inserted)
	return inserted, nil
}
