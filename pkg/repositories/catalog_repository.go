package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

var bulkInsertBatchSize = database.BatchSize(len(catalogInsertCols), 500)

var catalogStruct = database.NewStruct(new(models.CatalogEntry))

var catalogInsertCols = []string{"external_id", "display_name", "category", "active", "last_validated_at"}

func catalogRow(entry models.CatalogEntry) []any {
	return []any{entry.ExternalID, entry.DisplayName, entry.Category, entry.Active, entry.LastValidatedAt}
}

// CatalogRepository implements CatalogRepo on Postgres
type CatalogRepository struct {
	*Repository
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db database.DB, logger ectologger.Logger) *CatalogRepository {
	return &CatalogRepository{
		Repository: NewRepository(db, logger),
	}
}

// DeleteAll removes every entry from the dataset
func (r *CatalogRepository) DeleteAll(ctx context.Context, dataset models.Dataset) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "CatalogRepository.DeleteAll")
	defer span.End()

	table, err := tableFor(dataset)
	if err != nil {
		return 0, err
	}

	del := database.NewDeleteBuilder()
	del.DeleteFrom(table)

	query, args := del.Build()
	result, err := r.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"table": table,
		}).Error("failed to clear dataset")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to clear %s", table)
	}

	deleted, _ := result.RowsAffected()
	r.logger.WithContext(ctx).Debugf("Deleted %d rows from %s", deleted, table)
	return deleted, nil
}

// BulkInsert writes entries in batches. Surrogate ids on entries are ignored.
func (r *CatalogRepository) BulkInsert(ctx context.Context, dataset models.Dataset, entries []models.CatalogEntry) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "CatalogRepository.BulkInsert")
	defer span.End()

	table, err := tableFor(dataset)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for start := 0; start < len(entries); start += bulkInsertBatchSize {
		end := min(start+bulkInsertBatchSize, len(entries))

		rows := make([][]any, 0, end-start)
		for _, entry := range entries[start:end] {
			rows = append(rows, catalogRow(entry))
		}
		ib := database.NewInsertBuilder().Into(table, catalogInsertCols...).Rows(rows)

		query, args := ib.Build()
		if _, err := r.Q(ctx).ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"table": table,
				"batch": start / bulkInsertBatchSize,
			}).Error("failed to bulk insert catalog entries")
			return inserted, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to insert into %s", table)
		}
		inserted += end - start
	}

	r.logger.WithContext(ctx).Debugf("Inserted %d rows into %s", inserted, table)
	return inserted, nil
}

// Exists reports whether an entry with externalID is in the dataset
func (r *CatalogRepository) Exists(ctx context.Context, dataset models.Dataset, externalID int64) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "CatalogRepository.Exists")
	defer span.End()

	table, err := tableFor(dataset)
	if err != nil {
		return false, err
	}

	sb := database.NewSelectBuilder()
	sb.Select("1").From(table).Where(sb.Equal("external_id", externalID)).Limit(1)

	query, args := sb.Build()
	var found int
	err = r.Q(ctx).GetContext(ctx, &found, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"table":       table,
			"external_id": externalID,
		}).Error("failed to check catalog membership")
		return false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to query %s", table)
	}
	return true, nil
}

// Get returns the entry with externalID
func (r *CatalogRepository) Get(ctx context.Context, dataset models.Dataset, externalID int64) (*models.CatalogEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "CatalogRepository.Get")
	defer span.End()

	table, err := tableFor(dataset)
	if err != nil {
		return nil, err
	}

	sb := catalogStruct.SelectFrom(table)
	sb.Where(sb.Equal("external_id", externalID))

	query, args := sb.Build()
	var entry models.CatalogEntry
	err = r.Q(ctx).GetContext(ctx, &entry, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("satellite %d does not exist in %s", externalID, dataset)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"table":       table,
			"external_id": externalID,
		}).Error("failed to get catalog entry")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to query %s", table)
	}
	return &entry, nil
}

// List returns every entry ordered by external id
func (r *CatalogRepository) List(ctx context.Context, dataset models.Dataset) ([]models.CatalogEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "CatalogRepository.List")
	defer span.End()

	table, err := tableFor(dataset)
	if err != nil {
		return nil, err
	}

	sb := catalogStruct.SelectFrom(table)
	sb.OrderBy("external_id").Asc()

	query, args := sb.Build()
	entries := []models.CatalogEntry{}
	if err := r.Q(ctx).SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"table": table,
		}).Error("failed to list catalog entries")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list %s", table)
	}

	r.logger.WithContext(ctx).Debugf("Listed %d rows from %s", len(entries), table)
	return entries, nil
}

// Count returns the number of entries in the dataset
func (r *CatalogRepository) Count(ctx context.Context, dataset models.Dataset) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "CatalogRepository.Count")
	defer span.End()

	table, err := tableFor(dataset)
	if err != nil {
		return 0, err
	}

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From(table)

	query, args := sb.Build()
	var count int
	if err := r.Q(ctx).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"table": table,
		}).Error("failed to count catalog entries")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count %s", table)
	}
	return count, nil
}

// Insert adds entry unless its external id is already present. It returns
// false when the row already existed.
func (r *CatalogRepository) Insert(ctx context.Context, dataset models.Dataset, entry *models.CatalogEntry) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "CatalogRepository.Insert")
	defer span.End()

	table, err := tableFor(dataset)
	if err != nil {
		return false, err
	}

	ib := database.NewInsertBuilder().
		Into(table, catalogInsertCols...).
		Rows([][]any{catalogRow(*entry)}).
		OnConflictDoNothing("external_id")

	query, args := ib.Build()
	result, err := r.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"table":       table,
			"external_id": entry.ExternalID,
		}).Error("failed to insert catalog entry")
		return false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to insert into %s", table)
	}

	affected, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"external_id": entry.ExternalID,
		"inserted":    affected > 0,
	}).Debugf("Inserted into %s", table)
	return affected > 0, nil
}

// UpdateValidation records the outcome of a detail check
func (r *CatalogRepository) UpdateValidation(ctx context.Context, dataset models.Dataset, externalID int64, active bool, validatedAt time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "CatalogRepository.UpdateValidation")
	defer span.End()

	table, err := tableFor(dataset)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(table).
		Set(ub.Assign("active", active), ub.Assign("last_validated_at", validatedAt)).
		Where(ub.Equal("external_id", externalID))

	query, args := ub.Build()
	result, err := r.Q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"table":       table,
			"external_id": externalID,
		}).Error("failed to update validation")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update %s", table)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return NotFound("satellite %d does not exist in %s", externalID, dataset)
	}
	return nil
}

// Replace swaps the dataset's contents for entries in a single transaction
func (r *CatalogRepository) Replace(ctx context.Context, dataset models.Dataset, entries []models.CatalogEntry) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "CatalogRepository.Replace")
	defer span.End()

	var inserted int
	err := database.WithTx(ctx, r.db, func(ctx context.Context) error {
		if _, err := r.DeleteAll(ctx, dataset); err != nil {
			return err
		}

		var err error
		inserted, err = r.BulkInsert(ctx, dataset, models.StripIDs(entries))
		return err
	})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"dataset": dataset,
		}).Error("failed to replace dataset, rolled back")
		if httperror.IsHTTPError(err) {
			return 0, err
		}
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to replace %s", dataset)
	}

	r.logger.WithContext(ctx).Infof("Replaced %s with %d entries", dataset, inserted)
	return inserted, nil
}
