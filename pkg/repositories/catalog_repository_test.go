package repositories_test

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/repositories"
)

func getTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func getMockDB(t *testing.T) (database.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	return database.NewDatabaseInstance(sqlx.NewDb(mockDB, "postgres"), getTestLogger()), mock
}

func sqlPattern(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

// assertStatus asserts that err is an HTTP error with the given status
func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, status, httperror.GetStatusCode(err), "expected %d, got: %d", status, httperror.GetStatusCode(err))
}

var catalogColumns = []string{"id", "external_id", "display_name", "category", "active", "last_validated_at"}

func TestCatalogRepository_Exists(t *testing.T) {
	db, mock := getMockDB(t)
	repo := repositories.NewCatalogRepository(db, getTestLogger())
	ctx := context.Background()

	mock.ExpectQuery(sqlPattern("SELECT 1 FROM satellites_stage WHERE external_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(sqlPattern("SELECT 1 FROM satellites_stage WHERE external_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	found, err := repo.Exists(ctx, models.DatasetStage, 25544)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.Exists(ctx, models.DatasetStage, 1)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepository_ExistsStorageError(t *testing.T) {
	db, mock := getMockDB(t)
	repo := repositories.NewCatalogRepository(db, getTestLogger())

	mock.ExpectQuery(sqlPattern("FROM satellites_stage")).WillReturnError(errors.New("connection refused"))

	_, err := repo.Exists(context.Background(), models.DatasetStage, 7)
	assertStatus(t, err, http.StatusInternalServerError)
}

func TestCatalogRepository_UnknownDataset(t *testing.T) {
	db, _ := getMockDB(t)
	repo := repositories.NewCatalogRepository(db, getTestLogger())

	_, err := repo.List(context.Background(), models.Dataset("archive"))
	assertStatus(t, err, http.StatusBadRequest)
}

func TestCatalogRepository_ListOrdersByExternalID(t *testing.T) {
	db, mock := getMockDB(t)
	repo := repositories.NewCatalogRepository(db, getTestLogger())
	validated := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(sqlPattern("FROM satellites_stage ORDER BY external_id ASC")).
		WillReturnRows(sqlmock.NewRows(catalogColumns).
			AddRow(3, 7530, "OSCAR 7", 18, true, validated).
			AddRow(1, 25544, "SPACE STATION", 2, false, nil))

	entries, err := repo.List(context.Background(), models.DatasetStage)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(7530), entries[0].ExternalID)
	assert.Equal(t, validated, *entries[0].LastValidatedAt)
	assert.False(t, entries[1].Active)
	assert.Nil(t, entries[1].LastValidatedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepository_GetNotFound(t *testing.T) {
	db, mock := getMockDB(t)
	repo := repositories.NewCatalogRepository(db, getTestLogger())

	mock.ExpectQuery(sqlPattern("FROM satellites_main WHERE external_id = $1")).
		WillReturnRows(sqlmock.NewRows(catalogColumns))

	_, err := repo.Get(context.Background(), models.DatasetMain, 99)
	assertStatus(t, err, http.StatusNotFound)
	assert.True(t, repositories.IsNotFound(err))
}

func TestCatalogRepository_InsertSkipsExisting(t *testing.T) {
	db, mock := getMockDB(t)
	repo := repositories.NewCatalogRepository(db, getTestLogger())
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO satellites_stage .* ON CONFLICT \(external_id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(sqlPattern("INSERT INTO satellites_stage")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	entry := &models.CatalogEntry{ExternalID: 25544, DisplayName: "SPACE STATION", Category: 2, Active: true}
	inserted, err := repo.Insert(ctx, models.DatasetStage, entry)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Insert(ctx, models.DatasetStage, entry)
	require.NoError(t, err)
	assert.False(t, inserted)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepository_UpdateValidation(t *testing.T) {
	db, mock := getMockDB(t)
	repo := repositories.NewCatalogRepository(db, getTestLogger())
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(sqlPattern("UPDATE satellites_stage SET active = $1, last_validated_at = $2 WHERE external_id = $3")).
		WithArgs(false, at, int64(25544)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(sqlPattern("UPDATE satellites_stage")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.UpdateValidation(context.Background(), models.DatasetStage, 25544, false, at))

	err := repo.UpdateValidation(context.Background(), models.DatasetStage, 1, true, at)
	assertStatus(t, err, http.StatusNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepository_BulkInsertBatches(t *testing.T) {
	db, mock := getMockDB(t)
	repo := repositories.NewCatalogRepository(db, getTestLogger())

	entries := make([]models.CatalogEntry, 750)
	for i := range entries {
		entries[i] = models.CatalogEntry{ExternalID: int64(i + 1), Category: 3, Active: true}
	}

	mock.ExpectExec(sqlPattern("INSERT INTO satellites_main")).WillReturnResult(sqlmock.NewResult(0, 500))
	mock.ExpectExec(sqlPattern("INSERT INTO satellites_main")).WillReturnResult(sqlmock.NewResult(0, 250))

	inserted, err := repo.BulkInsert(context.Background(), models.DatasetMain, entries)
	require.NoError(t, err)
	assert.Equal(t, 750, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepository_ReplaceCommits(t *testing.T) {
	db, mock := getMockDB(t)
	repo := repositories.NewCatalogRepository(db, getTestLogger())

	entries := []models.CatalogEntry{
		{ID: 41, ExternalID: 25544, DisplayName: "SPACE STATION", Category: 2, Active: true},
		{ID: 42, ExternalID: 7530, DisplayName: "OSCAR 7", Category: 18, Active: false},
	}

	mock.ExpectBegin()
	mock.ExpectExec(sqlPattern("DELETE FROM satellites_main")).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(sqlPattern("INSERT INTO satellites_main (external_id, display_name, category, active, last_validated_at) VALUES")).
		WithArgs(int64(25544), "SPACE STATION", 2, true, nil, int64(7530), "OSCAR 7", 18, false, nil).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	inserted, err := repo.Replace(context.Background(), models.DatasetMain, entries)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepository_ReplaceRollsBackOnInsertFailure(t *testing.T) {
	db, mock := getMockDB(t)
	repo := repositories.NewCatalogRepository(db, getTestLogger())

	mock.ExpectBegin()
	mock.ExpectExec(sqlPattern("DELETE FROM satellites_main")).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(sqlPattern("INSERT INTO satellites_main")).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.Replace(context.Background(), models.DatasetMain, []models.CatalogEntry{{ExternalID: 1, Category: 3}})
	assertStatus(t, err, http.StatusInternalServerError)
	require.NoError(t, mock.ExpectationsWereMet())
}
