package scanner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/fetcher"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/n2yo"
	"github.com/Ramsey-B/aster/pkg/repositories/memory"
	"github.com/Ramsey-B/aster/pkg/scanner"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// fakeSource answers each probe point with a fixed candidate list
type fakeSource struct {
	responses map[models.ProbePoint][]n2yo.Candidate
	failures  map[models.ProbePoint]error
	calls     []models.ProbePoint
}

func (f *fakeSource) Above(_ context.Context, point models.ProbePoint, _ int) ([]n2yo.Candidate, error) {
	f.calls = append(f.calls, point)
	if err := f.failures[point]; err != nil {
		return nil, err
	}
	return f.responses[point], nil
}

func candidates(ids ...int64) []n2yo.Candidate {
	out := make([]n2yo.Candidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, n2yo.Candidate{ExternalID: id, Name: "SAT"})
	}
	return out
}

var (
	pointA = models.ProbePoint{Lat: 40.7128, Lng: -74.006}
	pointB = models.ProbePoint{Lat: 51.5074, Lng: -0.1278}
	pointC = models.ProbePoint{Lat: 35.6895, Lng: 139.6917}
)

func TestScan_StagesNewCandidatesWithCategory(t *testing.T) {
	store := memory.NewCatalog()
	source := &fakeSource{responses: map[models.ProbePoint][]n2yo.Candidate{
		pointA: candidates(1, 2),
		pointB: candidates(2, 3),
	}}

	inserted, err := scanner.New(source, store, testLogger()).Scan(context.Background(), 15, []models.ProbePoint{pointA, pointB}, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)

	staged := store.Snapshot(models.DatasetStage)
	require.Len(t, staged, 3)
	for _, entry := range staged {
		assert.Equal(t, 15, entry.Category)
		assert.True(t, entry.Active)
	}
}

func TestScan_IsIdempotent(t *testing.T) {
	store := memory.NewCatalog()
	source := &fakeSource{responses: map[models.ProbePoint][]n2yo.Candidate{
		pointA: candidates(10, 11, 12),
	}}
	s := scanner.New(source, store, testLogger())

	first, err := s.Scan(context.Background(), 3, []models.ProbePoint{pointA}, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, first)

	second, err := s.Scan(context.Background(), 3, []models.ProbePoint{pointA}, 10)
	require.NoError(t, err)
	assert.Zero(t, second)
	assert.Len(t, store.Snapshot(models.DatasetStage), 3)
}

func TestScan_StopsAtLimit(t *testing.T) {
	store := memory.NewCatalog()
	ids := make([]int64, 15)
	for i := range ids {
		ids[i] = int64(100 + i)
	}
	source := &fakeSource{responses: map[models.ProbePoint][]n2yo.Candidate{
		pointA: candidates(ids...),
		pointB: candidates(500, 501),
	}}

	inserted, err := scanner.New(source, store, testLogger()).Scan(context.Background(), 4, []models.ProbePoint{pointA, pointB}, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, inserted)
	assert.Len(t, store.Snapshot(models.DatasetStage), 10)
	assert.Equal(t, []models.ProbePoint{pointA}, source.calls, "no further points are probed once the limit is hit")
}

func TestScan_SkipsExistingEntries(t *testing.T) {
	store := memory.NewCatalog()
	store.Seed(models.DatasetStage, models.CatalogEntry{ExternalID: 1, Category: 8, Active: false})
	source := &fakeSource{responses: map[models.ProbePoint][]n2yo.Candidate{
		pointA: candidates(1, 2),
	}}

	inserted, err := scanner.New(source, store, testLogger()).Scan(context.Background(), 15, []models.ProbePoint{pointA}, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	existing, err := store.Get(context.Background(), models.DatasetStage, 1)
	require.NoError(t, err)
	assert.Equal(t, 8, existing.Category, "existing entries are left untouched")
	assert.False(t, existing.Active)
}

func TestScan_ContinuesPastFailedProbe(t *testing.T) {
	store := memory.NewCatalog()
	source := &fakeSource{
		responses: map[models.ProbePoint][]n2yo.Candidate{pointC: candidates(7)},
		failures: map[models.ProbePoint]error{
			pointA: fetcher.ErrCredentialsExhausted,
			pointB: &fetcher.StatusError{StatusCode: 404},
		},
	}

	inserted, err := scanner.New(source, store, testLogger()).Scan(context.Background(), 3, []models.ProbePoint{pointA, pointB, pointC}, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Len(t, source.calls, 3)
}

func TestScan_StorageErrorIsFatal(t *testing.T) {
	store := memory.NewCatalog()
	store.Err = errors.New("connection refused")
	source := &fakeSource{responses: map[models.ProbePoint][]n2yo.Candidate{
		pointA: candidates(1),
		pointB: candidates(2),
	}}

	_, err := scanner.New(source, store, testLogger()).Scan(context.Background(), 3, []models.ProbePoint{pointA, pointB}, 10)
	assert.EqualError(t, err, "connection refused")
	assert.Len(t, source.calls, 1)
}

func TestScan_StopsOnCancellation(t *testing.T) {
	store := memory.NewCatalog()
	source := &fakeSource{failures: map[models.ProbePoint]error{pointA: context.Canceled}}

	_, err := scanner.New(source, store, testLogger()).Scan(context.Background(), 3, []models.ProbePoint{pointA, pointB}, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, source.calls, 1)
}
