package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/aster/pkg/database"
)

func TestInsertBuilder_RowsAndConflict(t *testing.T) {
	ib := database.NewInsertBuilder().
		Into("satellites_stage", "external_id", "display_name").
		Rows([][]any{{int64(1), "A"}, {int64(2), "B"}}).
		OnConflictDoNothing("external_id")

	query, args := ib.Build()
	assert.Equal(t, "INSERT INTO satellites_stage (external_id, display_name) VALUES ($1, $2), ($3, $4) ON CONFLICT (external_id) DO NOTHING", query)
	assert.Equal(t, []any{int64(1), "A", int64(2), "B"}, args)
}

func TestInsertBuilder_ConflictWithoutTarget(t *testing.T) {
	query, _ := database.NewInsertBuilder().Into("approvals", "id").Rows([][]any{{1}}).OnConflictDoNothing().Build()
	assert.Equal(t, "INSERT INTO approvals (id) VALUES ($1) ON CONFLICT DO NOTHING", query)
}

func TestBatchSize(t *testing.T) {
	assert.Equal(t, 500, database.BatchSize(5, 500))
	assert.Equal(t, 65535/200, database.BatchSize(200, 1000))
	assert.Equal(t, 10, database.BatchSize(0, 10))
}
