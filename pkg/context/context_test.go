package context_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	appctx "github.com/Ramsey-B/aster/pkg/context"
)

func TestRunScopedValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, appctx.GetRunID(ctx))
	assert.Empty(t, appctx.GetStage(ctx))

	ctx = appctx.SetRunID(ctx, "run-1")
	ctx = appctx.SetStage(ctx, "scan")
	ctx = appctx.SetRequestID(ctx, "req-1")

	assert.Equal(t, "run-1", appctx.GetRunID(ctx))
	assert.Equal(t, "scan", appctx.GetStage(ctx))
	assert.Equal(t, "req-1", appctx.GetRequestID(ctx))

	ctx = appctx.SetStage(ctx, "validate")
	assert.Equal(t, "validate", appctx.GetStage(ctx))
}
