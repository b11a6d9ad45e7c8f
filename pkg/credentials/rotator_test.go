package credentials_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/credentials"
)

func TestNewRotator_EmptyPool(t *testing.T) {
	_, err := credentials.NewRotator(nil)
	require.ErrorIs(t, err, credentials.ErrEmptyPool)

	_, err = credentials.FromStrings([]string{"", ""})
	require.ErrorIs(t, err, credentials.ErrEmptyPool)
}

func TestRotator_CurrentHasNoSideEffects(t *testing.T) {
	r, err := credentials.NewRotator([]credentials.Credential{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, credentials.Credential("a"), r.Current())
	assert.Equal(t, credentials.Credential("a"), r.Current())
	assert.Equal(t, 0, r.Index())
}

func TestRotator_RotateWrapsInPoolOrder(t *testing.T) {
	r, err := credentials.NewRotator([]credentials.Credential{"a", "b", "c"})
	require.NoError(t, err)

	assert.Equal(t, credentials.Credential("b"), r.Rotate())
	assert.Equal(t, credentials.Credential("c"), r.Rotate())
	assert.Equal(t, credentials.Credential("a"), r.Rotate())
}

func TestRotator_FullCycleReturnsToStart(t *testing.T) {
	for size := 2; size <= 6; size++ {
		pool := make([]string, size)
		for i := range pool {
			pool[i] = string(rune('a' + i))
		}
		r, err := credentials.FromStrings(pool)
		require.NoError(t, err)

		start := r.Current()
		for i := 0; i < size; i++ {
			r.Rotate()
		}
		assert.Equal(t, start, r.Current(), "pool size %d", size)
	}
}

func TestRotator_SingleCredentialIsNoop(t *testing.T) {
	r, err := credentials.FromStrings([]string{"only"})
	require.NoError(t, err)

	assert.Equal(t, credentials.Credential("only"), r.Rotate())
	assert.Equal(t, credentials.Credential("only"), r.Rotate())
	assert.Equal(t, 0, r.Index())
	assert.Equal(t, 1, r.Size())
}
