package address

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_BelongsTo(t *testing.T) {
	b := NewMemory()
	b.Add("addr1", "u1")
	ctx := context.Background()

	ok, err := b.BelongsTo(ctx, "addr1", "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = b.BelongsTo(ctx, "addr1", "u2")
	assert.False(t, ok)

	ok, _ = b.BelongsTo(ctx, "missing", "u1")
	assert.False(t, ok)
}
