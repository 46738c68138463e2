package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_MalformedDocumentIsReplaced(t *testing.T) {
	s, mr := newTestRedisStore(t)
	require.NoError(t, mr.Set("test:ledger:"+testMonth, "{not json"))

	slots, err := s.EnsureLedger(context.Background(), testMonth, testNames)
	require.NoError(t, err)
	assert.Equal(t, testNames, slotNames(slots))

	raw, err := mr.Get("test:ledger:" + testMonth)
	require.NoError(t, err)
	assert.Contains(t, raw, `"month":"2025-03"`)
}

func TestRedisStore_ClaimWithoutLedger(t *testing.T) {
	s, _ := newTestRedisStore(t)
	err := s.ClaimSlot(context.Background(), testMonth, "Week 1", "Alice", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_ReactionsUseHashFields(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()
	mr.HSet("test:reactions", "likes", "41", "dislikes", "oops")

	rc, err := s.GetReactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(41), rc.Likes)
	assert.Zero(t, rc.Dislikes)

	rc, err = s.IncrementReaction(ctx, "like")
	require.NoError(t, err)
	assert.Equal(t, int64(42), rc.Likes)
	assert.Equal(t, "42", mr.HGet("test:reactions", "likes"))
}
