package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_DefaultsAndOverrides(t *testing.T) {
	db := newTestDB(t)
	s := newTestSettings(t, db)
	ctx := context.Background()

	assert.Equal(t, 5, s.GetInt(ctx, KeyBatchSize))
	assert.Equal(t, "photographic", s.GetString(ctx, KeyDefaultStyle))
	assert.Equal(t, "1200x630", s.GetString(ctx, KeyImageSize))
	assert.True(t, s.GetBool(ctx, KeyCompletionEmail))
	assert.True(t, s.GetBool(ctx, KeyConceptExtraction))
	assert.False(t, s.GetBool(ctx, KeyDebugLogging))
	assert.False(t, s.GetBool(ctx, KeyQueuePaused))

	_, stored, err := s.Get(ctx, KeyBatchSize)
	require.NoError(t, err)
	assert.False(t, stored)

	mustSet(t, s, KeyBatchSize, 12)
	mustSet(t, s, KeyDebugLogging, true)
	mustSet(t, s, KeyDefaultStyle, "minimal")
	mustSet(t, s, KeyDefaultStyle, "abstract")

	assert.Equal(t, 12, s.GetInt(ctx, KeyBatchSize))
	assert.True(t, s.GetBool(ctx, KeyDebugLogging))
	assert.Equal(t, "abstract", s.GetString(ctx, KeyDefaultStyle))

	require.NoError(t, s.Delete(ctx, KeyBatchSize))
	assert.Equal(t, 5, s.GetInt(ctx, KeyBatchSize))
}

func TestSettings_InvalidValuesFallBack(t *testing.T) {
	s := newTestSettings(t, newTestDB(t))
	ctx := context.Background()

	mustSet(t, s, KeyBatchSize, "lots")
	mustSet(t, s, KeyDebugLogging, "maybe")

	assert.Equal(t, 5, s.GetInt(ctx, KeyBatchSize))
	assert.False(t, s.GetBool(ctx, KeyDebugLogging))
}

func TestSettings_AllAndAPIKey(t *testing.T) {
	s := newTestSettings(t, newTestDB(t))
	ctx := context.Background()

	key, err := s.APIKey(ctx)
	require.NoError(t, err)
	assert.Empty(t, key)

	mustSet(t, s, KeyAPIKey, "AIza-test")
	key, err = s.APIKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AIza-test", key)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AIza-test", all[KeyAPIKey])
	assert.Equal(t, "manual", all[KeyTriggerMode])
}
