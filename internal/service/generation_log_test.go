package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/coverly/internal/models"
)

func newTestLogs(t *testing.T, debug bool) (*GenerationLogService, *SettingsService) {
	t.Helper()
	db := newTestDB(t)
	settings := newTestSettings(t, db)
	mustSet(t, settings, KeyDebugLogging, debug)
	return NewGenerationLogService(db, settings, zap.NewNop()), settings
}

func TestLog_NoopWhenDebugDisabled(t *testing.T) {
	logs, _ := newTestLogs(t, false)
	ctx := context.Background()

	require.NoError(t, logs.Log(ctx, 1, "prompt", models.LogSuccess))
	entries, err := logs.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLog_RollingWindowKeepsNewest(t *testing.T) {
	logs, _ := newTestLogs(t, true)
	ctx := context.Background()

	for i := 1; i <= 7; i++ {
		require.NoError(t, logs.Log(ctx, uint(i), fmt.Sprintf("prompt %d", i), models.LogSuccess,
			WithDuration(1500*time.Millisecond)))
	}

	entries, err := logs.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, DefaultMaxLogs)

	var details []string
	for _, e := range entries {
		details = append(details, e.Detail)
	}
	assert.ElementsMatch(t, []string{"prompt 5", "prompt 6", "prompt 7"}, details)
	assert.InDelta(t, 1.5, entries[0].DurationSeconds, 0.001)
}

func TestLogAPIEvent_AlwaysRecordedAndNotTrimmed(t *testing.T) {
	logs, settings := newTestLogs(t, false)
	ctx := context.Background()

	require.NoError(t, logs.LogAPIEvent(ctx, "api_test", "Connection test successful", models.LogSuccess))

	mustSet(t, settings, KeyDebugLogging, true)
	for i := 1; i <= 5; i++ {
		require.NoError(t, logs.Log(ctx, uint(i), "p", models.LogError, WithErrorMessage("boom")))
	}

	entries, err := logs.ListBySubject(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "api_test", entries[0].Detail)
	assert.Equal(t, "Connection test successful", entries[0].ErrorMessage)

	all, err := logs.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, DefaultMaxLogs+1)
}

func TestLog_CleanupOld(t *testing.T) {
	logs, _ := newTestLogs(t, true)
	ctx := context.Background()

	old := &models.GenerationLog{SubjectID: 1, Detail: "old", Status: models.LogSuccess,
		CreatedAt: time.Now().AddDate(0, 0, -10)}
	require.NoError(t, logs.db.Create(old).Error)
	require.NoError(t, logs.LogAPIEvent(ctx, "api_key_saved", "API key updated", models.LogInfo))

	deleted, err := logs.CleanupOld(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = logs.Get(ctx, old.ID)
	assert.ErrorIs(t, err, ErrLogNotFound)
}

func TestLog_Clear(t *testing.T) {
	logs, _ := newTestLogs(t, true)
	ctx := context.Background()

	require.NoError(t, logs.Log(ctx, 1, "p", models.LogSuccess))
	require.NoError(t, logs.Clear(ctx))

	entries, err := logs.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
