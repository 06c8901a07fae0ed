package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/coverly/internal/config"
	"github.com/ifuryst/coverly/internal/models"
)

type staticSettings map[string]int

func (s staticSettings) GetString(context.Context, string) string { return "" }
func (s staticSettings) GetInt(_ context.Context, key string) int  { return s[key] }
func (s staticSettings) GetBool(context.Context, string) bool     { return false }

type countingBatch struct{ runs chan struct{} }

func (b *countingBatch) RunOnce(context.Context) (BatchResult, error) {
	b.runs <- struct{}{}
	return BatchResult{}, nil
}

type signalSyncer struct {
	calls chan struct{}
	err   error
}

func (s *signalSyncer) SyncPages(context.Context) error {
	s.calls <- struct{}{}
	return s.err
}

func TestScheduler_Disabled(t *testing.T) {
	syncer := &signalSyncer{calls: make(chan struct{}, 1)}
	s := NewScheduler(&config.SchedulerConfig{Enabled: false}, staticSettings{}, &countingBatch{}, syncer, zap.NewNop())

	require.NoError(t, s.Start(context.Background()))
	s.Stop()

	select {
	case <-syncer.calls:
		t.Fatal("sync ran while scheduler was disabled")
	default:
	}
}

func TestScheduler_InvalidSyncInterval(t *testing.T) {
	syncer := &signalSyncer{calls: make(chan struct{}, 1)}
	s := NewScheduler(&config.SchedulerConfig{Enabled: true, SyncInterval: "often"}, staticSettings{}, &countingBatch{}, syncer, zap.NewNop())

	assert.Error(t, s.Start(context.Background()))
}

func TestScheduler_InitialSyncAndStop(t *testing.T) {
	syncer := &signalSyncer{calls: make(chan struct{}, 4), err: errors.New("notion down")}
	batch := &countingBatch{runs: make(chan struct{}, 4)}
	s := NewScheduler(&config.SchedulerConfig{Enabled: true, SyncInterval: "1h"}, staticSettings{}, batch, syncer, zap.NewNop())

	require.NoError(t, s.Start(context.Background()))

	select {
	case <-syncer.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("initial sync did not run")
	}

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	// second Stop is a no-op
	s.Stop()
}

func TestScheduler_QueueInterval(t *testing.T) {
	s := NewScheduler(&config.SchedulerConfig{}, staticSettings{KeyQueueInterval: 2}, nil, nil, zap.NewNop())
	assert.Equal(t, 2*time.Minute, s.queueInterval(context.Background()))

	s = NewScheduler(&config.SchedulerConfig{}, staticSettings{}, nil, nil, zap.NewNop())
	assert.Equal(t, defaultQueueInterval, s.queueInterval(context.Background()))
}

func TestLogCleaner_RunOnce(t *testing.T) {
	db := newTestDB(t)
	settings := newTestSettings(t, db)
	mustSet(t, settings, KeyDebugLogging, true)
	mustSet(t, settings, KeyLogRetentionDays, 3)
	logs := NewGenerationLogService(db, settings, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, logs.Log(ctx, 1, "old", models.LogSuccess))
	require.NoError(t, logs.LogAPIEvent(ctx, "api_test", "old event", models.LogSuccess))
	require.NoError(t, db.Model(&models.GenerationLog{}).Where("1 = 1").
		Update("created_at", time.Now().AddDate(0, 0, -4)).Error)
	require.NoError(t, logs.Log(ctx, 2, "fresh", models.LogSuccess))

	cleaner := NewLogCleaner(logs, settings, zap.NewNop(), time.Hour)
	deleted, err := cleaner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := logs.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "fresh", remaining[0].Detail)
}

func TestLogCleaner_StartStop(t *testing.T) {
	db := newTestDB(t)
	settings := newTestSettings(t, db)
	cleaner := NewLogCleaner(NewGenerationLogService(db, settings, zap.NewNop()), settings, zap.NewNop(), time.Hour)

	cleaner.Start(context.Background())
	cleaner.Stop()
	cleaner.Stop()
}

func TestLogCleaner_StopIsSafe(t *testing.T) {
	tests := []struct {
		name string
		run  func(c *LogCleaner)
	}{
		{"stop without start", func(c *LogCleaner) { c.Stop() }},
		{"stop twice without start", func(c *LogCleaner) { c.Stop(); c.Stop() }},
		{"start twice then stop", func(c *LogCleaner) {
			c.Start(context.Background())
			c.Start(context.Background())
			c.Stop()
		}},
		{"stop after context cancel", func(c *LogCleaner) {
			ctx, cancel := context.WithCancel(context.Background())
			c.Start(ctx)
			cancel()
			c.Stop()
			c.Stop()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			settings := newTestSettings(t, db)
			cleaner := NewLogCleaner(NewGenerationLogService(db, settings, zap.NewNop()), settings, zap.NewNop(), time.Hour)
			assert.NotPanics(t, func() { tt.run(cleaner) })
		})
	}
}

func TestLogCleaner_RunsOnTicker(t *testing.T) {
	db := newTestDB(t)
	settings := newTestSettings(t, db)
	mustSet(t, settings, KeyDebugLogging, true)
	mustSet(t, settings, KeyLogRetentionDays, 1)
	logs := NewGenerationLogService(db, settings, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, logs.Log(ctx, 1, "old", models.LogSuccess))
	require.NoError(t, db.Model(&models.GenerationLog{}).Where("1 = 1").
		Update("created_at", time.Now().AddDate(0, 0, -2)).Error)

	cleaner := NewLogCleaner(logs, settings, zap.NewNop(), 10*time.Millisecond)
	cleaner.Start(ctx)
	assert.Eventually(t, func() bool {
		var count int64
		return db.Model(&models.GenerationLog{}).Count(&count).Error == nil && count == 0
	}, 2*time.Second, 10*time.Millisecond)
	cleaner.Stop()
}
