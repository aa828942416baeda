package data

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/medscribe/medscribe-go/internal/errors"
	"github.com/medscribe/medscribe-go/internal/domain/model"
	"github.com/medscribe/medscribe-go/internal/testutil"
)

func newTestRedisStore(t *testing.T) *RedisJobStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := testutil.SetupTestRedis(t)
	return MustNewRedisJobStore(RedisJobStoreOptions{Client: client})
}

func TestNewRedisJobStore_NilClient(t *testing.T) {
	_, err := NewRedisJobStore(RedisJobStoreOptions{})
	require.Error(t, err)
}

func TestRedisJobStore_CreateGetUpdate(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, model.JobTypeFullPipeline, map[string]string{"audio_file": "visit.mp3"})
	require.NoError(t, err)

	record, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, record.Status)
	assert.Equal(t, 0, record.Progress)
	assert.Equal(t, "visit.mp3", record.Metadata["audio_file"])

	// The record carries the retention TTL.
	ttl := store.client.TTL(ctx, jobKey(id)).Val()
	assert.True(t, ttl > 0 && ttl <= DefaultJobTTL)

	require.NoError(t, store.SetProgress(ctx, id, 40, "transcribing"))
	record, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusTranscribing, record.Status)
	assert.Equal(t, 40, record.Progress)
	require.NotNil(t, record.CurrentStage)
	assert.Equal(t, "transcribing", *record.CurrentStage)
}

func TestRedisJobStore_GetUnknownJob(t *testing.T) {
	store := newTestRedisStore(t)

	_, err := store.Get(context.Background(), "no-such-job")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRedisJobStore_UpdateUnknownJob(t *testing.T) {
	store := newTestRedisStore(t)

	err := store.SetProgress(context.Background(), "no-such-job", 10, "transcribing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRedisJobStore_TerminalTransitions(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	t.Run("completed", func(t *testing.T) {
		id, err := store.Create(ctx, model.JobTypeGenerateNoteOnly, nil)
		require.NoError(t, err)

		require.NoError(t, store.SetCompleted(ctx, id, []byte(`{"note":"..."}`)))
		record, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, record.Status)
		assert.Equal(t, 100, record.Progress)
		assert.JSONEq(t, `{"note":"..."}`, string(record.Result))
	})

	t.Run("failed keeps last progress", func(t *testing.T) {
		id, err := store.Create(ctx, model.JobTypeFullPipeline, nil)
		require.NoError(t, err)
		require.NoError(t, store.SetProgress(ctx, id, 50, "generating"))

		require.NoError(t, store.SetFailed(ctx, id, &model.JobError{
			Kind:    "generation",
			Message: "note generation failed",
		}))
		record, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, record.Status)
		assert.Equal(t, 50, record.Progress)
		require.NotNil(t, record.Error)
		assert.Equal(t, "note generation failed", record.Error.Message)
	})
}

func TestRedisJobStore_SubscribePublishes(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, model.JobTypeFullPipeline, nil)
	require.NoError(t, err)

	updates, cancel, err := store.Subscribe(ctx, id)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, store.SetProgress(ctx, id, 30, "transcribing"))

	select {
	case payload := <-updates:
		var record model.JobRecord
		require.NoError(t, json.Unmarshal(payload, &record))
		assert.Equal(t, id, record.JobID)
		assert.Equal(t, model.JobStatusTranscribing, record.Status)
		assert.Equal(t, 30, record.Progress)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published update")
	}

	cancel()
	cancel() // idempotent

	select {
	case _, open := <-updates:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}
