package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/medscribe/medscribe-go/internal/errors"
	"github.com/medscribe/medscribe-go/internal/domain/model"
)

// RedisJobStore implements the JobStore interface using Redis. Records live
// under job:{id} with a fixed TTL, and every state change is published on
// job_updates:{id} so watchers see the full record after each transition.
type RedisJobStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	clock  TimeProvider
	logger *slog.Logger
}

// RedisJobStoreOptions configures a RedisJobStore.
type RedisJobStoreOptions struct {
	Client redis.UniversalClient
	TTL    time.Duration
	Clock  TimeProvider
	Logger *slog.Logger
}

// NewRedisJobStore creates a new RedisJobStore with the given options.
func NewRedisJobStore(opts RedisJobStoreOptions) (*RedisJobStore, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultJobTTL
	}
	if opts.Clock == nil {
		opts.Clock = &RealTimeProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &RedisJobStore{
		client: opts.Client,
		ttl:    opts.TTL,
		clock:  opts.Clock,
		logger: opts.Logger,
	}, nil
}

// MustNewRedisJobStore creates a new RedisJobStore and panics on invalid options.
func MustNewRedisJobStore(opts RedisJobStoreOptions) *RedisJobStore {
	store, err := NewRedisJobStore(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create redis job store: %v", err))
	}
	return store
}

// Create registers a new pending job and returns its generated ID.
func (s *RedisJobStore) Create(ctx context.Context, jobType model.JobType, metadata map[string]string) (string, error) {
	if !jobType.Valid() {
		return "", apperrors.Inputf("invalid job type: %s", jobType)
	}

	record := newPendingRecord(jobType, metadata, s.clock.Now())
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal job record: %w", err)
	}

	if err := s.client.Set(ctx, jobKey(record.JobID), payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("redis set job: %w", err)
	}
	return record.JobID, nil
}

// Get retrieves a job record by ID. An expired or unknown ID is not found.
func (s *RedisJobStore) Get(ctx context.Context, id string) (*model.JobRecord, error) {
	if id == "" {
		return nil, apperrors.Input("job id cannot be empty")
	}

	payload, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFoundf("job %s not found", id)
		}
		return nil, fmt.Errorf("redis get job: %w", err)
	}

	var record model.JobRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("unmarshal job record: %w", err)
	}
	return &record, nil
}

// Update applies a partial update to an existing job, persists the merged
// record, and publishes it to subscribers. Updating an unknown job is a hard
// error so state transitions never silently create records.
func (s *RedisJobStore) Update(ctx context.Context, id string, update model.JobUpdate) (*model.JobRecord, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	update.Apply(record)
	record.UpdatedAt = s.clock.Now()

	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal job record: %w", err)
	}

	// Persist and notify in one transaction so subscribers never observe a
	// published update that was not stored.
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKey(id), payload, s.ttl)
		pipe.Publish(ctx, jobUpdateChannel(id), payload)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis update job: %w", err)
	}
	return record, nil
}

// SetProgress records progress on an in-flight job.
func (s *RedisJobStore) SetProgress(ctx context.Context, id string, percent int, stage string) error {
	_, err := s.Update(ctx, id, progressUpdate(percent, stage))
	return err
}

// SetCompleted marks the job completed with its result payload.
func (s *RedisJobStore) SetCompleted(ctx context.Context, id string, result []byte) error {
	_, err := s.Update(ctx, id, completedUpdate(result))
	return err
}

// SetFailed marks the job failed. Progress and stage keep their last values.
func (s *RedisJobStore) SetFailed(ctx context.Context, id string, jobErr *model.JobError) error {
	_, err := s.Update(ctx, id, failedUpdate(jobErr))
	return err
}

// Subscribe returns a channel of raw update payloads for the given job and a
// cancel function. The cancel function is idempotent; the channel is closed
// once the subscription terminates.
func (s *RedisJobStore) Subscribe(ctx context.Context, id string) (<-chan []byte, func(), error) {
	if id == "" {
		return nil, nil, apperrors.Input("job id cannot be empty")
	}

	pubsub := s.client.Subscribe(ctx, jobUpdateChannel(id))
	// Force the subscription onto the wire before returning so callers do not
	// miss updates published between Subscribe and the first receive.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("redis subscribe job updates: %w", err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				s.logger.Debug("closing job update subscription", "job_id", id, "error", err)
			}
		})
	}
	return out, cancel, nil
}

// Health checks the health of the Redis connection.
func (s *RedisJobStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func jobUpdateChannel(id string) string {
	return jobUpdateChanPrefix + id
}

// RedisConfig holds configuration for the Redis connection.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     "localhost:6379",
		Password: "",
		DB:       0,
	}
}

// NewRedisClient creates a new Redis client with the given configuration.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
