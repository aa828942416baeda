package data

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/medscribe/medscribe-go/internal/errors"
	"github.com/medscribe/medscribe-go/internal/domain/model"
)

// subscriberBuffer bounds the per-subscriber channel. A slow watcher drops
// updates rather than blocking the pipeline; the final Get still shows the
// terminal state.
const subscriberBuffer = 16

type memoryJobEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryJobStore is an in-process JobStore used in single-node deployments
// and tests. It mirrors the Redis store's observable behavior: records are
// stored as serialized JSON, expire after the TTL, and every update fans out
// to subscribers as the full serialized record.
type MemoryJobStore struct {
	mu          sync.Mutex
	jobs        map[string]memoryJobEntry
	subscribers map[string]map[chan []byte]struct{}
	ttl         time.Duration
	clock       TimeProvider
	logger      *slog.Logger
}

// MemoryJobStoreOptions configures a MemoryJobStore.
type MemoryJobStoreOptions struct {
	TTL    time.Duration
	Clock  TimeProvider
	Logger *slog.Logger
}

// NewMemoryJobStore creates a new MemoryJobStore with the given options.
func NewMemoryJobStore(opts MemoryJobStoreOptions) *MemoryJobStore {
	if opts.TTL <= 0 {
		opts.TTL = DefaultJobTTL
	}
	if opts.Clock == nil {
		opts.Clock = &RealTimeProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &MemoryJobStore{
		jobs:        make(map[string]memoryJobEntry),
		subscribers: make(map[string]map[chan []byte]struct{}),
		ttl:         opts.TTL,
		clock:       opts.Clock,
		logger:      opts.Logger,
	}
}

// Create registers a new pending job and returns its generated ID.
func (s *MemoryJobStore) Create(ctx context.Context, jobType model.JobType, metadata map[string]string) (string, error) {
	if !jobType.Valid() {
		return "", apperrors.Inputf("invalid job type: %s", jobType)
	}

	record := newPendingRecord(jobType, metadata, s.clock.Now())
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal job record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[record.JobID] = memoryJobEntry{
		payload:   payload,
		expiresAt: s.clock.Now().Add(s.ttl),
	}
	return record.JobID, nil
}

// Get retrieves a job record by ID. An expired or unknown ID is not found.
func (s *MemoryJobStore) Get(ctx context.Context, id string) (*model.JobRecord, error) {
	if id == "" {
		return nil, apperrors.Input("job id cannot be empty")
	}

	s.mu.Lock()
	payload, err := s.getLocked(id)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var record model.JobRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("unmarshal job record: %w", err)
	}
	return &record, nil
}

// Update applies a partial update to an existing job, persists the merged
// record, and fans it out to subscribers.
func (s *MemoryJobStore) Update(ctx context.Context, id string, update model.JobUpdate) (*model.JobRecord, error) {
	if id == "" {
		return nil, apperrors.Input("job id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := s.getLocked(id)
	if err != nil {
		return nil, err
	}

	var record model.JobRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("unmarshal job record: %w", err)
	}

	update.Apply(&record)
	record.UpdatedAt = s.clock.Now()

	merged, err := json.Marshal(&record)
	if err != nil {
		return nil, fmt.Errorf("marshal job record: %w", err)
	}

	s.jobs[id] = memoryJobEntry{
		payload:   merged,
		expiresAt: s.clock.Now().Add(s.ttl),
	}
	s.publishLocked(id, merged)
	return &record, nil
}

// SetProgress records progress on an in-flight job.
func (s *MemoryJobStore) SetProgress(ctx context.Context, id string, percent int, stage string) error {
	_, err := s.Update(ctx, id, progressUpdate(percent, stage))
	return err
}

// SetCompleted marks the job completed with its result payload.
func (s *MemoryJobStore) SetCompleted(ctx context.Context, id string, result []byte) error {
	_, err := s.Update(ctx, id, completedUpdate(result))
	return err
}

// SetFailed marks the job failed. Progress and stage keep their last values.
func (s *MemoryJobStore) SetFailed(ctx context.Context, id string, jobErr *model.JobError) error {
	_, err := s.Update(ctx, id, failedUpdate(jobErr))
	return err
}

// Subscribe returns a channel of raw update payloads for the given job and an
// idempotent cancel function.
func (s *MemoryJobStore) Subscribe(ctx context.Context, id string) (<-chan []byte, func(), error) {
	if id == "" {
		return nil, nil, apperrors.Input("job id cannot be empty")
	}

	ch := make(chan []byte, subscriberBuffer)

	s.mu.Lock()
	subs, ok := s.subscribers[id]
	if !ok {
		subs = make(map[chan []byte]struct{})
		s.subscribers[id] = subs
	}
	subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			if subs, ok := s.subscribers[id]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(s.subscribers, id)
				}
			}
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

// Sweep removes expired job records. Callers run it periodically; Get and
// Update already treat expired entries as not found, so sweeping only
// reclaims memory.
func (s *MemoryJobStore) Sweep() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.jobs {
		if now.After(entry.expiresAt) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of live (unexpired) job records.
func (s *MemoryJobStore) Len() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, entry := range s.jobs {
		if !now.After(entry.expiresAt) {
			n++
		}
	}
	return n
}

func (s *MemoryJobStore) getLocked(id string) ([]byte, error) {
	entry, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	if s.clock.Now().After(entry.expiresAt) {
		delete(s.jobs, id)
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	return entry.payload, nil
}

func (s *MemoryJobStore) publishLocked(id string, payload []byte) {
	for ch := range s.subscribers[id] {
		select {
		case ch <- payload:
		default:
			s.logger.Debug("dropping job update for slow subscriber", "job_id", id)
		}
	}
}
