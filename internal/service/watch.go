package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/medscribe/medscribe-go/internal/core"
	"github.com/medscribe/medscribe-go/internal/domain/model"
)

// WatchEvent is one update delivered to a job watcher. Either Record is set,
// or Err carries a non-fatal relay problem (such as a malformed payload) and
// watching continues.
type WatchEvent struct {
	Record *model.JobRecord
	Raw    json.RawMessage
	Err    error
}

// Terminal reports whether this event carries a terminal job status.
func (e WatchEvent) Terminal() bool {
	return e.Record != nil && e.Record.Status.Terminal()
}

// WatcherOptions groups dependencies for Watcher.
type WatcherOptions struct {
	Store  core.JobStore // Required: job record store
	Logger *slog.Logger  // Optional: structured logger
}

// Watcher streams job updates to subscribers. A new subscription always
// receives the job's current snapshot first; the stream closes as soon as a
// terminal status is delivered.
type Watcher struct {
	store  core.JobStore
	logger *slog.Logger
}

// NewWatcher constructs a new Watcher.
func NewWatcher(opts WatcherOptions) (*Watcher, error) {
	if opts.Store == nil {
		return nil, errors.New("Store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Watcher{
		store:  opts.Store,
		logger: opts.Logger.With("component", "job_watcher"),
	}, nil
}

// MustNewWatcher constructs a new Watcher and panics on error.
func MustNewWatcher(opts WatcherOptions) *Watcher {
	w, err := NewWatcher(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create watcher: %v", err))
	}
	return w
}

// Watch returns a stream of updates for the given job. The first event is
// the current snapshot; if the job is already terminal the channel closes
// right after it. Unknown job IDs fail immediately with not found. The
// channel closes when a terminal update is delivered, the context ends, or
// the store subscription terminates; cleanup is idempotent.
func (w *Watcher) Watch(ctx context.Context, jobID string) (<-chan WatchEvent, error) {
	// Subscribe before reading the snapshot so no update published in
	// between is lost. Snapshot delivery order to the caller is unaffected.
	updates, cancel, err := w.store.Subscribe(ctx, jobID)
	if err != nil {
		return nil, err
	}

	snapshot, err := w.store.Get(ctx, jobID)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan WatchEvent)
	go w.relay(ctx, jobID, snapshot, updates, cancel, out)
	return out, nil
}

func (w *Watcher) relay(
	ctx context.Context,
	jobID string,
	snapshot *model.JobRecord,
	updates <-chan []byte,
	cancel func(),
	out chan<- WatchEvent,
) {
	defer cancel()
	defer close(out)

	raw, err := json.Marshal(snapshot)
	if err != nil {
		w.logger.Error("failed to encode job snapshot", "job_id", jobID, "error", err)
		return
	}

	first := WatchEvent{Record: snapshot, Raw: raw}
	if !w.send(ctx, out, first) {
		return
	}
	if first.Terminal() {
		w.logger.Debug("job already terminal at subscribe time", "job_id", jobID)
		return
	}

	for {
		select {
		case payload, ok := <-updates:
			if !ok {
				return
			}

			var record model.JobRecord
			if err := json.Unmarshal(payload, &record); err != nil {
				// Malformed payloads are reported inline and listening
				// continues.
				w.logger.Warn("malformed job update", "job_id", jobID, "error", err)
				if !w.send(ctx, out, WatchEvent{Raw: payload, Err: fmt.Errorf("invalid update format: %w", err)}) {
					return
				}
				continue
			}

			event := WatchEvent{Record: &record, Raw: payload}
			if !w.send(ctx, out, event) {
				return
			}
			if event.Terminal() {
				w.logger.Debug("job reached terminal state", "job_id", jobID, "status", record.Status)
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) send(ctx context.Context, out chan<- WatchEvent, event WatchEvent) bool {
	select {
	case out <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
