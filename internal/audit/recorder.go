package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// TaskRecord is the asynq task type carrying one Entry.
const TaskRecord = "audit:record"

// Recorder stores audit entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Inserter is the storage side of a Recorder.
type Inserter interface {
	Insert(ctx context.Context, entry Entry) error
}

// Store records entries synchronously.
type Store struct {
	repo Inserter
}

// NewStore constructs a Store.
func NewStore(repo Inserter) *Store {
	return &Store{repo: repo}
}

// Record implements Recorder.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.Action == "" || entry.EntityType == "" || entry.EntityID == "" {
		return fmt.Errorf("audit: entry requires action, entity type and entity id")
	}
	return s.repo.Insert(ctx, entry)
}

// HandleRecordTask is the worker side of Queue.
func (s *Store) HandleRecordTask(ctx context.Context, t *asynq.Task) error {
	var entry Entry
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		return fmt.Errorf("audit: decode task: %v: %w", err, asynq.SkipRetry)
	}
	return s.Record(ctx, entry)
}

// NewRecordTask wraps entry into an asynq task.
func NewRecordTask(entry Entry) (*asynq.Task, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("audit: encode task: %w", err)
	}
	return asynq.NewTask(TaskRecord, data, asynq.TaskID(entry.ID.String()), asynq.MaxRetry(5)), nil
}

// Enqueuer submits tasks; *asynq.Client and jobs.Client implement it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue records entries through the background worker and falls back to
// fallback when the queue is unavailable.
type Queue struct {
	client   Enqueuer
	queue    string
	fallback Recorder
	logger   *slog.Logger
}

// NewQueue constructs a Queue.
func NewQueue(client Enqueuer, queue string, fallback Recorder, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{client: client, queue: queue, fallback: fallback, logger: logger}
}

// Record implements Recorder.
func (q *Queue) Record(ctx context.Context, entry Entry) error {
	task, err := NewRecordTask(entry)
	if err != nil {
		return err
	}
	if _, err := q.client.EnqueueContext(ctx, task, asynq.Queue(q.queue)); err != nil {
		q.logger.Warn("audit enqueue failed, writing directly", slog.Any("error", err), slog.String("entity", entry.EntityType))
		if q.fallback == nil {
			return fmt.Errorf("audit: enqueue: %w", err)
		}
		return q.fallback.Record(ctx, entry)
	}
	return nil
}

// Safe wraps a Recorder so failures are logged instead of returned. Business
// operations use it so a broken audit sink never fails a committed change.
func Safe(rec Recorder, logger *slog.Logger) Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return safeRecorder{rec: rec, logger: logger}
}

type safeRecorder struct {
	rec    Recorder
	logger *slog.Logger
}

func (s safeRecorder) Record(ctx context.Context, entry Entry) error {
	if s.rec == nil {
		return nil
	}
	if err := s.rec.Record(ctx, entry); err != nil {
		s.logger.Error("record audit entry",
			slog.Any("error", err),
			slog.String("action", entry.Action),
			slog.String("entity", entry.EntityType),
			slog.String("entity_id", entry.EntityID))
	}
	return nil
}

// Nop discards entries.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Entry) error { return nil }
