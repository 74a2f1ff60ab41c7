package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/sitdb/sitdb/internal/jobs"
)

// SyncProcessor applies a single outbox row.
type SyncProcessor interface {
	Process(ctx context.Context, id int64) error
}

// StaleLister returns unprocessed outbox rows older than age.
type StaleLister interface {
	Stale(ctx context.Context, age time.Duration, limit int) ([]int64, error)
}

// SyncEnqueuer queues a mirror:sync task.
type SyncEnqueuer interface {
	EnqueueMirrorSync(ctx context.Context, outboxID int64) error
}

// MirrorJob handles the mirror sync and sweep tasks.
type MirrorJob struct {
	processor SyncProcessor
	outbox    StaleLister
	queue     SyncEnqueuer
	logger    *slog.Logger
	metrics   *jobmetrics.Metrics
}

// NewMirrorJob initialises the mirror handlers.
func NewMirrorJob(processor SyncProcessor, outbox StaleLister, queue SyncEnqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *MirrorJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &MirrorJob{processor: processor, outbox: outbox, queue: queue, logger: logger, metrics: metrics}
}

// Handlers lists the task handlers to register on the worker.
func (j *MirrorJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskMirrorSync, Handler: j.HandleSync},
		{Type: TaskMirrorSweep, Handler: j.HandleSweep},
	}
}

// Cron returns the sweep schedule.
func (j *MirrorJob) Cron() []CronRegistration {
	return []CronRegistration{{Spec: SweepSpec, Task: NewMirrorSweepTask()}}
}

// HandleSync applies the outbox row named in the payload.
func (j *MirrorJob) HandleSync(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.processor == nil {
		return errors.New("mirror sync: handler not configured")
	}
	var payload MirrorSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.OutboxID <= 0 {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track(TaskMirrorSync)
	defer func() {
		err = tracker.End(err)
	}()
	if err := j.processor.Process(ctx, payload.OutboxID); err != nil {
		j.logger.Warn("mirror sync failed", slog.Int64("outbox_id", payload.OutboxID), slog.Any("error", err))
		return err
	}
	return nil
}

// HandleSweep runs Sweep on the scheduler tick.
func (j *MirrorJob) HandleSweep(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.outbox == nil || j.queue == nil {
		return errors.New("mirror sweep: handler not configured")
	}
	tracker := j.metrics.Track(TaskMirrorSweep)
	defer func() {
		err = tracker.End(err)
	}()
	_, err = j.Sweep(ctx)
	return err
}

// Sweep re-enqueues stale outbox rows and reports how many were queued.
// Individual enqueue failures are logged and left for the next run.
func (j *MirrorJob) Sweep(ctx context.Context) (int, error) {
	ids, err := j.outbox.Stale(ctx, SweepAge, SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("mirror sweep: list stale: %w", err)
	}
	queued := 0
	for _, id := range ids {
		if err := j.queue.EnqueueMirrorSync(ctx, id); err != nil {
			j.logger.Warn("mirror sweep enqueue", slog.Int64("outbox_id", id), slog.Any("error", err))
			continue
		}
		queued++
	}
	j.metrics.AddRequeued(queued)
	if queued > 0 {
		j.logger.Info("mirror sweep", slog.Int("stale", len(ids)), slog.Int("queued", queued))
	}
	return queued, nil
}
