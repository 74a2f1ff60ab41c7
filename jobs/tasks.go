package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskMirrorSync applies one outbox row to the document mirror.
	TaskMirrorSync = "mirror:sync"
	// TaskMirrorSweep re-enqueues outbox rows whose sync task was lost.
	TaskMirrorSweep = "mirror:sweep"
)

const (
	// SweepSpec is the cron schedule of the mirror sweep.
	SweepSpec = "@every 1m"
	// SweepAge is how long an outbox row may stay unprocessed before the sweep picks it up.
	SweepAge = 30 * time.Second
	// SweepBatch caps the rows handled per sweep run.
	SweepBatch = 500
)

// MirrorSyncPayload identifies the outbox row to apply.
type MirrorSyncPayload struct {
	OutboxID int64 `json:"outbox_id"`
}

// NewMirrorSyncTask constructs an Asynq task for one outbox row.
func NewMirrorSyncTask(outboxID int64) (*asynq.Task, error) {
	body, err := json.Marshal(MirrorSyncPayload{OutboxID: outboxID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMirrorSync, body, asynq.Queue(QueueDefault)), nil
}

// NewMirrorSweepTask constructs the sweep task registered with the scheduler.
func NewMirrorSweepTask() *asynq.Task {
	return asynq.NewTask(TaskMirrorSweep, nil, asynq.Queue(QueueDefault))
}
