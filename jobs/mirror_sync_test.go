package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/sitdb/sitdb/internal/jobs"
)

type fakeProcessor struct {
	mu   sync.Mutex
	seen []int64
	err  error
}

func (p *fakeProcessor) Process(_ context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, id)
	return p.err
}

type fakeOutbox struct {
	ids   []int64
	err   error
	age   time.Duration
	limit int
}

func (o *fakeOutbox) Stale(_ context.Context, age time.Duration, limit int) ([]int64, error) {
	o.age = age
	o.limit = limit
	return o.ids, o.err
}

type fakeQueue struct {
	queued []int64
	fail   map[int64]bool
}

func (q *fakeQueue) EnqueueMirrorSync(_ context.Context, id int64) error {
	if q.fail[id] {
		return errors.New("redis down")
	}
	q.queued = append(q.queued, id)
	return nil
}

func syncTask(t *testing.T, id int64) *asynq.Task {
	t.Helper()
	task, err := NewMirrorSyncTask(id)
	require.NoError(t, err)
	return task
}

func TestHandleSyncProcessesOutboxRow(t *testing.T) {
	proc := &fakeProcessor{}
	job := NewMirrorJob(proc, &fakeOutbox{}, &fakeQueue{}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.HandleSync(context.Background(), syncTask(t, 42)))
	require.Equal(t, []int64{42}, proc.seen)
}

func TestHandleSyncReturnsProcessingErrorForRetry(t *testing.T) {
	boom := errors.New("mongo unavailable")
	job := NewMirrorJob(&fakeProcessor{err: boom}, &fakeOutbox{}, &fakeQueue{}, nil, nil)

	err := job.HandleSync(context.Background(), syncTask(t, 7))
	require.ErrorIs(t, err, boom)
}

func TestHandleSyncSkipsMalformedPayload(t *testing.T) {
	proc := &fakeProcessor{}
	job := NewMirrorJob(proc, &fakeOutbox{}, &fakeQueue{}, nil, nil)

	err := job.HandleSync(context.Background(), asynq.NewTask(TaskMirrorSync, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	body, _ := json.Marshal(MirrorSyncPayload{})
	err = job.HandleSync(context.Background(), asynq.NewTask(TaskMirrorSync, body))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, proc.seen)
}

func TestSweepRequeuesStaleRows(t *testing.T) {
	outbox := &fakeOutbox{ids: []int64{3, 4, 5}}
	queue := &fakeQueue{fail: map[int64]bool{4: true}}
	job := NewMirrorJob(&fakeProcessor{}, outbox, queue, nil, nil)

	queued, err := job.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, queued)
	assert.Equal(t, []int64{3, 5}, queue.queued)
	assert.Equal(t, SweepAge, outbox.age)
	assert.Equal(t, SweepBatch, outbox.limit)
}

func TestHandleSweepSurfacesListingError(t *testing.T) {
	job := NewMirrorJob(&fakeProcessor{}, &fakeOutbox{err: errors.New("pg down")}, &fakeQueue{}, nil, nil)
	require.Error(t, job.HandleSweep(context.Background(), NewMirrorSweepTask()))
}

func TestMirrorJobRegistrations(t *testing.T) {
	job := NewMirrorJob(&fakeProcessor{}, &fakeOutbox{}, &fakeQueue{}, nil, nil)

	types := []string{}
	for _, h := range job.Handlers() {
		types = append(types, h.Type)
	}
	require.ElementsMatch(t, []string{TaskMirrorSync, TaskMirrorSweep}, types)

	cron := job.Cron()
	require.Len(t, cron, 1)
	require.Equal(t, SweepSpec, cron[0].Spec)
	require.Equal(t, TaskMirrorSweep, cron[0].Task.Type())
}

func TestNilJobIsNotConfigured(t *testing.T) {
	var job *MirrorJob
	require.Error(t, job.HandleSync(context.Background(), syncTask(t, 1)))
	require.Error(t, job.HandleSweep(context.Background(), NewMirrorSweepTask()))
}
