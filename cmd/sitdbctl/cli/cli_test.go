package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/sitdb/sitdb/internal/mirror"
	"github.com/sitdb/sitdb/jobs"
)

type stubClient struct {
	tasks []*asynq.Task
}

func (s *stubClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubClient) Close() error { return nil }

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func (s stubInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, nil
}

func (s stubInspector) Close() error { return nil }

func TestTriggerSupportedJobs(t *testing.T) {
	client := &stubClient{}
	c := &JobsCLI{client: client}

	info, err := c.Trigger(context.Background(), jobs.TaskMirrorSweep, 0)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskMirrorSweep, info.Type)

	_, err = c.Trigger(context.Background(), jobs.TaskMirrorSync, 0)
	require.ErrorContains(t, err, "--outbox-id")

	_, err = c.Trigger(context.Background(), jobs.TaskMirrorSync, 9)
	require.NoError(t, err)
	var payload jobs.MirrorSyncPayload
	require.NoError(t, json.Unmarshal(client.tasks[1].Payload(), &payload))
	require.Equal(t, int64(9), payload.OutboxID)

	_, err = c.Trigger(context.Background(), "mail:send", 0)
	require.ErrorContains(t, err, "unsupported job")
}

func TestInspectCommandJSON(t *testing.T) {
	c := &JobsCLI{inspector: stubInspector{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 2, Retry: 1}}}
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	code := c.InspectCommand(context.Background(), OutputOptions{JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Zero(t, code)
	require.Empty(t, stderr.String())

	var stats QueueStats
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &stats))
	require.Equal(t, QueueStats{Queue: jobs.QueueDefault, Pending: 2, Retry: 1}, stats)
}

func TestInspectCommandFlagsArchivedTasks(t *testing.T) {
	c := &JobsCLI{inspector: stubInspector{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Archived: 4}}}
	stdout := new(bytes.Buffer)
	code := c.InspectCommand(context.Background(), OutputOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 10, code)
	require.Contains(t, stdout.String(), "archived=4")
}

func TestInspectCommandMissingQueue(t *testing.T) {
	c := &JobsCLI{inspector: stubInspector{err: asynq.ErrQueueNotFound}}
	code := c.InspectCommand(context.Background(), OutputOptions{Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)})
	require.Zero(t, code)

	c = &JobsCLI{inspector: stubInspector{err: errors.New("dial tcp: refused")}}
	stderr := new(bytes.Buffer)
	code = c.InspectCommand(context.Background(), OutputOptions{Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "refused")
}

type stubOutbox struct {
	stats mirror.Stats
	err   error
}

func (s stubOutbox) Stats(context.Context) (mirror.Stats, error) { return s.stats, s.err }

type stubSweeper struct{ queued int }

func (s stubSweeper) Sweep(context.Context) (int, error) { return s.queued, nil }

func TestOutboxStatsCommand(t *testing.T) {
	c := NewOutboxCLI(stubOutbox{stats: mirror.Stats{Pending: 3, Failed: 1, OldestAge: 90 * time.Second}}, nil)
	stdout := new(bytes.Buffer)
	code := c.StatsCommand(context.Background(), OutputOptions{JSONOutput: true, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 10, code)

	var summary OutboxSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, OutboxSummary{Pending: 3, Failed: 1, OldestAgeSeconds: 90}, summary)
}

func TestOutboxStatsCommandHuman(t *testing.T) {
	c := NewOutboxCLI(stubOutbox{}, nil)
	stdout := new(bytes.Buffer)
	require.Zero(t, c.StatsCommand(context.Background(), OutputOptions{Stdout: stdout, Stderr: new(bytes.Buffer)}))
	require.Contains(t, stdout.String(), "up to date")

	c = NewOutboxCLI(stubOutbox{err: errors.New("pg down")}, nil)
	stderr := new(bytes.Buffer)
	require.Equal(t, 1, c.StatsCommand(context.Background(), OutputOptions{Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "pg down")
}

func TestOutboxSweep(t *testing.T) {
	queued, err := NewOutboxCLI(nil, stubSweeper{queued: 5}).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, queued)

	_, err = NewOutboxCLI(nil, nil).Sweep(context.Background())
	require.Error(t, err)
}
