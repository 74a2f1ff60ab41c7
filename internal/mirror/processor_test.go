package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memOutbox struct {
	entries map[int64]*Entry
}

func (m *memOutbox) put(t *testing.T, id int64, op Op, reportID string, payload any) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	if m.entries == nil {
		m.entries = map[int64]*Entry{}
	}
	m.entries[id] = &Entry{ID: id, Op: op, ReportID: reportID, Payload: body}
}

func (m *memOutbox) Get(_ context.Context, id int64) (*Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	clone := *e
	return &clone, nil
}

func (m *memOutbox) MarkDone(_ context.Context, id int64) error {
	now := time.Now()
	m.entries[id].ProcessedAt = &now
	m.entries[id].Attempts++
	return nil
}

func (m *memOutbox) MarkFailed(_ context.Context, id int64, cause error) error {
	msg := cause.Error()
	m.entries[id].LastError = &msg
	m.entries[id].Attempts++
	return nil
}

func (m *memOutbox) Stale(context.Context, time.Duration, int) ([]int64, error) { return nil, nil }

type memStore struct {
	reports       map[string]ReportDoc
	statuses      []StatusChange
	notifications []Notification
	fail          error
}

func newMemStore() *memStore { return &memStore{reports: map[string]ReportDoc{}} }

func (s *memStore) UpsertReport(_ context.Context, doc ReportDoc) error {
	if s.fail != nil {
		return s.fail
	}
	s.reports[doc.ID] = doc
	return nil
}

func (s *memStore) UpdateStatus(_ context.Context, change StatusChange) error {
	if s.fail != nil {
		return s.fail
	}
	doc := s.reports[change.ReportID]
	doc.Status = change.Status
	s.reports[change.ReportID] = doc
	s.statuses = append(s.statuses, change)
	return nil
}

func (s *memStore) DeleteReport(_ context.Context, id string) error {
	delete(s.reports, id)
	return nil
}

func (s *memStore) AddNotification(_ context.Context, n Notification) error {
	s.notifications = append(s.notifications, n)
	return nil
}

func TestProcessorAppliesEachOp(t *testing.T) {
	outbox := &memOutbox{}
	store := newMemStore()
	p := NewProcessor(outbox, store, nil)
	ctx := context.Background()

	outbox.put(t, 1, OpUpsertReport, "r1", ReportDoc{ID: "r1", Title: "Banjir di Kebon Jeruk", Status: "PENDING", UserID: "owner"})
	outbox.put(t, 2, OpUpdateStatus, "r1", StatusChange{ReportID: "r1", OwnerID: "owner", Title: "Banjir di Kebon Jeruk",
		PreviousStatus: "PENDING", Status: "VERIFIED", UpdatedBy: "volunteer"})
	outbox.put(t, 3, OpDeleteReport, "r1", Deletion{ReportID: "r1"})

	require.NoError(t, p.Process(ctx, 1))
	assert.Equal(t, "PENDING", store.reports["r1"].Status)

	require.NoError(t, p.Process(ctx, 2))
	assert.Equal(t, "VERIFIED", store.reports["r1"].Status)
	require.Len(t, store.statuses, 1)
	require.Len(t, store.notifications, 1)
	n := store.notifications[0]
	assert.Equal(t, "owner", n.UserID)
	assert.Equal(t, NotificationStatusUpdate, n.Type)
	assert.Contains(t, n.Body, "VERIFIED")

	require.NoError(t, p.Process(ctx, 3))
	assert.NotContains(t, store.reports, "r1")

	for id := int64(1); id <= 3; id++ {
		assert.True(t, outbox.entries[id].Processed())
	}
}

func TestProcessorSkipsProcessedAndMissingEntries(t *testing.T) {
	outbox := &memOutbox{}
	store := newMemStore()
	p := NewProcessor(outbox, store, nil)

	outbox.put(t, 1, OpUpsertReport, "r1", ReportDoc{ID: "r1"})
	require.NoError(t, p.Process(context.Background(), 1))
	delete(store.reports, "r1")

	require.NoError(t, p.Process(context.Background(), 1))
	assert.Empty(t, store.reports)
	assert.Equal(t, 1, outbox.entries[1].Attempts)

	require.NoError(t, p.Process(context.Background(), 99))
}

func TestProcessorNoNotificationForOwnUpdate(t *testing.T) {
	outbox := &memOutbox{}
	store := newMemStore()
	p := NewProcessor(outbox, store, nil)

	outbox.put(t, 1, OpUpdateStatus, "r1", StatusChange{ReportID: "r1", OwnerID: "admin", UpdatedBy: "admin", Status: "RESOLVED"})
	require.NoError(t, p.Process(context.Background(), 1))
	assert.Empty(t, store.notifications)
}

func TestProcessorRecordsFailure(t *testing.T) {
	outbox := &memOutbox{}
	store := newMemStore()
	store.fail = errors.New("mongo unavailable")
	p := NewProcessor(outbox, store, nil)

	outbox.put(t, 1, OpUpsertReport, "r1", ReportDoc{ID: "r1"})
	err := p.Process(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.fail)

	entry := outbox.entries[1]
	assert.False(t, entry.Processed())
	assert.Equal(t, 1, entry.Attempts)
	require.NotNil(t, entry.LastError)
	assert.Equal(t, "mongo unavailable", *entry.LastError)

	store.fail = nil
	require.NoError(t, p.Process(context.Background(), 1))
	assert.True(t, outbox.entries[1].Processed())
}

func TestProcessorRejectsUnknownOp(t *testing.T) {
	outbox := &memOutbox{}
	p := NewProcessor(outbox, newMemStore(), nil)
	outbox.put(t, 1, Op("REINDEX"), "r1", map[string]string{})
	assert.Error(t, p.Process(context.Background(), 1))
}
