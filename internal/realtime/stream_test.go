package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitdb/sitdb/internal/platform/httpx"
	"github.com/sitdb/sitdb/internal/rbac"
	"github.com/sitdb/sitdb/internal/shared"
)

func testPolicy(t *testing.T) rbac.Authorizer {
	t.Helper()
	engine, err := rbac.NewEngine(context.Background())
	require.NoError(t, err)
	return engine
}

type denyAll struct{}

func (denyAll) Authorize(context.Context, string, shared.Principal, string) error {
	return httpx.NewError(httpx.ErrForbidden, "Tidak memiliki izin")
}

type memLog struct {
	mu      sync.Mutex
	changes []Change
}

func (m *memLog) add(typ EventType, reportID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := int64(len(m.changes) + 1)
	payload, _ := json.Marshal(map[string]any{"reportId": reportID})
	m.changes = append(m.changes, Change{Seq: seq, Type: typ, ReportID: reportID, Payload: payload})
}

func (m *memLog) Head(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.changes)), nil
}

func (m *memLog) Since(_ context.Context, after int64, limit int) ([]Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Change
	for _, c := range m.changes {
		if c.Seq > after && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

type countingGauge struct {
	mu    sync.Mutex
	value int
}

func (g *countingGauge) Inc() { g.add(1) }
func (g *countingGauge) Dec() { g.add(-1) }

func (g *countingGauge) add(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value += n
}

func (g *countingGauge) get() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

type message struct {
	id    string
	event Event
	raw   json.RawMessage
}

func withPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := shared.Principal{ID: "user-1", Role: shared.RoleRelawan}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), p)))
	})
}

// open connects to the stream and returns a channel of parsed messages.
func open(t *testing.T, ctx context.Context, url string, header http.Header) <-chan message {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	out := make(chan message, 64)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		var cur message
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "id: "):
				cur.id = strings.TrimPrefix(line, "id: ")
			case strings.HasPrefix(line, "data: "):
				var envelope struct {
					Type      EventType       `json:"type"`
					Data      json.RawMessage `json:"data"`
					Timestamp time.Time       `json:"timestamp"`
				}
				if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &envelope) == nil {
					cur.event = Event{Type: envelope.Type, Timestamp: envelope.Timestamp}
					cur.raw = envelope.Data
				}
			case line == "":
				out <- cur
				cur = message{}
			}
		}
	}()
	return out
}

func next(t *testing.T, ch <-chan message) message {
	t.Helper()
	select {
	case m, ok := <-ch:
		require.True(t, ok, "stream closed")
		return m
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for stream message")
		return message{}
	}
}

// untilHeartbeat collects change messages up to the next heartbeat.
func untilHeartbeat(t *testing.T, ch <-chan message) []message {
	t.Helper()
	var out []message
	for {
		m := next(t, ch)
		if m.event.Type == EventHeartbeat {
			return out
		}
		out = append(out, m)
	}
}

func TestStreamResumesAfterLastEventID(t *testing.T) {
	log := &memLog{}
	log.add(EventNewReport, "r1")
	log.add(EventStatusUpdate, "r1")
	log.add(EventNewReport, "r2")
	log.add(EventReportDeleted, "r1")

	srv := httptest.NewServer(withPrincipal(NewHandler(nil, testPolicy(t), log, nil, nil, 20*time.Millisecond)))
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := open(t, ctx, srv.URL, http.Header{"Last-Event-Id": {"2"}})
	connected := next(t, ch)
	assert.Equal(t, EventConnected, connected.event.Type)
	assert.Empty(t, connected.id)

	got := untilHeartbeat(t, ch)
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[0].id)
	assert.Equal(t, EventNewReport, got[0].event.Type)
	assert.JSONEq(t, `{"reportId":"r2"}`, string(got[0].raw))
	assert.Equal(t, "4", got[1].id)
	assert.Equal(t, EventReportDeleted, got[1].event.Type)

	assert.Empty(t, untilHeartbeat(t, ch))
}

func TestStreamWithoutCursorStartsAtHead(t *testing.T) {
	log := &memLog{}
	log.add(EventNewReport, "old")

	srv := httptest.NewServer(withPrincipal(NewHandler(nil, testPolicy(t), log, nil, nil, 20*time.Millisecond)))
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := open(t, ctx, srv.URL, nil)
	connected := next(t, ch)
	assert.JSONEq(t, `{"userId":"user-1","cursor":1}`, string(connected.raw))
	assert.Empty(t, untilHeartbeat(t, ch))

	log.add(EventStatusUpdate, "old")
	var got []message
	for i := 0; i < 50 && len(got) == 0; i++ {
		got = append(got, untilHeartbeat(t, ch)...)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].id)
	assert.Equal(t, EventStatusUpdate, got[0].event.Type)
}

func TestStreamCursorQueryParameter(t *testing.T) {
	log := &memLog{}
	for i := 0; i < 3; i++ {
		log.add(EventNewReport, "r")
	}
	srv := httptest.NewServer(withPrincipal(NewHandler(nil, testPolicy(t), log, nil, nil, 20*time.Millisecond)))
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := open(t, ctx, srv.URL+"?cursor=0", nil)
	next(t, ch)
	got := untilHeartbeat(t, ch)
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0].id)
}

func TestStreamDrainsMoreThanOneBatch(t *testing.T) {
	log := &memLog{}
	for i := 0; i < BatchSize+5; i++ {
		log.add(EventNewReport, "r")
	}
	srv := httptest.NewServer(withPrincipal(NewHandler(nil, testPolicy(t), log, nil, nil, 20*time.Millisecond)))
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := open(t, ctx, srv.URL+"?cursor=0", nil)
	next(t, ch)
	got := untilHeartbeat(t, ch)
	require.Len(t, got, BatchSize+5)
	assert.Equal(t, "205", got[len(got)-1].id)
}

type chanWaker struct{ ch chan struct{} }

func (w chanWaker) Subscribe() (<-chan struct{}, func()) { return w.ch, func() {} }

func TestStreamPollsEarlyOnWake(t *testing.T) {
	log := &memLog{}
	waker := chanWaker{ch: make(chan struct{}, 1)}
	gauge := &countingGauge{}
	srv := httptest.NewServer(withPrincipal(NewHandler(nil, testPolicy(t), log, waker, gauge, time.Hour)))
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := open(t, ctx, srv.URL, nil)
	next(t, ch)
	assert.Equal(t, 1, gauge.get())

	log.add(EventNewReport, "r1")
	waker.ch <- struct{}{}
	got := untilHeartbeat(t, ch)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].id)

	cancel()
	assert.Eventually(t, func() bool { return gauge.get() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStreamRejectsAnonymousAndBadCursor(t *testing.T) {
	h := NewHandler(nil, testPolicy(t), &memLog{}, nil, nil, time.Second)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/realtime", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/realtime?cursor=abc", nil)
	withPrincipal(h).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamRequiresSubscribePermission(t *testing.T) {
	gauge := &countingGauge{}
	h := NewHandler(nil, denyAll{}, &memLog{}, nil, gauge, time.Second)

	rec := httptest.NewRecorder()
	withPrincipal(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/realtime", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotEqual(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, 0, gauge.get())
}

func TestBrokerWakesSubscribers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	broker := NewBroker(client, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = broker.Run(ctx) }()

	wake, unsubscribe := broker.Subscribe()
	assert.Equal(t, 1, broker.Subscribers())

	require.Eventually(t, func() bool {
		_ = broker.Notify(ctx, 7)
		select {
		case <-wake:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	unsubscribe()
	assert.Equal(t, 0, broker.Subscribers())
}

func TestBrokerWakeDoesNotBlockOnSlowSubscriber(t *testing.T) {
	broker := NewBroker(nil, nil)
	wake, _ := broker.Subscribe()
	broker.wake()
	broker.wake()
	broker.wake()
	assert.Len(t, wake, 1)
}
