package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sitdb/sitdb/internal/platform/httpx"
	"github.com/sitdb/sitdb/internal/rbac"
	"github.com/sitdb/sitdb/internal/shared"
)

const (
	// DefaultPollInterval is the wait between change-log polls.
	DefaultPollInterval = 5 * time.Second
	// BatchSize caps the rows read per poll query.
	BatchSize = 200
)

// Event is the JSON body of every stream message.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Waker delivers early poll signals.
type Waker interface {
	Subscribe() (<-chan struct{}, func())
}

// ConnectionGauge tracks open streams. prometheus.Gauge satisfies it.
type ConnectionGauge interface {
	Inc()
	Dec()
}

// Handler serves GET /realtime as a text/event-stream.
type Handler struct {
	logger   *slog.Logger
	authz    rbac.Authorizer
	log      ChangeLog
	waker    Waker
	gauge    ConnectionGauge
	interval time.Duration
	now      func() time.Time
}

// NewHandler builds Handler. waker and gauge may be nil.
func NewHandler(logger *slog.Logger, authz rbac.Authorizer, log ChangeLog, waker Waker, gauge ConnectionGauge, interval time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Handler{logger: logger, authz: authz, log: log, waker: waker, gauge: gauge, interval: interval, now: time.Now}
}

// ServeHTTP streams the change log. The stream resumes after Last-Event-ID
// (or ?cursor=) and otherwise starts at the current head.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if err := h.authz.Authorize(r.Context(), rbac.ActionRealtimeSubscribe, principal, ""); err != nil {
		httpx.RespondError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.RespondError(w, errors.New("realtime: streaming unsupported"))
		return
	}

	ctx := r.Context()
	cursor, resumed, err := ParseCursor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !resumed {
		if cursor, err = h.log.Head(ctx); err != nil {
			h.logger.Error("realtime head", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if h.gauge != nil {
		h.gauge.Inc()
		defer h.gauge.Dec()
	}

	s := &stream{w: w, flusher: flusher, now: h.now}
	if err := s.send(0, EventConnected, map[string]any{"userId": principal.ID, "cursor": cursor}); err != nil {
		return
	}
	h.logger.Debug("realtime connected", slog.String("user_id", principal.ID), slog.Int64("cursor", cursor))

	var wake <-chan struct{}
	if h.waker != nil {
		ch, cancel := h.waker.Subscribe()
		defer cancel()
		wake = ch
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		}
		if cursor, err = h.poll(ctx, s, cursor); err != nil {
			if ctx.Err() == nil {
				h.logger.Debug("realtime stream closed", slog.String("user_id", principal.ID), slog.Any("error", err))
			}
			return
		}
	}
}

// poll drains the log after cursor, then sends a heartbeat. Only write
// failures end the stream; read failures are retried on the next poll.
func (h *Handler) poll(ctx context.Context, s *stream, cursor int64) (int64, error) {
	for {
		changes, err := h.log.Since(ctx, cursor, BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return cursor, ctx.Err()
			}
			h.logger.Warn("realtime poll", slog.Int64("cursor", cursor), slog.Any("error", err))
			break
		}
		for _, c := range changes {
			if err := s.send(c.Seq, c.Type, c.Payload); err != nil {
				return cursor, err
			}
			cursor = c.Seq
		}
		if len(changes) < BatchSize {
			break
		}
	}
	return cursor, s.send(0, EventHeartbeat, map[string]any{"cursor": cursor})
}

// ParseCursor reads the resume position from the Last-Event-ID header or
// the cursor query parameter.
func ParseCursor(r *http.Request) (int64, bool, error) {
	raw := strings.TrimSpace(r.Header.Get("Last-Event-ID"))
	if raw == "" {
		raw = strings.TrimSpace(r.URL.Query().Get("cursor"))
	}
	if raw == "" {
		return 0, false, nil
	}
	cursor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cursor < 0 {
		return 0, false, httpx.NewError(httpx.ErrValidation, "Cursor tidak valid")
	}
	return cursor, true, nil
}

type stream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	now     func() time.Time
}

// send writes one message. id 0 omits the id line so heartbeats do not move
// the client's Last-Event-ID.
func (s *stream) send(id int64, typ EventType, data any) error {
	body, err := json.Marshal(Event{Type: typ, Data: data, Timestamp: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if id > 0 {
		if _, err := fmt.Fprintf(s.w, "id: %d\n", id); err != nil {
			return fmt.Errorf("write event id: %w", err)
		}
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", body); err != nil {
		return fmt.Errorf("write event data: %w", err)
	}
	s.flusher.Flush()
	return nil
}
