package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sitdb/sitdb/internal/mirror"
	"github.com/sitdb/sitdb/internal/realtime"
	"github.com/sitdb/sitdb/internal/shared"
)

type loggedEvent struct {
	seq      int64
	typ      realtime.EventType
	reportID string
	payload  json.RawMessage
}

type queuedMirror struct {
	id       int64
	op       mirror.Op
	reportID string
}

// memState is the in-memory equivalent of the report tables.
type memState struct {
	users   map[string]shared.Principal
	reports map[string]Report
	history []StatusEntry
	media   map[string]Media
	audits  []shared.AuditLog
	events  []loggedEvent
	outbox  []queuedMirror
	clock   time.Time
	nextID  int
}

func (s *memState) clone() *memState {
	out := *s
	out.reports = make(map[string]Report, len(s.reports))
	for k, v := range s.reports {
		out.reports[k] = v
	}
	out.media = make(map[string]Media, len(s.media))
	for k, v := range s.media {
		out.media[k] = v
	}
	out.history = append([]StatusEntry(nil), s.history...)
	out.audits = append([]shared.AuditLog(nil), s.audits...)
	out.events = append([]loggedEvent(nil), s.events...)
	out.outbox = append([]queuedMirror(nil), s.outbox...)
	return &out
}

func (s *memState) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memState) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%04d", prefix, s.nextID)
}

func (s *memState) withOwner(r Report) Report {
	u := s.users[r.UserID]
	r.User = &Owner{ID: u.ID, Name: u.Name, Email: u.Email}
	return r
}

type memStore struct {
	mu    sync.Mutex
	state *memState
}

func newMemStore(users ...shared.Principal) *memStore {
	state := &memState{
		users:   map[string]shared.Principal{},
		reports: map[string]Report{},
		media:   map[string]Media{},
		clock:   time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	for _, u := range users {
		state.users[u.ID] = u
	}
	return &memStore{state: state}
}

func (m *memStore) snapshot() *memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *memStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	staged := m.state.clone()
	if err := fn(ctx, &memTx{s: staged}); err != nil {
		return err
	}
	m.state = staged
	return nil
}

func (m *memStore) filtered(filter ListFilter) []Report {
	var out []Report
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	for _, r := range m.state.reports {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Type != "" && r.Type != filter.Type {
			continue
		}
		if filter.Severity != "" && r.Severity != filter.Severity {
			continue
		}
		if search != "" {
			address := ""
			if r.Address != nil {
				address = *r.Address
			}
			hay := strings.ToLower(r.Title + "\x00" + r.Description + "\x00" + address)
			if !strings.Contains(hay, search) {
				continue
			}
		}
		out = append(out, m.state.withOwner(r))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if filter.SortOrder == "asc" {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

func (m *memStore) List(_ context.Context, filter ListFilter) ([]Report, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.filtered(filter)
	start := filter.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + filter.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (m *memStore) Markers(_ context.Context, filter ListFilter, limit int) ([]Marker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Marker
	for _, r := range m.filtered(filter) {
		if len(out) == limit {
			break
		}
		out = append(out, Marker{ID: r.ID, Latitude: r.Latitude, Longitude: r.Longitude, Type: r.Type,
			Severity: r.Severity, Status: r.Status, Title: r.Title})
	}
	return out, nil
}

func (m *memStore) Detail(_ context.Context, id string) (*Detail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.state.reports[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	d := &Detail{Report: m.state.withOwner(r), StatusHistory: []StatusEntry{}, Media: []Media{}}
	for _, e := range m.state.history {
		if e.ReportID == id {
			d.StatusHistory = append(d.StatusHistory, e)
		}
	}
	sort.SliceStable(d.StatusHistory, func(i, j int) bool {
		return d.StatusHistory[i].CreatedAt.After(d.StatusHistory[j].CreatedAt)
	})
	for _, md := range m.state.media {
		if md.ReportID == id {
			d.Media = append(d.Media, md)
		}
	}
	return d, nil
}

type memTx struct {
	s *memState
}

func (t *memTx) Insert(_ context.Context, r Report) (*Report, error) {
	r.ID = t.s.id("report")
	r.CreatedAt = t.s.tick()
	r.UpdatedAt = r.CreatedAt
	t.s.reports[r.ID] = r
	out := t.s.withOwner(r)
	return &out, nil
}

func (t *memTx) GetForUpdate(_ context.Context, id string) (*Report, error) {
	r, ok := t.s.reports[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	out := t.s.withOwner(r)
	return &out, nil
}

func (t *memTx) Update(_ context.Context, id string, in UpdateInput) (*Report, error) {
	r := t.s.reports[id]
	if in.Type != nil {
		r.Type = *in.Type
	}
	if in.Title != nil {
		r.Title = *in.Title
	}
	if in.Description != nil {
		r.Description = *in.Description
	}
	if in.Latitude != nil {
		r.Latitude = *in.Latitude
	}
	if in.Longitude != nil {
		r.Longitude = *in.Longitude
	}
	if in.Address != nil {
		r.Address = in.Address
	}
	if in.Severity != nil {
		r.Severity = *in.Severity
	}
	r.UpdatedAt = t.s.tick()
	t.s.reports[id] = r
	out := t.s.withOwner(r)
	return &out, nil
}

func (t *memTx) SetStatus(_ context.Context, id string, status Status) (*Report, error) {
	r := t.s.reports[id]
	r.Status = status
	r.UpdatedAt = t.s.tick()
	t.s.reports[id] = r
	out := t.s.withOwner(r)
	return &out, nil
}

func (t *memTx) Delete(_ context.Context, id string) error {
	if _, ok := t.s.reports[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.s.reports, id)
	kept := t.s.history[:0]
	for _, e := range t.s.history {
		if e.ReportID != id {
			kept = append(kept, e)
		}
	}
	t.s.history = kept
	for mid, md := range t.s.media {
		if md.ReportID == id {
			delete(t.s.media, mid)
		}
	}
	return nil
}

func (t *memTx) AppendHistory(_ context.Context, e StatusEntry) (*StatusEntry, error) {
	e.ID = t.s.id("status")
	e.CreatedAt = t.s.tick()
	u := t.s.users[e.UserID]
	e.User = &Actor{ID: u.ID, Name: u.Name, Role: string(u.Role)}
	t.s.history = append(t.s.history, e)
	return &e, nil
}

func (t *memTx) InsertMedia(_ context.Context, md Media) (*Media, error) {
	md.ID = t.s.id("media")
	md.CreatedAt = t.s.tick()
	t.s.media[md.ID] = md
	return &md, nil
}

func (t *memTx) GetMediaForUpdate(_ context.Context, id string) (*Media, string, error) {
	md, ok := t.s.media[id]
	if !ok {
		return nil, "", shared.ErrNotFound
	}
	return &md, t.s.reports[md.ReportID].UserID, nil
}

func (t *memTx) DeleteMedia(_ context.Context, id string) error {
	delete(t.s.media, id)
	return nil
}

func (t *memTx) RecordAudit(_ context.Context, entry shared.AuditLog) error {
	t.s.audits = append(t.s.audits, entry)
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, typ realtime.EventType, reportID string, payload any) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	seq := int64(len(t.s.events) + 1)
	t.s.events = append(t.s.events, loggedEvent{seq: seq, typ: typ, reportID: reportID, payload: body})
	return seq, nil
}

func (t *memTx) EnqueueMirror(_ context.Context, op mirror.Op, reportID string, payload any) (int64, error) {
	if _, err := json.Marshal(payload); err != nil {
		return 0, err
	}
	id := int64(len(t.s.outbox) + 1)
	t.s.outbox = append(t.s.outbox, queuedMirror{id: id, op: op, reportID: reportID})
	return id, nil
}

var (
	_ Store        = (*memStore)(nil)
	_ TxRepository = (*memTx)(nil)
)
