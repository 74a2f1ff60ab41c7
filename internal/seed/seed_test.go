package seed

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sitdb/sitdb/internal/reports"
	"github.com/sitdb/sitdb/internal/shared"
)

type memStore struct {
	users   map[string]shared.Principal
	hashes  map[string]string
	reports map[string]bool
}

func newMemStore() *memStore {
	return &memStore{users: map[string]shared.Principal{}, hashes: map[string]string{}, reports: map[string]bool{}}
}

func (m *memStore) EnsureUser(_ context.Context, u UserFixture, hash string) (shared.Principal, bool, error) {
	if p, ok := m.users[u.Email]; ok {
		return p, false, nil
	}
	p := shared.Principal{ID: fmt.Sprintf("user-%d", len(m.users)+1), Email: u.Email, Name: u.Name, Role: u.Role, Status: u.Status}
	m.users[u.Email] = p
	m.hashes[u.Email] = hash
	return p, true, nil
}

func (m *memStore) ReportExists(_ context.Context, ownerID, title string) (bool, error) {
	return m.reports[ownerID+"/"+title], nil
}

type statusCall struct {
	actor  shared.Principal
	id     string
	status reports.Status
}

type fakeReports struct {
	store    *memStore
	created  []reports.CreateInput
	statuses []statusCall
}

func (f *fakeReports) Create(_ context.Context, actor shared.Principal, in reports.CreateInput, _ shared.RequestMeta) (*reports.Report, error) {
	f.created = append(f.created, in)
	f.store.reports[actor.ID+"/"+in.Title] = true
	return &reports.Report{ID: fmt.Sprintf("report-%d", len(f.created)), UserID: actor.ID, Title: in.Title, Status: reports.StatusPending}, nil
}

func (f *fakeReports) UpdateStatus(_ context.Context, actor shared.Principal, id string, in reports.StatusInput, _ shared.RequestMeta) (*reports.StatusResult, error) {
	f.statuses = append(f.statuses, statusCall{actor: actor, id: id, status: in.Status})
	return &reports.StatusResult{Report: &reports.Report{ID: id, Status: in.Status}}, nil
}

func newSeeder(store *memStore, rw *fakeReports) *Seeder {
	s := NewSeeder(store, rw)
	s.cost = bcrypt.MinCost
	return s
}

func TestDefaultFixturesParse(t *testing.T) {
	fx, err := Default()
	require.NoError(t, err)
	require.NotEmpty(t, fx.Users)
	require.NotEmpty(t, fx.Reports)
	for _, u := range fx.Users {
		assert.Equal(t, shared.UserActive, u.Status)
	}
}

func TestRunSeedsUsersReportsAndStatuses(t *testing.T) {
	fx, err := Default()
	require.NoError(t, err)
	store := newMemStore()
	rw := &fakeReports{store: store}

	res, err := newSeeder(store, rw).Run(context.Background(), fx)
	require.NoError(t, err)
	assert.Equal(t, Result{UsersCreated: 3, ReportsCreated: 3}, res)

	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(store.hashes["admin@sitdb.local"]), []byte("admin123")))
	require.Len(t, rw.statuses, 2)
	for _, call := range rw.statuses {
		assert.Equal(t, shared.RoleAdmin, call.actor.Role)
	}
	assert.Equal(t, reports.StatusInProgress, rw.statuses[0].status)
	assert.Equal(t, reports.StatusResolved, rw.statuses[1].status)
	require.NotNil(t, rw.created[0].Address)
	assert.InDelta(t, -6.2241, *rw.created[0].Latitude, 1e-9)
}

func TestRunIsIdempotent(t *testing.T) {
	fx, err := Default()
	require.NoError(t, err)
	store := newMemStore()
	rw := &fakeReports{store: store}
	seeder := newSeeder(store, rw)

	_, err = seeder.Run(context.Background(), fx)
	require.NoError(t, err)
	res, err := seeder.Run(context.Background(), fx)
	require.NoError(t, err)
	assert.Equal(t, Result{UsersExisting: 3, ReportsSkipped: 3}, res)
	assert.Len(t, rw.created, 3)
}

func TestStatusFixturesNeedReviewer(t *testing.T) {
	fx, err := Parse([]byte(`
users:
  - {email: warga@x.test, password: secret1, name: Warga, role: MASYARAKAT}
reports:
  - owner: warga@x.test
    title: Gempa kecil terasa
    description: Getaran terasa beberapa detik, belum ada kerusakan terlihat.
    type: GEMPA
    severity: RINGAN
    latitude: -7.8
    longitude: 110.3
    status: VERIFIED
`))
	require.NoError(t, err)
	store := newMemStore()
	_, err = newSeeder(store, &fakeReports{store: store}).Run(context.Background(), fx)
	require.ErrorContains(t, err, "ADMIN or RELAWAN")
}

func TestParseRejectsBadFixtures(t *testing.T) {
	cases := map[string]string{
		"unknown key":   "users:\n  - {email: a@x.test, password: p, name: A, role: ADMIN, nickname: a}\n",
		"unknown role":  "users:\n  - {email: a@x.test, password: p, name: A, role: ROOT}\n",
		"missing owner": "users: []\nreports:\n  - {owner: b@x.test, title: Banjir}\n",
		"bad status":    "users:\n  - {email: a@x.test, password: p, name: A, role: ADMIN}\nreports:\n  - {owner: a@x.test, title: Banjir, type: BANJIR, severity: BERAT, status: DONE}\n",
		"missing name":  "users:\n  - {email: a@x.test, password: p, role: ADMIN}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}
