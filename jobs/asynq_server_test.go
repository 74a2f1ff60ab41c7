package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/sitdb/sitdb/internal/rbac"
	"github.com/sitdb/sitdb/internal/shared"
)

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func healthRequest(t *testing.T, inspector QueueInspector, p *shared.Principal) *httptest.ResponseRecorder {
	t.Helper()
	engine, err := rbac.NewEngine(context.Background())
	require.NoError(t, err)
	r := chi.NewRouter()
	NewHandler(inspector, engine, nil).MountRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	if p != nil {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), *p))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthReportsQueueCounters(t *testing.T) {
	admin := shared.Principal{ID: "admin", Role: shared.RoleAdmin}
	rec := healthRequest(t, fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Retry: 1, Processed: 30}}, &admin)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool        `json:"success"`
		Data    QueueHealth `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Equal(t, QueueHealth{Queue: QueueDefault, Pending: 4, Retry: 1, Processed: 30}, body.Data)
}

func TestHealthTreatsMissingQueueAsEmpty(t *testing.T) {
	admin := shared.Principal{ID: "admin", Role: shared.RoleAdmin}
	rec := healthRequest(t, fakeInspector{err: asynq.ErrQueueNotFound}, &admin)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"pending":0`)
}

func TestHealthUnavailableWhenRedisFails(t *testing.T) {
	admin := shared.Principal{ID: "admin", Role: shared.RoleAdmin}
	rec := healthRequest(t, fakeInspector{err: errors.New("dial tcp: refused")}, &admin)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthRequiresAdmin(t *testing.T) {
	relawan := shared.Principal{ID: "relawan", Role: shared.RoleRelawan}
	require.Equal(t, http.StatusForbidden, healthRequest(t, fakeInspector{}, &relawan).Code)
	require.Equal(t, http.StatusUnauthorized, healthRequest(t, fakeInspector{}, nil).Code)
}
