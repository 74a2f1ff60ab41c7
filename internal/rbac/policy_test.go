package rbac

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitdb/sitdb/internal/platform/httpx"
	"github.com/sitdb/sitdb/internal/shared"
)

func TestPolicyDecisions(t *testing.T) {
	engine, err := NewEngine(context.Background())
	require.NoError(t, err)

	citizen := shared.Principal{ID: "u-citizen", Role: shared.RoleMasyarakat}
	volunteer := shared.Principal{ID: "u-volunteer", Role: shared.RoleRelawan}
	admin := shared.Principal{ID: "u-admin", Role: shared.RoleAdmin}

	cases := []struct {
		name    string
		action  string
		p       shared.Principal
		owner   string
		allowed bool
	}{
		{"owner edits own report", ActionReportUpdate, citizen, citizen.ID, true},
		{"stranger edits report", ActionReportUpdate, volunteer, citizen.ID, false},
		{"admin edits any report", ActionReportUpdate, admin, citizen.ID, true},
		{"citizen deletes report", ActionReportDelete, citizen, citizen.ID, false},
		{"admin deletes report", ActionReportDelete, admin, citizen.ID, true},
		{"citizen updates status", ActionReportStatus, citizen, citizen.ID, false},
		{"volunteer updates status", ActionReportStatus, volunteer, citizen.ID, true},
		{"admin updates status", ActionReportStatus, admin, "", true},
		{"citizen creates report", ActionReportCreate, citizen, "", true},
		{"volunteer lists users", ActionUserList, volunteer, "", false},
		{"admin reads stats", ActionStatsRead, admin, "", true},
		{"empty owner never matches", ActionMediaDelete, shared.Principal{ID: "", Role: shared.RoleMasyarakat}, "", false},
		{"unknown action", "report.explode", admin, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := engine.Decide(context.Background(), tc.action, tc.p, tc.owner)
			require.NoError(t, err)
			assert.Equal(t, tc.allowed, d.Allow)
		})
	}
}

func TestAuthorizeReasons(t *testing.T) {
	engine, err := NewEngine(context.Background())
	require.NoError(t, err)
	citizen := shared.Principal{ID: "u1", Role: shared.RoleMasyarakat}

	err = engine.Authorize(context.Background(), ActionReportStatus, citizen, "")
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, httpx.StatusFor(err))
	assert.Equal(t, "Hanya relawan atau admin yang dapat memperbarui status", err.Error())

	err = engine.Authorize(context.Background(), ActionReportDelete, citizen, "u1")
	assert.Equal(t, "Hanya admin yang dapat menghapus laporan", err.Error())

	err = engine.Authorize(context.Background(), ActionReportUpdate, citizen, "someone-else")
	assert.Equal(t, "Tidak memiliki izin", err.Error())

	err = engine.Authorize(context.Background(), ActionReportRead, shared.Principal{}, "")
	assert.Equal(t, http.StatusUnauthorized, httpx.StatusFor(err))
}
