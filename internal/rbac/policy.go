package rbac

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/sitdb/sitdb/internal/platform/httpx"
	"github.com/sitdb/sitdb/internal/shared"
)

// Actions evaluated by the policy.
const (
	ActionReportCreate      = "report.create"
	ActionReportRead        = "report.read"
	ActionReportUpdate      = "report.update"
	ActionReportDelete      = "report.delete"
	ActionReportStatus      = "report.status"
	ActionMediaCreate       = "media.create"
	ActionMediaDelete       = "media.delete"
	ActionUserList          = "user.list"
	ActionUserUpdate        = "user.update"
	ActionStatsRead         = "stats.read"
	ActionJobsRead          = "jobs.read"
	ActionRealtimeSubscribe = "realtime.subscribe"
)

const decisionQuery = "data.sitdb.authz.decision"

//go:embed policy.rego
var policySource string

// Decision is the policy result for one action.
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason"`
}

// Authorizer decides whether a principal may perform an action on a resource
// owned by ownerID (empty when the resource has no owner).
type Authorizer interface {
	Authorize(ctx context.Context, action string, p shared.Principal, ownerID string) error
}

// Engine evaluates the embedded Rego policy.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine compiles the policy once.
func NewEngine(ctx context.Context) (*Engine, error) {
	prepared, err := rego.New(
		rego.Query(decisionQuery),
		rego.Module("policy.rego", policySource),
		rego.StrictBuiltinErrors(true),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("rbac: prepare policy: %w", err)
	}
	return &Engine{query: prepared}, nil
}

// Decide evaluates action for the principal.
func (e *Engine) Decide(ctx context.Context, action string, p shared.Principal, ownerID string) (Decision, error) {
	if e == nil {
		return Decision{}, errors.New("rbac: policy engine is nil")
	}
	input := map[string]any{
		"action": action,
		"subject": map[string]any{
			"id":   p.ID,
			"role": string(p.Role),
		},
		"resource": map[string]any{
			"ownerId": ownerID,
		},
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("rbac: eval: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{}, errors.New("rbac: empty policy result")
	}
	raw, err := json.Marshal(results[0].Expressions[0].Value)
	if err != nil {
		return Decision{}, err
	}
	var d Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		return Decision{}, err
	}
	return d, nil
}

// Authorize returns nil when allowed, a forbidden error carrying the policy
// reason when denied, or the evaluation error.
func (e *Engine) Authorize(ctx context.Context, action string, p shared.Principal, ownerID string) error {
	if p.ID == "" {
		return shared.ErrUnauthenticated
	}
	d, err := e.Decide(ctx, action, p, ownerID)
	if err != nil {
		return err
	}
	if !d.Allow {
		return httpx.NewError(httpx.ErrForbidden, d.Reason)
	}
	return nil
}

var _ Authorizer = (*Engine)(nil)
