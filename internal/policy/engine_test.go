package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

func TestDefaultPolicyDecisions(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		name string
		in   Input
		want Decision
	}{
		{
			name: "plain auto tool inherits",
			in:   Input{ToolName: "tasks.create", Category: domain.ApprovalAutoApprove},
			want: DecisionInherit,
		},
		{
			name: "blocked tool",
			in:   Input{ToolName: "inbox.send_email", Category: domain.ApprovalRequestApproval, BlockedTools: []string{"inbox.send_email"}},
			want: DecisionBlock,
		},
		{
			name: "always ask wins over trust",
			in:   Input{ToolName: "travel.book_flight", Category: domain.ApprovalAlwaysAsk, TrustedTools: []string{"travel.book_flight"}},
			want: DecisionAlwaysAsk,
		},
		{
			name: "spend threshold exceeded",
			in:   Input{ToolName: "travel.book_hotel", Category: domain.ApprovalAutoApprove, Args: json.RawMessage(`{"amount":900}`), SpendThreshold: 500},
			want: DecisionRequireApproval,
		},
		{
			name: "spend under threshold",
			in:   Input{ToolName: "travel.book_hotel", Category: domain.ApprovalAutoApprove, Args: json.RawMessage(`{"amount":100}`), SpendThreshold: 500},
			want: DecisionInherit,
		},
		{
			name: "threshold disabled",
			in:   Input{ToolName: "travel.book_hotel", Category: domain.ApprovalAutoApprove, Args: json.RawMessage(`{"amount":9000}`)},
			want: DecisionInherit,
		},
		{
			name: "trusted request tool",
			in:   Input{ToolName: "tasks.delete", Category: domain.ApprovalRequestApproval, TrustedTools: []string{"tasks.delete"}},
			want: DecisionAutoApprove,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.Resolve(ctx, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Decision)
			if tt.want != DecisionInherit {
				assert.NotEmpty(t, res.Reason)
			}
		})
	}
}

func TestResolveRejectsBadArgs(t *testing.T) {
	engine, err := NewEngine(context.Background(), DefaultPolicy)
	require.NoError(t, err)
	_, err = engine.Resolve(context.Background(), Input{ToolName: "x", Args: json.RawMessage(`{`)})
	assert.Error(t, err)
}

func TestNewEngineFromFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "policy.rego")
	custom := `
package approval_policy

result := {"decision": "always_ask", "reason": "lockdown"} if {
	input.domain == "inbox"
}
`
	require.NoError(t, os.WriteFile(path, []byte(custom), 0o600))

	engine, err := NewEngineFromFile(ctx, path)
	require.NoError(t, err)

	res, err := engine.Resolve(ctx, Input{ToolName: "inbox.archive", Domain: domain.AgentInbox})
	require.NoError(t, err)
	assert.Equal(t, Result{Decision: DecisionAlwaysAsk, Reason: "lockdown"}, res)

	// undefined result falls back to inherit
	res, err = engine.Resolve(ctx, Input{ToolName: "crm.lookup_contact", Domain: domain.AgentCRM})
	require.NoError(t, err)
	assert.Equal(t, DecisionInherit, res.Decision)

	_, err = NewEngineFromFile(ctx, filepath.Join(t.TempDir(), "missing.rego"))
	assert.Error(t, err)
	_, err = NewEngine(ctx, "package broken\nx := {")
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	tests := []struct {
		base    domain.ApprovalCategory
		d       Decision
		want    domain.ApprovalCategory
		blocked bool
	}{
		{domain.ApprovalAutoApprove, DecisionInherit, domain.ApprovalAutoApprove, false},
		{"", DecisionInherit, domain.ApprovalAutoApprove, false},
		{domain.ApprovalAutoApprove, DecisionRequireApproval, domain.ApprovalRequestApproval, false},
		{domain.ApprovalAlwaysAsk, DecisionAutoApprove, domain.ApprovalAlwaysAsk, false},
		{domain.ApprovalAlwaysAsk, DecisionRequireApproval, domain.ApprovalAlwaysAsk, false},
		{domain.ApprovalRequestApproval, DecisionAutoApprove, domain.ApprovalAutoApprove, false},
		{domain.ApprovalAutoApprove, DecisionAlwaysAsk, domain.ApprovalAlwaysAsk, false},
		{domain.ApprovalRequestApproval, DecisionBlock, domain.ApprovalRequestApproval, true},
	}
	for _, tt := range tests {
		got, blocked := Apply(tt.base, tt.d)
		assert.Equal(t, tt.want, got, "%s/%s", tt.base, tt.d)
		assert.Equal(t, tt.blocked, blocked, "%s/%s", tt.base, tt.d)
	}
}

func TestInputFor(t *testing.T) {
	ec := domain.ExecutionContext{
		UserID: "u1",
		Domain: domain.AgentTravel,
		Preferences: domain.UserPreferences{
			SpendThreshold: 250,
			BlockedTools:   []string{"travel.book_flight"},
		},
		LearnedPatterns: []domain.LearnedPattern{{ToolName: "travel.book_hotel", AutoApprove: true}},
	}
	in := InputFor("travel.book_hotel", domain.ApprovalRequestApproval, json.RawMessage(`{}`), ec)
	assert.Equal(t, "u1", in.UserID)
	assert.Equal(t, domain.AgentTravel, in.Domain)
	assert.Equal(t, 250.0, in.SpendThreshold)
	assert.Equal(t, []string{"travel.book_hotel"}, in.TrustedTools)
	assert.Equal(t, []string{"travel.book_flight"}, in.BlockedTools)
}
