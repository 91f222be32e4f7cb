package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cas-pilex/edithAI-sub000/internal/adapter/backend"
	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

func TestRegisterDomainTools(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterDomainTools(r, backend.NewMockBackend()))

	for _, d := range domain.DomainAgents {
		assert.NotEmpty(t, r.GetForDomain(d), d)
	}
	assert.Equal(t, domain.ApprovalRequestApproval, r.GetApprovalCategory("inbox.send_email"))
	assert.Equal(t, domain.ApprovalAlwaysAsk, r.GetApprovalCategory("calendar.cancel_event"))
	assert.Equal(t, domain.ApprovalAlwaysAsk, r.GetApprovalCategory("travel.book_flight"))
	assert.Equal(t, domain.ApprovalAutoApprove, r.GetApprovalCategory("tasks.create"))

	// a second pass collides on every name
	err := RegisterDomainTools(r, backend.NewMockBackend())
	assert.True(t, domain.IsConfigError(err))
}

func TestBackendHandlerSurfacesConfirmation(t *testing.T) {
	mock := backend.NewMockBackend()
	r := NewRegistry()
	require.NoError(t, RegisterDomainTools(r, mock))
	ctx := context.Background()
	input := json.RawMessage(`{"city":"Lisbon","check_in":"2026-11-02","nights":2}`)

	res := r.Execute(ctx, "travel.book_hotel", input, domain.ExecutionContext{UserID: "u1"})
	require.True(t, res.Success)
	assert.True(t, res.RequiresApproval)
	require.NotNil(t, res.ApprovalDetails)
	assert.False(t, res.ApprovalDetails.IsReversible)

	res = r.Execute(ctx, "travel.book_hotel", input, domain.ExecutionContext{UserID: "u1", ApprovalID: "ap_1"})
	require.True(t, res.Success)
	assert.False(t, res.RequiresApproval)

	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "ap_1", calls[1].ApprovalID)
	assert.Equal(t, "u1", calls[1].UserID)
}

func TestBackendHandlerErrors(t *testing.T) {
	mock := backend.NewMockBackend()
	mock.On(domain.AgentInbox, "search", func(ctx context.Context, req backend.Request) (*backend.Response, error) {
		return &backend.Response{Error: "mailbox locked"}, nil
	})
	r := NewRegistry()
	require.NoError(t, RegisterDomainTools(r, mock))

	res := r.Execute(context.Background(), "inbox.search", json.RawMessage(`{"query":"x"}`), domain.ExecutionContext{})
	assert.False(t, res.Success)
	assert.Equal(t, "mailbox locked", res.Error)
}
