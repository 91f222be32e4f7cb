package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func pendingApproval(id, user string, expires time.Time) *domain.ApprovalRequest {
	return &domain.ApprovalRequest{
		ID:             id,
		UserID:         user,
		SessionID:      "s1",
		AgentType:      domain.AgentInbox,
		ToolName:       "inbox.send_email",
		ToolInput:      json.RawMessage(`{"to":["a@example.com"]}`),
		Category:       domain.ApprovalRequestApproval,
		ProposedAction: "Send email",
		IsReversible:   false,
		Status:         domain.ApprovalStatusPending,
		ExpiresAt:      expires,
		CreatedAt:      time.Now(),
	}
}

func TestApprovalLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()

	require.NoError(t, store.CreateApproval(ctx, pendingApproval("ap_1", "u1", now.Add(time.Hour))))

	got, err := store.GetApproval(ctx, "ap_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.ApprovalStatusPending, got.Status)
	assert.JSONEq(t, `{"to":["a@example.com"]}`, string(got.ToolInput))
	assert.Equal(t, "s1", got.SessionID)
	assert.Nil(t, got.DecidedAt)
	assert.WithinDuration(t, now.Add(time.Hour), got.ExpiresAt, time.Second)

	missing, err := store.GetApproval(ctx, "ap_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// consuming before approval does nothing
	ok, err := store.ConsumeApproval(ctx, "ap_1", now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.DecideApproval(ctx, "ap_1", domain.ApprovalStatusApproved, "u1", "go ahead", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.DecideApproval(ctx, "ap_1", domain.ApprovalStatusRejected, "u1", "", now)
	require.NoError(t, err)
	assert.False(t, ok, "second decision must not apply")

	ok, err = store.ConsumeApproval(ctx, "ap_1", now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.ConsumeApproval(ctx, "ap_1", now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = store.GetApproval(ctx, "ap_1")
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusApproved, got.Status)
	assert.Equal(t, "go ahead", got.Feedback)
	require.NotNil(t, got.DecidedAt)
	require.NotNil(t, got.ConsumedAt)
}

func TestDecideRefusesExpiredWindow(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()
	require.NoError(t, store.CreateApproval(ctx, pendingApproval("ap_old", "u1", now.Add(-time.Minute))))

	ok, err := store.DecideApproval(ctx, "ap_old", domain.ApprovalStatusApproved, "u1", "", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpiredPendingSweepQueries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()
	require.NoError(t, store.CreateApproval(ctx, pendingApproval("ap_old", "u1", now.Add(-time.Minute))))
	require.NoError(t, store.CreateApproval(ctx, pendingApproval("ap_new", "u1", now.Add(time.Hour))))

	expired, err := store.ListExpiredPendingApprovals(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "ap_old", expired[0].ID)

	ok, err := store.ExpireApprovalIfPending(ctx, "ap_old", now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.ExpireApprovalIfPending(ctx, "ap_old", now)
	require.NoError(t, err)
	assert.False(t, ok)

	pending, err := store.ListPendingApprovals(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ap_new", pending[0].ID)
}

func TestActionsEventsMessages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Now().Add(-time.Hour)

	for i, action := range []string{"tasks.create", "tasks.complete"} {
		require.NoError(t, store.CreateAction(ctx, &domain.RecentAction{
			ID:         action,
			UserID:     "u1",
			AgentType:  domain.AgentTasks,
			Action:     action,
			Summary:    "did " + action,
			Input:      json.RawMessage(`{}`),
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			Status:     domain.ActionStatusSucceeded,
			Confidence: 1,
		}))
	}
	actions, err := store.ListRecentActions(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "tasks.complete", actions[0].Action)
	assert.Nil(t, actions[0].Output)

	require.NoError(t, store.CreateEvent(ctx, &domain.Event{
		ID:        "ev1",
		UserID:    "u1",
		AgentType: domain.AgentTasks,
		Type:      domain.EventTypeAgentRunCompleted,
		Timestamp: base,
		Payload:   json.RawMessage(`{"success":true}`),
	}))
	events, err := store.ListEvents(ctx, "u1", base.Add(-time.Second), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTypeAgentRunCompleted, events[0].Type)

	for i, content := range []string{"one", "two", "three"} {
		require.NoError(t, store.CreateMessage(ctx, &domain.Message{
			ID:        content,
			SessionID: "s1",
			UserID:    "u1",
			Role:      "user",
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	msgs, err := store.GetMessages(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content)
	assert.Equal(t, "three", msgs[1].Content)
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: dialects["pgx"]}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &Store{dialect: dialects["sqlite3"]}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))

	_, err := NewStore("oracle", "")
	assert.Error(t, err)
}
