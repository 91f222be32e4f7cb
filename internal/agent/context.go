package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cas-pilex/edithAI-sub000/internal/adapter/llm"
	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

const maxPromptActions = 5

// buildSystemPrompt appends the request context to the agent prompt.
func (c *Core) buildSystemPrompt(ec domain.ExecutionContext) string {
	var b strings.Builder
	b.WriteString(c.systemPrompt)
	b.WriteString("\n\n## Context\n")
	loc := ec.Location()
	fmt.Fprintf(&b, "- Current time: %s (%s)\n", c.now().In(loc).Format("Monday, 2006-01-02 15:04"), loc.String())
	if ec.UserID != "" {
		fmt.Fprintf(&b, "- User: %s\n", ec.UserID)
	}
	prefs := ec.Preferences
	if prefs.SpendThreshold > 0 {
		fmt.Fprintf(&b, "- Spend above %.2f needs the user's approval\n", prefs.SpendThreshold)
	}
	if prefs.Locale != "" {
		fmt.Fprintf(&b, "- Locale: %s\n", prefs.Locale)
	}
	if prefs.WorkingHours != "" {
		fmt.Fprintf(&b, "- Working hours: %s\n", prefs.WorkingHours)
	}

	if len(ec.RecentActions) > 0 {
		b.WriteString("\n## Recent actions\n")
		actions := ec.RecentActions
		if len(actions) > maxPromptActions {
			actions = actions[:maxPromptActions]
		}
		for _, a := range actions {
			fmt.Fprintf(&b, "- [%s] %s\n", a.Status, a.Summary)
		}
	}

	if len(ec.LearnedPatterns) > 0 {
		b.WriteString("\n## Learned preferences\n")
		for _, p := range ec.LearnedPatterns {
			fmt.Fprintf(&b, "- %s (confidence %.2f)\n", p.Pattern, p.Confidence)
		}
	}
	return b.String()
}

// loadHistory returns prior user/assistant turns of the session.
func (c *Core) loadHistory(ctx context.Context, sessionID string) []llm.Message {
	if c.deps.Store == nil || sessionID == "" {
		return nil
	}
	msgs, err := c.deps.Store.GetMessages(ctx, sessionID, c.cfg.HistoryLimit)
	if err != nil {
		c.logger.Warn("failed to load history", zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		role := llm.Role(m.Role)
		if role != llm.RoleUser && role != llm.RoleAssistant {
			continue
		}
		if m.Content == "" {
			continue
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}

func (c *Core) saveMessage(ctx context.Context, ec domain.ExecutionContext, role llm.Role, content string) {
	if c.deps.Store == nil || ec.SessionID == "" || content == "" {
		return
	}
	m := &domain.Message{
		ID:        "msg_" + uuid.NewString(),
		SessionID: ec.SessionID,
		UserID:    ec.UserID,
		AgentType: c.agentType,
		Role:      string(role),
		Content:   content,
		CreatedAt: c.now().UTC(),
	}
	if err := c.deps.Store.CreateMessage(ctx, m); err != nil {
		c.logger.Warn("failed to save message", zap.String("session_id", ec.SessionID), zap.Error(err))
	}
}
