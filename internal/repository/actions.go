package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

// CreateAction appends a learning record.
func (s *Store) CreateAction(ctx context.Context, a *domain.RecentAction) error {
	_, err := s.exec(ctx,
		`INSERT INTO actions (id, user_id, agent_type, action, summary, input, output, status, confidence, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, string(a.AgentType), a.Action, a.Summary, nullStringBytes(a.Input), nullStringBytes(a.Output),
		string(a.Status), a.Confidence, a.Timestamp.UTC())
	return err
}

// ListRecentActions returns a user's most recent actions, newest first.
func (s *Store) ListRecentActions(ctx context.Context, userID string, limit int) ([]domain.RecentAction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.query(ctx,
		`SELECT id, user_id, agent_type, action, summary, input, output, status, confidence, created_at
		FROM actions WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RecentAction
	for rows.Next() {
		var a domain.RecentAction
		var agentType, status string
		var input, output sql.NullString
		if err := rows.Scan(&a.ID, &a.UserID, &agentType, &a.Action, &a.Summary, &input, &output, &status, &a.Confidence, &a.Timestamp); err != nil {
			return nil, err
		}
		a.AgentType = domain.AgentType(agentType)
		a.Status = domain.ActionStatus(status)
		if input.Valid {
			a.Input = json.RawMessage(input.String)
		}
		if output.Valid {
			a.Output = json.RawMessage(output.String)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateEvent appends an audit event.
func (s *Store) CreateEvent(ctx context.Context, e *domain.Event) error {
	_, err := s.exec(ctx,
		`INSERT INTO events (id, user_id, session_id, agent_type, type, ts, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, nullString(e.SessionID), nullString(string(e.AgentType)), string(e.Type), e.Timestamp.UTC(), nullStringBytes(e.Payload))
	return err
}

// ListEvents returns a user's events after the given time, oldest first.
func (s *Store) ListEvents(ctx context.Context, userID string, after time.Time, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.query(ctx,
		`SELECT id, user_id, session_id, agent_type, type, ts, payload FROM events WHERE user_id = ? AND ts > ? ORDER BY ts ASC LIMIT ?`,
		userID, after.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		var sessionID, agentType, payload sql.NullString
		var typ string
		if err := rows.Scan(&e.ID, &e.UserID, &sessionID, &agentType, &typ, &e.Timestamp, &payload); err != nil {
			return nil, err
		}
		e.SessionID = sessionID.String
		e.AgentType = domain.AgentType(agentType.String)
		e.Type = domain.EventType(typ)
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreateMessage appends a conversation message.
func (s *Store) CreateMessage(ctx context.Context, m *domain.Message) error {
	_, err := s.exec(ctx,
		`INSERT INTO messages (id, session_id, user_id, agent_type, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.UserID, nullString(string(m.AgentType)), m.Role, m.Content, m.CreatedAt.UTC())
	return err
}

// GetMessages returns the last limit messages of a session in chronological order.
func (s *Store) GetMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.query(ctx,
		`SELECT id, session_id, user_id, agent_type, role, content, created_at FROM messages WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		var agentType sql.NullString
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &agentType, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.AgentType = domain.AgentType(agentType.String)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
