package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

const approvalColumns = `id, user_id, session_id, agent_type, tool_name, tool_input, category, proposed_action, reasoning, impact,
	is_reversible, status, expires_at, created_at, decided_at, decided_by, feedback, consumed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// CreateApproval creates a new approval.
func (s *Store) CreateApproval(ctx context.Context, ap *domain.ApprovalRequest) error {
	_, err := s.exec(ctx,
		`INSERT INTO approvals (`+approvalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ap.ID, ap.UserID, nullString(ap.SessionID), string(ap.AgentType), ap.ToolName, nullStringBytes(ap.ToolInput),
		string(ap.Category), ap.ProposedAction, nullString(ap.Reasoning), nullString(ap.Impact), ap.IsReversible,
		string(ap.Status), ap.ExpiresAt.UTC(), ap.CreatedAt.UTC(), nullTime(ap.DecidedAt), nullString(ap.DecidedBy),
		nullString(ap.Feedback), nullTime(ap.ConsumedAt))
	return err
}

// GetApproval retrieves an approval by ID. A missing approval is (nil, nil).
func (s *Store) GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	row := s.queryRow(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id = ?`, id)
	ap, err := scanApproval(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ap, nil
}

// ListPendingApprovals lists a user's pending approvals, oldest first.
func (s *Store) ListPendingApprovals(ctx context.Context, userID string) ([]domain.ApprovalRequest, error) {
	return s.listApprovals(ctx,
		`SELECT `+approvalColumns+` FROM approvals WHERE user_id = ? AND status = ? ORDER BY created_at ASC`,
		userID, string(domain.ApprovalStatusPending))
}

// ListExpiredPendingApprovals lists pending approvals whose window closed before now.
func (s *Store) ListExpiredPendingApprovals(ctx context.Context, now time.Time, limit int) ([]domain.ApprovalRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.listApprovals(ctx,
		`SELECT `+approvalColumns+` FROM approvals WHERE status = ? AND expires_at <= ? ORDER BY expires_at ASC LIMIT ?`,
		string(domain.ApprovalStatusPending), now.UTC(), limit)
}

// DecideApproval moves a pending, unexpired approval to status. It reports
// false when the approval was not pending or already past its window.
func (s *Store) DecideApproval(ctx context.Context, id string, status domain.ApprovalStatus, decidedBy, feedback string, at time.Time) (bool, error) {
	return affected(s.exec(ctx,
		`UPDATE approvals SET status = ?, decided_at = ?, decided_by = ?, feedback = ? WHERE id = ? AND status = ? AND expires_at > ?`,
		string(status), at.UTC(), nullString(decidedBy), nullString(feedback), id, string(domain.ApprovalStatusPending), at.UTC()))
}

// ExpireApprovalIfPending marks a pending approval EXPIRED.
func (s *Store) ExpireApprovalIfPending(ctx context.Context, id string, at time.Time) (bool, error) {
	return affected(s.exec(ctx,
		`UPDATE approvals SET status = ?, decided_at = ? WHERE id = ? AND status = ?`,
		string(domain.ApprovalStatusExpired), at.UTC(), id, string(domain.ApprovalStatusPending)))
}

// ConsumeApproval claims an approved request for execution. Only the first
// claim succeeds.
func (s *Store) ConsumeApproval(ctx context.Context, id string, at time.Time) (bool, error) {
	return affected(s.exec(ctx,
		`UPDATE approvals SET consumed_at = ? WHERE id = ? AND status = ? AND consumed_at IS NULL`,
		at.UTC(), id, string(domain.ApprovalStatusApproved)))
}

func (s *Store) listApprovals(ctx context.Context, query string, args ...interface{}) ([]domain.ApprovalRequest, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ApprovalRequest
	for rows.Next() {
		ap, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ap)
	}
	return out, rows.Err()
}

func scanApproval(row rowScanner) (*domain.ApprovalRequest, error) {
	var ap domain.ApprovalRequest
	var sessionID, toolInput, reasoning, impact, decidedBy, feedback sql.NullString
	var agentType, category, status string
	var decidedAt, consumedAt sql.NullTime
	err := row.Scan(&ap.ID, &ap.UserID, &sessionID, &agentType, &ap.ToolName, &toolInput, &category,
		&ap.ProposedAction, &reasoning, &impact, &ap.IsReversible, &status, &ap.ExpiresAt, &ap.CreatedAt,
		&decidedAt, &decidedBy, &feedback, &consumedAt)
	if err != nil {
		return nil, err
	}
	ap.SessionID = sessionID.String
	ap.AgentType = domain.AgentType(agentType)
	ap.Category = domain.ApprovalCategory(category)
	ap.Status = domain.ApprovalStatus(status)
	ap.Reasoning = reasoning.String
	ap.Impact = impact.String
	ap.DecidedBy = decidedBy.String
	ap.Feedback = feedback.String
	if toolInput.Valid {
		ap.ToolInput = json.RawMessage(toolInput.String)
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		ap.DecidedAt = &t
	}
	if consumedAt.Valid {
		t := consumedAt.Time
		ap.ConsumedAt = &t
	}
	return &ap, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
