package agent

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

const (
	defaultRecentActions = 50
	// minPatternRuns is how many recorded runs of a tool it takes before a
	// pattern is reported at all.
	minPatternRuns = 3
)

// ActionLister reads a user's learning records, newest first.
type ActionLister interface {
	ListRecentActions(ctx context.Context, userID string, limit int) ([]domain.RecentAction, error)
}

// ContextLoader fills the history-derived parts of an ExecutionContext.
type ContextLoader struct {
	actions ActionLister
	limit   int
	logger  *zap.Logger
}

func NewContextLoader(actions ActionLister, limit int, logger *zap.Logger) *ContextLoader {
	if limit <= 0 {
		limit = defaultRecentActions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextLoader{actions: actions, limit: limit, logger: logger}
}

// Load returns ec with recent actions and learned patterns attached. A store
// failure leaves the context without history.
func (l *ContextLoader) Load(ctx context.Context, ec domain.ExecutionContext) domain.ExecutionContext {
	if l.actions == nil || ec.UserID == "" {
		return ec
	}
	actions, err := l.actions.ListRecentActions(ctx, ec.UserID, l.limit)
	if err != nil {
		l.logger.Warn("failed to load recent actions", zap.String("user_id", ec.UserID), zap.Error(err))
		return ec
	}
	ec.RecentActions = actions
	ec.LearnedPatterns = LearnPatterns(actions)
	return ec
}

// LearnPatterns summarises per-tool outcomes. A tool that ran successfully at
// least minPatternRuns times without a single failure is marked auto-approve.
func LearnPatterns(actions []domain.RecentAction) []domain.LearnedPattern {
	type tally struct{ ok, failed int }
	counts := make(map[string]*tally)
	for _, a := range actions {
		if a.Action == "" {
			continue
		}
		t := counts[a.Action]
		if t == nil {
			t = &tally{}
			counts[a.Action] = t
		}
		switch a.Status {
		case domain.ActionStatusSucceeded:
			t.ok++
		case domain.ActionStatusFailed:
			t.failed++
		}
	}

	var out []domain.LearnedPattern
	for tool, t := range counts {
		runs := t.ok + t.failed
		if runs < minPatternRuns {
			continue
		}
		p := domain.LearnedPattern{
			ToolName:    tool,
			Confidence:  float64(t.ok) / float64(runs),
			Occurrences: runs,
			AutoApprove: t.failed == 0,
		}
		if p.AutoApprove {
			p.Pattern = "Routinely approves " + tool
		} else {
			p.Pattern = "Uses " + tool + " with mixed results"
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		return out[i].ToolName < out[j].ToolName
	})
	return out
}
