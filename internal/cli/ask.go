package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

type askRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	Message   string `json:"message"`
}

// NewAskCmd sends one free-text request through the orchestrator.
func NewAskCmd(cfg *Config) *cobra.Command {
	var sessionID, timezone string
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send a request to the assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cfg.client()
			if err != nil {
				return err
			}
			var res domain.RoutingResult
			err = c.Post(cmd.Context(), "/v1/requests", askRequest{
				UserID:    cfg.UserID,
				SessionID: sessionID,
				Timezone:  timezone,
				Message:   strings.Join(args, " "),
			}, &res)
			if err != nil {
				return err
			}
			if cfg.JSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			printRouting(cmd.OutOrStdout(), &res)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Conversation session id")
	cmd.Flags().StringVar(&timezone, "tz", "", "IANA timezone of the user")
	return cmd
}

func printRouting(w io.Writer, res *domain.RoutingResult) {
	if res.Error != "" {
		_, _ = fmt.Fprintf(w, "error: %s\n", res.Error)
		return
	}
	if res.Clarification != "" {
		_, _ = fmt.Fprintln(w, res.Clarification)
		return
	}
	if wf := res.WorkflowResult; wf != nil {
		_, _ = fmt.Fprintf(w, "workflow %s: %s (%d completed, %d failed)\n", wf.WorkflowID, wf.Status, wf.CompletedSteps, wf.FailedSteps)
		for _, s := range wf.Steps {
			line := s.Message
			if s.Error != "" {
				line = s.Error
			}
			_, _ = fmt.Fprintf(w, "  - %s [%s] %s\n", s.StepID, s.Status, line)
		}
		if wf.ApprovalID != "" {
			_, _ = fmt.Fprintf(w, "paused at %s, approval %s\n", wf.PausedAtStep, wf.ApprovalID)
		}
		return
	}
	if ar := res.AgentResult; ar != nil {
		if ar.Message != "" {
			_, _ = fmt.Fprintf(w, "[%s] %s\n", res.TargetAgent, ar.Message)
		}
		if ar.Error != "" {
			_, _ = fmt.Fprintf(w, "[%s] error: %s\n", res.TargetAgent, ar.Error)
		}
		if ar.RequiresApproval {
			_, _ = fmt.Fprintf(w, "approval pending: %s\n", ar.ApprovalID)
		}
	}
	for _, s := range res.SecondaryResults {
		switch {
		case s.Error != "":
			_, _ = fmt.Fprintf(w, "[%s] error: %s\n", s.Agent, s.Error)
		case s.Result != nil && s.Result.Message != "":
			_, _ = fmt.Fprintf(w, "[%s] %s\n", s.Agent, s.Result.Message)
		}
	}
}
