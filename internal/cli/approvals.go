package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

type resumeResponse struct {
	ApprovalID string            `json:"approval_id"`
	Result     domain.ToolResult `json:"result"`
}

// NewApprovalsCmd groups the approval subcommands.
func NewApprovalsCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "List, decide and resume approval requests",
	}
	cmd.AddCommand(newApprovalsListCmd(cfg))
	cmd.AddCommand(newApprovalsShowCmd(cfg))
	cmd.AddCommand(newDecideCmd(cfg, domain.DecisionApprove))
	cmd.AddCommand(newDecideCmd(cfg, domain.DecisionReject))
	cmd.AddCommand(newResumeCmd(cfg))
	return cmd
}

func newApprovalsListCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending approvals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cfg.client()
			if err != nil {
				return err
			}
			var resp struct {
				Approvals []domain.ApprovalRequest `json:"approvals"`
			}
			if err := c.Get(cmd.Context(), "/v1/approvals?user_id="+url.QueryEscape(cfg.UserID), &resp); err != nil {
				return err
			}
			if cfg.JSON {
				return printJSON(cmd.OutOrStdout(), resp.Approvals)
			}
			if len(resp.Approvals) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no pending approvals")
				return nil
			}
			return printApprovals(cmd.OutOrStdout(), resp.Approvals)
		},
	}
}

func printApprovals(w io.Writer, approvals []domain.ApprovalRequest) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tAGENT\tTOOL\tCATEGORY\tEXPIRES\tACTION")
	for _, ap := range approvals {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ap.ID, ap.AgentType, ap.ToolName, ap.Category, ap.ExpiresAt.Local().Format("2006-01-02 15:04"), ap.ProposedAction)
	}
	return tw.Flush()
}

func newApprovalsShowCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show <approval-id>",
		Short: "Show one approval request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cfg.client()
			if err != nil {
				return err
			}
			var ap domain.ApprovalRequest
			if err := c.Get(cmd.Context(), "/v1/approvals/"+url.PathEscape(args[0]), &ap); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ap)
		},
	}
}

func newDecideCmd(cfg *Config, decision domain.Decision) *cobra.Command {
	var feedback string
	var resume bool
	cmd := &cobra.Command{
		Use:   string(decision) + " <approval-id>",
		Short: "Record a " + string(decision) + " decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cfg.client()
			if err != nil {
				return err
			}
			id := args[0]
			var ap domain.ApprovalRequest
			err = c.Post(cmd.Context(), "/v1/approvals/"+url.PathEscape(id)+"/decide", map[string]string{
				"decision":   string(decision),
				"decided_by": cfg.UserID,
				"feedback":   feedback,
			}, &ap)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", ap.ID, ap.Status)
			if resume && ap.Status == domain.ApprovalStatusApproved {
				return resumeApproval(cmd, cfg, c, id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&feedback, "feedback", "", "Feedback recorded with the decision")
	if decision == domain.DecisionApprove {
		cmd.Flags().BoolVar(&resume, "resume", false, "Execute the call right after approving it")
	}
	return cmd
}

func newResumeCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <approval-id>",
		Short: "Execute an approved call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cfg.client()
			if err != nil {
				return err
			}
			return resumeApproval(cmd, cfg, c, args[0])
		},
	}
}

func resumeApproval(cmd *cobra.Command, cfg *Config, c *Client, id string) error {
	var resp resumeResponse
	if err := c.Post(cmd.Context(), "/v1/approvals/"+url.PathEscape(id)+"/resume", nil, &resp); err != nil {
		return err
	}
	if cfg.JSON {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	out := cmd.OutOrStdout()
	if !resp.Result.Success {
		_, _ = fmt.Fprintf(out, "%s failed: %s\n", id, resp.Result.Error)
		return nil
	}
	_, _ = fmt.Fprintf(out, "%s executed\n", id)
	if len(resp.Result.Data) > 0 {
		var pretty any
		if err := json.Unmarshal(resp.Result.Data, &pretty); err == nil {
			return printJSON(out, pretty)
		}
	}
	return nil
}
