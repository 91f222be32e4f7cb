package cli

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

type toolInfo struct {
	Name             string                  `json:"name"`
	Description      string                  `json:"description"`
	Domain           domain.AgentType        `json:"domain"`
	ApprovalCategory domain.ApprovalCategory `json:"approval_category"`
}

// NewToolsCmd lists the tool catalog.
func NewToolsCmd(cfg *Config) *cobra.Command {
	var agentDomain string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List registered tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cfg.client()
			if err != nil {
				return err
			}
			path := "/v1/tools"
			if agentDomain != "" {
				path += "?domain=" + url.QueryEscape(agentDomain)
			}
			var resp struct {
				Tools []toolInfo `json:"tools"`
			}
			if err := c.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			if cfg.JSON {
				return printJSON(cmd.OutOrStdout(), resp.Tools)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "NAME\tDOMAIN\tAPPROVAL\tDESCRIPTION")
			for _, t := range resp.Tools {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Name, t.Domain, t.ApprovalCategory, t.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&agentDomain, "domain", "", "Only tools of this agent domain")
	return cmd
}

// NewWorkflowsCmd groups the workflow subcommands.
func NewWorkflowsCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "List and run workflows",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cfg.client()
			if err != nil {
				return err
			}
			var resp struct {
				Workflows []domain.WorkflowDefinition `json:"workflows"`
			}
			if err := c.Get(cmd.Context(), "/v1/workflows", &resp); err != nil {
				return err
			}
			if cfg.JSON {
				return printJSON(cmd.OutOrStdout(), resp.Workflows)
			}
			for _, wf := range resp.Workflows {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s (%d steps)\n", wf.ID, wf.Name, len(wf.Steps))
			}
			return nil
		},
	})
	cmd.AddCommand(newWorkflowRunCmd(cfg))
	return cmd
}

func newWorkflowRunCmd(cfg *Config) *cobra.Command {
	var params []string
	var sessionID string
	cmd := &cobra.Command{
		Use:   "run <workflow-id>",
		Short: "Run a workflow directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := parseParams(params)
			if err != nil {
				return err
			}
			c, err := cfg.client()
			if err != nil {
				return err
			}
			var res domain.WorkflowResult
			err = c.Post(cmd.Context(), "/v1/workflows/"+url.PathEscape(args[0])+"/run", map[string]any{
				"user_id":    cfg.UserID,
				"session_id": sessionID,
				"parameters": parameters,
			}, &res)
			if err != nil {
				return err
			}
			if cfg.JSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			printRouting(cmd.OutOrStdout(), &domain.RoutingResult{WorkflowResult: &res})
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Workflow parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&sessionID, "session", "", "Conversation session id")
	return cmd
}

// parseParams turns key=value pairs into workflow parameters. Numbers and
// booleans keep their type.
func parseParams(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", p)
		}
		key = strings.TrimSpace(key)
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			out[key] = n
		} else if f, err := strconv.ParseFloat(value, 64); err == nil {
			out[key] = f
		} else if b, err := strconv.ParseBool(value); err == nil {
			out[key] = b
		} else {
			out[key] = value
		}
	}
	return out, nil
}
