package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

// Config holds CLI runtime configuration.
type Config struct {
	Server  string
	UserID  string
	Timeout time.Duration
	JSON    bool
}

func (c *Config) client() (*Client, error) {
	return NewClient(c.Server, c.Timeout)
}

// NewRootCmd builds the root command with shared flags. EDITH_SERVER and
// EDITH_USER provide flag defaults.
func NewRootCmd() *cobra.Command {
	cfg := &Config{}

	cmd := &cobra.Command{
		Use:           "edithctl",
		Short:         "Operator CLI for the assistant",
		Long:          "Send requests, decide approvals and watch notifications over the assistant HTTP API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&cfg.Server, "server", "s", envOr("EDITH_SERVER", defaultServer), "Assistant server base URL")
	cmd.PersistentFlags().StringVarP(&cfg.UserID, "user", "u", envOr("EDITH_USER", "demo"), "User to act as")
	cmd.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", 2*time.Minute, "HTTP request timeout")
	cmd.PersistentFlags().BoolVar(&cfg.JSON, "json", false, "Print raw JSON responses")

	cmd.AddCommand(NewHealthCmd(cfg))
	cmd.AddCommand(NewAskCmd(cfg))
	cmd.AddCommand(NewApprovalsCmd(cfg))
	cmd.AddCommand(NewToolsCmd(cfg))
	cmd.AddCommand(NewWorkflowsCmd(cfg))
	cmd.AddCommand(NewWatchCmd(cfg))
	cmd.AddCommand(NewBackendCmd())

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// NewHealthCmd creates the health check command.
func NewHealthCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cfg.client()
			if err != nil {
				return err
			}
			var resp healthResponse
			if err := c.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "status=%s version=%s\n", resp.Status, resp.Version)
			return nil
		},
	}
}
