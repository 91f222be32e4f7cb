package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/cas-pilex/edithAI-sub000/internal/notify"
)

// NewWatchCmd streams notifications for the current user until interrupted.
func NewWatchCmd(cfg *Config) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream notifications over the websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cfg.client()
			if err != nil {
				return err
			}
			target := c.WebSocketURL("/v1/ws?user_id=" + url.QueryEscape(cfg.UserID))
			return watch(cmd.Context(), target, count, cfg.JSON, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Exit after this many notifications (0 means never)")
	return cmd
}

func watch(ctx context.Context, target string, count int, raw bool, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-done:
		}
	}()

	_, _ = fmt.Fprintf(out, "watching notifications on %s\n", target)
	seen := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		isNotification, err := printMessage(out, data, raw)
		if err != nil {
			return err
		}
		if isNotification {
			seen++
			if count > 0 && seen >= count {
				return nil
			}
		}
	}
}

// printMessage renders one socket message and reports whether it was a
// notification.
func printMessage(out io.Writer, data []byte, raw bool) (bool, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return false, errors.New("server sent invalid JSON")
	}
	if raw {
		_, _ = fmt.Fprintln(out, string(data))
		return head.Type == notify.TypeNotification, nil
	}

	switch head.Type {
	case notify.TypeNotification:
		var n notify.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			return false, fmt.Errorf("parse notification: %w", err)
		}
		_, _ = fmt.Fprintf(out, "[%s] %s\n", n.CreatedAt.Local().Format("15:04:05"), n.Title)
		if n.Body != "" {
			_, _ = fmt.Fprintf(out, "  %s\n", strings.ReplaceAll(n.Body, "\n", "\n  "))
		}
		for _, a := range n.Actions {
			if id := a.Payload["approval_id"]; id != "" {
				_, _ = fmt.Fprintf(out, "  -> edithctl approvals %s %s\n", a.ID, id)
			}
		}
		return true, nil
	default:
		var m notify.ServerMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return false, fmt.Errorf("parse message: %w", err)
		}
		_, _ = fmt.Fprintf(out, "%s %s %s\n", m.Type, m.ApprovalID, m.Message)
		return false, nil
	}
}
