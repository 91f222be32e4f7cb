// Package notify delivers user-facing notifications (approval prompts,
// workflow updates) over websockets and RabbitMQ.
package notify

import (
	"context"
	"time"
)

// Action is a button offered with a notification.
type Action struct {
	ID      string            `json:"id"`
	Label   string            `json:"label"`
	Payload map[string]string `json:"payload,omitempty"`
}

// Notification is what subscribers receive.
type Notification struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Actions   []Action  `json:"actions,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TypeNotification is the message type of pushed notifications.
const TypeNotification = "notification"

// Notifier dispatches a notification. Delivery is best-effort: the result
// only reports whether some channel accepted it.
type Notifier interface {
	Send(ctx context.Context, userID, title, body string, actions []Action) bool
}

// Multi fans a notification out to every notifier.
type Multi []Notifier

// Send implements Notifier. It reports true when any notifier accepted.
func (m Multi) Send(ctx context.Context, userID, title, body string, actions []Action) bool {
	delivered := false
	for _, n := range m {
		if n == nil {
			continue
		}
		if n.Send(ctx, userID, title, body, actions) {
			delivered = true
		}
	}
	return delivered
}

// Nop drops every notification.
type Nop struct{}

// Send implements Notifier.
func (Nop) Send(context.Context, string, string, string, []Action) bool { return false }
