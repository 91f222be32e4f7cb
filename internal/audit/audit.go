// Package audit records agent, approval and workflow events.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cas-pilex/edithAI-sub000/internal/domain"
	"github.com/cas-pilex/edithAI-sub000/internal/logging"
)

// Writer receives audit events. Implementations must not block the caller
// for long and must never fail it: errors are logged.
type Writer interface {
	Write(ctx context.Context, event domain.Event)
}

// NewEvent builds an event with a fresh id and timestamp. payload is encoded
// as JSON; an unencodable payload is dropped.
func NewEvent(eventType domain.EventType, userID, sessionID string, agent domain.AgentType, payload interface{}) domain.Event {
	ev := domain.Event{
		ID:        "ev_" + uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		AgentType: agent,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			ev.Payload = b
		}
	}
	return ev
}

// EventStore is the persistence subset StoreWriter needs.
type EventStore interface {
	CreateEvent(ctx context.Context, e *domain.Event) error
}

// StoreWriter appends events to the relational store.
type StoreWriter struct {
	store  EventStore
	logger *zap.Logger
}

// NewStoreWriter creates a StoreWriter.
func NewStoreWriter(store EventStore, logger *zap.Logger) *StoreWriter {
	return &StoreWriter{store: store, logger: logging.OrNop(logger)}
}

func (w *StoreWriter) Write(ctx context.Context, event domain.Event) {
	if err := w.store.CreateEvent(ctx, &event); err != nil {
		w.logger.Warn("failed to persist audit event",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}

// LogWriter is a fallback Writer for local development.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logging.OrNop(logger)}
}

func (w *LogWriter) Write(_ context.Context, event domain.Event) {
	w.logger.Info("audit_event",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("user_id", event.UserID),
		zap.String("session_id", event.SessionID),
		zap.String("agent_type", string(event.AgentType)),
		zap.ByteString("payload", event.Payload),
	)
}

// Multi writes every event to each writer in order.
type Multi []Writer

func (m Multi) Write(ctx context.Context, event domain.Event) {
	for _, w := range m {
		if w != nil {
			w.Write(ctx, event)
		}
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Write(context.Context, domain.Event) {}
