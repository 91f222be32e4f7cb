package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cas-pilex/edithAI-sub000/internal/adapter/backend"
	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

type spec struct {
	action      string
	description string
	category    domain.ApprovalCategory
	schema      domain.JSONSchema
}

var catalog = map[domain.AgentType][]spec{
	domain.AgentInbox: {
		{"search", "Search the user's mailbox. Returns matching messages with id, sender, subject and unread flag.", domain.ApprovalAutoApprove,
			object(props{"query": str("Free-text search query"), "unread_only": boolean("Only unread messages"), "limit": integer("Maximum results")})},
		{"draft_reply", "Create a draft reply to a message without sending it.", domain.ApprovalAutoApprove,
			object(props{"message_id": str("Message to reply to"), "body": str("Reply body")}, "message_id", "body")},
		{"send_email", "Send an email on the user's behalf.", domain.ApprovalRequestApproval,
			object(props{"to": strArray("Recipients"), "subject": str("Subject line"), "body": str("Message body")}, "to", "subject", "body")},
		{"archive", "Archive messages by id.", domain.ApprovalAutoApprove,
			object(props{"message_ids": strArray("Messages to archive")}, "message_ids")},
	},
	domain.AgentCalendar: {
		{"list_events", "List calendar events in a time range.", domain.ApprovalAutoApprove,
			object(props{"from": str("RFC3339 start"), "to": str("RFC3339 end")})},
		{"find_free_slots", "Find free slots of the given duration for the listed attendees.", domain.ApprovalAutoApprove,
			object(props{"duration_minutes": integer("Slot length"), "attendees": strArray("Attendee emails"), "within_days": integer("Search horizon in days")}, "duration_minutes")},
		{"create_event", "Create a calendar event and send invitations.", domain.ApprovalRequestApproval,
			object(props{"title": str("Event title"), "start": str("RFC3339 start"), "end": str("RFC3339 end"), "attendees": strArray("Attendee emails")}, "title", "start", "end")},
		{"cancel_event", "Cancel an event and notify attendees.", domain.ApprovalAlwaysAsk,
			object(props{"event_id": str("Event to cancel"), "reason": str("Message to attendees")}, "event_id")},
	},
	domain.AgentCRM: {
		{"lookup_contact", "Look up a contact by name or email.", domain.ApprovalAutoApprove,
			object(props{"query": str("Name or email")}, "query")},
		{"update_contact", "Update fields on a contact record.", domain.ApprovalRequestApproval,
			object(props{"contact_id": str("Contact id"), "fields": map[string]any{"type": "object", "description": "Fields to set"}}, "contact_id", "fields")},
		{"log_interaction", "Log a call, email or meeting against a contact.", domain.ApprovalAutoApprove,
			object(props{"contact_id": str("Contact id"), "kind": enum("Interaction kind", "call", "email", "meeting"), "notes": str("Notes")}, "contact_id", "kind")},
	},
	domain.AgentTravel: {
		{"search_flights", "Search flights between two airports on a date.", domain.ApprovalAutoApprove,
			object(props{"origin": str("IATA code"), "destination": str("IATA code"), "date": str("YYYY-MM-DD")}, "origin", "destination", "date")},
		{"book_flight", "Book a flight returned by search_flights.", domain.ApprovalAlwaysAsk,
			object(props{"flight_id": str("Flight id"), "amount": number("Total price")}, "flight_id")},
		{"book_hotel", "Reserve a hotel room.", domain.ApprovalRequestApproval,
			object(props{"city": str("City"), "check_in": str("YYYY-MM-DD"), "nights": integer("Number of nights"), "amount": number("Total price")}, "city", "check_in", "nights")},
	},
	domain.AgentTasks: {
		{"list", "List the user's tasks.", domain.ApprovalAutoApprove,
			object(props{"include_completed": boolean("Include completed tasks")})},
		{"create", "Create a task.", domain.ApprovalAutoApprove,
			object(props{"title": str("Task title"), "due": str("Due date, YYYY-MM-DD")}, "title")},
		{"complete", "Mark a task complete.", domain.ApprovalAutoApprove,
			object(props{"id": str("Task id")}, "id")},
		{"delete", "Delete a task permanently.", domain.ApprovalRequestApproval,
			object(props{"id": str("Task id")}, "id")},
	},
	domain.AgentMeetingPrep: {
		{"gather_context", "Collect emails, CRM notes and prior meetings related to an upcoming meeting.", domain.ApprovalAutoApprove,
			object(props{"event_id": str("Calendar event id"), "attendees": strArray("Attendee emails")})},
		{"generate_brief", "Write a short briefing document from gathered context.", domain.ApprovalAutoApprove,
			object(props{"context": map[string]any{"type": "object", "description": "Output of gather_context"}, "focus": str("What to emphasise")})},
	},
}

// ToolName is the registered name of domain action d.action.
func ToolName(d domain.AgentType, action string) string {
	return string(d) + "." + action
}

// RegisterDomainTools registers the tools of every domain agent, each
// delegating to b.
func RegisterDomainTools(r *Registry, b backend.Backend) error {
	for _, d := range domain.DomainAgents {
		for _, s := range catalog[d] {
			err := r.Register(Tool{
				ToolDefinition: domain.ToolDefinition{
					Name:        ToolName(d, s.action),
					Description: s.description,
					InputSchema: s.schema,
				},
				Domain:           d,
				Handler:          backendHandler(b, d, s.action),
				ApprovalCategory: s.category,
			})
			if err != nil {
				return fmt.Errorf("register %s tools: %w", d, err)
			}
		}
	}
	return nil
}

// backendHandler forwards a tool call to the domain backend. A backend that
// still wants confirmation is honoured unless the call already carries an
// approval.
func backendHandler(b backend.Backend, d domain.AgentType, action string) Handler {
	return func(ctx context.Context, input json.RawMessage, ec domain.ExecutionContext) (domain.ToolResult, error) {
		resp, err := b.Call(ctx, backend.Request{
			Domain:     d,
			Action:     action,
			UserID:     ec.UserID,
			Timezone:   ec.Timezone,
			Input:      input,
			ApprovalID: ec.ApprovalID,
		})
		if err != nil {
			return domain.ToolResult{}, err
		}
		if resp.Error != "" {
			return domain.FailedResult(resp.Error), nil
		}
		result := domain.ToolResult{Success: true, Data: resp.Data}
		if resp.RequiresApproval && ec.ApprovalID == "" {
			result.RequiresApproval = true
			result.ApprovalDetails = resp.ApprovalDetails
		}
		return result, nil
	}
}

type props map[string]any

func object(p props, required ...string) domain.JSONSchema {
	s := domain.JSONSchema{
		"type":       "object",
		"properties": map[string]any(p),
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func number(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

func boolean(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

func strArray(desc string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": desc}
}

func enum(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "enum": values, "description": desc}
}
