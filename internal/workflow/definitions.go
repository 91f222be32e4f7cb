package workflow

import "github.com/cas-pilex/edithAI-sub000/internal/domain"

// Built-in workflow ids.
const (
	MeetingPreparation = "meeting_preparation"
	TravelBooking      = "travel_booking"
	InboxTriage        = "inbox_triage"
	ClientFollowUp     = "client_follow_up"
)

// Definitions returns the built-in workflow catalog.
func Definitions() []domain.WorkflowDefinition {
	return []domain.WorkflowDefinition{
		{
			ID:          MeetingPreparation,
			Name:        "Meeting preparation",
			Description: "Collect everything needed for an upcoming meeting and write a brief.",
			Steps: []domain.WorkflowStep{
				{ID: "find_meeting", Agent: domain.AgentCalendar, Action: "list_events", Description: "Find the meeting and its attendees"},
				{ID: "attendee_profiles", Agent: domain.AgentCRM, Action: "lookup_contact", Description: "Look up each attendee", DependsOn: []string{"find_meeting"}},
				{ID: "recent_threads", Agent: domain.AgentInbox, Action: "search", Description: "Find recent email threads with the attendees", DependsOn: []string{"find_meeting"}},
				{ID: "brief", Agent: domain.AgentMeetingPrep, Action: "generate_brief", Description: "Write the meeting brief", DependsOn: []string{"attendee_profiles", "recent_threads"}},
			},
			TriggerConditions: []string{"prepare for", "prep for", "meeting brief", "brief me"},
		},
		{
			ID:          TravelBooking,
			Name:        "Travel booking",
			Description: "Search and book travel, then block the calendar.",
			Steps: []domain.WorkflowStep{
				{ID: "search_flights", Agent: domain.AgentTravel, Action: "search_flights", Description: "Search flights for the trip"},
				{ID: "book_travel", Agent: domain.AgentTravel, Action: "book_flight", Description: "Book the best flight and a hotel", DependsOn: []string{"search_flights"}},
				{ID: "block_calendar", Agent: domain.AgentCalendar, Action: "create_event", Description: "Block the travel time in the calendar", DependsOn: []string{"book_travel"}},
				{ID: "travel_tasks", Agent: domain.AgentTasks, Action: "create", Description: "Create packing and check-in reminders", DependsOn: []string{"book_travel"}},
			},
			TriggerConditions: []string{"book a trip", "plan a trip", "business trip", "book travel"},
		},
		{
			ID:          InboxTriage,
			Name:        "Inbox triage",
			Description: "Sort the inbox, turn action items into tasks and archive the rest.",
			Steps: []domain.WorkflowStep{
				{ID: "scan_inbox", Agent: domain.AgentInbox, Action: "search", Description: "Find unread and flagged email"},
				{ID: "extract_tasks", Agent: domain.AgentTasks, Action: "create", Description: "Create tasks for action items", DependsOn: []string{"scan_inbox"}},
				{ID: "schedule_requests", Agent: domain.AgentCalendar, Action: "find_free_slots", Description: "Propose slots for meeting requests", DependsOn: []string{"scan_inbox"}},
				{ID: "archive", Agent: domain.AgentInbox, Action: "archive", Description: "Archive handled email", DependsOn: []string{"extract_tasks", "schedule_requests"}},
			},
			TriggerConditions: []string{"triage", "clean up my inbox", "inbox zero", "go through my email"},
		},
		{
			ID:          ClientFollowUp,
			Name:        "Client follow-up",
			Description: "Follow up with a client after an interaction.",
			Steps: []domain.WorkflowStep{
				{ID: "client_context", Agent: domain.AgentCRM, Action: "lookup_contact", Description: "Load the client's record and history"},
				{ID: "draft_email", Agent: domain.AgentInbox, Action: "draft_reply", Description: "Draft the follow-up email", DependsOn: []string{"client_context"}},
				{ID: "follow_up_task", Agent: domain.AgentTasks, Action: "create", Description: "Create a reminder to check for a reply", DependsOn: []string{"client_context"}},
				{ID: "log_interaction", Agent: domain.AgentCRM, Action: "log_interaction", Description: "Log the follow-up on the client record", DependsOn: []string{"draft_email"}},
			},
			TriggerConditions: []string{"follow up with", "follow-up with", "client follow"},
		},
	}
}
