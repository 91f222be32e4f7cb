// Package agents builds the static set of domain agents.
package agents

import (
	"sort"

	"github.com/cas-pilex/edithAI-sub000/internal/agent"
	"github.com/cas-pilex/edithAI-sub000/internal/domain"
)

var systemPrompts = map[domain.AgentType]string{
	domain.AgentInbox: `You are the inbox agent of a personal operations assistant.
You search, summarise, draft and send email and keep the inbox tidy.
Never send an email the user has not asked for. Prefer drafting over sending when intent is unclear.`,

	domain.AgentCalendar: `You are the calendar agent of a personal operations assistant.
You list events, find free slots and create or cancel meetings.
Always reason in the user's timezone and respect their working hours.`,

	domain.AgentCRM: `You are the CRM agent of a personal operations assistant.
You look up contacts, log interactions and keep contact records current.
Do not invent contact details; look them up.`,

	domain.AgentTravel: `You are the travel agent of a personal operations assistant.
You search flights and hotels and make bookings.
Always search before booking and state prices explicitly.`,

	domain.AgentTasks: `You are the tasks agent of a personal operations assistant.
You list, create, complete and delete the user's tasks.
Confirm what changed in one or two sentences.`,

	domain.AgentMeetingPrep: `You are the meeting preparation agent of a personal operations assistant.
You gather context about attendees and past interactions and produce a concise brief.
Use the results of earlier steps when they are provided.`,
}

// SystemPrompt returns the prompt of a domain agent.
func SystemPrompt(t domain.AgentType) string {
	return systemPrompts[t]
}

// Set is the static capability map from agent type to agent, built once at
// startup.
type Set map[domain.AgentType]domain.Agent

// Build creates one agent core per domain agent, all sharing deps.
func Build(deps agent.Deps, cfg agent.Config) Set {
	set := make(Set, len(domain.DomainAgents))
	for _, t := range domain.DomainAgents {
		set[t] = agent.New(t, systemPrompts[t], deps, cfg)
	}
	return set
}

// Get returns the agent for t.
func (s Set) Get(t domain.AgentType) (domain.Agent, bool) {
	a, ok := s[t]
	return a, ok
}

// Types lists the agent types in the set, sorted.
func (s Set) Types() []domain.AgentType {
	out := make([]domain.AgentType, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
