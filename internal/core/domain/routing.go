package domain

import "time"

// SpecialistTag identifies a specialist the router can dispatch to.
type SpecialistTag string

// Known specialist tags.
const (
	SpecialistConfluence SpecialistTag = "confluence"
	SpecialistSharePoint SpecialistTag = "sharepoint"
	SpecialistJira       SpecialistTag = "jira"
	SpecialistGeneral    SpecialistTag = "general"

	// SpecialistMerged marks an answer combined from several specialists.
	SpecialistMerged SpecialistTag = "merged"
)

// QueryState is a state in the router's per-query state machine.
type QueryState string

// Router states. A query moves Received -> Classified -> Dispatched ->
// {SpecialistSucceeded | SpecialistFailed} -> Synthesized -> Responded.
// Low classification confidence detours through ClarificationRequested
// and AwaitingUser; the caller resubmits with Query.Clarification set,
// which starts over at Received.
const (
	StateReceived               QueryState = "received"
	StateClassified             QueryState = "classified"
	StateClarificationRequested QueryState = "clarification_requested"
	StateAwaitingUser           QueryState = "awaiting_user"
	StateDispatched             QueryState = "dispatched"
	StateSpecialistSucceeded    QueryState = "specialist_succeeded"
	StateSpecialistFailed       QueryState = "specialist_failed"
	StateSynthesized            QueryState = "synthesized"
	StateResponded              QueryState = "responded"
)

// Transition records one router state change.
type Transition struct {
	// From is the state being left.
	From QueryState

	// To is the state being entered.
	To QueryState

	// At is when the transition happened.
	At time.Time

	// Note carries context such as the chosen specialist or a retry.
	Note string
}
