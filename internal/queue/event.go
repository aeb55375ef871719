// Package queue defines message payloads exchanged over the message broker
// and the consumer that turns them into the audit log.
package queue

// EventsQueue is the durable queue every diner event is published to.
const EventsQueue = "diner.events"

// Event types.
const (
	EventRegistered = "diner.registered"
	EventCancelled  = "diner.cancelled"
	EventRevealed   = "diner.revealed"
	EventOverride   = "diner.override"
)

// Override actions carried by EventOverride.
const (
	ActionForceAssign   = "force_assign"
	ActionReassign      = "reassign"
	ActionAssignPending = "assign_pending"
	ActionForceReveal   = "force_reveal"
	ActionForceHide     = "force_hide"
)

// DinerEvent is published whenever a registrant changes state.  It carries
// enough context for the audit consumer to write a self-contained line
// without querying the database.
type DinerEvent struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Week         string  `json:"week"`
	RegistrantID uint64  `json:"registrant_id,omitempty"`
	UserID       uint64  `json:"user_id,omitempty"`
	RestaurantID *uint64 `json:"restaurant_id,omitempty"`
	ActorID      uint64  `json:"actor_id,omitempty"` // admin user for overrides
	Action       string  `json:"action,omitempty"`
	Count        int     `json:"count,omitempty"` // rows touched by week-wide operations
	OccurredAt   string  `json:"occurred_at"`
}
