package audit

import "time"

// ActorType identifies who performed an audited action.
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// Outcome is the result of an audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDenied  Outcome = "denied"
	OutcomeError   Outcome = "error"
)

// Event is one append-only audit row. Details holds a JSON object.
type Event struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actorId"`
	ActorType  ActorType `json:"actorType"`
	Action     string    `json:"action"`
	EntityType *string   `json:"entityType,omitempty"`
	EntityID   *string   `json:"entityId,omitempty"`
	Details    string    `json:"details"`
	Outcome    Outcome   `json:"outcome"`
	IPAddress  *string   `json:"ipAddress,omitempty"`
	UserAgent  *string   `json:"userAgent,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// EventDetails is the structured form of Event.Details.
type EventDetails struct {
	OldValue any `json:"old_value,omitempty"`
	NewValue any `json:"new_value,omitempty"`
	Metadata any `json:"metadata,omitempty"`
}
