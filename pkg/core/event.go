package core

import "time"

// BusinessEvent is a transient fact emitted by the CRUD layer when an
// entity mutation happens. It is never persisted; workflows consume it
// through the bus and pending-action rows carry a JSON snapshot.
type BusinessEvent struct {
	Type       TriggerType    `json:"type"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Field resolves a condition field against the event. The entity
// identity keys are addressable alongside the payload.
func (e BusinessEvent) Field(name string) (any, bool) {
	switch name {
	case "entity_type":
		return e.EntityType, true
	case "entity_id":
		return e.EntityID, true
	}
	v, ok := e.Payload[name]
	return v, ok
}
