package triage

import "strings"

// Category is the classifier verdict for a single incoming message.
type Category string

const (
	Emergency Category = "emergency"
	Distress  Category = "distress"
	Neutral   Category = "neutral"
)

// ParseCategory normalizes a raw label. Anything outside the three known values is rejected.
func ParseCategory(raw string) (Category, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.Trim(normalized, "\"'.`*")
	switch Category(normalized) {
	case Emergency, Distress, Neutral:
		return Category(normalized), true
	default:
		return "", false
	}
}

// State is the position of a session in the per-message state machine.
type State string

const (
	StateIdle             State = "idle"
	StateClassifying      State = "classifying"
	StateEmergencyRouting State = "emergency_routing"
	StateDistressRouting  State = "distress_routing"
	StateConversing       State = "conversing"
)

// RoutingState maps a category to the state its handler runs in.
func RoutingState(c Category) State {
	switch c {
	case Emergency:
		return StateEmergencyRouting
	case Distress:
		return StateDistressRouting
	default:
		return StateConversing
	}
}
