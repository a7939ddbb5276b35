// Package airtypes holds the small shared value types the streaming core
// passes around: the timestamped envelope every facility wraps its payload
// in (§3 TimestampedData) and the tagged payload-kind variants used for
// total JSON serialization (§9 "duck-typed TimestampedData serialization").
package airtypes

import (
	"encoding/json"
	"time"
)

// PayloadKind tags which concrete payload a TimestampedData carries, so the
// JSON encoder never has to type-switch on an empty interface blindly.
type PayloadKind string

const (
	KindChatEvent       PayloadKind = "chat_event"
	KindGameEvent       PayloadKind = "game_event"
	KindNotParsedString PayloadKind = "not_parsed_string"
	KindRadarSnapshot   PayloadKind = "radar_snapshot"
)

// TimestampedData wraps a payload with the instant it was accepted into a
// facility's queue. Immutable once constructed.
type TimestampedData struct {
	Timestamp time.Time   `json:"timestamp"`
	Kind      PayloadKind `json:"kind"`
	Payload   any         `json:"payload"`
}

// New stamps payload with the current UTC instant.
func New(kind PayloadKind, payload any) TimestampedData {
	return TimestampedData{Timestamp: time.Now().UTC(), Kind: kind, Payload: payload}
}

// MarshalJSON flattens the payload alongside timestamp/kind when the
// payload is itself a map, matching the original's
// `{timestamp: ISO-8601, ...payload fields}` shape; for non-map payloads it
// falls back to nesting under "payload".
func (t TimestampedData) MarshalJSON() ([]byte, error) {
	if m, ok := t.Payload.(map[string]any); ok {
		flat := make(map[string]any, len(m)+2)
		for k, v := range m {
			flat[k] = v
		}
		flat["timestamp"] = t.Timestamp
		flat["kind"] = t.Kind
		return json.Marshal(flat)
	}
	type alias TimestampedData
	return json.Marshal(alias(t))
}
