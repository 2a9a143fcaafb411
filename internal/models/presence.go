package models

import (
	"encoding/json"
	"time"
)

// PresenceStatus is the resolved online state of a tracked key.
type PresenceStatus string

const (
	PresenceUnknown PresenceStatus = "unknown"
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// PresenceDocument is the value stored per key in the presence store.
type PresenceDocument struct {
	State       string     `json:"state"`
	LastChanged *time.Time `json:"last_changed,omitempty"`
}

// ResolvePresence maps a raw presence value to a status. A nil payload means the
// key has no presence record; anything that is not an explicit "online" is offline.
func ResolvePresence(raw []byte) PresenceStatus {
	if raw == nil {
		return PresenceUnknown
	}
	var doc PresenceDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return PresenceOffline
	}
	if doc.State == "online" {
		return PresenceOnline
	}
	return PresenceOffline
}
