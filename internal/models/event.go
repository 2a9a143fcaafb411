package models

import "time"

// EventType distinguishes dashboard events pushed to connected operators.
type EventType string

const (
	EventToast    EventType = "toast"
	EventSound    EventType = "sound"
	EventSnapshot EventType = "snapshot"
)

// ToastLevel is the severity of a toast event.
type ToastLevel string

const (
	ToastSuccess ToastLevel = "success"
	ToastError   ToastLevel = "error"
	ToastInfo    ToastLevel = "info"
)

// Sensitive data kinds carried by sound events.
const (
	SensitiveCard     = "card"
	SensitivePersonal = "personal"
)

// DashboardEvent is one message on the operator event stream.
type DashboardEvent struct {
	Type     EventType    `json:"type"`
	Level    ToastLevel   `json:"level,omitempty"`
	Title    string       `json:"title,omitempty"`
	Message  string       `json:"message,omitempty"`
	Kind     string       `json:"kind,omitempty"`
	RecordID string       `json:"recordId,omitempty"`
	Stats    *RecordStats `json:"stats,omitempty"`
	At       time.Time    `json:"at"`
}
