package models

import "time"

// Audit actions recorded for operator mutations.
const (
	AuditActionSetFlag   = "RECORD_SET_FLAG"
	AuditActionSetStep   = "RECORD_SET_STEP"
	AuditActionSetStatus = "RECORD_SET_STATUS"
	AuditActionHide      = "RECORD_HIDE"
	AuditActionHideAll   = "RECORD_HIDE_ALL"
)

// AuditEntry is one row of the operator audit trail.
type AuditEntry struct {
	ID         string    `db:"id" json:"id"`
	OperatorID *string   `db:"operator_id" json:"operator_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	RecordID   *string   `db:"record_id" json:"record_id,omitempty"`
	Status     int       `db:"status" json:"status"`
	Details    []byte    `db:"details" json:"details,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
