package dto

import (
	"time"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
)

// Placeholders rendered for records that have not submitted the field yet.
const (
	UnknownName    = "Unknown"
	UnknownCountry = "Unknown"
)

// NotificationView is a record joined with its presence for rendering.
type NotificationView struct {
	models.Record
	IsOnline       bool                  `json:"isOnline"`
	Presence       models.PresenceStatus `json:"presence"`
	HasCard        bool                  `json:"hasCard"`
	HasPersonal    bool                  `json:"hasPersonal"`
	DisplayName    string                `json:"displayName"`
	DisplayCountry string                `json:"displayCountry"`
}

// ViewResult is one rendered page of the list view.
type ViewResult struct {
	Items      []NotificationView `json:"items"`
	Query      models.ViewQuery   `json:"query"`
	Pagination models.Pagination  `json:"pagination"`
}

// NotificationListQuery binds the list query string. Empty values keep the session's view state.
type NotificationListQuery struct {
	Filter    *string `form:"filter"`
	Search    *string `form:"search"`
	SortBy    *string `form:"sort_by"`
	SortOrder *string `form:"sort_order"`
	Page      *int    `form:"page" binding:"omitempty,gte=1"`
	PageSize  *int    `form:"page_size" binding:"omitempty,gte=1,lte=100"`
}

// StatsResponse summarises the live snapshot.
type StatsResponse struct {
	models.RecordStats
	OnlineUsers int                   `json:"onlineUsers"`
	Loading     bool                  `json:"loading"`
	Active      bool                  `json:"active"`
	UpdatedAt   *time.Time            `json:"updatedAt,omitempty"`
	LastError   string                `json:"lastError,omitempty"`
	StepOptions []models.StepOption   `json:"stepOptions"`
	System      *models.SystemMetrics `json:"system,omitempty"`
}

// SetFlagRequest sets or clears the flag colour. A null or empty colour clears it.
type SetFlagRequest struct {
	Color *string `json:"color"`
}

// SetStepRequest moves a record to a workflow step.
type SetStepRequest struct {
	Step *int `json:"step" binding:"required,gte=0"`
}

// SetStatusRequest approves or rejects a record.
type SetStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=approved rejected"`
}

// BulkHideResponse reports how many records were hidden.
type BulkHideResponse struct {
	Hidden int `json:"hidden"`
}

// ExportRequest asks for an asynchronous export of the current view.
type ExportRequest struct {
	Format string               `json:"format" binding:"required,oneof=csv json pdf"`
	Fields *models.ExportFields `json:"fields"`
	Filter string               `json:"filter"`
	Search string               `json:"search"`
}
