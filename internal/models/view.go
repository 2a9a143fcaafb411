package models

import "strings"

// FilterType narrows the record list before search.
type FilterType string

const (
	FilterAll     FilterType = "all"
	FilterHasCard FilterType = "hasCard"
	FilterOnline  FilterType = "online"
)

// ParseFilterType normalises user input; unknown values fall back to all.
func ParseFilterType(raw string) FilterType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "hascard", "card":
		return FilterHasCard
	case "online":
		return FilterOnline
	default:
		return FilterAll
	}
}

// SortKey selects the comparison used when ordering records.
type SortKey string

const (
	SortByDate    SortKey = "date"
	SortByStatus  SortKey = "status"
	SortByCountry SortKey = "country"
)

// ParseSortKey normalises user input; unknown values fall back to date.
func ParseSortKey(raw string) SortKey {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "status":
		return SortByStatus
	case "country":
		return SortByCountry
	default:
		return SortByDate
	}
}

// SortOrder is the sort direction.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortOrder normalises user input; unknown values fall back to desc.
func ParseSortOrder(raw string) SortOrder {
	if strings.EqualFold(strings.TrimSpace(raw), string(SortAsc)) {
		return SortAsc
	}
	return SortDesc
}

// ViewQuery is the full parameter set of the list view.
type ViewQuery struct {
	Filter    FilterType `json:"filter"`
	Search    string     `json:"search"`
	SortBy    SortKey    `json:"sortBy"`
	SortOrder SortOrder  `json:"sortOrder"`
	Page      int        `json:"page"`
	PageSize  int        `json:"pageSize"`
}
