package service

import (
	"sort"
	"strings"

	"github.com/noah-isme/notifications-dashboard-api/internal/dto"
	"github.com/noah-isme/notifications-dashboard-api/internal/models"
)

// DefaultPageSize is the list page size when none is configured.
const DefaultPageSize = 10

// PresenceLookup resolves the presence of a record id.
type PresenceLookup func(id string) models.PresenceStatus

// NormalizeQuery fills defaults and clamps the page to at least 1.
func NormalizeQuery(q models.ViewQuery) models.ViewQuery {
	q.Filter = models.ParseFilterType(string(q.Filter))
	q.SortBy = models.ParseSortKey(string(q.SortBy))
	q.SortOrder = models.ParseSortOrder(string(q.SortOrder))
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.Page < 1 {
		q.Page = 1
	}
	return q
}

// TotalPages returns max(1, ceil(n/pageSize)).
func TotalPages(n, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pages := (n + pageSize - 1) / pageSize
	if pages < 1 {
		return 1
	}
	return pages
}

// BuildView filters, searches, sorts and paginates records. The input slice is not modified.
// A page past the end yields an empty page; the pagination still reports the real total.
func BuildView(records []models.Record, presence PresenceLookup, q models.ViewQuery) dto.ViewResult {
	q = NormalizeQuery(q)
	items := FilterRecords(records, presence, q.Filter, q.Search)
	SortViews(items, q.SortBy, q.SortOrder)

	total := len(items)
	start := (q.Page - 1) * q.PageSize
	if start > total {
		start = total
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}

	return dto.ViewResult{
		Items: items[start:end],
		Query: q,
		Pagination: models.Pagination{
			Page:       q.Page,
			PageSize:   q.PageSize,
			TotalCount: total,
			TotalPages: TotalPages(total, q.PageSize),
		},
	}
}

// FilterRecords applies the filter then the search term and joins presence.
func FilterRecords(records []models.Record, presence PresenceLookup, filter models.FilterType, search string) []dto.NotificationView {
	if presence == nil {
		presence = func(string) models.PresenceStatus { return models.PresenceUnknown }
	}
	term := strings.ToLower(strings.TrimSpace(search))
	out := make([]dto.NotificationView, 0, len(records))
	for _, rec := range records {
		view := newNotificationView(rec, presence(rec.ID))
		switch filter {
		case models.FilterHasCard:
			if !view.HasCard {
				continue
			}
		case models.FilterOnline:
			if !view.IsOnline {
				continue
			}
		}
		if term != "" && !matchesSearch(rec, term) {
			continue
		}
		out = append(out, view)
	}
	return out
}

func newNotificationView(rec models.Record, status models.PresenceStatus) dto.NotificationView {
	view := dto.NotificationView{
		Record:         rec,
		Presence:       status,
		IsOnline:       status == models.PresenceOnline,
		HasCard:        rec.HasCard(),
		HasPersonal:    rec.HasPersonal(),
		DisplayName:    rec.Name,
		DisplayCountry: rec.Country,
	}
	if strings.TrimSpace(view.DisplayName) == "" {
		view.DisplayName = dto.UnknownName
	}
	if strings.TrimSpace(view.DisplayCountry) == "" {
		view.DisplayCountry = dto.UnknownCountry
	}
	return view
}

// matchesSearch expects term already lower-cased and non-empty.
func matchesSearch(rec models.Record, term string) bool {
	fields := []string{rec.Name, rec.Email, rec.Phone, rec.CardNumber, rec.Country, rec.OTP, rec.OTP2, rec.PhoneOTP, rec.OTPCode}
	fields = append(fields, rec.AllOTPs...)
	for _, field := range fields {
		if field != "" && strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// SortViews orders items in place. Equal keys keep their incoming order.
func SortViews(items []dto.NotificationView, key models.SortKey, order models.SortOrder) {
	less := func(a, b dto.NotificationView) int {
		switch key {
		case models.SortByStatus:
			return strings.Compare(a.Status, b.Status)
		case models.SortByCountry:
			return strings.Compare(a.Country, b.Country)
		default:
			ta, tb := a.CreatedAt(), b.CreatedAt()
			switch {
			case ta.Before(tb):
				return -1
			case ta.After(tb):
				return 1
			}
			return 0
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		cmp := less(items[i], items[j])
		if order == models.SortAsc {
			return cmp < 0
		}
		return cmp > 0
	})
}

// ViewState is the per-session list state. Changing the filter or the search term
// returns the list to the first page.
type ViewState struct {
	Query models.ViewQuery `json:"query"`
}

// NewViewState returns the default state.
func NewViewState(pageSize int) ViewState {
	return ViewState{Query: NormalizeQuery(models.ViewQuery{PageSize: pageSize})}
}

// SetFilter changes the filter and resets the page when it differs.
func (v *ViewState) SetFilter(filter models.FilterType) {
	filter = models.ParseFilterType(string(filter))
	if v.Query.Filter != filter {
		v.Query.Filter = filter
		v.Query.Page = 1
	}
}

// SetSearch changes the search term and resets the page when it differs.
func (v *ViewState) SetSearch(term string) {
	if v.Query.Search != term {
		v.Query.Search = term
		v.Query.Page = 1
	}
}

// SetSort changes the sort key and direction.
func (v *ViewState) SetSort(key models.SortKey, order models.SortOrder) {
	v.Query.SortBy = models.ParseSortKey(string(key))
	v.Query.SortOrder = models.ParseSortOrder(string(order))
}

// SetPage moves to page, clamped into [1, totalPages].
func (v *ViewState) SetPage(page, totalPages int) {
	if totalPages < 1 {
		totalPages = 1
	}
	switch {
	case page < 1:
		page = 1
	case page > totalPages:
		page = totalPages
	}
	v.Query.Page = page
}
