package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/notifications-dashboard-api/internal/dto"
	"github.com/noah-isme/notifications-dashboard-api/internal/models"
)

func sampleSnapshot() []models.Record {
	return []models.Record{
		{ID: "a", CreatedDate: "2024-01-01", Status: "pending", Payload: models.Payload{Country: "EG"}},
		{ID: "b", CreatedDate: "2024-01-02", Status: "approved", Payload: models.Payload{CardNumber: "4111", Country: "SA"}},
	}
}

func viewIDs(items []dto.NotificationView) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

func TestBuildViewHasCardFilter(t *testing.T) {
	result := BuildView(sampleSnapshot(), nil, models.ViewQuery{Filter: models.FilterHasCard})
	assert.Equal(t, []string{"b"}, viewIDs(result.Items))
	assert.Equal(t, 1, result.Pagination.TotalCount)
	assert.Equal(t, 1, result.Pagination.TotalPages)
}

func TestBuildViewSortByDate(t *testing.T) {
	asc := BuildView(sampleSnapshot(), nil, models.ViewQuery{SortBy: models.SortByDate, SortOrder: models.SortAsc})
	assert.Equal(t, []string{"a", "b"}, viewIDs(asc.Items))

	desc := BuildView(sampleSnapshot(), nil, models.ViewQuery{SortBy: models.SortByDate, SortOrder: models.SortDesc})
	assert.Equal(t, []string{"b", "a"}, viewIDs(desc.Items))
}

func TestBuildViewSortByCountryTreatsMissingAsEmpty(t *testing.T) {
	records := append(sampleSnapshot(), models.Record{ID: "c", CreatedDate: "2024-01-03"})
	result := BuildView(records, nil, models.ViewQuery{SortBy: models.SortByCountry, SortOrder: models.SortAsc})
	assert.Equal(t, []string{"c", "a", "b"}, viewIDs(result.Items))
	assert.Equal(t, dto.UnknownCountry, result.Items[0].DisplayCountry)
	assert.Equal(t, dto.UnknownName, result.Items[0].DisplayName)
}

func TestBuildViewOnlineFilterUsesPresence(t *testing.T) {
	presence := func(id string) models.PresenceStatus {
		if id == "b" {
			return models.PresenceOnline
		}
		return models.PresenceOffline
	}
	result := BuildView(sampleSnapshot(), presence, models.ViewQuery{Filter: models.FilterOnline})
	require.Len(t, result.Items, 1)
	assert.Equal(t, "b", result.Items[0].ID)
	assert.True(t, result.Items[0].IsOnline)
}

func TestBuildViewSearchAcrossFields(t *testing.T) {
	records := []models.Record{
		{ID: "a", Payload: models.Payload{Email: "Jane@Example.com"}},
		{ID: "b", Payload: models.Payload{AllOTPs: []string{"123", "98765"}}},
		{ID: "c", Payload: models.Payload{Name: "Omar"}},
	}
	assert.Equal(t, []string{"a"}, viewIDs(BuildView(records, nil, models.ViewQuery{Search: "jane@"}).Items))
	assert.Equal(t, []string{"b"}, viewIDs(BuildView(records, nil, models.ViewQuery{Search: "876"}).Items))
	assert.Len(t, BuildView(records, nil, models.ViewQuery{Search: ""}).Items, 3)
	assert.Empty(t, BuildView(records, nil, models.ViewQuery{Search: "zzz"}).Items)
}

func TestBuildViewPagination(t *testing.T) {
	records := make([]models.Record, 23)
	for i := range records {
		records[i] = models.Record{ID: fmt.Sprintf("r%02d", i), CreatedDate: fmt.Sprintf("2024-01-%02d", i+1)}
	}

	last := BuildView(records, nil, models.ViewQuery{Page: 3, PageSize: 10, SortOrder: models.SortAsc})
	assert.Len(t, last.Items, 3)
	assert.Equal(t, 3, last.Pagination.TotalPages)
	assert.Equal(t, 23, last.Pagination.TotalCount)

	beyond := BuildView(records, nil, models.ViewQuery{Page: 9, PageSize: 10})
	assert.Empty(t, beyond.Items)
	assert.Equal(t, 3, beyond.Pagination.TotalPages)
}

func TestBuildViewIsDeterministic(t *testing.T) {
	records := []models.Record{
		{ID: "a", Status: "pending"},
		{ID: "b", Status: "approved"},
		{ID: "c", Status: "pending"},
		{ID: "d", Status: "approved"},
	}
	q := models.ViewQuery{SortBy: models.SortByStatus, SortOrder: models.SortAsc}
	first := BuildView(records, nil, q)
	second := BuildView(records, nil, q)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"b", "d", "a", "c"}, viewIDs(first.Items))
	assert.Equal(t, "a", records[0].ID, "input must not be reordered")
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 1, TotalPages(0, 10))
	assert.Equal(t, 1, TotalPages(10, 10))
	assert.Equal(t, 2, TotalPages(11, 10))
	assert.Equal(t, 1, TotalPages(5, 0))
}

func TestViewStateResetsPage(t *testing.T) {
	state := NewViewState(10)
	state.SetPage(3, 5)
	require.Equal(t, 3, state.Query.Page)

	state.SetFilter(models.FilterAll)
	assert.Equal(t, 3, state.Query.Page, "unchanged filter keeps the page")

	state.SetFilter(models.FilterHasCard)
	assert.Equal(t, 1, state.Query.Page)

	state.SetPage(2, 5)
	state.SetSearch("4111")
	assert.Equal(t, 1, state.Query.Page)

	state.SetPage(4, 2)
	assert.Equal(t, 2, state.Query.Page)
	state.SetPage(-1, 2)
	assert.Equal(t, 1, state.Query.Page)
}
