package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestQueryAll_SinglePage(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{
				{ID: "p1"},
				{ID: "p2"},
			},
			HasMore: false,
		}, nil).Once()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	assert.NoError(t, err)
	assert.Len(t, pages, 2)
	mc.AssertExpectations(t)
}

func TestQueryAll_MultiPage(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	// First call returns page 1 with HasMore=true.
	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "p1"}},
		HasMore:    true,
		NextCursor: notionapi.Cursor("cursor-abc"),
	}, nil).Once()

	// Second call uses the cursor and returns final page.
	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == notionapi.Cursor("cursor-abc")
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "p2"}},
		HasMore: false,
	}, nil).Once()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	assert.NoError(t, err)
	assert.Len(t, pages, 2)
	assert.Equal(t, notionapi.ObjectID("p1"), pages[0].ID)
	assert.Equal(t, notionapi.ObjectID("p2"), pages[1].ID)
	mc.AssertExpectations(t)
}

func TestQueryAll_WithFilter(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		// Verify the filter was passed through.
		if req.Filter == nil {
			return false
		}
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		if !ok {
			return false
		}
		return pf.Property == "Period" && pf.RichText != nil && pf.RichText.Equals == "2026-07-01..2026-10-01"
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "p1"}},
		HasMore: false,
	}, nil).Once()

	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Period",
			RichText: &notionapi.TextFilterCondition{
				Equals: "2026-07-01..2026-10-01",
			},
		},
	}

	pages, err := QueryAll(ctx, mc, "db-1", filter)
	assert.NoError(t, err)
	assert.Len(t, pages, 1)
	mc.AssertExpectations(t)
}

// Sorts and page size must survive into every paginated request, not just
// the first one.
func TestQueryAll_SortsAndPageSizeCarryOver(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	sorted := func(req *notionapi.DatabaseQueryRequest) bool {
		return len(req.Sorts) == 1 && req.Sorts[0].Property == "Generated" && req.PageSize == 10
	}

	mc.On("QueryDatabase", ctx, "db-sorted", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return sorted(req) && req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "p1"}},
		HasMore:    true,
		NextCursor: notionapi.Cursor("cursor-2"),
	}, nil).Once()

	mc.On("QueryDatabase", ctx, "db-sorted", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return sorted(req) && req.StartCursor == notionapi.Cursor("cursor-2")
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "p2"}},
		HasMore: false,
	}, nil).Once()

	filter := &notionapi.DatabaseQueryRequest{
		Sorts: []notionapi.SortObject{
			{Property: "Generated", Direction: notionapi.SortOrderASC},
		},
		PageSize: 10,
	}

	pages, err := QueryAll(ctx, mc, "db-sorted", filter)
	assert.NoError(t, err)
	assert.Len(t, pages, 2)
	mc.AssertExpectations(t)
}

func TestQueryAll_Error(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(nil, assert.AnError).Once()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	assert.Error(t, err)
	assert.Nil(t, pages)
	mc.AssertExpectations(t)
}

func TestQueryAll_ErrorOnSecondPage(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-err-p2", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "p1"}},
		HasMore:    true,
		NextCursor: notionapi.Cursor("cursor-next"),
	}, nil).Once()

	mc.On("QueryDatabase", ctx, "db-err-p2", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == notionapi.Cursor("cursor-next")
	})).Return(nil, assert.AnError).Once()

	pages, err := QueryAll(ctx, mc, "db-err-p2", nil)
	assert.Error(t, err)
	assert.Nil(t, pages)
	assert.Contains(t, err.Error(), "notion: query all page")
	mc.AssertExpectations(t)
}

func TestFindForecastPages(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-fc", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		if !ok {
			return false
		}
		return pf.Property == "Period" && pf.RichText != nil && pf.RichText.Equals == "2026-07-01..2026-10-01"
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "fc-1"}},
		HasMore: false,
	}, nil).Once()

	pages, err := FindForecastPages(ctx, mc, "db-fc", "2026-07-01..2026-10-01")
	assert.NoError(t, err)
	assert.Len(t, pages, 1)
	assert.Equal(t, notionapi.ObjectID("fc-1"), pages[0].ID)
	mc.AssertExpectations(t)
}

func TestFindForecastPages_Empty(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-fc", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{},
			HasMore: false,
		}, nil).Once()

	pages, err := FindForecastPages(ctx, mc, "db-fc", "2026-07-01..2026-10-01")
	assert.NoError(t, err)
	assert.Empty(t, pages)
	mc.AssertExpectations(t)
}

func TestFindForecastPages_Error(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-err", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(nil, assert.AnError).Once()

	pages, err := FindForecastPages(ctx, mc, "db-err", "2026-07-01..2026-10-01")
	assert.Error(t, err)
	assert.Nil(t, pages)
	assert.Contains(t, err.Error(), "notion: find forecast pages")
	mc.AssertExpectations(t)
}

func TestQueryAll_ContextCancelled(t *testing.T) {
	mc := new(MockClient)
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately.

	mc.On("QueryDatabase", ctx, "db-1", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(nil, context.Canceled).Once()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	assert.Error(t, err)
	assert.Nil(t, pages)
}
