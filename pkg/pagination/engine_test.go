package pagination

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Sternrassler/harvester/pkg/item"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func review(id string, updated int64) item.RawItem {
	return item.RawItem{
		ID:        id,
		UpdatedOn: ts(updated),
		Category:  item.CategoryReview,
		Data:      map[string]any{"sortKey": "sk-" + id},
	}
}

// pagedSource serves fixed pages in order and records the tokens it was asked for.
type pagedSource struct {
	pages  [][]item.RawItem
	calls  int
	tokens []string
	err    error
	errAt  int
}

func (s *pagedSource) fetch(_ context.Context, cursor Cursor) ([]item.RawItem, error) {
	s.calls++
	token, ok := cursor.Token()
	if !ok {
		token = "<none>"
	}
	s.tokens = append(s.tokens, token)

	if s.err != nil && s.calls == s.errAt {
		return nil, s.err
	}
	if s.calls > len(s.pages) {
		return nil, nil
	}
	return s.pages[s.calls-1], nil
}

func ids(items []item.RawItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func drain(t *testing.T, seq func(func(item.RawItem, error) bool)) ([]item.RawItem, error) {
	t.Helper()
	var out []item.RawItem
	for it, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, it)
	}
	return out, nil
}

func TestMerge_DualQueueScenario(t *testing.T) {
	open := &pagedSource{pages: [][]item.RawItem{{review("o50", 50), review("o40", 40)}}}
	closed := &pagedSource{pages: [][]item.RawItem{{review("c45", 45), review("c10", 10)}}}

	openPager := NewLimitPager(2, NewOffsetCursor(), open.fetch)
	closedPager := NewLimitPager(2, NewOffsetCursor(), closed.fetch)

	got, err := drain(t, Merge(context.Background(), ts(30), openPager, closedPager))
	require.NoError(t, err)

	assert.Equal(t, []string{"o50", "c45", "o40"}, ids(got))

	// The open page was full, so its partition was refilled at offset 2.
	assert.Equal(t, []string{"0", "2"}, open.tokens)
	assert.Equal(t, []string{"0"}, closed.tokens)
}

func TestMerge_TiesFavourEarlierPartition(t *testing.T) {
	a := &pagedSource{pages: [][]item.RawItem{{review("a", 20)}}}
	b := &pagedSource{pages: [][]item.RawItem{{review("b", 20)}}}

	got, err := drain(t, Merge(context.Background(), ts(0),
		NewLimitPager(10, NewOffsetCursor(), a.fetch),
		NewLimitPager(10, NewOffsetCursor(), b.fetch)))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestMerge_NonIncreasingAndAboveWatermark(t *testing.T) {
	var openPages, closedPages [][]item.RawItem
	for p := 0; p < 4; p++ {
		var op, cp []item.RawItem
		for i := 0; i < 3; i++ {
			n := int64(1000 - p*30 - i*10)
			op = append(op, review(fmt.Sprintf("o%d", n), n))
			cp = append(cp, review(fmt.Sprintf("c%d", n-3), n-3))
		}
		openPages = append(openPages, op)
		closedPages = append(closedPages, cp)
	}

	watermark := ts(905)
	open := &pagedSource{pages: openPages}
	closed := &pagedSource{pages: closedPages}

	got, err := drain(t, Merge(context.Background(), watermark,
		NewLimitPager(3, NewSortKeyCursor("sortKey"), open.fetch),
		NewLimitPager(3, NewSortKeyCursor("sortKey"), closed.fetch)))
	require.NoError(t, err)
	require.NotEmpty(t, got)

	for i, it := range got {
		assert.True(t, it.UpdatedOn.After(watermark), "item %s at or before watermark", it.ID)
		if i > 0 {
			assert.False(t, it.UpdatedOn.After(got[i-1].UpdatedOn), "order broken at %s", it.ID)
		}
	}

	// Sort-key resumption: first page has no token, later pages resume after
	// the last consumed item of that partition.
	assert.Equal(t, "<none>", open.tokens[0])
	assert.Equal(t, "sk-o980", open.tokens[1])
}

func TestMerge_SinglePartitionDrainsAllPages(t *testing.T) {
	src := &pagedSource{pages: [][]item.RawItem{
		{review("5", 50), review("4", 40)},
		{review("3", 30), review("2", 20)},
		{review("1", 10)},
	}}

	got, err := drain(t, Merge(context.Background(), time.Time{}, NewLimitPager(2, NewOffsetCursor(), src.fetch)))
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "4", "3", "2", "1"}, ids(got))
	assert.Equal(t, []string{"0", "2", "4"}, src.tokens)
}

func TestMerge_RefillErrorEndsSequence(t *testing.T) {
	boom := errors.New("boom")
	src := &pagedSource{
		pages: [][]item.RawItem{{review("2", 20)}},
		err:   boom,
		errAt: 2,
	}

	got, err := drain(t, Merge(context.Background(), time.Time{}, NewLimitPager(1, NewOffsetCursor(), src.fetch)))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"2"}, ids(got))
}

func TestMerge_StopsWhenConsumerStops(t *testing.T) {
	src := &pagedSource{pages: [][]item.RawItem{{review("2", 20)}, {review("1", 10)}}}

	for range Merge(context.Background(), time.Time{}, NewLimitPager(1, NewOffsetCursor(), src.fetch)) {
		break
	}
	assert.Equal(t, 1, src.calls, "no page should be requested after the consumer stops")
}

func TestMerge_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &pagedSource{pages: [][]item.RawItem{{review("1", 10)}}}
	_, err := drain(t, Merge(ctx, time.Time{}, NewLimitPager(1, NewOffsetCursor(), src.fetch)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, src.calls)
}

// connection serves forward-cursor pages keyed by the incoming token.
type connection struct {
	pages  map[string]Page
	tokens []string
}

func (c *connection) fetch(_ context.Context, after Cursor) (Page, error) {
	token, ok := after.Token()
	if !ok {
		token = "null"
	}
	c.tokens = append(c.tokens, token)
	page, found := c.pages[token]
	if !found {
		return Page{}, fmt.Errorf("%w: unknown cursor %q", ErrMalformedPage, token)
	}
	return page, nil
}

func event(id string, sec int64) item.RawItem {
	return item.RawItem{ID: id, UpdatedOn: ts(sec), Category: item.CategoryEvent}
}

func TestWalk_CursorScenario(t *testing.T) {
	past := &connection{pages: map[string]Page{
		"null": {Items: []item.RawItem{event("p1", 100), event("p2", 110)}},
	}}
	upcoming := &connection{pages: map[string]Page{
		"null": {Items: []item.RawItem{event("u1", 200), event("u2", 210)}, EndCursor: "c1", HasNext: true},
		"c1":   {Items: []item.RawItem{event("u3", 220)}},
	}}

	var expanded []string
	expand := func(_ context.Context, it item.RawItem) (item.RawItem, error) {
		expanded = append(expanded, it.ID)
		it.Set("full", true)
		return it, nil
	}

	got, err := drain(t, Walk(context.Background(), ts(0), expand,
		NewForwardPager(past.fetch), NewForwardPager(upcoming.fetch)))
	require.NoError(t, err)

	assert.Equal(t, []string{"p1", "p2", "u1", "u2", "u3"}, ids(got))
	assert.Equal(t, ids(got), expanded)
	assert.Equal(t, true, got[0].Data["full"])
	assert.Equal(t, []string{"null"}, past.tokens)
	assert.Equal(t, []string{"null", "c1"}, upcoming.tokens)
}

func TestWalk_SkipsWithoutStopping(t *testing.T) {
	src := &connection{pages: map[string]Page{
		"null": {Items: []item.RawItem{event("old", 10), event("new", 50)}, EndCursor: "c1", HasNext: true},
		"c1":   {Items: []item.RawItem{event("older", 5), event("newer", 60)}},
	}}

	var expanded int
	got, err := drain(t, Walk(context.Background(), ts(20), func(_ context.Context, it item.RawItem) (item.RawItem, error) {
		expanded++
		return it, nil
	}, NewForwardPager(src.fetch)))
	require.NoError(t, err)

	assert.Equal(t, []string{"new", "newer"}, ids(got))
	assert.Equal(t, 2, expanded)
}

func TestWalk_ExpandError(t *testing.T) {
	src := &connection{pages: map[string]Page{
		"null": {Items: []item.RawItem{event("e1", 50)}},
	}}
	boom := errors.New("boom")

	_, err := drain(t, Walk(context.Background(), time.Time{}, func(context.Context, item.RawItem) (item.RawItem, error) {
		return item.RawItem{}, boom
	}, NewForwardPager(src.fetch)))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "e1")
}

func TestCollect_OffsetPager(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		limit     int
		wantCalls int
	}{
		{name: "several pages", total: 25, limit: 10, wantCalls: 3},
		{name: "exact multiple", total: 20, limit: 10, wantCalls: 2},
		{name: "empty collection still asks once", total: 0, limit: 10, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var offsets []int
			pager := NewOffsetPager(tt.limit, func(_ context.Context, offset, limit int) ([]item.RawItem, int, error) {
				offsets = append(offsets, offset)
				var page []item.RawItem
				for i := offset; i < offset+limit && i < tt.total; i++ {
					page = append(page, item.RawItem{ID: fmt.Sprint(i)})
				}
				return page, tt.total, nil
			})

			got, err := Collect(context.Background(), pager)
			require.NoError(t, err)
			assert.Len(t, got, tt.total)
			assert.Len(t, offsets, tt.wantCalls)
			assert.True(t, pager.Exhausted())
		})
	}
}

func TestCollect_ForwardPagerYieldsEveryEdge(t *testing.T) {
	src := &connection{pages: map[string]Page{
		"null": {Items: []item.RawItem{{ID: "t1"}, {ID: "t2"}}, EndCursor: "a", HasNext: true},
		"a":    {Items: []item.RawItem{{ID: "t3"}}, EndCursor: "b", HasNext: true},
		"b":    {Items: []item.RawItem{{ID: "t4"}}},
	}}

	got, err := Collect(context.Background(), NewForwardPager(src.fetch))
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t3", "t4"}, ids(got))
}
