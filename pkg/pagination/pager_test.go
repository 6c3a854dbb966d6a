package pagination

import (
	"context"
	"testing"

	"github.com/Sternrassler/harvester/pkg/item"
	"github.com/stretchr/testify/assert"
)

func TestOffsetCursor(t *testing.T) {
	c := NewOffsetCursor()

	token, ok := c.Token()
	assert.True(t, ok)
	assert.Equal(t, "0", token)

	c.Advance(item.RawItem{})
	c.Advance(item.RawItem{})
	token, _ = c.Token()
	assert.Equal(t, "2", token)
	assert.Equal(t, 2, c.Offset())
}

func TestSortKeyCursor(t *testing.T) {
	c := NewSortKeyCursor("sortKey")

	_, ok := c.Token()
	assert.False(t, ok, "first page carries no sort key")

	c.Advance(item.RawItem{Data: map[string]any{"sortKey": "001"}})
	c.Advance(item.RawItem{Data: map[string]any{"sortKey": "002"}})

	token, ok := c.Token()
	assert.True(t, ok)
	assert.Equal(t, "002", token)
}

func TestEndCursor(t *testing.T) {
	var c EndCursor

	_, ok := c.Token()
	assert.False(t, ok)

	c.Set("abc")
	token, ok := c.Token()
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	c.Reset()
	_, ok = c.Token()
	assert.False(t, ok)
}

func TestLimitPager_Exhausted(t *testing.T) {
	pages := [][]item.RawItem{{{ID: "1"}, {ID: "2"}}, {{ID: "3"}}}
	calls := 0
	p := NewLimitPager(2, NewOffsetCursor(), func(context.Context, Cursor) ([]item.RawItem, error) {
		calls++
		return pages[calls-1], nil
	})

	assert.False(t, p.Exhausted(), "not exhausted before the first page")

	_, _ = p.NextPage(context.Background())
	assert.False(t, p.Exhausted(), "full page may have a successor")

	_, _ = p.NextPage(context.Background())
	assert.True(t, p.Exhausted(), "short page ends the partition")
}

func TestLimitPager_ClampsLimit(t *testing.T) {
	p := NewLimitPager(0, NewOffsetCursor(), func(context.Context, Cursor) ([]item.RawItem, error) {
		return []item.RawItem{{ID: "1"}}, nil
	})
	_, _ = p.NextPage(context.Background())
	assert.False(t, p.Exhausted())
}

func TestForwardPager_Cursor(t *testing.T) {
	p := NewForwardPager(func(_ context.Context, after Cursor) (Page, error) {
		if _, ok := after.Token(); !ok {
			return Page{EndCursor: "next", HasNext: true}, nil
		}
		return Page{}, nil
	})

	_, _ = p.NextPage(context.Background())
	token, ok := p.Cursor().Token()
	assert.True(t, ok)
	assert.Equal(t, "next", token)
	assert.False(t, p.Exhausted())

	_, _ = p.NextPage(context.Background())
	assert.True(t, p.Exhausted())
}
