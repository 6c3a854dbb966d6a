package pagination

import (
	"context"
	"errors"
	"strconv"

	"github.com/Sternrassler/harvester/pkg/item"
)

// ErrMalformedPage is returned when a page cannot be decoded into items.
var ErrMalformedPage = errors.New("malformed page")

// Cursor is an opaque continuation token.
type Cursor interface {
	// Token returns the token for the next request. ok is false when the
	// next request carries no token (the first page of a sort-key walk).
	Token() (token string, ok bool)
}

// ItemCursor is a cursor advanced by each item consumed from its partition.
type ItemCursor interface {
	Cursor
	Advance(it item.RawItem)
}

// Pager is the capability a paginated partition exposes to the engines.
type Pager interface {
	// NextPage requests the page at the current cursor.
	NextPage(ctx context.Context) ([]item.RawItem, error)

	// Cursor returns the current cursor.
	Cursor() Cursor

	// Exhausted reports whether no further page can exist. It is false
	// before the first page.
	Exhausted() bool
}

// Consumer is implemented by pagers that track which items were taken from
// their pages.
type Consumer interface {
	Consumed(it item.RawItem)
}

// OffsetCursor counts consumed items. Its token is always present and starts
// at zero.
type OffsetCursor struct {
	offset int
}

// NewOffsetCursor creates an offset cursor starting at zero.
func NewOffsetCursor() *OffsetCursor {
	return &OffsetCursor{}
}

// Token implements Cursor.
func (c *OffsetCursor) Token() (string, bool) {
	return strconv.Itoa(c.offset), true
}

// Offset returns the number of consumed items.
func (c *OffsetCursor) Offset() int {
	return c.offset
}

// Advance implements ItemCursor.
func (c *OffsetCursor) Advance(item.RawItem) {
	c.offset++
}

// SortKeyCursor resumes after the last consumed item's sort key.
type SortKeyCursor struct {
	field string
	key   string
	set   bool
}

// NewSortKeyCursor creates a cursor reading the sort key from field.
func NewSortKeyCursor(field string) *SortKeyCursor {
	return &SortKeyCursor{field: field}
}

// Token implements Cursor.
func (c *SortKeyCursor) Token() (string, bool) {
	return c.key, c.set
}

// Advance implements ItemCursor.
func (c *SortKeyCursor) Advance(it item.RawItem) {
	c.key = it.String(c.field)
	c.set = true
}

// EndCursor is the forward cursor of connection-style APIs: no token for the
// first page, then the end cursor reported by the previous page.
type EndCursor struct {
	token string
	set   bool
}

// Token implements Cursor.
func (c *EndCursor) Token() (string, bool) {
	return c.token, c.set
}

// Set moves the cursor to token.
func (c *EndCursor) Set(token string) {
	c.token = token
	c.set = true
}

// Reset returns the cursor to the first page.
func (c *EndCursor) Reset() {
	c.token = ""
	c.set = false
}

// PageFunc fetches the page at cursor.
type PageFunc func(ctx context.Context, cursor Cursor) ([]item.RawItem, error)

// LimitPager pages a partition whose pages are capped at limit items. A page
// shorter than the cap means the partition is exhausted.
type LimitPager struct {
	fetch     PageFunc
	cursor    ItemCursor
	limit     int
	fetched   bool
	lastCount int
}

// NewLimitPager creates a pager. limit is clamped to at least 1.
func NewLimitPager(limit int, cursor ItemCursor, fetch PageFunc) *LimitPager {
	if limit < 1 {
		limit = 1
	}
	return &LimitPager{
		fetch:  fetch,
		cursor: cursor,
		limit:  limit,
	}
}

// NextPage implements Pager.
func (p *LimitPager) NextPage(ctx context.Context) ([]item.RawItem, error) {
	items, err := p.fetch(ctx, p.cursor)
	if err != nil {
		return nil, err
	}
	p.fetched = true
	p.lastCount = len(items)
	return items, nil
}

// Cursor implements Pager.
func (p *LimitPager) Cursor() Cursor {
	return p.cursor
}

// Exhausted implements Pager.
func (p *LimitPager) Exhausted() bool {
	return p.fetched && p.lastCount < p.limit
}

// Consumed implements Consumer.
func (p *LimitPager) Consumed(it item.RawItem) {
	p.cursor.Advance(it)
}

// Page is one page of a forward-cursor connection.
type Page struct {
	Items     []item.RawItem
	EndCursor string
	HasNext   bool
}

// ForwardFunc fetches the page after cursor.
type ForwardFunc func(ctx context.Context, after Cursor) (Page, error)

// ForwardPager pages a connection until it reports no next page.
type ForwardPager struct {
	fetch   ForwardFunc
	cursor  EndCursor
	fetched bool
	hasNext bool
}

// NewForwardPager creates a pager positioned at the first page.
func NewForwardPager(fetch ForwardFunc) *ForwardPager {
	return &ForwardPager{fetch: fetch}
}

// NextPage implements Pager.
func (p *ForwardPager) NextPage(ctx context.Context) ([]item.RawItem, error) {
	page, err := p.fetch(ctx, &p.cursor)
	if err != nil {
		return nil, err
	}
	p.fetched = true
	p.hasNext = page.HasNext
	if page.HasNext {
		p.cursor.Set(page.EndCursor)
	}
	return page.Items, nil
}

// Cursor implements Pager.
func (p *ForwardPager) Cursor() Cursor {
	return &p.cursor
}

// Exhausted implements Pager.
func (p *ForwardPager) Exhausted() bool {
	return p.fetched && !p.hasNext
}

// OffsetFunc fetches limit items starting at offset and reports the total
// size of the collection.
type OffsetFunc func(ctx context.Context, offset, limit int) (items []item.RawItem, total int, err error)

// OffsetPager pages a counted collection by offset and limit.
type OffsetPager struct {
	fetch   OffsetFunc
	limit   int
	offset  int
	total   int
	fetched bool
}

// NewOffsetPager creates a pager. limit is clamped to at least 1.
func NewOffsetPager(limit int, fetch OffsetFunc) *OffsetPager {
	if limit < 1 {
		limit = 1
	}
	return &OffsetPager{fetch: fetch, limit: limit}
}

// NextPage implements Pager.
func (p *OffsetPager) NextPage(ctx context.Context) ([]item.RawItem, error) {
	items, total, err := p.fetch(ctx, p.offset, p.limit)
	if err != nil {
		return nil, err
	}
	p.fetched = true
	p.total = total
	p.offset += p.limit
	return items, nil
}

// Cursor implements Pager.
func (p *OffsetPager) Cursor() Cursor {
	return &OffsetCursor{offset: p.offset}
}

// Exhausted implements Pager.
func (p *OffsetPager) Exhausted() bool {
	return p.fetched && p.offset >= p.total
}
