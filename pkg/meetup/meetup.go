// Package meetup fetches the events of a Meetup group through the GraphQL API.
//
// Past events are walked first, then upcoming ones. Each partition is listed
// with only ids and dates; events dated after the watermark are fetched in
// full together with their comments and RSVPs.
package meetup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/Sternrassler/harvester/pkg/client"
	"github.com/Sternrassler/harvester/pkg/item"
	"github.com/Sternrassler/harvester/pkg/logging"
	"github.com/Sternrassler/harvester/pkg/pagination"
	"github.com/Sternrassler/harvester/pkg/ratelimit"
	"github.com/rs/zerolog"
)

const (
	// DefaultURL is the GraphQL endpoint.
	DefaultURL = "https://api.meetup.com/gql"

	// DefaultMaxItems is the page size of every query.
	DefaultMaxItems = 10

	// DefaultMinRate is the quota floor below which requests wait.
	DefaultMinRate = 1

	// DefaultSleepTime is the initial backoff after a failed request.
	DefaultSleepTime = 30 * time.Second

	dateLayout = "2006-01-02T15:04Z07:00"
)

var (
	// ErrGroupNotFound is returned when the group does not exist or is not visible.
	ErrGroupNotFound = errors.New("meetup group not found")

	// ErrQuery is returned when the API answers with GraphQL errors.
	ErrQuery = errors.New("meetup query failed")
)

// Transport posts a request body and returns the response body.
// *client.Client satisfies it.
type Transport interface {
	Post(ctx context.Context, url string, headers http.Header, body []byte) ([]byte, error)
}

// Config holds the connector configuration.
type Config struct {
	// URL is the GraphQL endpoint (default: DefaultURL)
	URL string

	// Group is the url name of the group
	Group string

	// Token is the OAuth2 bearer token
	Token string

	// MaxItems is the page size (min 1)
	MaxItems int

	// FilterClassified removes ClassifiedFields from every event
	FilterClassified bool
}

// DefaultConfig returns the default configuration for group.
func DefaultConfig(group, token string) Config {
	return Config{
		URL:      DefaultURL,
		Group:    group,
		Token:    token,
		MaxItems: DefaultMaxItems,
	}
}

// GovernorConfig returns the rate-limit settings of the API. The reset
// header holds the seconds left until the quota resets.
func GovernorConfig(sleepForRate bool) ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	cfg.SleepForRate = sleepForRate
	cfg.MinRate = DefaultMinRate
	cfg.Reset = ratelimit.DeltaSeconds
	return cfg
}

// TransportConfig returns an HTTP client configuration for the API.
func TransportConfig(userAgent string, governor *ratelimit.Governor) client.Config {
	cfg := client.DefaultConfig(userAgent)
	cfg.Retry.InitialBackoff = DefaultSleepTime
	cfg.Governor = governor
	return cfg
}

// Client is the Meetup connector.
type Client struct {
	config    Config
	transport Transport
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a connector.
func New(cfg Config, transport Transport) (*Client, error) {
	if cfg.Group == "" {
		return nil, errors.New("meetup group is required")
	}
	if transport == nil {
		return nil, errors.New("meetup transport is required")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.MaxItems < 1 {
		cfg.MaxItems = 1
	}

	return &Client{
		config:    cfg,
		transport: transport,
		logger:    logging.NewLogger(logging.ComponentMeetup).With().Str("group", cfg.Group).Logger(),
		now:       time.Now,
	}, nil
}

// Config returns the connector configuration.
func (c *Client) Config() Config {
	return c.config
}

// SetClock replaces the clock stamping fetched_on (for testing).
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}

type graphQLError struct {
	Message string `json:"message"`
}

type response[T any] struct {
	Data   T              `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type eventConnection struct {
	Count    int      `json:"count"`
	PageInfo pageInfo `json:"pageInfo"`
	Edges    []struct {
		Cursor string `json:"cursor"`
		Node   struct {
			ID       string `json:"id"`
			DateTime string `json:"dateTime"`
		} `json:"node"`
	} `json:"edges"`
}

type groupData struct {
	Group map[string]eventConnection `json:"groupByUrlname"`
}

type nodeEdges struct {
	Edges []struct {
		Node map[string]any `json:"node"`
	} `json:"edges"`
}

type eventData[T any] struct {
	Event *T `json:"event"`
}

type commentsData struct {
	Comments struct {
		Count int `json:"count"`
		nodeEdges
	} `json:"comments"`
}

type ticketsData struct {
	Tickets struct {
		PageInfo pageInfo `json:"pageInfo"`
		nodeEdges
	} `json:"tickets"`
}

// query posts q and returns the decoded data member of the answer.
func query[T any](ctx context.Context, c *Client, q string) (T, error) {
	var zero T

	body, err := json.Marshal(map[string]string{"query": q})
	if err != nil {
		return zero, fmt.Errorf("encode query: %w", err)
	}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.config.Token)
	headers.Set("Content-Type", "application/json")

	c.logger.Debug().Str("query", q).Msg("Sending query")
	raw, err := c.transport.Post(ctx, c.config.URL, headers, body)
	if err != nil {
		return zero, err
	}

	var resp response[T]
	if err := json.Unmarshal(raw, &resp); err != nil {
		return zero, fmt.Errorf("%w: %v", pagination.ErrMalformedPage, err)
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, len(resp.Errors))
		for i, e := range resp.Errors {
			msgs[i] = e.Message
		}
		return zero, fmt.Errorf("%w: %s", ErrQuery, strings.Join(msgs, "; "))
	}
	return resp.Data, nil
}

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		if t, err2 := time.Parse(time.RFC3339, value); err2 == nil {
			return t.UTC(), nil
		}
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// eventsPager walks one partition of the group's events.
func (c *Client) eventsPager(partition string) *pagination.ForwardPager {
	return pagination.NewForwardPager(func(ctx context.Context, cursor pagination.Cursor) (pagination.Page, error) {
		data, err := query[groupData](ctx, c, GroupEventsQuery(c.config.Group, partition, c.config.MaxItems, cursor))
		if err != nil {
			return pagination.Page{}, err
		}
		if data.Group == nil {
			c.logger.Error().Msg("Can't get meetup group")
			return pagination.Page{}, fmt.Errorf("%w: %s", ErrGroupNotFound, c.config.Group)
		}

		conn := data.Group[partition]
		page := pagination.Page{
			Items:     make([]item.RawItem, 0, len(conn.Edges)),
			EndCursor: conn.PageInfo.EndCursor,
			HasNext:   conn.PageInfo.HasNextPage,
		}
		for _, edge := range conn.Edges {
			date, err := parseDate(edge.Node.DateTime)
			if err != nil {
				return pagination.Page{}, fmt.Errorf("%w: event %s dateTime %q", pagination.ErrMalformedPage, edge.Node.ID, edge.Node.DateTime)
			}
			page.Items = append(page.Items, item.RawItem{
				ID:        edge.Node.ID,
				UpdatedOn: date,
				Category:  item.CategoryEvent,
				Data:      map[string]any{"id": edge.Node.ID, "dateTime": edge.Node.DateTime},
			})
		}

		c.logger.Debug().
			Str("partition", partition).
			Int("count", len(page.Items)).
			Bool("has_next", page.HasNext).
			Msg("Received events page")
		return page, nil
	})
}

// Event fetches the full record of an event.
func (c *Client) Event(ctx context.Context, id string) (map[string]any, error) {
	data, err := query[eventData[map[string]any]](ctx, c, EventQuery(id))
	if err != nil {
		return nil, err
	}
	if data.Event == nil {
		return nil, fmt.Errorf("%w: event %s missing", pagination.ErrMalformedPage, id)
	}
	return *data.Event, nil
}

// Comments fetches every comment of an event.
func (c *Client) Comments(ctx context.Context, id string) ([]any, error) {
	pager := pagination.NewOffsetPager(c.config.MaxItems, func(ctx context.Context, offset, limit int) ([]item.RawItem, int, error) {
		data, err := query[eventData[commentsData]](ctx, c, CommentsQuery(id, offset, limit))
		if err != nil {
			return nil, 0, err
		}
		if data.Event == nil {
			return nil, 0, fmt.Errorf("%w: event %s missing", pagination.ErrMalformedPage, id)
		}
		comments := data.Event.Comments
		return nodes(comments.nodeEdges), comments.Count, nil
	})

	items, err := pagination.Collect(ctx, pager)
	if err != nil {
		return nil, fmt.Errorf("comments of event %s: %w", id, err)
	}
	return payloads(items), nil
}

// RSVPs fetches every ticket of an event.
func (c *Client) RSVPs(ctx context.Context, id string) ([]any, error) {
	pager := pagination.NewForwardPager(func(ctx context.Context, cursor pagination.Cursor) (pagination.Page, error) {
		data, err := query[eventData[ticketsData]](ctx, c, TicketsQuery(id, c.config.MaxItems, cursor))
		if err != nil {
			return pagination.Page{}, err
		}
		if data.Event == nil {
			return pagination.Page{}, fmt.Errorf("%w: event %s missing", pagination.ErrMalformedPage, id)
		}
		tickets := data.Event.Tickets
		return pagination.Page{
			Items:     nodes(tickets.nodeEdges),
			EndCursor: tickets.PageInfo.EndCursor,
			HasNext:   tickets.PageInfo.HasNextPage,
		}, nil
	})

	items, err := pagination.Collect(ctx, pager)
	if err != nil {
		return nil, fmt.Errorf("rsvps of event %s: %w", id, err)
	}
	return payloads(items), nil
}

func nodes(e nodeEdges) []item.RawItem {
	items := make([]item.RawItem, len(e.Edges))
	for i, edge := range e.Edges {
		items[i] = item.RawItem{Data: edge.Node}
	}
	return items
}

func payloads(items []item.RawItem) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = it.Data
	}
	return out
}

// expand replaces an event summary with the full event, its comments and RSVPs.
func (c *Client) expand(ctx context.Context, summary item.RawItem) (item.RawItem, error) {
	c.logger.Debug().Str("id", summary.ID).Msg("Fetching event")

	full, err := c.Event(ctx, summary.ID)
	if err != nil {
		return item.RawItem{}, err
	}
	comments, err := c.Comments(ctx, summary.ID)
	if err != nil {
		return item.RawItem{}, err
	}
	rsvps, err := c.RSVPs(ctx, summary.ID)
	if err != nil {
		return item.RawItem{}, err
	}

	it := item.RawItem{
		ID:        summary.ID,
		UpdatedOn: summary.UpdatedOn,
		Category:  item.CategoryEvent,
		Data:      full,
	}
	it.Set("comments", comments)
	it.Set("rsvps", rsvps)
	it.Set("fetched_on", float64(c.now().UnixNano())/float64(time.Second))
	return it, nil
}

// Fetch returns the group's events dated after watermark: past events first,
// then upcoming ones, each in API order. Fatal errors end the sequence as its
// last element.
func (c *Client) Fetch(ctx context.Context, watermark time.Time) iter.Seq2[item.RawItem, error] {
	return func(yield func(item.RawItem, error) bool) {
		c.logger.Info().Time("from_date", watermark).Msg("Fetching events")

		partitions := make([]pagination.Pager, len(Partitions))
		for i, p := range Partitions {
			partitions[i] = c.eventsPager(p)
		}

		count := 0
		for event, err := range pagination.Walk(ctx, watermark, c.expand, partitions...) {
			if err != nil {
				c.logger.Error().Err(err).Msg("Fetch failed")
				yield(item.RawItem{}, err)
				return
			}
			if c.config.FilterClassified {
				FilterClassified(&event)
			}
			count++
			if !yield(event, nil) {
				return
			}
		}

		c.logger.Info().Int("count", count).Msg("Fetch process completed")
	}
}
