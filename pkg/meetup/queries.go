package meetup

import (
	"fmt"
	"strconv"

	"github.com/Sternrassler/harvester/pkg/pagination"
)

// Event partitions of a group, walked in this order.
const (
	PartitionPast     = "pastEvents"
	PartitionUpcoming = "upcomingEvents"
)

// Partitions lists the event partitions in walk order.
var Partitions = []string{PartitionPast, PartitionUpcoming}

const eventFull = `{
  id
  title
  eventUrl
  description
  shortDescription
  dateTime
  host {
    id
    name
    memberPhoto {
      id
      baseUrl
    }
  }
  howToFindUs
  maxTickets
  group {
    id
    foundedDate
    joinMode
    name
    urlname
    latitude
    longitude
    customMemberLabel
    topics {
      urlkey
      name
    }
    stats {
      memberCounts {
        all
      }
    }
  }
  venue {
    id
    name
    address
    city
    state
    postalCode
    country
    lat
    lng
  }
  status
  endTime
  createdAt
  going
  waiting
}`

const eventDate = `{
  id
  dateTime
}`

const groupEventsTemplate = `{
  groupByUrlname(urlname: %s) {
    %s (input: {first: %d, after: %s}) {
      count
      pageInfo {
        hasNextPage
        endCursor
      }
      edges {
        cursor
        node %s
      }
    }
  }
}`

const eventTemplate = `{
  event(id: %s) %s
}`

const commentsTemplate = `{
  comments (offset: %d, limit: %d) {
    count
    edges {
      node {
        id
        created
        likeCount
        link
        text
        member {
          id
          name
          memberPhoto {
            id
            baseUrl
          }
        }
      }
    }
  }
}`

const ticketsTemplate = `{
  tickets (input: {first: %d, after: %s}) {
    pageInfo {
      hasNextPage
      endCursor
    }
    edges {
      node {
        createdAt
        updatedAt
        status
        membership {
          role
        }
        guestsCount
        user {
          id
          name
          memberPhoto {
            id
            baseUrl
          }
        }
      }
    }
  }
}`

// after renders a forward cursor as a GraphQL argument.
func after(c pagination.Cursor) string {
	if c == nil {
		return "null"
	}
	token, ok := c.Token()
	if !ok {
		return "null"
	}
	return strconv.Quote(token)
}

// GroupEventsQuery lists the ids and dates of one partition of a group's events.
func GroupEventsQuery(group, partition string, first int, cursor pagination.Cursor) string {
	return fmt.Sprintf(groupEventsTemplate, strconv.Quote(group), partition, first, after(cursor), eventDate)
}

// EventQuery fetches the full record of an event.
func EventQuery(id string) string {
	return fmt.Sprintf(eventTemplate, strconv.Quote(id), eventFull)
}

// CommentsQuery fetches limit comments of an event starting at offset.
func CommentsQuery(id string, offset, limit int) string {
	return fmt.Sprintf(eventTemplate, strconv.Quote(id), fmt.Sprintf(commentsTemplate, offset, limit))
}

// TicketsQuery fetches first tickets of an event after cursor.
func TicketsQuery(id string, first int, cursor pagination.Cursor) string {
	return fmt.Sprintf(eventTemplate, strconv.Quote(id), fmt.Sprintf(ticketsTemplate, first, after(cursor)))
}
