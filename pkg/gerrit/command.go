package gerrit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/harvester/pkg/pagination"
)

// ErrFilterUnsupported is returned for query filters other than the review status.
var ErrFilterUnsupported = errors.New("filter not supported")

// Status filters accepted by the query command.
const (
	FilterOpen   = "status:open"
	FilterClosed = "status:closed"
)

const (
	// DefaultPort is the Gerrit SSH port.
	DefaultPort = "29418"

	// DefaultMaxReviews is the page size of a query.
	DefaultMaxReviews = 500
)

// Config holds the connector configuration.
type Config struct {
	// Hostname of the Gerrit server (also the origin of the items)
	Hostname string

	// User is the SSH user
	User string

	// Port is the SSH port (default: 29418, empty omits -p)
	Port string

	// MaxReviews is the number of reviews per query (min 1)
	MaxReviews int

	// Project restricts the query to one project (optional)
	Project string

	// BlacklistIDs are review numbers excluded from queries and results
	BlacklistIDs []string

	// DisableHostKeyCheck skips SSH host identity checks
	DisableHostKeyCheck bool

	// IDFilePath is the SSH private key path (optional)
	IDFilePath string
}

// DefaultConfig returns the default configuration for hostname.
func DefaultConfig(hostname string) Config {
	return Config{
		Hostname:   hostname,
		Port:       DefaultPort,
		MaxReviews: DefaultMaxReviews,
	}
}

// baseCommand returns the ssh invocation up to and including "gerrit".
func (c Config) baseCommand() string {
	var b strings.Builder
	b.WriteString("ssh ")
	if c.DisableHostKeyCheck {
		b.WriteString("-o StrictHostKeyChecking=no ")
	}
	if c.IDFilePath != "" {
		fmt.Fprintf(&b, "-i %s ", c.IDFilePath)
	}
	if c.Port != "" {
		fmt.Fprintf(&b, "-p %s ", c.Port)
	}
	fmt.Fprintf(&b, "%s@%s gerrit", c.User, c.Hostname)
	return b.String()
}

// VersionCommand returns the command printing the server version.
func (c Config) VersionCommand() string {
	return c.baseCommand() + " version"
}

// QueryCommand returns the query command for filter ("" for all reviews)
// resumed at cursor, in the form the server version v understands.
func (c Config) QueryCommand(v Version, filter string, cursor pagination.Cursor) (string, error) {
	if filter != "" && filter != FilterOpen && filter != FilterClosed {
		return "", fmt.Errorf("%w: %s", ErrFilterUnsupported, filter)
	}
	mode, err := v.pagination()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(c.baseCommand())
	b.WriteString(" query ")
	if c.Project != "" {
		fmt.Fprintf(&b, "project:%s ", c.Project)
	}
	fmt.Fprintf(&b, "limit:%d", c.MaxReviews)

	switch {
	case filter == "":
		b.WriteString(" '(status:open OR status:closed)")
		if len(c.BlacklistIDs) > 0 {
			fmt.Fprintf(&b, " AND NOT (%s)", strings.Join(c.BlacklistIDs, " OR "))
		}
		b.WriteString("'")
	case len(c.BlacklistIDs) > 0:
		fmt.Fprintf(&b, " '%s AND NOT (%s)'", filter, strings.Join(c.BlacklistIDs, ","))
	default:
		fmt.Fprintf(&b, " %s ", filter)
	}

	b.WriteString(" --all-approvals --comments --format=JSON")

	if cursor != nil {
		if token, ok := cursor.Token(); ok {
			switch mode {
			case modeOffset:
				b.WriteString(" --start=" + token)
			case modeSortKey:
				b.WriteString(" resume_sortkey:" + token)
			}
		}
	}

	return b.String(), nil
}

// newCursor returns the cursor matching the server's pagination mode.
func newCursor(mode paginationMode) pagination.ItemCursor {
	if mode == modeOffset {
		return pagination.NewOffsetCursor()
	}
	return pagination.NewSortKeyCursor("sortKey")
}
