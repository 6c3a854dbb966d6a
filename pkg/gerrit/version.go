package gerrit

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrInvalidVersion is returned when the server version output cannot be parsed.
	ErrInvalidVersion = errors.New("invalid gerrit version")

	// ErrPaginationUnsupported is returned for servers that cannot page query results.
	ErrPaginationUnsupported = errors.New("gerrit version does not support pagination")
)

// output: gerrit version 2.10-rc1-988-g333a9dd
var versionRegex = regexp.MustCompile(`^gerrit version (\d+)\.(\d+).*`)

// Version is the major and minor version of a Gerrit server.
type Version struct {
	Major int
	Minor int
}

// ParseVersion extracts the version from the output of `gerrit version`.
func ParseVersion(output string) (Version, error) {
	output = strings.TrimSpace(output)
	m := versionRegex.FindStringSubmatch(output)
	if m == nil {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, output)
	}

	major, err := strconv.Atoi(m[1])
	if err != nil {
		return Version{}, fmt.Errorf("%w: major %q: %v", ErrInvalidVersion, m[1], err)
	}
	minor, err := strconv.Atoi(m[2])
	if err != nil {
		return Version{}, fmt.Errorf("%w: minor %q: %v", ErrInvalidVersion, m[2], err)
	}
	return Version{Major: major, Minor: minor}, nil
}

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// DualQueue reports whether open and closed reviews must be queried
// separately and merged.
func (v Version) DualQueue() bool {
	return v.Major == 2 && v.Minor == 8
}

// paginationMode is how a server resumes a query.
type paginationMode int

const (
	// modeOffset resumes with --start=N, N counting consumed reviews.
	modeOffset paginationMode = iota

	// modeSortKey resumes with resume_sortkey:<key> of the last consumed review.
	modeSortKey
)

func (v Version) pagination() (paginationMode, error) {
	switch {
	case v.Major >= 3, v.Major == 2 && v.Minor > 9:
		return modeOffset, nil
	case v.Major == 2 && v.Minor == 9:
		return 0, fmt.Errorf("%w: %s", ErrPaginationUnsupported, v)
	default:
		return modeSortKey, nil
	}
}
