// Package item defines the raw record handed from connectors to callers.
package item

import (
	"time"
)

// Categories of items produced by the connectors.
const (
	CategoryReview = "review"
	CategoryEvent  = "event"
)

// RawItem is a service-specific record with strongly typed identity and
// ordering fields. Everything else the remote service returned lives in Data.
type RawItem struct {
	// ID is the service identifier of the record.
	ID string `json:"id"`

	// UpdatedOn is the timestamp used for watermark filtering and ordering (UTC).
	UpdatedOn time.Time `json:"updated_on"`

	// Category is the kind of record (review, event).
	Category string `json:"category"`

	// Data holds the decoded payload as returned by the service.
	Data map[string]any `json:"data"`
}

// String returns the value stored under key, or "" when absent or not a string.
func (it RawItem) String(key string) string {
	if it.Data == nil {
		return ""
	}
	s, _ := it.Data[key].(string)
	return s
}

// Set stores value under key, allocating Data when needed.
func (it *RawItem) Set(key string, value any) {
	if it.Data == nil {
		it.Data = make(map[string]any)
	}
	it.Data[key] = value
}

// Strip removes the field addressed by path from Data. Intermediate values
// that are not objects, or missing keys, leave the item untouched.
func (it *RawItem) Strip(path ...string) {
	if len(path) == 0 || it.Data == nil {
		return
	}

	node := it.Data
	for _, key := range path[:len(path)-1] {
		next, ok := node[key].(map[string]any)
		if !ok {
			return
		}
		node = next
	}
	delete(node, path[len(path)-1])
}

// After reports whether the item was updated strictly after the watermark.
func (it RawItem) After(watermark time.Time) bool {
	return it.UpdatedOn.After(watermark)
}

// FromUnix converts a Unix timestamp in seconds (fractional allowed) to UTC.
func FromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
