package gerrit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Sternrassler/harvester/pkg/item"
	"github.com/Sternrassler/harvester/pkg/pagination"
)

// ParseReviews decodes newline-delimited query output. Only objects carrying
// a project are reviews; the trailing stats row is dropped.
func ParseReviews(raw []byte) ([]item.RawItem, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var reviews []item.RawItem
	for {
		var obj map[string]any
		err := dec.Decode(&obj)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", pagination.ErrMalformedPage, err)
		}
		if _, ok := obj["project"]; !ok {
			continue
		}

		review, err := toReview(obj)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	return reviews, nil
}

func toReview(obj map[string]any) (item.RawItem, error) {
	number, ok := obj["number"]
	if !ok {
		return item.RawItem{}, fmt.Errorf("%w: review without number", pagination.ErrMalformedPage)
	}

	updated, ok := obj["lastUpdated"].(json.Number)
	if !ok {
		return item.RawItem{}, fmt.Errorf("%w: review %v without lastUpdated", pagination.ErrMalformedPage, number)
	}
	ts, err := updated.Float64()
	if err != nil {
		return item.RawItem{}, fmt.Errorf("%w: review %v lastUpdated %q", pagination.ErrMalformedPage, number, updated)
	}

	return item.RawItem{
		ID:        fmt.Sprint(number),
		UpdatedOn: item.FromUnix(ts),
		Category:  item.CategoryReview,
		Data:      obj,
	}, nil
}
