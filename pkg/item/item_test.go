package item

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRawItem_Strip(t *testing.T) {
	tests := []struct {
		name string
		path []string
		want map[string]any
	}{
		{
			name: "top level field",
			path: []string{"venue"},
			want: map[string]any{
				"group": map[string]any{"name": "go", "topics": []any{"a"}},
				"title": "meetup",
			},
		},
		{
			name: "nested field",
			path: []string{"group", "topics"},
			want: map[string]any{
				"group": map[string]any{"name": "go"},
				"title": "meetup",
				"venue": map[string]any{"city": "Madrid"},
			},
		},
		{
			name: "missing intermediate",
			path: []string{"host", "name"},
			want: map[string]any{
				"group": map[string]any{"name": "go", "topics": []any{"a"}},
				"title": "meetup",
				"venue": map[string]any{"city": "Madrid"},
			},
		},
		{
			name: "intermediate is not an object",
			path: []string{"title", "x"},
			want: map[string]any{
				"group": map[string]any{"name": "go", "topics": []any{"a"}},
				"title": "meetup",
				"venue": map[string]any{"city": "Madrid"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := RawItem{Data: map[string]any{
				"group": map[string]any{"name": "go", "topics": []any{"a"}},
				"title": "meetup",
				"venue": map[string]any{"city": "Madrid"},
			}}
			it.Strip(tt.path...)
			assert.Equal(t, tt.want, it.Data)
		})
	}
}

func TestRawItem_StripNilData(t *testing.T) {
	var it RawItem
	it.Strip("venue")
	assert.Nil(t, it.Data)
}

func TestRawItem_SetAndString(t *testing.T) {
	var it RawItem
	it.Set("sortKey", "00abc")
	it.Set("number", 7)

	assert.Equal(t, "00abc", it.String("sortKey"))
	assert.Equal(t, "", it.String("number"))
	assert.Equal(t, "", it.String("missing"))
}

func TestRawItem_After(t *testing.T) {
	watermark := time.Unix(30, 0).UTC()

	assert.True(t, RawItem{UpdatedOn: time.Unix(31, 0)}.After(watermark))
	assert.False(t, RawItem{UpdatedOn: time.Unix(30, 0)}.After(watermark))
	assert.False(t, RawItem{UpdatedOn: time.Unix(10, 0)}.After(watermark))
}

func TestFromUnix(t *testing.T) {
	got := FromUnix(1500000000.5)
	assert.Equal(t, int64(1500000000), got.Unix())
	assert.Equal(t, 500*time.Millisecond, time.Duration(got.Nanosecond()))
	assert.Equal(t, time.UTC, got.Location())
}
