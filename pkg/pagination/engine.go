package pagination

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/Sternrassler/harvester/pkg/item"
	"github.com/Sternrassler/harvester/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_pages_total",
		Help: "Total pages requested by engine",
	}, []string{"engine"})

	itemsYieldedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_items_yielded_total",
		Help: "Total items yielded by engine",
	}, []string{"engine"})
)

// ExpandFunc turns a summary item into the item to yield.
type ExpandFunc func(ctx context.Context, it item.RawItem) (item.RawItem, error)

func nextPage(ctx context.Context, engine string, p Pager) ([]item.RawItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pagesTotal.WithLabelValues(engine).Inc()
	return p.NextPage(ctx)
}

// Merge interleaves the partitions by descending update time. The front item
// with the greatest update time is taken next; on ties the earlier partition
// wins. The sequence ends at the first item updated at or before watermark,
// which is not yielded, or when every partition is drained.
//
// A partition is refilled when its queue is empty and it is not exhausted.
func Merge(ctx context.Context, watermark time.Time, pagers ...Pager) iter.Seq2[item.RawItem, error] {
	return func(yield func(item.RawItem, error) bool) {
		logger := logging.NewLogger(logging.ComponentPagination)
		queues := make([][]item.RawItem, len(pagers))

		for i, p := range pagers {
			page, err := nextPage(ctx, "merge", p)
			if err != nil {
				yield(item.RawItem{}, fmt.Errorf("partition %d: %w", i, err))
				return
			}
			queues[i] = page
		}

		for {
			idx := -1
			for i, q := range queues {
				if len(q) == 0 {
					continue
				}
				if idx < 0 || q[0].UpdatedOn.After(queues[idx][0].UpdatedOn) {
					idx = i
				}
			}
			if idx < 0 {
				return
			}

			it := queues[idx][0]
			queues[idx] = queues[idx][1:]
			if c, ok := pagers[idx].(Consumer); ok {
				c.Consumed(it)
			}

			if !it.After(watermark) {
				logger.Debug().
					Str("id", it.ID).
					Time("updated_on", it.UpdatedOn).
					Time("watermark", watermark).
					Msg("Reached watermark, stopping")
				return
			}

			itemsYieldedTotal.WithLabelValues("merge").Inc()
			if !yield(it, nil) {
				return
			}

			for i, p := range pagers {
				if len(queues[i]) > 0 || p.Exhausted() {
					continue
				}
				token, _ := p.Cursor().Token()
				logger.Debug().Int("partition", i).Str("cursor", token).Msg("Requesting next page")

				page, err := nextPage(ctx, "merge", p)
				if err != nil {
					yield(item.RawItem{}, fmt.Errorf("partition %d: %w", i, err))
					return
				}
				queues[i] = page
			}
		}
	}
}

// Walk exhausts the partitions in order. Items updated at or before watermark
// are skipped; the rest are passed through expand (when non-nil) and yielded.
func Walk(ctx context.Context, watermark time.Time, expand ExpandFunc, partitions ...Pager) iter.Seq2[item.RawItem, error] {
	return func(yield func(item.RawItem, error) bool) {
		logger := logging.NewLogger(logging.ComponentPagination)

		for i, p := range partitions {
			for !p.Exhausted() {
				page, err := nextPage(ctx, "walk", p)
				if err != nil {
					yield(item.RawItem{}, fmt.Errorf("partition %d: %w", i, err))
					return
				}

				for _, summary := range page {
					if !summary.After(watermark) {
						logger.Debug().Str("id", summary.ID).Msg("Skipping item at or before watermark")
						continue
					}

					it := summary
					if expand != nil {
						it, err = expand(ctx, summary)
						if err != nil {
							yield(item.RawItem{}, fmt.Errorf("expand %s: %w", summary.ID, err))
							return
						}
					}

					itemsYieldedTotal.WithLabelValues("walk").Inc()
					if !yield(it, nil) {
						return
					}
				}
			}
		}
	}
}

// Collect pages p to exhaustion and returns every item in page order.
func Collect(ctx context.Context, p Pager) ([]item.RawItem, error) {
	var all []item.RawItem
	for !p.Exhausted() {
		page, err := nextPage(ctx, "collect", p)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
	}
	return all, nil
}
