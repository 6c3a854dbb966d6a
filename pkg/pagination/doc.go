// Package pagination drives paginated partitions and turns them into a lazy,
// watermark-bounded sequence of items.
//
// A partition is anything implementing Pager. Two engines consume pagers:
//
//   - Merge interleaves several partitions by descending update time and stops
//     the whole sequence at the first item at or before the watermark. It is
//     used for sources that cannot filter by update time server-side.
//   - Walk exhausts partitions one after another in priority order, skipping
//     (not stopping at) items at or before the watermark, and expands the rest.
//
// Example usage:
//
//	open := pagination.NewLimitPager(500, pagination.NewSortKeyCursor("sortKey"), fetchOpen)
//	closed := pagination.NewLimitPager(500, pagination.NewSortKeyCursor("sortKey"), fetchClosed)
//
//	for it, err := range pagination.Merge(ctx, watermark, open, closed) {
//		if err != nil {
//			return err
//		}
//		emit(it)
//	}
//
// Merge stops on the first watermark hit in any partition, even when the other
// partition still holds newer items that have not been fetched yet. Callers
// that need every item must use a single combined partition.
//
// Sequences are single-threaded and pull-driven: a page is only requested when
// the consumer asks for an item that requires it.
package pagination
