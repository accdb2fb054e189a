// Package stats buffers per-book engagement counters in Redis.
//
// # Overview
//
// Every engagement event (a chapter read, a recommend vote, a monthly ticket, a
// collection change) is recorded as an atomic HINCRBY against today's counter hash
// for the book. The hash carries a rolling expiry that outlives the flush retry
// window; the flush job moves yesterday's hashes into PostgreSQL and deletes them.
//
// # Key Format
//
//	book:stats:{YYYY-MM-DD}:{bookID}
//
// Hash fields: read_count, recommend_votes, monthly_tickets, collection_count.
// collection_count may go negative when readers remove a book from their shelf.
//
// # Usage Example
//
//	buffer := stats.NewBuffer(redisClient, stats.Options{TTL: 72 * time.Hour})
//	if err := buffer.IncrementReadCount(ctx, 42, 1); err != nil {
//		// errors.Is(err, stats.ErrStoreUnavailable): drop or retry the event
//	}
//	today, _ := buffer.GetTodayStats(ctx, 42)
//
// # Related Packages
//
//   - pkg/flush: persists and clears buffered counters
//   - pkg/period: calendar date helpers
package stats
