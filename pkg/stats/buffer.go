package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/bookrank/pkg/observability"
	"github.com/platinummonkey/bookrank/pkg/period"
)

const (
	// DefaultTTL keeps a day's hash alive long enough for two missed flushes
	DefaultTTL = 72 * time.Hour

	// DefaultScanCount is the SCAN COUNT hint per page
	DefaultScanCount = 1000

	// deleteChunkSize bounds the number of keys per DEL command
	deleteChunkSize = 500
)

// Options configures a Buffer
type Options struct {
	// TTL is refreshed on every increment; must exceed the flush retry window
	TTL time.Duration

	// Location decides which civil day "today" is
	Location *time.Location

	// ScanCount is the COUNT hint used when enumerating a day's keys
	ScanCount int64

	// Now overrides the clock (tests)
	Now func() time.Time

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Buffer records engagement counters in Redis hashes keyed by day and book
type Buffer struct {
	client    redis.Cmdable
	ttl       time.Duration
	loc       *time.Location
	scanCount int64
	now       func() time.Time
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewBuffer creates a new stats buffer
func NewBuffer(client redis.Cmdable, opts Options) *Buffer {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.ScanCount <= 0 {
		opts.ScanCount = DefaultScanCount
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	return &Buffer{
		client:    client,
		ttl:       opts.TTL,
		loc:       opts.Location,
		scanCount: opts.ScanCount,
		now:       opts.Now,
		logger:    opts.Logger.WithField("component", "stats_buffer"),
		metrics:   opts.Metrics,
	}
}

// Today returns the civil date increments are currently recorded under
func (b *Buffer) Today() time.Time {
	return period.Today(b.now(), b.loc)
}

// IncrementReadCount adds count reads to today's counters for a book
func (b *Buffer) IncrementReadCount(ctx context.Context, bookID, count int64) error {
	return b.Increment(ctx, bookID, FieldReadCount, count)
}

// IncrementRecommendVotes adds recommend votes to today's counters for a book
func (b *Buffer) IncrementRecommendVotes(ctx context.Context, bookID, count int64) error {
	return b.Increment(ctx, bookID, FieldRecommendVotes, count)
}

// IncrementMonthlyTickets adds monthly tickets to today's counters for a book
func (b *Buffer) IncrementMonthlyTickets(ctx context.Context, bookID, count int64) error {
	return b.Increment(ctx, bookID, FieldMonthlyTickets, count)
}

// IncrementCollectionCount applies a collection delta, which may be negative
func (b *Buffer) IncrementCollectionCount(ctx context.Context, bookID, delta int64) error {
	return b.Increment(ctx, bookID, FieldCollectionCount, delta)
}

// Increment atomically adds delta to one field of today's hash and refreshes its expiry.
//
// HINCRBY is the only write: concurrent callers never read-modify-write, so no
// increment can be lost to a race. The EXPIRE rides in the same MULTI so a hash
// never exists without a TTL.
func (b *Buffer) Increment(ctx context.Context, bookID int64, field Field, delta int64) error {
	if bookID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBookID, bookID)
	}
	if !field.Valid() {
		return fmt.Errorf("unknown counter field %q", field)
	}

	key := EncodeKey(b.Today(), bookID)

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, string(field), delta)
		pipe.Expire(ctx, key, b.ttl)
		return nil
	})
	if err != nil {
		b.metrics.RecordIncrement(string(field), "error")
		return unavailable("increment", err)
	}

	b.metrics.RecordIncrement(string(field), "success")
	b.logger.Ctx(ctx).WithBook(bookID).WithFields(map[string]interface{}{
		"field": string(field),
		"delta": delta,
	}).Debug("counter incremented")
	return nil
}

// GetTodayStats returns today's counters for a book; absent fields read as zero
func (b *Buffer) GetTodayStats(ctx context.Context, bookID int64) (Counters, error) {
	return b.GetStatsForDate(ctx, bookID, b.Today())
}

// GetStatsForDate returns a book's buffered counters for a specific day
func (b *Buffer) GetStatsForDate(ctx context.Context, bookID int64, date time.Time) (Counters, error) {
	if bookID <= 0 {
		return Counters{}, fmt.Errorf("%w: %d", ErrInvalidBookID, bookID)
	}

	hash, err := b.client.HGetAll(ctx, EncodeKey(date, bookID)).Result()
	if err != nil {
		return Counters{}, unavailable("read", err)
	}
	return countersFromHash(hash), nil
}

// GetAllBooksStatsForDate returns every buffered book's counters for a day
func (b *Buffer) GetAllBooksStatsForDate(ctx context.Context, date time.Time) (map[int64]Counters, error) {
	result, err := b.ScanDate(ctx, date)
	if err != nil {
		return nil, err
	}

	all := make(map[int64]Counters, len(result.Snapshots))
	for _, snap := range result.Snapshots {
		all[snap.BookID] = snap.Counters
	}

	b.logger.Ctx(ctx).WithDate(date).WithField("books", len(all)).Info("loaded buffered stats for date")
	return all, nil
}

// ListBookIDs returns the sorted IDs of books with buffered counters for a day
func (b *Buffer) ListBookIDs(ctx context.Context, date time.Time) ([]int64, error) {
	var ids []int64
	seen := make(map[int64]struct{})

	err := b.scanKeys(ctx, date, func(keys []string) error {
		for _, key := range keys {
			_, bookID, err := ParseKey(key)
			if err != nil {
				b.logger.WithError(err).WithField("key", key).Warn("skipping malformed counter key")
				continue
			}
			if _, dup := seen[bookID]; dup {
				continue
			}
			seen[bookID] = struct{}{}
			ids = append(ids, bookID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ScanDate enumerates and reads every counter hash for a day.
//
// Keys are walked with SCAN (never KEYS) so large days do not block Redis; each
// page's hashes are fetched with one pipelined round trip. Malformed keys are
// reported in the result rather than failing the scan.
func (b *Buffer) ScanDate(ctx context.Context, date time.Time) (*ScanResult, error) {
	result := &ScanResult{Date: date}
	seen := make(map[string]struct{})

	err := b.scanKeys(ctx, date, func(keys []string) error {
		type pending struct {
			key    string
			bookID int64
			cmd    *redis.StringStringMapCmd
		}

		batch := make([]pending, 0, len(keys))
		for _, key := range keys {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			keyDate, bookID, err := ParseKey(key)
			if err != nil || !keyDate.Equal(date) {
				b.logger.WithField("key", key).Warn("skipping malformed counter key")
				result.Malformed = append(result.Malformed, key)
				continue
			}
			batch = append(batch, pending{key: key, bookID: bookID})
		}
		if len(batch) == 0 {
			return nil
		}

		pipe := b.client.Pipeline()
		for i := range batch {
			batch[i].cmd = pipe.HGetAll(ctx, batch[i].key)
		}
		// Exec reports the first failed command; each reply is checked on its own
		_, _ = pipe.Exec(ctx)

		for _, p := range batch {
			if err := p.cmd.Err(); err != nil {
				if !isReplyError(err) {
					return unavailable("read page", err)
				}
				b.logger.WithError(err).WithField("key", p.key).Warn("skipping counter key that is not a hash")
				result.Malformed = append(result.Malformed, p.key)
				continue
			}
			hash := p.cmd.Val()
			if len(hash) == 0 {
				result.Empty++
				continue
			}
			result.Snapshots = append(result.Snapshots, Snapshot{
				Key:      p.key,
				BookID:   p.bookID,
				Date:     date,
				Counters: countersFromHash(hash),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// DeleteKeys removes counter hashes in bounded chunks and returns how many existed
func (b *Buffer) DeleteKeys(ctx context.Context, keys []string) (int64, error) {
	var deleted int64
	for start := 0; start < len(keys); start += deleteChunkSize {
		end := start + deleteChunkSize
		if end > len(keys) {
			end = len(keys)
		}

		n, err := b.client.Del(ctx, keys[start:end]...).Result()
		if err != nil {
			return deleted, unavailable("delete", err)
		}
		deleted += n
	}
	return deleted, nil
}

// Ping checks counter store connectivity
func (b *Buffer) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// scanKeys walks SCAN pages for a date pattern, handing each page to fn
func (b *Buffer) scanKeys(ctx context.Context, date time.Time, fn func(keys []string) error) error {
	pattern := DatePattern(date)
	var cursor uint64

	for {
		keys, next, err := b.client.Scan(ctx, cursor, pattern, b.scanCount).Result()
		if err != nil {
			return unavailable("scan", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// isReplyError reports whether Redis answered the command with an error reply,
// such as WRONGTYPE, as opposed to failing to answer at all
func isReplyError(err error) bool {
	var replyErr redis.Error
	return errors.As(err, &replyErr) && !errors.Is(err, redis.Nil)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
