package stats

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/bookrank/pkg/period"
)

// KeyPrefix is the namespace for all daily counter hashes
//
// Key Format Version: v1
// Format: book:stats:{YYYY-MM-DD}:{bookID}
//
// Changing this format orphans every buffered hash that has not been flushed yet.
const KeyPrefix = "book:stats:"

// EncodeKey returns the counter hash key for a book on a date
func EncodeKey(date time.Time, bookID int64) string {
	return KeyPrefix + period.Format(date) + ":" + strconv.FormatInt(bookID, 10)
}

// DatePattern returns the SCAN MATCH pattern for every book on a date
func DatePattern(date time.Time) string {
	return KeyPrefix + period.Format(date) + ":*"
}

// ParseKey splits a counter key into its date and book ID.
// Anything other than prefix + valid date + positive integer is ErrMalformedKey.
func ParseKey(key string) (time.Time, int64, error) {
	rest, ok := strings.CutPrefix(key, KeyPrefix)
	if !ok {
		return time.Time{}, 0, fmt.Errorf("%w: missing prefix: %q", ErrMalformedKey, key)
	}

	dateStr, idStr, ok := strings.Cut(rest, ":")
	if !ok {
		return time.Time{}, 0, fmt.Errorf("%w: missing book id: %q", ErrMalformedKey, key)
	}

	date, err := period.Parse(dateStr)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	bookID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || bookID <= 0 {
		return time.Time{}, 0, fmt.Errorf("%w: invalid book id %q", ErrMalformedKey, idStr)
	}

	return date, bookID, nil
}
