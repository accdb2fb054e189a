package stats

import (
	"strconv"
	"time"
)

// Field names a counter inside a daily hash
type Field string

const (
	FieldReadCount       Field = "read_count"
	FieldRecommendVotes  Field = "recommend_votes"
	FieldMonthlyTickets  Field = "monthly_tickets"
	FieldCollectionCount Field = "collection_count"
)

// Fields lists every counter field in a stable order
var Fields = []Field{
	FieldReadCount,
	FieldRecommendVotes,
	FieldMonthlyTickets,
	FieldCollectionCount,
}

// Valid reports whether f is a known counter field
func (f Field) Valid() bool {
	switch f {
	case FieldReadCount, FieldRecommendVotes, FieldMonthlyTickets, FieldCollectionCount:
		return true
	}
	return false
}

// Counters is a snapshot of one book's counters for one day
type Counters struct {
	ReadCount       int64 `json:"read_count"`
	RecommendVotes  int64 `json:"recommend_votes"`
	MonthlyTickets  int64 `json:"monthly_tickets"`
	CollectionCount int64 `json:"collection_count"`
}

// Get returns the value of a single field
func (c Counters) Get(f Field) int64 {
	switch f {
	case FieldReadCount:
		return c.ReadCount
	case FieldRecommendVotes:
		return c.RecommendVotes
	case FieldMonthlyTickets:
		return c.MonthlyTickets
	case FieldCollectionCount:
		return c.CollectionCount
	}
	return 0
}

// countersFromHash builds a snapshot from raw HGETALL output.
// Missing or unparseable fields read as zero.
func countersFromHash(hash map[string]string) Counters {
	return Counters{
		ReadCount:       parseField(hash, FieldReadCount),
		RecommendVotes:  parseField(hash, FieldRecommendVotes),
		MonthlyTickets:  parseField(hash, FieldMonthlyTickets),
		CollectionCount: parseField(hash, FieldCollectionCount),
	}
}

func parseField(hash map[string]string, f Field) int64 {
	raw, ok := hash[string(f)]
	if !ok {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// Snapshot is a buffered record read back during a scan
type Snapshot struct {
	Key      string
	BookID   int64
	Date     time.Time
	Counters Counters
}

// ScanResult is the outcome of enumerating one day's counter keys
type ScanResult struct {
	Date      time.Time
	Snapshots []Snapshot
	// Malformed holds keys that matched the date pattern but could not be parsed or are not hashes
	Malformed []string
	// Empty counts keys that vanished or held no fields by the time they were read
	Empty int
}
