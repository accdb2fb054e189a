package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/bookrank/pkg/httputil"
	"github.com/platinummonkey/bookrank/pkg/observability"
	"github.com/platinummonkey/bookrank/pkg/period"
	"github.com/platinummonkey/bookrank/pkg/stats"
)

// CounterService is the buffered counter surface the handlers need
type CounterService interface {
	Increment(ctx context.Context, bookID int64, field stats.Field, delta int64) error
	GetStatsForDate(ctx context.Context, bookID int64, date time.Time) (stats.Counters, error)
	GetAllBooksStatsForDate(ctx context.Context, date time.Time) (map[int64]stats.Counters, error)
	ListBookIDs(ctx context.Context, date time.Time) ([]int64, error)
	Today() time.Time
}

// counterKinds maps URL segments to counter fields
var counterKinds = map[string]stats.Field{
	"read":           stats.FieldReadCount,
	"recommend":      stats.FieldRecommendVotes,
	"monthly-ticket": stats.FieldMonthlyTickets,
	"collection":     stats.FieldCollectionCount,
}

// BookStatsResponse is one book's buffered counters for a day
type BookStatsResponse struct {
	BookID int64  `json:"book_id"`
	Date   string `json:"date"`
	stats.Counters
}

// DayStatsResponse is every buffered book's counters for a day
type DayStatsResponse struct {
	Date  string                   `json:"date"`
	Books map[int64]stats.Counters `json:"books"`
}

// BookIDsResponse lists books with buffered counters for a day
type BookIDsResponse struct {
	Date    string  `json:"date"`
	BookIDs []int64 `json:"book_ids"`
}

// StatsHandlers exposes counter increments and today's buffered counters
type StatsHandlers struct {
	counters CounterService
	logger   *observability.Logger
	limiter  *httputil.RateLimiter
}

// NewStatsHandlers creates a new stats handlers instance
func NewStatsHandlers(counters CounterService, logger *observability.Logger) *StatsHandlers {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &StatsHandlers{counters: counters, logger: logger}
}

// WithRateLimit limits increments per client; nil disables
func (h *StatsHandlers) WithRateLimit(limiter *httputil.RateLimiter) *StatsHandlers {
	h.limiter = limiter
	return h
}

// RegisterRoutes registers book stats routes
func (h *StatsHandlers) RegisterRoutes(r *mux.Router) {
	var increment http.Handler = http.HandlerFunc(h.increment)
	if h.limiter != nil {
		increment = httputil.RateLimitMiddleware(h.limiter, h.logger)(increment)
	}
	r.Handle("/api/book-stats/{kind:read|recommend|monthly-ticket|collection}/{bookID:[0-9]+}", increment).Methods("POST")
	r.HandleFunc("/api/book-stats/today/{bookID:[0-9]+}", h.getBookStats).Methods("GET")
	r.HandleFunc("/api/book-stats/today", h.getDayStats).Methods("GET")
	r.HandleFunc("/api/book-stats/books", h.listBooks).Methods("GET")
}

// increment handles POST /api/book-stats/{kind}/{bookID}
// Query params:
//   - count: amount to add (default 1); must be positive except for collection
func (h *StatsHandlers) increment(w http.ResponseWriter, r *http.Request) {
	bookID, ok := httputil.ParsePathInt64OrError(w, r, "bookID")
	if !ok {
		return
	}
	kind := mux.Vars(r)["kind"]
	field := counterKinds[kind]

	count, err := httputil.ParseQueryInt64(r, "count", 1)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if count == 0 || (count < 0 && field != stats.FieldCollectionCount) {
		httputil.WriteBadRequest(w, "count must be positive")
		return
	}

	if err := h.counters.Increment(r.Context(), bookID, field, count); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	httputil.WriteSuccessMessage(w, kind+" counter updated", map[string]interface{}{
		"book_id": bookID,
		"field":   field,
		"count":   count,
	})
}

// getBookStats handles GET /api/book-stats/today/{bookID}
func (h *StatsHandlers) getBookStats(w http.ResponseWriter, r *http.Request) {
	bookID, ok := httputil.ParsePathInt64OrError(w, r, "bookID")
	if !ok {
		return
	}
	date, ok := h.date(w, r)
	if !ok {
		return
	}

	counters, err := h.counters.GetStatsForDate(r.Context(), bookID, date)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, BookStatsResponse{BookID: bookID, Date: period.Format(date), Counters: counters})
}

// getDayStats handles GET /api/book-stats/today
// Query params:
//   - date: YYYY-MM-DD, default today (buffered days are kept until flushed)
func (h *StatsHandlers) getDayStats(w http.ResponseWriter, r *http.Request) {
	date, ok := h.date(w, r)
	if !ok {
		return
	}

	all, err := h.counters.GetAllBooksStatsForDate(r.Context(), date)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, DayStatsResponse{Date: period.Format(date), Books: all})
}

// listBooks handles GET /api/book-stats/books
func (h *StatsHandlers) listBooks(w http.ResponseWriter, r *http.Request) {
	date, ok := h.date(w, r)
	if !ok {
		return
	}

	ids, err := h.counters.ListBookIDs(r.Context(), date)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	httputil.WriteSuccess(w, BookIDsResponse{Date: period.Format(date), BookIDs: ids})
}

func (h *StatsHandlers) date(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	d, err := httputil.ParseQueryDate(r, "date")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return time.Time{}, false
	}
	if d == nil {
		return h.counters.Today(), true
	}
	return *d, true
}
