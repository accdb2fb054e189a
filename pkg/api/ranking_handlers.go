package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/bookrank/pkg/httputil"
	"github.com/platinummonkey/bookrank/pkg/observability"
	"github.com/platinummonkey/bookrank/pkg/ranking"
)

const maxLimit = 500

// RankingService reads stored leaderboards
type RankingService interface {
	GetRanking(ctx context.Context, rankType, statType string, date *time.Time, limit int) (*ranking.Response, error)
}

// RankingHandlers provides leaderboard endpoints
type RankingHandlers struct {
	rankings RankingService
	logger   *observability.Logger
}

// NewRankingHandlers creates a new ranking handlers instance
func NewRankingHandlers(rankings RankingService, logger *observability.Logger) *RankingHandlers {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &RankingHandlers{rankings: rankings, logger: logger}
}

// RegisterRoutes registers ranking routes
func (h *RankingHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/rankings/peak", h.getPeak).Methods("GET")
	r.HandleFunc("/api/rankings/{rankType:daily|weekly|monthly}", h.getWindowed).Methods("GET")
}

// getWindowed handles GET /api/rankings/{daily|weekly|monthly}
// Query params:
//   - statType: read_count, recommend_votes, monthly_tickets, collection_count (default read_count)
//   - date: YYYY-MM-DD end of the window; default is the last completed period
//   - limit: 1-500, default 100
func (h *RankingHandlers) getWindowed(w http.ResponseWriter, r *http.Request) {
	rankType := mux.Vars(r)["rankType"]
	statType := httputil.ParseQueryString(r, "statType", string(ranking.StatReadCount))

	date, err := httputil.ParseQueryDate(r, "date")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	resp, err := h.rankings.GetRanking(r.Context(), rankType, statType, date, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, resp)
}

// getPeak handles GET /api/rankings/peak
// Query params:
//   - channel: 1 male, 0 female, absent for all
//   - statType: all, male or female; overrides channel
//   - limit: 1-500, default 100
func (h *RankingHandlers) getPeak(w http.ResponseWriter, r *http.Request) {
	channel, err := httputil.ParseQueryOptionalInt(r, "channel")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	statType := httputil.ParseQueryString(r, "statType", string(ranking.PeakStatTypeForChannel(channel)))

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	resp, err := h.rankings.GetRanking(r.Context(), string(ranking.RankPeak), statType, nil, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httputil.WriteSuccess(w, resp)
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit, err := httputil.ParseQueryInt(r, "limit", ranking.DefaultLimit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return 0, false
	}
	if limit < 1 || limit > maxLimit {
		httputil.WriteBadRequest(w, "limit must be between 1 and 500")
		return 0, false
	}
	return limit, true
}
