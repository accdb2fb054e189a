package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/platinummonkey/bookrank/pkg/httputil"
	"github.com/platinummonkey/bookrank/pkg/observability"
	"github.com/platinummonkey/bookrank/pkg/ranking"
	"github.com/platinummonkey/bookrank/pkg/stats"
)

// storeRetryAfter is the Retry-After sent while the counter store is unreachable
const storeRetryAfter = 5 * time.Second

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, stats.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, stats.ErrInvalidBookID),
		errors.Is(err, ranking.ErrInvalidRankType),
		errors.Is(err, ranking.ErrInvalidStatType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, logger *observability.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Ctx(r.Context()).WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}

	switch status {
	case http.StatusServiceUnavailable:
		httputil.WriteServiceUnavailable(w, err.Error(), storeRetryAfter)
	case http.StatusBadRequest:
		httputil.WriteBadRequest(w, err.Error())
	default:
		httputil.WriteInternalError(w)
	}
}
