// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, resp)
//	httputil.WriteBadRequest(w, "limit must be a number")
//	httputil.WriteServiceUnavailable(w, "counter store unavailable", 5*time.Second)
//
// # Request Parsing
//
//	bookID, ok := httputil.ParsePathInt64OrError(w, r, "bookID")
//	if !ok {
//		return // 400 already written
//	}
//	limit, err := httputil.ParseQueryInt(r, "limit", 100)
//	date, err := httputil.ParseQueryDate(r, "date") // nil when absent
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.RecoveryMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//	)(router)
//
// # Rate Limiting
//
// RateLimiter keeps a fixed window per client in Redis, so replicas share one budget.
// Redis errors let the request through.
//
//	limiter := httputil.NewRateLimiter(client, cfg.IncrementRateLimit, "bookrank:ratelimit:increment")
//	r.Handle("/api/book-stats/read/{bookID}", httputil.RateLimitMiddleware(limiter, logger)(h))
package httputil
