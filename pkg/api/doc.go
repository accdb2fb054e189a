// Package api exposes counters and leaderboards over HTTP using gorilla/mux.
//
// # Counters
//
//	POST /api/book-stats/read/{bookID}?count=1
//	POST /api/book-stats/recommend/{bookID}?count=1
//	POST /api/book-stats/monthly-ticket/{bookID}?count=1
//	POST /api/book-stats/collection/{bookID}?count=-1    # collection may go down
//	GET  /api/book-stats/today/{bookID}[?date=YYYY-MM-DD]
//	GET  /api/book-stats/today[?date=YYYY-MM-DD]
//	GET  /api/book-stats/books[?date=YYYY-MM-DD]
//
// # Rankings
//
//	GET /api/rankings/daily?statType=read_count&date=2024-06-02&limit=100
//	GET /api/rankings/weekly?statType=recommend_votes
//	GET /api/rankings/monthly?statType=monthly_tickets
//	GET /api/rankings/peak?channel=1&limit=50
//
// Without a date, weekly and monthly serve the last completed Monday-Sunday week
// and calendar month. A leaderboard that has not been generated is an empty list.
//
// # Errors
//
// Errors are JSON {"error": "..."}: 400 for bad input, 503 with Retry-After when the
// counter store is unreachable, 500 otherwise. When an increment rate limit is configured, counter
// POSTs over the per-client window get 429 with Retry-After.
//
// # Operations
//
//	GET /health        readiness (database and counter store)
//	GET /health/live   liveness
//	GET /metrics       Prometheus
//
// bookrank-server also serves these on a separate health port. Every routed request
// gets a server span named after its method and route template.
package api
