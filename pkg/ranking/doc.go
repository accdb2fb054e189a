// Package ranking computes, stores and serves book leaderboards.
//
// Calculator sums one daily counter per book over a date range (daily, weekly,
// monthly leaderboards) or scores all-time totals with a PeakScorer (peak
// leaderboards segmented by category channel), and replaces the stored entries of
// a period in one transaction.
//
// Generator runs once a day after the stats flush: daily and peak leaderboards for
// yesterday, weekly on Mondays, monthly on the 1st. Each leaderboard is an
// independent unit; failures are reported per unit.
//
// QueryService resolves a rank type and optional date to a period, loads the stored
// entries and decorates them with catalog display data through Enricher.
package ranking
