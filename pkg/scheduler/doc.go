// Package scheduler runs the counter flush and ranking generation on independent
// cron entries.
//
// The flush runs first (01:00 by default) and persists yesterday's Redis counters.
// Ranking generation runs later (02:00 by default) and reads only what the flush
// committed. The jobs share no state; a late or failed flush means the rankings for
// that day are computed from whatever was persisted, and rerunning either job is safe.
//
//	s, err := scheduler.New(scheduler.Config{Location: loc}, flusher, generator, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	s.Start()
//	defer func() { <-s.Stop().Done() }()
package scheduler
