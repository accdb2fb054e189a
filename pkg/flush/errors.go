package flush

import "errors"

var (
	// ErrScan means the day's counter keys could not be enumerated; nothing was persisted or deleted
	ErrScan = errors.New("flush: scan failed")

	// ErrPersist means the daily upsert failed; every counter key was left in place
	ErrPersist = errors.New("flush: persist failed")
)
