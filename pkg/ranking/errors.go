package ranking

import "errors"

var (
	// ErrCompute means a leaderboard could not be calculated from stored stats
	ErrCompute = errors.New("ranking: compute failed")

	// ErrPersist means a computed leaderboard could not be stored
	ErrPersist = errors.New("ranking: persist failed")

	ErrInvalidStatType = errors.New("ranking: invalid stat type")
	ErrInvalidRankType = errors.New("ranking: invalid rank type")
)
