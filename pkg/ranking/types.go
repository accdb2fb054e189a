package ranking

import (
	"fmt"
	"time"

	"github.com/platinummonkey/bookrank/pkg/storage"
)

// RankType is the leaderboard cadence
type RankType string

const (
	RankDaily   RankType = "daily"
	RankWeekly  RankType = "weekly"
	RankMonthly RankType = "monthly"
	RankPeak    RankType = "peak"
)

// RankTypes lists every rank type
var RankTypes = []RankType{RankDaily, RankWeekly, RankMonthly, RankPeak}

// ParseRankType validates a rank type identifier
func ParseRankType(s string) (RankType, error) {
	switch rt := RankType(s); rt {
	case RankDaily, RankWeekly, RankMonthly, RankPeak:
		return rt, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRankType, s)
}

// StatType is what a leaderboard ranks by. Counter stat types name a daily counter;
// peak stat types name a channel segment.
type StatType string

const (
	StatReadCount       StatType = StatType(storage.CounterReadCount)
	StatRecommendVotes  StatType = StatType(storage.CounterRecommendVotes)
	StatMonthlyTickets  StatType = StatType(storage.CounterMonthlyTickets)
	StatCollectionCount StatType = StatType(storage.CounterCollectionCount)

	PeakAll    StatType = "all"
	PeakMale   StatType = "male"
	PeakFemale StatType = "female"
)

// CounterStatTypes are ranked over daily, weekly and monthly windows
var CounterStatTypes = []StatType{StatReadCount, StatRecommendVotes, StatMonthlyTickets, StatCollectionCount}

// PeakStatTypes are the channel segments of the peak leaderboard
var PeakStatTypes = []StatType{PeakAll, PeakMale, PeakFemale}

// Category channels
const (
	ChannelFemale = 0
	ChannelMale   = 1
)

// IsCounter reports whether s names a daily counter
func (s StatType) IsCounter() bool {
	return storage.Counter(s).Valid()
}

// IsPeak reports whether s names a peak channel segment
func (s StatType) IsPeak() bool {
	switch s {
	case PeakAll, PeakMale, PeakFemale:
		return true
	}
	return false
}

// Counter returns the daily counter behind a counter stat type
func (s StatType) Counter() storage.Counter {
	return storage.Counter(s)
}

// Channel returns the category channel filter of a peak stat type; nil means all channels
func (s StatType) Channel() *int {
	var ch int
	switch s {
	case PeakMale:
		ch = ChannelMale
	case PeakFemale:
		ch = ChannelFemale
	default:
		return nil
	}
	return &ch
}

// ValidateStatType checks that statType is allowed for rankType
func ValidateStatType(rankType RankType, statType string) (StatType, error) {
	st := StatType(statType)
	if rankType == RankPeak {
		if !st.IsPeak() {
			return "", fmt.Errorf("%w: %q is not a peak segment", ErrInvalidStatType, statType)
		}
		return st, nil
	}
	if !st.IsCounter() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatType, statType)
	}
	return st, nil
}

// PeakStatTypeForChannel maps a category channel to its peak segment: nil is all, 1 male, anything else female
func PeakStatTypeForChannel(channel *int) StatType {
	if channel == nil {
		return PeakAll
	}
	if *channel == ChannelMale {
		return PeakMale
	}
	return PeakFemale
}

// Item is one ranked book, optionally decorated with catalog display fields
type Item struct {
	Rank               int       `json:"rank"`
	BookID             int64     `json:"book_id"`
	Score              int64     `json:"score"`
	Title              string    `json:"title,omitempty"`
	Description        string    `json:"description,omitempty"`
	AuthorName         string    `json:"author_name,omitempty"`
	CategoryName       string    `json:"category_name,omitempty"`
	CoverImageURL      string    `json:"cover_image_url,omitempty"`
	StatusText         string    `json:"status_text,omitempty"`
	WordCount          int64     `json:"word_count,omitempty"`
	LatestChapterTitle string    `json:"latest_chapter_title,omitempty"`
	LatestChapterNum   int       `json:"latest_chapter_number,omitempty"`
	LastUpdatedTime    time.Time `json:"last_updated_time"`
}

// Response is a leaderboard with its resolved period
type Response struct {
	RankType    RankType `json:"rank_type"`
	StatType    StatType `json:"stat_type"`
	PeriodStart string   `json:"period_start,omitempty"`
	PeriodEnd   string   `json:"period_end,omitempty"`
	Rankings    []Item   `json:"rankings"`
}
