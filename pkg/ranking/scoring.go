package ranking

import "github.com/platinummonkey/bookrank/pkg/storage"

// PeakScorer turns a book's all-time totals into its peak score
type PeakScorer interface {
	Score(stats storage.CumulativeStats) int64
}

// ViewCountScorer scores by cumulative reads
type ViewCountScorer struct{}

// Score implements PeakScorer
func (ViewCountScorer) Score(stats storage.CumulativeStats) int64 {
	return stats.ViewCount
}

// Weights are per-signal multipliers for WeightedScorer
type Weights struct {
	View          int64 `yaml:"view"`
	Recommend     int64 `yaml:"recommend"`
	MonthlyTicket int64 `yaml:"monthly_ticket"`
	Collection    int64 `yaml:"collection"`
}

// WeightedScorer scores by a weighted sum of all cumulative signals
type WeightedScorer struct {
	Weights Weights
}

// Score implements PeakScorer
func (w WeightedScorer) Score(stats storage.CumulativeStats) int64 {
	return stats.ViewCount*w.Weights.View +
		stats.RecommendCount*w.Weights.Recommend +
		stats.MonthlyTicketCount*w.Weights.MonthlyTicket +
		stats.CollectionCount*w.Weights.Collection
}

// NewPeakScorer returns ViewCountScorer for nil or all-zero weights, WeightedScorer otherwise
func NewPeakScorer(weights *Weights) PeakScorer {
	if weights == nil || *weights == (Weights{}) {
		return ViewCountScorer{}
	}
	return WeightedScorer{Weights: *weights}
}
