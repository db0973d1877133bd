package calendar

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// CadenceStats summarizes how often a continuous series rolls. Gaps are the
// calendar-day distances between consecutive roll dates.
type CadenceStats struct {
	Series        string  `json:"series"`
	Rolls         int     `json:"rolls"`
	FirstRoll     string  `json:"first_roll,omitempty"`
	LastRoll      string  `json:"last_roll,omitempty"`
	MeanGapDays   float64 `json:"mean_gap_days"`
	StdDevGapDays float64 `json:"stddev_gap_days"`
	MedianGapDays float64 `json:"median_gap_days"`
	MinGapDays    float64 `json:"min_gap_days"`
	MaxGapDays    float64 `json:"max_gap_days"`
}

// Cadence computes roll-cadence statistics for one series. Histories with
// fewer than two rolls have no gaps; all gap fields stay zero.
func (s *Service) Cadence(ctx context.Context, key string) (*CadenceStats, error) {
	history, err := s.RollHistory(ctx, key)
	if err != nil {
		return nil, err
	}

	stats := &CadenceStats{Series: key, Rolls: len(history)}
	if len(history) > 0 {
		stats.FirstRoll = history[0].Date.Format(dateLayout)
		stats.LastRoll = history[len(history)-1].Date.Format(dateLayout)
	}
	if len(history) < 2 {
		return stats, nil
	}

	gaps := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		gaps = append(gaps, history[i].Date.Sub(history[i-1].Date).Hours()/24)
	}
	sort.Float64s(gaps)

	stats.MeanGapDays = stat.Mean(gaps, nil)
	if len(gaps) > 1 {
		stats.StdDevGapDays = stat.StdDev(gaps, nil)
	}
	stats.MedianGapDays = stat.Quantile(0.5, stat.Empirical, gaps, nil)
	stats.MinGapDays = gaps[0]
	stats.MaxGapDays = gaps[len(gaps)-1]
	return stats, nil
}
