// Package monitoring aggregates stored research sessions into health metrics
// and raises webhook alerts when configured thresholds are breached.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/posterintel/poster-research/internal/model"
	"github.com/posterintel/poster-research/internal/store"
)

// MetricsSnapshot holds a point-in-time view of research activity within the
// lookback window.
type MetricsSnapshot struct {
	SessionsTotal    int     `json:"sessions_total"`
	SessionsComplete int     `json:"sessions_complete"`
	SessionsFailed   int     `json:"sessions_failed"`
	SessionsRunning  int     `json:"sessions_running"`
	FailRate         float64 `json:"fail_rate"`

	// Spend and output, summed over sessions that recorded stats.
	CreditsUsed    int     `json:"credits_used"`
	CostUSD        float64 `json:"cost_usd"`
	AvgElapsedSecs float64 `json:"avg_elapsed_secs"`
	AvgResultCount float64 `json:"avg_result_count"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// SessionLister is the slice of the store the collector needs.
type SessionLister interface {
	ListSessions(ctx context.Context, filter store.SessionFilter) ([]model.Session, error)
}

// Collector gathers metrics from stored sessions.
type Collector struct {
	sessions SessionLister
}

// NewCollector creates a metrics collector over the given session source.
func NewCollector(sessions SessionLister) *Collector {
	return &Collector{sessions: sessions}
}

// Collect aggregates the sessions created within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}
	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	sessions, err := c.sessions.ListSessions(ctx, store.SessionFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list sessions")
	}

	snap.SessionsTotal = len(sessions)
	var elapsed float64
	var results int
	var withStats int

	for _, s := range sessions {
		switch s.Status {
		case model.SessionComplete:
			snap.SessionsComplete++
		case model.SessionFailed:
			snap.SessionsFailed++
		case model.SessionRunning:
			snap.SessionsRunning++
		}
		if s.Response == nil {
			continue
		}
		snap.CreditsUsed += s.Response.Stats.CreditsUsed
		snap.CostUSD += s.Response.Stats.CostUSD
		elapsed += s.Response.Stats.ElapsedSeconds
		results += s.Response.Stats.ResultCount
		withStats++
	}

	finished := snap.SessionsComplete + snap.SessionsFailed
	if finished > 0 {
		snap.FailRate = float64(snap.SessionsFailed) / float64(finished)
	}
	if withStats > 0 {
		snap.AvgElapsedSecs = elapsed / float64(withStats)
		snap.AvgResultCount = float64(results) / float64(withStats)
	}

	return snap, nil
}
