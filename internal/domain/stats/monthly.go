package stats

import (
	"time"

	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
)

// MonthStats is one month of the yearly breakdown.
type MonthStats struct {
	Month      int    `json:"month"`
	Label      string `json:"label"`
	Checks     int    `json:"checksCount"`
	ActiveDays int    `json:"activeDays"`
}

func monthlyBreakdown(records []checkin.Record) []MonthStats {
	months := make([]MonthStats, 12)
	for i := range months {
		m := time.Month(i + 1)
		months[i] = MonthStats{Month: i + 1, Label: m.String()[:3]}
	}

	active := make(map[shared.Date]bool, len(records))
	for _, r := range records {
		idx := int(r.Date.Month()) - 1
		months[idx].Checks++
		if !active[r.Date] {
			active[r.Date] = true
			months[idx].ActiveDays++
		}
	}
	return months
}

// mostConsistentMonth returns the month number with the most checks,
// the earlier month on ties, or 0 when there is no activity.
func mostConsistentMonth(months []MonthStats) int {
	best, bestChecks := 0, 0
	for _, m := range months {
		if m.Checks > bestChecks {
			best, bestChecks = m.Month, m.Checks
		}
	}
	return best
}
