/*
schedule.go - Incentive schedule lookup

PURPOSE:
  The incentive schedule is a step function over cumulative diamonds. Each
  row opens at its threshold and stays in force until the next row's
  threshold. A streamer is paid from the highest row whose threshold is
  <= their diamonds, in the column of their (paid) tier.

LOAD-TIME VALIDATION:
  NewSchedule sorts rows ascending and rejects:
  - negative thresholds
  - duplicate thresholds (two rows would claim the same step)
  Lookup therefore never has to pick between conflicting rows.

EXAMPLE:
  thresholds [0, 1000, 5000], tier-1 units [10, 50, 200]
  Lookup(3000, Tier1) -> row 1000 -> 50 units
  Lookup(5000, Tier1) -> row 5000 -> 200 units (inclusive boundary)

SEE ALSO:
  - factory/records.go: ScheduleRow maps raw nivel_N_* columns
  - report.go: Loads the schedule once per report
*/
package payout

import (
	"sort"

	"github.com/shopspring/decimal"
)

// IncentiveScheduleRow is one step of the schedule.
type IncentiveScheduleRow struct {
	Threshold int64
	Rewards   map[Tier]Reward // tiers 1..3; missing tier pays zero
}

// Reward returns the cell for tier t, zero if the column is missing.
func (r IncentiveScheduleRow) Reward(t Tier) Reward {
	if r.Rewards == nil {
		return Reward{}
	}
	return r.Rewards[t]
}

// Schedule is a validated, ascending incentive schedule.
type Schedule struct {
	rows []IncentiveScheduleRow
}

// NewSchedule copies, sorts and validates rows. An empty schedule is valid
// and pays zero everywhere.
func NewSchedule(rows []IncentiveScheduleRow) (*Schedule, error) {
	sorted := make([]IncentiveScheduleRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Threshold < sorted[j].Threshold
	})

	for i, row := range sorted {
		if row.Threshold < 0 {
			return nil, &ScheduleError{Threshold: row.Threshold, Reason: "negative threshold"}
		}
		if i > 0 && sorted[i-1].Threshold == row.Threshold {
			return nil, &ScheduleError{Threshold: row.Threshold, Reason: "duplicate threshold"}
		}
	}
	return &Schedule{rows: sorted}, nil
}

// Len returns the number of rows.
func (s *Schedule) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rows)
}

// Rows returns a copy of the sorted rows.
func (s *Schedule) Rows() []IncentiveScheduleRow {
	if s == nil {
		return nil
	}
	out := make([]IncentiveScheduleRow, len(s.rows))
	copy(out, s.rows)
	return out
}

// Lookup returns the reward for a streamer with the given diamonds at tier.
// Tier 0 and non-positive diamonds pay nothing without touching the rows.
func (s *Schedule) Lookup(diamonds int64, tier Tier) Reward {
	if tier <= Tier0 || diamonds <= 0 || s.Len() == 0 {
		return Reward{}
	}

	// First row whose threshold exceeds diamonds; the floor row precedes it.
	i := sort.Search(len(s.rows), func(i int) bool {
		return s.rows[i].Threshold > diamonds
	})
	if i == 0 {
		return Reward{}
	}
	return s.rows[i-1].Reward(tier)
}

// =============================================================================
// REWARD ASSIGNMENT
// =============================================================================

// AssignReward fills the derived tier and reward fields of rec.
// The displayed tier is the paid tier; MeetsMinimum follows the raw tier and
// clamps both rewards to zero after the lookup when false.
func AssignReward(rec StreamerPeriodRecord, raw Tier, cfg ContractConfig, schedule *Schedule) StreamerPeriodRecord {
	paid := PaidTier(raw, cfg)
	reward := schedule.Lookup(rec.Diamonds, paid)

	rec.Tier = paid
	rec.MeetsMinimum = raw.MeetsMinimum()
	rec.UnitReward = reward.Units
	rec.CashReward = reward.Cash
	if !rec.MeetsMinimum {
		rec.UnitReward = 0
		rec.CashReward = decimal.Zero
	}
	return rec
}
