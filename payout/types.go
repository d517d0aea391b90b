/*
Package payout computes the per-period streamer incentive report.

PURPOSE:
  One report covers one contract and one monthly period. The pipeline takes
  the raw activity records of that period and derives, for every streamer,
  a performance tier, the incentive the schedule pays for that tier and
  volume, and the gross pay computed by payroll. The final step projects
  each record to the columns the requesting audience is allowed to see.

KEY CONCEPTS IN THIS FILE (types.go):
  - StreamerPeriodRecord: one streamer's activity for a contract+period
  - Tier: performance level 0-3 derived from days and hours active
  - Reward: unit reward (coins) and cash reward for a schedule cell
  - ContractConfig: per-contract overrides (collapse_low_tiers)
  - HistoricalAlias: past name snapshot used to backfill blank names
  - PayrollReportRow: externally computed gross pay
  - VisibilityRule: column suppression rule per contract/audience

DESIGN PRINCIPLES:
  1. Recompute everything: derived fields are never persisted
  2. Precision: cash amounts use decimal.Decimal
  3. Read-only: no component writes back to the backing store
  4. Canonical shape: raw column variants are mapped once, in factory/

SEE ALSO:
  - tier.go: Tier classification
  - schedule.go: Incentive schedule lookup
  - identity.go: Display name backfill
  - visibility.go: Column visibility policy
  - report.go: The orchestrating report builder
*/
package payout

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TIER
// =============================================================================

// Tier is the performance level reached in a period.
type Tier int

const (
	Tier0 Tier = 0 // below minimum, no incentive
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

// MaxTier is the highest tier the schedule pays.
const MaxTier = Tier3

// Valid reports whether t is one of 0..3.
func (t Tier) Valid() bool {
	return t >= Tier0 && t <= MaxTier
}

// MeetsMinimum is true for every tier above 0.
func (t Tier) MeetsMinimum() bool {
	return t > Tier0
}

// =============================================================================
// REWARD
// =============================================================================

// Reward is one schedule cell: coins paid in-app plus a cash amount.
type Reward struct {
	Units int64
	Cash  decimal.Decimal
}

// IsZero reports whether the reward pays nothing.
func (r Reward) IsZero() bool {
	return r.Units == 0 && r.Cash.IsZero()
}

// =============================================================================
// STREAMER PERIOD RECORD
// =============================================================================

// StreamerPeriodRecord is one streamer's activity for one contract+period.
// Constructed fresh per report; the derived fields are filled by the builder.
type StreamerPeriodRecord struct {
	PlatformID   string
	DisplayName  string
	Agency       string
	ContractCode string
	Period       Period
	DaysActive   int
	HoursActive  float64
	Diamonds     int64

	// Derived
	Tier         Tier
	MeetsMinimum bool
	UnitReward   int64
	CashReward   decimal.Decimal
	GrossPay     decimal.Decimal
	GrossCoins   decimal.Decimal
}

// HasName reports whether the display name carries any non-space content.
func (r StreamerPeriodRecord) HasName() bool {
	return strings.TrimSpace(r.DisplayName) != ""
}

// =============================================================================
// CONFIGURATION ROWS
// =============================================================================

// ContractConfig holds per-contract override flags.
type ContractConfig struct {
	Code string

	// CollapseLowTiers pays (and displays) every tier >= 1 as tier 3.
	CollapseLowTiers bool
}

// DefaultContractConfig is used when a contract has no configuration row.
func DefaultContractConfig(code string) ContractConfig {
	return ContractConfig{Code: code}
}

// HistoricalAlias is a past snapshot of the names known for a platform id.
type HistoricalAlias struct {
	PlatformID string
	LastSeen   time.Time
	Names      [3]string
}

// PayrollReportRow is the gross pay computed by payroll for one streamer.
type PayrollReportRow struct {
	PlatformID   string
	ContractCode string
	Period       Period
	GrossPay     decimal.Decimal
	GrossCoins   decimal.Decimal
}

// VisibilityRule suppresses a field token. Empty Contract applies to every
// contract; empty Audience applies to every audience.
type VisibilityRule struct {
	Contract   string
	FieldToken string
	Audience   string
}

// =============================================================================
// AUDIENCE
// =============================================================================

// Audience identifies who the report is rendered for.
type Audience string

const (
	AudiencePublic Audience = "public"
	AudiencePlayer Audience = "player"
	AudienceAgent  Audience = "agent"
	AudienceAdmin  Audience = "admin"
)

var knownAudiences = map[Audience]bool{
	AudiencePublic: true,
	AudiencePlayer: true,
	AudienceAgent:  true,
	AudienceAdmin:  true,
}

// ParseAudience normalizes an audience name. Unknown names are rejected.
func ParseAudience(s string) (Audience, error) {
	a := Audience(strings.ToLower(strings.TrimSpace(s)))
	if !knownAudiences[a] {
		return "", &InvalidAudienceError{Value: s}
	}
	return a, nil
}
