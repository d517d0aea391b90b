/*
report.go - Period report builder (orchestrator)

PURPOSE:
  Builds the audience-filtered report for one (contract, period). Every
  invocation recomputes tiers and incentives from the raw records; nothing
  derived is stored.

SEQUENCE (fixed, no step skipped or reordered):
  1. Fetch raw activity records        empty -> empty report
  2. Resolve blank display names       failure degrades (synthesized names)
  3. Classify raw tiers
  4. Load contract config              absent -> collapse_low_tiers=false
  5. Load schedule once, assign rewards
  6. Merge payroll                     failure degrades (gross pay 0)
  7. Evaluate visibility, project records
  8. Sort by diamonds desc, ties keep fetch order

PARTIAL FAILURE:
  Step 1 failing aborts with ErrActivityUnavailable. Steps 2 and 6 are
  enrichment and degrade with a warning. Config, schedule and rule fetch
  failures abort: rendering a transient outage as zero incentives, or as
  an unfiltered view, would be wrong output rather than degraded output.

CANCELLATION:
  ctx is checked between steps. An abandoned build leaves nothing behind.

SEE ALSO:
  - identity.go, tier.go, schedule.go, payroll.go, visibility.go
  - api/handlers.go: HTTP surface
*/
package payout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

// VisibleRecord is a StreamerPeriodRecord projected for one audience.
// Identity columns are always present; every other column is nil when hidden.
type VisibleRecord struct {
	PlatformID   string `json:"platform_id"`
	ContractCode string `json:"contract_code"`
	Period       Period `json:"period"`

	DisplayName  *string          `json:"display_name,omitempty"`
	Agency       *string          `json:"agency,omitempty"`
	DaysActive   *int             `json:"days_active,omitempty"`
	HoursActive  *float64         `json:"hours_active,omitempty"`
	Diamonds     *int64           `json:"diamonds,omitempty"`
	Tier         *Tier            `json:"tier,omitempty"`
	MeetsMinimum *bool            `json:"meets_minimum,omitempty"`
	UnitReward   *int64           `json:"unit_reward,omitempty"`
	CashReward   *decimal.Decimal `json:"cash_reward,omitempty"`
	GrossPay     *decimal.Decimal `json:"gross_pay,omitempty"`
	GrossCoins   *decimal.Decimal `json:"gross_coins,omitempty"`
}

// Summary aggregates a report. Totals of hidden fields are nil.
type Summary struct {
	Streamers       int              `json:"streamers"`
	MeetingMinimum  *int             `json:"meeting_minimum,omitempty"`
	TierCounts      map[Tier]int     `json:"tier_counts,omitempty"`
	TotalDiamonds   *int64           `json:"total_diamonds,omitempty"`
	TotalUnitReward *int64           `json:"total_unit_reward,omitempty"`
	TotalCashReward *decimal.Decimal `json:"total_cash_reward,omitempty"`
	TotalGrossPay   *decimal.Decimal `json:"total_gross_pay,omitempty"`
}

// Report is the output of one build.
type Report struct {
	ID       string
	Contract string
	Period   Period
	Audience Audience
	Hidden   FieldSet
	Records  []VisibleRecord
	Summary  Summary

	// Enrichment outcome, for logs and response metadata.
	Names           ResolveStats
	PayrollDegraded bool
}

// =============================================================================
// BUILDER
// =============================================================================

// Builder runs the report sequence against an injected Source.
type Builder struct {
	Source   Source
	Resolver *IdentityResolver
	Log      logrus.FieldLogger

	// FetchTimeout bounds each individual fetch. Zero means no extra bound.
	FetchTimeout time.Duration

	newID func() string
}

// NewBuilder wires a builder with a default identity resolver.
func NewBuilder(src Source, log logrus.FieldLogger) *Builder {
	return &Builder{
		Source:   src,
		Resolver: NewIdentityResolver(src, log),
		Log:      log,
		newID:    uuid.NewString,
	}
}

// Build produces the report for contract+period as seen by audience.
func (b *Builder) Build(ctx context.Context, contract string, period Period, audience Audience) (*Report, error) {
	contract = strings.TrimSpace(contract)
	if contract == "" {
		return nil, ErrInvalidContract
	}
	if period.IsZero() {
		return nil, fmt.Errorf("%w: zero period", ErrInvalidPeriod)
	}
	if _, err := ParseAudience(string(audience)); err != nil {
		return nil, err
	}

	report := &Report{
		ID:       b.reportID(),
		Contract: contract,
		Period:   period,
		Audience: audience,
		Hidden:   FieldSet{},
		Records:  []VisibleRecord{},
	}
	log := b.logger().WithFields(logrus.Fields{
		"report_id": report.ID,
		"contract":  contract,
		"period":    period.String(),
		"audience":  string(audience),
	})
	started := time.Now()

	// 1. Raw activity
	records, err := b.fetchActivity(ctx, contract, period)
	if err != nil {
		log.WithError(err).Error("activity fetch failed")
		return nil, err
	}
	if len(records) == 0 {
		log.Info("no activity for period")
		return report, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 2. Identity
	records, report.Names = b.resolver().Resolve(ctx, records)
	if report.Names.FailedBatches > 0 {
		log.WithField("failed_batches", report.Names.FailedBatches).Warn("name resolution degraded")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 3. Tiers
	raw := make([]Tier, len(records))
	for i, rec := range records {
		raw[i] = Classify(rec.DaysActive, rec.HoursActive)
	}

	// 4. Contract config
	cfg, err := b.contractConfig(ctx, contract)
	if err != nil {
		log.WithError(err).Error("contract config fetch failed")
		return nil, err
	}

	// 5. Rewards
	schedule, err := b.schedule(ctx)
	if err != nil {
		log.WithError(err).Error("incentive schedule unusable")
		return nil, err
	}
	for i := range records {
		records[i] = AssignReward(records[i], raw[i], cfg, schedule)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 6. Payroll
	payroll, err := b.payroll(ctx, contract, period)
	if err != nil {
		log.WithError(err).Warn("payroll merge degraded, gross pay set to 0")
		report.PayrollDegraded = true
		payroll = nil
	}
	records = MergePayroll(records, payroll, contract, period)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 7. Visibility
	rules, err := b.rules(ctx)
	if err != nil {
		log.WithError(err).Error("visibility rules fetch failed")
		return nil, err
	}
	report.Hidden = HiddenFields(rules, contract, audience)

	// 8. Order
	SortByDiamonds(records)

	report.Records = make([]VisibleRecord, len(records))
	for i, rec := range records {
		report.Records[i] = Project(rec, report.Hidden)
	}
	report.Summary = Summarize(records, report.Hidden)

	log.WithFields(logrus.Fields{
		"records":          len(records),
		"collapse_tiers":   cfg.CollapseLowTiers,
		"schedule_rows":    schedule.Len(),
		"hidden":           len(report.Hidden),
		"names_resolved":   report.Names.Resolved,
		"names_fallback":   report.Names.Synthesized,
		"payroll_degraded": report.PayrollDegraded,
		"elapsed":          time.Since(started),
	}).Info("report built")

	return report, nil
}

// =============================================================================
// FETCH STEPS
// =============================================================================

func (b *Builder) fetchActivity(ctx context.Context, contract string, period Period) ([]StreamerPeriodRecord, error) {
	ctx, cancel := b.fetchContext(ctx)
	defer cancel()

	records, err := b.Source.FetchActivityRecords(ctx, contract, period)
	if err != nil {
		return nil, &SourceError{Op: "fetch_activity_records", Err: fmt.Errorf("%w: %w", ErrActivityUnavailable, err)}
	}
	return records, nil
}

func (b *Builder) contractConfig(ctx context.Context, contract string) (ContractConfig, error) {
	ctx, cancel := b.fetchContext(ctx)
	defer cancel()

	cfg, err := b.Source.FetchContractConfig(ctx, contract)
	switch {
	case errors.Is(err, ErrContractNotFound):
		return DefaultContractConfig(contract), nil
	case err != nil:
		return ContractConfig{}, &SourceError{Op: "fetch_contract_config", Err: err}
	}
	return cfg, nil
}

func (b *Builder) schedule(ctx context.Context) (*Schedule, error) {
	ctx, cancel := b.fetchContext(ctx)
	defer cancel()

	rows, err := b.Source.FetchIncentiveSchedule(ctx)
	if err != nil {
		return nil, &SourceError{Op: "fetch_incentive_schedule", Err: err}
	}
	return NewSchedule(rows)
}

func (b *Builder) payroll(ctx context.Context, contract string, period Period) ([]PayrollReportRow, error) {
	ctx, cancel := b.fetchContext(ctx)
	defer cancel()

	rows, err := b.Source.FetchPayroll(ctx, contract, period)
	if err != nil {
		return nil, &SourceError{Op: "fetch_payroll", Err: err}
	}
	return rows, nil
}

func (b *Builder) rules(ctx context.Context) ([]VisibilityRule, error) {
	ctx, cancel := b.fetchContext(ctx)
	defer cancel()

	rules, err := b.Source.FetchVisibilityRules(ctx)
	if err != nil {
		return nil, &SourceError{Op: "fetch_visibility_rules", Err: err}
	}
	return rules, nil
}

func (b *Builder) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.FetchTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.FetchTimeout)
}

// resolver never writes to b; a Builder is shared by concurrent builds.
func (b *Builder) resolver() *IdentityResolver {
	if b.Resolver == nil {
		return NewIdentityResolver(b.Source, b.Log)
	}
	return b.Resolver
}

func (b *Builder) logger() logrus.FieldLogger {
	if b.Log == nil {
		return logrus.StandardLogger()
	}
	return b.Log
}

func (b *Builder) reportID() string {
	if b.newID == nil {
		return uuid.NewString()
	}
	return b.newID()
}

// =============================================================================
// ORDERING, PROJECTION AND SUMMARY
// =============================================================================

// SortByDiamonds orders records by diamonds descending; equal diamonds keep
// their input order.
func SortByDiamonds(records []StreamerPeriodRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Diamonds > records[j].Diamonds
	})
}

// Project copies the visible columns of rec into a new VisibleRecord.
func Project(rec StreamerPeriodRecord, hidden FieldSet) VisibleRecord {
	v := VisibleRecord{
		PlatformID:   rec.PlatformID,
		ContractCode: rec.ContractCode,
		Period:       rec.Period,
	}
	if !hidden.Has(FieldDisplayName) {
		v.DisplayName = &rec.DisplayName
	}
	if !hidden.Has(FieldAgency) {
		v.Agency = &rec.Agency
	}
	if !hidden.Has(FieldDays) {
		v.DaysActive = &rec.DaysActive
	}
	if !hidden.Has(FieldHours) {
		v.HoursActive = &rec.HoursActive
	}
	if !hidden.Has(FieldDiamonds) {
		v.Diamonds = &rec.Diamonds
	}
	if !hidden.Has(FieldTier) {
		v.Tier = &rec.Tier
	}
	if !hidden.Has(FieldMeetsMinimum) {
		v.MeetsMinimum = &rec.MeetsMinimum
	}
	if !hidden.Has(FieldUnitReward) {
		v.UnitReward = &rec.UnitReward
	}
	if !hidden.Has(FieldCashReward) {
		v.CashReward = &rec.CashReward
	}
	if !hidden.Has(FieldGrossPay) {
		v.GrossPay = &rec.GrossPay
	}
	if !hidden.Has(FieldGrossCoins) {
		v.GrossCoins = &rec.GrossCoins
	}
	return v
}

// Summarize aggregates records, leaving out totals of hidden fields.
func Summarize(records []StreamerPeriodRecord, hidden FieldSet) Summary {
	var (
		meeting   int
		diamonds  int64
		units     int64
		cash      = decimal.Zero
		gross     = decimal.Zero
		tierCount = make(map[Tier]int)
	)
	for _, rec := range records {
		if rec.MeetsMinimum {
			meeting++
		}
		tierCount[rec.Tier]++
		diamonds += rec.Diamonds
		units += rec.UnitReward
		cash = cash.Add(rec.CashReward)
		gross = gross.Add(rec.GrossPay)
	}

	s := Summary{Streamers: len(records)}
	if !hidden.Has(FieldMeetsMinimum) {
		s.MeetingMinimum = &meeting
	}
	if !hidden.Has(FieldTier) {
		s.TierCounts = tierCount
	}
	if !hidden.Has(FieldDiamonds) {
		s.TotalDiamonds = &diamonds
	}
	if !hidden.Has(FieldUnitReward) {
		s.TotalUnitReward = &units
	}
	if !hidden.Has(FieldCashReward) {
		s.TotalCashReward = &cash
	}
	if !hidden.Has(FieldGrossPay) {
		s.TotalGrossPay = &gross
	}
	return s
}
