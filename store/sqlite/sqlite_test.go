package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/incentive-engine/factory"
	"github.com/warp/incentive-engine/payout"
	"github.com/warp/incentive-engine/store/sqlite"
)

var (
	aug2025  = payout.NewPeriod(2025, time.August)
	sept2025 = payout.NewPeriod(2025, time.September)
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_ActivityRoundTrip(t *testing.T) {
	// GIVEN: two periods of activity for A001 and one for B002
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveActivity(ctx,
		payout.StreamerPeriodRecord{PlatformID: "u1", DisplayName: "uno", Agency: "Agency X", ContractCode: "A001", Period: sept2025, DaysActive: 22, HoursActive: 45.5, Diamonds: 150000},
		payout.StreamerPeriodRecord{PlatformID: "u2", ContractCode: "A001", Period: sept2025, DaysActive: 3},
		payout.StreamerPeriodRecord{PlatformID: "u1", ContractCode: "A001", Period: aug2025, DaysActive: 10},
		payout.StreamerPeriodRecord{PlatformID: "u9", ContractCode: "B002", Period: sept2025},
	))

	// WHEN
	recs, err := store.FetchActivityRecords(ctx, "A001", sept2025)

	// THEN: only A001/September, in insertion order
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "u1", recs[0].PlatformID)
	assert.Equal(t, "uno", recs[0].DisplayName)
	assert.Equal(t, "Agency X", recs[0].Agency)
	assert.Equal(t, 22, recs[0].DaysActive)
	assert.Equal(t, 45.5, recs[0].HoursActive)
	assert.Equal(t, int64(150000), recs[0].Diamonds)
	assert.True(t, recs[0].Period.Equal(sept2025))
	assert.Equal(t, "", recs[1].DisplayName)
}

func TestStore_LegacyValuesAreCoerced(t *testing.T) {
	// GIVEN: a row as the old import scripts wrote it
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertRows(ctx, "usuarios_tiktok", []factory.Row{{
		"id_tiktok":   "7012345678",
		"usuario":     "None",
		"contrato":    " A001 ",
		"fecha_datos": "2025-09-01 00:00:00",
		"dias":        "NaN",
		"duracion":    "12,5",
		"diamantes":   "",
	}}))

	// WHEN
	recs, err := store.FetchActivityRecords(ctx, "A001", sept2025)

	// THEN
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "", recs[0].DisplayName)
	assert.Zero(t, recs[0].DaysActive)
	assert.Equal(t, 12.5, recs[0].HoursActive)
	assert.Zero(t, recs[0].Diamonds)
}

func TestStore_InsertRowsRejectsUnknownColumns(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	err := store.InsertRows(ctx, "usuarios_tiktok", []factory.Row{{"id_tiktok": "u1", "contrato; DROP": "x"}})
	assert.Error(t, err)

	err = store.InsertRows(ctx, "sqlite_master", []factory.Row{{"name": "x"}})
	assert.Error(t, err)
}

func TestStore_FetchAliases(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	seen := time.Date(2025, 8, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveAliases(ctx,
		payout.HistoricalAlias{PlatformID: "u1", LastSeen: seen, Names: [3]string{"", "second", ""}},
		payout.HistoricalAlias{PlatformID: "u2", LastSeen: seen, Names: [3]string{"dos"}},
		payout.HistoricalAlias{PlatformID: "u3", LastSeen: seen, Names: [3]string{"tres"}},
	))

	got, err := store.FetchAliases(ctx, []string{"u1", "u2"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, [3]string{"", "second", ""}, got[0].Names)
	assert.True(t, got[0].LastSeen.Equal(seen))
	assert.Equal(t, "dos", got[1].Names[0])

	none, err := store.FetchAliases(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_ScheduleRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	tier3 := payout.Reward{Units: 100, Cash: decimal.RequireFromString("25.00")}
	require.NoError(t, store.SaveSchedule(ctx,
		payout.IncentiveScheduleRow{Threshold: 5000, Rewards: map[payout.Tier]payout.Reward{payout.Tier3: tier3}},
		payout.IncentiveScheduleRow{Threshold: 0, Rewards: map[payout.Tier]payout.Reward{}},
	))

	rows, err := store.FetchIncentiveSchedule(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(0), rows[0].Threshold)
	assert.Equal(t, int64(5000), rows[1].Threshold)
	assert.Equal(t, int64(100), rows[1].Reward(payout.Tier3).Units)
	assert.True(t, tier3.Cash.Equal(rows[1].Reward(payout.Tier3).Cash))

	schedule, err := payout.NewSchedule(rows)
	require.NoError(t, err)
	assert.Equal(t, int64(100), schedule.Lookup(5000, payout.Tier3).Units)
}

func TestStore_ContractConfig(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveContract(ctx, payout.ContractConfig{Code: "A001", CollapseLowTiers: true}))
	require.NoError(t, store.InsertRows(ctx, "contratos", []factory.Row{{"codigo": "B002", "nivel1_tabla3": "sí"}}))

	cfg, err := store.FetchContractConfig(ctx, "A001")
	require.NoError(t, err)
	assert.True(t, cfg.CollapseLowTiers)

	cfg, err = store.FetchContractConfig(ctx, "B002")
	require.NoError(t, err)
	assert.True(t, cfg.CollapseLowTiers)

	require.NoError(t, store.SaveContract(ctx, payout.ContractConfig{Code: "A001"}))
	cfg, err = store.FetchContractConfig(ctx, "A001")
	require.NoError(t, err)
	assert.False(t, cfg.CollapseLowTiers)

	_, err = store.FetchContractConfig(ctx, "ZZZ")
	assert.ErrorIs(t, err, payout.ErrContractNotFound)
}

func TestStore_PayrollAndRules(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePayroll(ctx,
		payout.PayrollReportRow{PlatformID: "u1", ContractCode: "A001", Period: sept2025, GrossPay: decimal.RequireFromString("120.75"), GrossCoins: decimal.Zero},
		payout.PayrollReportRow{PlatformID: "u1", ContractCode: "A001", Period: aug2025, GrossPay: decimal.RequireFromString("1")},
	))
	require.NoError(t, store.SaveRules(ctx,
		payout.VisibilityRule{FieldToken: "agencia", Audience: "public"},
		payout.VisibilityRule{Contract: "A001", FieldToken: "coins"},
	))

	payroll, err := store.FetchPayroll(ctx, "A001", sept2025)
	require.NoError(t, err)
	require.Len(t, payroll, 1)
	assert.True(t, decimal.RequireFromString("120.75").Equal(payroll[0].GrossPay))

	rules, err := store.FetchVisibilityRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, []payout.VisibilityRule{
		{FieldToken: "agencia", Audience: "public"},
		{Contract: "A001", FieldToken: "coins"},
	}, rules)
}

func TestStore_ListPeriodsNewestFirst(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveActivity(ctx,
		payout.StreamerPeriodRecord{PlatformID: "u1", ContractCode: "A001", Period: aug2025},
		payout.StreamerPeriodRecord{PlatformID: "u2", ContractCode: "A001", Period: sept2025},
		payout.StreamerPeriodRecord{PlatformID: "u3", ContractCode: "A001", Period: sept2025},
		payout.StreamerPeriodRecord{PlatformID: "u4", ContractCode: "B002", Period: payout.NewPeriod(2024, time.January)},
	))

	periods, err := store.ListPeriods(ctx, "A001")
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.True(t, periods[0].Equal(sept2025))
	assert.True(t, periods[1].Equal(aug2025))
}

func TestStore_ResetAndBuild(t *testing.T) {
	// GIVEN: a seeded store wired straight into the builder
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSchedule(ctx, payout.IncentiveScheduleRow{
		Threshold: 0,
		Rewards:   map[payout.Tier]payout.Reward{payout.Tier3: {Units: 5, Cash: decimal.RequireFromString("1.00")}},
	}))
	require.NoError(t, store.SaveActivity(ctx, payout.StreamerPeriodRecord{
		PlatformID: "u1", DisplayName: "uno", ContractCode: "A001", Period: sept2025, DaysActive: 21, HoursActive: 41, Diamonds: 10,
	}))

	// WHEN
	report, err := payout.NewBuilder(store, nil).Build(ctx, "A001", sept2025, payout.AudienceAdmin)

	// THEN
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	require.NotNil(t, report.Records[0].UnitReward)
	assert.Equal(t, int64(5), *report.Records[0].UnitReward)

	require.NoError(t, store.Reset(ctx))
	recs, err := store.FetchActivityRecords(ctx, "A001", sept2025)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestStore_OffsetTimestampsMergePayroll(t *testing.T) {
	// GIVEN: activity and payroll stamped in UTC+2 at the start of September
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertRows(ctx, "usuarios_tiktok", []factory.Row{{
		"id_tiktok": "u1", "usuario": "uno", "contrato": "A001",
		"fecha_datos": "2025-09-01T00:00:00+02:00", "dias": "21", "duracion": "41", "diamantes": "10",
	}}))
	require.NoError(t, store.InsertRows(ctx, "reportes_contratos", []factory.Row{{
		"usuario_id": "u1", "contrato": "A001", "periodo": "2025-09-01T00:00:00+02:00", "paypal_bruto": "99,90",
	}}))

	// WHEN
	report, err := payout.NewBuilder(store, nil).Build(ctx, "A001", sept2025, payout.AudienceAdmin)

	// THEN: the payroll row joins instead of falling into August
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, "2025-09-01", report.Records[0].Period.String())
	assert.True(t, decimal.RequireFromString("99.90").Equal(*report.Records[0].GrossPay))
}

func TestStore_CancelledContextIsNotTransient(t *testing.T) {
	store := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.FetchActivityRecords(ctx, "A001", sept2025)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, payout.IsTransient(err))
}
