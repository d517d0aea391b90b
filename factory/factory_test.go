package factory_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/incentive-engine/factory"
	"github.com/warp/incentive-engine/payout"
)

var sept2025 = payout.NewPeriod(2025, time.September)

// =============================================================================
// COERCION
// =============================================================================

func TestCoerceFloat_Permissive(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
	}{
		{"nil", nil, 0},
		{"blank", "  ", 0},
		{"nan string", "NaN", 0},
		{"garbage", "abc", 0},
		{"comma decimal", "12,5", 12.5},
		{"comma cents", "210,40", 210.40},
		{"comma thousands", "1,000", 1000},
		{"comma groups", "1,234,567", 1234567},
		{"european grouping", "1.234,56", 1234.56},
		{"us grouping", "1,234.56", 1234.56},
		{"bytes", []byte("3.25"), 3.25},
		{"int", 7, 7},
		{"float", 1.5, 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, factory.CoerceFloat(tt.in))
		})
	}
}

func TestCoerceCount_ClampsAndTruncates(t *testing.T) {
	assert.Equal(t, int64(0), factory.CoerceCount("-4"))
	assert.Equal(t, int64(21), factory.CoerceCount("21.9"))
	assert.Equal(t, int64(0), factory.CoerceCount("nan"))
	assert.Equal(t, 0.0, factory.CoerceMeasure(-2.5))
}

func TestCoerceString_RendersWholeFloatIDs(t *testing.T) {
	assert.Equal(t, "7012345678", factory.CoerceString(7012345678.0))
	assert.Equal(t, "abc", factory.CoerceString("  abc "))
	assert.Equal(t, "", factory.CoerceString(nil))
	assert.Equal(t, "42", factory.CoerceString(int64(42)))
}

func TestCoerceDecimal(t *testing.T) {
	assert.True(t, decimal.RequireFromString("25.00").Equal(factory.CoerceDecimal("25.00")))
	assert.True(t, decimal.RequireFromString("3.5").Equal(factory.CoerceDecimal("3,5")))
	assert.True(t, decimal.RequireFromString("1500").Equal(factory.CoerceDecimal("1,500")))
	assert.True(t, decimal.RequireFromString("1500.25").Equal(factory.CoerceDecimal("1.500,25")))
	assert.True(t, factory.CoerceDecimal("n/a").IsZero())
	assert.True(t, factory.CoerceDecimal(nil).IsZero())
}

func TestCoerceTime_Layouts(t *testing.T) {
	want := time.Date(2025, 9, 3, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, want, factory.CoerceTime("2025-09-03 10:30:00"))
	assert.Equal(t, want, factory.CoerceTime("2025-09-03T10:30:00Z"))
	assert.Equal(t, want, factory.CoerceTime(want))
	assert.True(t, factory.CoerceTime("yesterday").IsZero())
}

func TestParseFlag(t *testing.T) {
	for _, v := range []any{"SI", "sí", "YES", "true", "1", " s ", true, 1} {
		assert.True(t, factory.ParseFlag(v), "%v", v)
	}
	for _, v := range []any{"NO", "", nil, "0", false, 0, "maybe"} {
		assert.False(t, factory.ParseFlag(v), "%v", v)
	}
}

// =============================================================================
// RECORDS
// =============================================================================

func TestActivityRecord_LegacyColumnVariants(t *testing.T) {
	// GIVEN: a row using the spreadsheet-era column names
	row := factory.Row{
		"ID_TikTok":   7012345678.0,
		"Usuario":     "nan",
		"Agencia":     "Agency X",
		"Días ":       "22",
		"duracion":    "45,5",
		"diamantes":   "150000",
		"fecha_datos": "2025-09-01",
	}

	// WHEN
	rec := factory.ActivityRecord(row, "A001", payout.Period{})

	// THEN
	assert.Equal(t, "7012345678", rec.PlatformID)
	assert.Equal(t, "", rec.DisplayName, "placeholder names read as missing")
	assert.Equal(t, "Agency X", rec.Agency)
	assert.Equal(t, 22, rec.DaysActive)
	assert.Equal(t, 45.5, rec.HoursActive)
	assert.Equal(t, int64(150000), rec.Diamonds)
	assert.Equal(t, "A001", rec.ContractCode)
	assert.True(t, rec.Period.Equal(sept2025))
}

func TestActivityRecord_MissingNumbersReadAsZero(t *testing.T) {
	rec := factory.ActivityRecord(factory.Row{"user_id": "u1", "dias": "NaN"}, "A001", sept2025)

	assert.Equal(t, "u1", rec.PlatformID)
	assert.Zero(t, rec.DaysActive)
	assert.Zero(t, rec.HoursActive)
	assert.Zero(t, rec.Diamonds)
	assert.True(t, rec.Period.Equal(sept2025))
}

func TestAlias_SlotsAndSingleNameTables(t *testing.T) {
	a := factory.Alias(factory.Row{
		"usuario_id":       "u1",
		"visto_ultima_vez": "2025-08-30 12:00:00",
		"usuario_1":        "",
		"usuario_2":        "second",
	})
	assert.Equal(t, "u1", a.PlatformID)
	assert.Equal(t, [3]string{"", "second", ""}, a.Names)
	assert.Equal(t, 2025, a.LastSeen.Year())

	single := factory.Alias(factory.Row{"id_tiktok": "u2", "usuario": "only"})
	assert.Equal(t, "only", single.Names[0])
}

func TestScheduleRow_TierColumns(t *testing.T) {
	row, err := factory.ScheduleRow(factory.Row{
		"acumulado":       "5000",
		"nivel_1_monedas": "10",
		"nivel_1_paypal":  "2.50",
		"nivel_3_monedas": 100,
		"nivel_3_paypal":  "25.00",
		"nivel_7_monedas": "999",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5000), row.Threshold)
	assert.Equal(t, int64(10), row.Reward(payout.Tier1).Units)
	assert.True(t, decimal.RequireFromString("2.5").Equal(row.Reward(payout.Tier1).Cash))
	assert.True(t, row.Reward(payout.Tier2).IsZero())
	assert.Equal(t, int64(100), row.Reward(payout.Tier3).Units)
	assert.Len(t, row.Rewards, 2)
}

func TestScheduleRow_WithoutThreshold(t *testing.T) {
	_, err := factory.ScheduleRow(factory.Row{"nivel_1_monedas": "10"})
	assert.ErrorIs(t, err, payout.ErrInvalidSchedule)
}

func TestContractConfig_StringFlag(t *testing.T) {
	cfg := factory.ContractConfig(factory.Row{"codigo": "A001", "nivel1_tabla3": "SI"})
	assert.Equal(t, payout.ContractConfig{Code: "A001", CollapseLowTiers: true}, cfg)

	cfg = factory.ContractConfig(factory.Row{"codigo": "B002", "nivel1_tabla3": "NO"})
	assert.False(t, cfg.CollapseLowTiers)
}

func TestPayrollRow(t *testing.T) {
	row := factory.PayrollRow(factory.Row{
		"usuario_id":   "u1",
		"contrato":     "A001",
		"periodo":      "2025-09-01",
		"paypal_bruto": "120.75",
	})

	assert.Equal(t, "u1", row.PlatformID)
	assert.Equal(t, "A001", row.ContractCode)
	assert.True(t, row.Period.Equal(sept2025))
	assert.True(t, decimal.RequireFromString("120.75").Equal(row.GrossPay))
	assert.True(t, row.GrossCoins.IsZero())
}

func TestPayrollRow_OffsetTimestampKeepsMonth(t *testing.T) {
	// GIVEN: a payroll export stamped in UTC+2
	row := factory.PayrollRow(factory.Row{
		"usuario_id":   "u1",
		"contrato":     "A001",
		"periodo":      "2025-09-01T00:00:00+02:00",
		"paypal_bruto": "1,250.00",
	})

	// THEN: still September, so the merge keeps it
	assert.Equal(t, "2025-09-01", row.Period.String())
	assert.True(t, decimal.RequireFromString("1250").Equal(row.GrossPay))

	rec := payout.StreamerPeriodRecord{PlatformID: "u1", ContractCode: "A001", Period: sept2025}
	merged := payout.MergePayroll([]payout.StreamerPeriodRecord{rec}, []payout.PayrollReportRow{row}, "A001", sept2025)
	assert.True(t, decimal.RequireFromString("1250").Equal(merged[0].GrossPay))
}

func TestActivityRecord_OffsetTimestampKeepsMonth(t *testing.T) {
	rec := factory.ActivityRecord(factory.Row{
		"id_tiktok":   "u1",
		"fecha_datos": "2025-09-01T00:00:00+02:00",
		"diamantes":   "1,000",
	}, "A001", payout.Period{})

	assert.Equal(t, "2025-09-01", rec.Period.String())
	assert.Equal(t, int64(1000), rec.Diamonds)
}

func TestVisibilityRule(t *testing.T) {
	rule, ok := factory.VisibilityRule(factory.Row{"contrato": nil, "columna": "Agencia", "audiencia": "public"})
	require.True(t, ok)
	assert.Equal(t, payout.VisibilityRule{FieldToken: "Agencia", Audience: "public"}, rule)

	_, ok = factory.VisibilityRule(factory.Row{"contrato": "A001"})
	assert.False(t, ok)
}

func TestDecodeRows_KeepsNumberText(t *testing.T) {
	rows, err := factory.DecodeRows([]byte(`[{"id_tiktok": 7012345678901234567, "paypal_bruto": 25.10}]`))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, "7012345678901234567", factory.CoerceString(rows[0]["id_tiktok"]))
	assert.Equal(t, "25.1", factory.CoerceDecimal(rows[0]["paypal_bruto"]).String())

	_, err = factory.DecodeRows([]byte(`{not json`))
	assert.Error(t, err)
}
