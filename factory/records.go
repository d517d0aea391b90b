package factory

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/warp/incentive-engine/payout"
)

// =============================================================================
// COLUMN VARIANTS
// =============================================================================

// Known spellings per canonical column, in priority order.
var (
	colPlatformID  = []string{"platform_id", "id_tiktok", "usuario_id", "user_id", "id_usuario"}
	colDisplayName = []string{"display_name", "usuario", "username", "user", "nick"}
	colAgency      = []string{"agency", "agencia"}
	colContract    = []string{"contract_code", "contrato", "contract", "codigo"}
	colPeriod      = []string{"period", "periodo", "fecha_datos"}
	colDays        = []string{"days_active", "dias", "días", "days"}
	colHours       = []string{"hours_active", "horas", "duracion", "duración", "tiempo", "hours"}
	colDiamonds    = []string{"diamonds", "diamantes"}

	colLastSeen   = []string{"last_seen", "visto_ultima_vez", "fecha", "updated_at"}
	colNameSlots  = [3][]string{{"name_1", "usuario_1"}, {"name_2", "usuario_2"}, {"name_3", "usuario_3"}}
	colThreshold  = []string{"threshold", "acumulado", "cumulative_threshold"}
	colCollapse   = []string{"collapse_low_tiers", "nivel1_tabla3"}
	colGrossPay   = []string{"gross_pay", "paypal_bruto", "sueldo"}
	colGrossCoins = []string{"gross_coins", "coins_bruto"}
	colField      = []string{"field_token", "columna", "column", "campo"}
	colAudience   = []string{"audience", "audiencia", "rol", "vista"}
)

// =============================================================================
// ACTIVITY
// =============================================================================

// ActivityRecord maps a raw activity row to a StreamerPeriodRecord.
// Missing numeric columns read as 0. A missing contract or period column
// takes the values the caller queried with.
func ActivityRecord(raw Row, contract string, period payout.Period) payout.StreamerPeriodRecord {
	r := raw.Normalize()
	rec := payout.StreamerPeriodRecord{
		ContractCode: contract,
		Period:       period,
	}
	if v, ok := r.first(colPlatformID...); ok {
		rec.PlatformID = CoerceString(v)
	}
	if v, ok := r.first(colDisplayName...); ok {
		rec.DisplayName = CoerceString(v)
		if payout.IsPlaceholderName(rec.DisplayName) {
			rec.DisplayName = ""
		}
	}
	if v, ok := r.first(colAgency...); ok {
		rec.Agency = CoerceString(v)
	}
	if v, ok := r.first(colContract...); ok {
		rec.ContractCode = CoerceString(v)
	}
	if v, ok := r.first(colPeriod...); ok {
		if p, err := payout.ParsePeriod(CoerceString(v)); err == nil {
			rec.Period = p
		} else if t := CoerceTime(v); !t.IsZero() {
			rec.Period = payout.PeriodOf(t)
		}
	}
	if v, ok := r.first(colDays...); ok {
		rec.DaysActive = int(CoerceCount(v))
	}
	if v, ok := r.first(colHours...); ok {
		rec.HoursActive = CoerceMeasure(v)
	}
	if v, ok := r.first(colDiamonds...); ok {
		rec.Diamonds = CoerceCount(v)
	}
	return rec
}

// =============================================================================
// ALIASES
// =============================================================================

// Alias maps a historico_usuarios style row. Tables with a single name
// column use it as slot 1.
func Alias(raw Row) payout.HistoricalAlias {
	r := raw.Normalize()
	a := payout.HistoricalAlias{}
	if v, ok := r.first(colPlatformID...); ok {
		a.PlatformID = CoerceString(v)
	}
	if v, ok := r.first(colLastSeen...); ok {
		a.LastSeen = CoerceTime(v)
	}
	found := false
	for i, cands := range colNameSlots {
		if v, ok := r.first(cands...); ok {
			a.Names[i] = CoerceString(v)
			found = true
		}
	}
	if !found {
		if v, ok := r.first(colDisplayName...); ok {
			a.Names[0] = CoerceString(v)
		}
	}
	return a
}

// =============================================================================
// SCHEDULE
// =============================================================================

// "nivel_2_monedas", "nivel_3_paypal", "tier_1_units", "tier_1_cash"
var tierColumn = regexp.MustCompile(`^(?:nivel|tier)_([0-9]+)_(monedas|coins|units|paypal|cash)$`)

// ScheduleRow maps an incentive schedule row. Columns for tiers outside
// 1..3 are ignored.
func ScheduleRow(raw Row) (payout.IncentiveScheduleRow, error) {
	r := raw.Normalize()
	v, ok := r.first(colThreshold...)
	if !ok {
		return payout.IncentiveScheduleRow{}, fmt.Errorf("%w: row without threshold", payout.ErrInvalidSchedule)
	}
	out := payout.IncentiveScheduleRow{
		Threshold: CoerceInt64(v),
		Rewards:   make(map[payout.Tier]payout.Reward),
	}
	for col, val := range r {
		m := tierColumn.FindStringSubmatch(col)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		tier := payout.Tier(n)
		if tier < payout.Tier1 || tier > payout.MaxTier {
			continue
		}
		rw := out.Rewards[tier]
		switch m[2] {
		case "monedas", "coins", "units":
			rw.Units = CoerceCount(val)
		default:
			rw.Cash = CoerceDecimal(val)
		}
		out.Rewards[tier] = rw
	}
	return out, nil
}

// =============================================================================
// CONTRACTS, PAYROLL, RULES
// =============================================================================

// ContractConfig maps a contratos row.
func ContractConfig(raw Row) payout.ContractConfig {
	r := raw.Normalize()
	cfg := payout.ContractConfig{}
	if v, ok := r.first(colContract...); ok {
		cfg.Code = CoerceString(v)
	}
	if v, ok := r.first(colCollapse...); ok {
		cfg.CollapseLowTiers = ParseFlag(v)
	}
	return cfg
}

// PayrollRow maps a reportes_contratos row.
func PayrollRow(raw Row) payout.PayrollReportRow {
	r := raw.Normalize()
	out := payout.PayrollReportRow{}
	if v, ok := r.first(colPlatformID...); ok {
		out.PlatformID = CoerceString(v)
	}
	if v, ok := r.first(colContract...); ok {
		out.ContractCode = CoerceString(v)
	}
	if v, ok := r.first(colPeriod...); ok {
		if p, err := payout.ParsePeriod(CoerceString(v)); err == nil {
			out.Period = p
		}
	}
	out.GrossPay = CoerceDecimal(nil)
	if v, ok := r.first(colGrossPay...); ok {
		out.GrossPay = CoerceDecimal(v)
	}
	out.GrossCoins = CoerceDecimal(nil)
	if v, ok := r.first(colGrossCoins...); ok {
		out.GrossCoins = CoerceDecimal(v)
	}
	return out
}

// VisibilityRule maps a config_columnas_ocultas row. ok is false for rows
// without a field token.
func VisibilityRule(raw Row) (payout.VisibilityRule, bool) {
	r := raw.Normalize()
	out := payout.VisibilityRule{}
	v, ok := r.first(colField...)
	if !ok {
		return out, false
	}
	out.FieldToken = CoerceString(v)
	if v, ok := r.first(colContract...); ok {
		out.Contract = CoerceString(v)
	}
	if v, ok := r.first(colAudience...); ok {
		out.Audience = CoerceString(v)
	}
	return out, true
}
