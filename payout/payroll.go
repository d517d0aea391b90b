package payout

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MergePayroll attaches gross pay to each record. It is a left join from the
// activity side on platform id, restricted to rows of the given contract and
// period; records without a row get zero and orphan payroll rows are dropped.
// When a streamer has several rows for the same scope, the last one wins.
func MergePayroll(records []StreamerPeriodRecord, rows []PayrollReportRow, contract string, period Period) []StreamerPeriodRecord {
	type pay struct {
		gross decimal.Decimal
		coins decimal.Decimal
	}

	byID := make(map[string]pay, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.ContractCode) != strings.TrimSpace(contract) {
			continue
		}
		if !row.Period.IsZero() && !row.Period.Equal(period) {
			continue
		}
		byID[strings.TrimSpace(row.PlatformID)] = pay{gross: row.GrossPay, coins: row.GrossCoins}
	}

	out := make([]StreamerPeriodRecord, len(records))
	for i, rec := range records {
		p, ok := byID[strings.TrimSpace(rec.PlatformID)]
		if !ok {
			p = pay{gross: decimal.Zero, coins: decimal.Zero}
		}
		rec.GrossPay = p.gross
		rec.GrossCoins = p.coins
		out[i] = rec
	}
	return out
}
