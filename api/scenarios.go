/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built data sets that populate the database with realistic
	activity, schedule, payroll and visibility rules, so every report path
	can be exercised from the API without a production dump.

AVAILABLE SCENARIOS:

	agency-september: Two contracts, tier collapse, name backfill, payroll
	legacy-import:    Raw rows in the old spreadsheet shapes ("NaN", "SI", "12,5")
	empty-contract:   A configured contract with no activity yet

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Seed schedule, contracts and rules
 3. Seed activity, name history and payroll
 4. Drop cached tables so the next report sees the new data

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "agency-september"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and helpers
  - factory/decode.go: JSON rows used by legacy-import
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/warp/incentive-engine/factory"
	"github.com/warp/incentive-engine/payout"
	"github.com/warp/incentive-engine/store/sqlite"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "agency-september",
		Name:        "Agency September",
		Description: "Contracts A001 and B002 (tier collapse) for August and September 2025",
	},
	{
		ID:          "legacy-import",
		Name:        "Legacy Import",
		Description: "Contract L001 loaded from raw rows in the old spreadsheet formats",
	},
	{
		ID:          "empty-contract",
		Name:        "Empty Contract",
		Description: "Contract C003 configured with no activity",
	},
}

var scenarioLoaders = map[string]func(ctx context.Context, store *sqlite.Store) error{
	"agency-september": loadAgencySeptemberScenario,
	"legacy-import":    loadLegacyImportScenario,
	"empty-contract":   loadEmptyContractScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotFound, "Scenarios are disabled", nil)
		return
	}

	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator().Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", validationDetails(err))
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		if errors.Is(err, errUnknownScenario) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", req.ScenarioID)
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

var errUnknownScenario = errors.New("unknown scenario")

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	load, ok := scenarioLoaders[id]
	if !ok {
		return errUnknownScenario
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.currentScenario = ""

	if err := load(ctx, h.Store); err != nil {
		return err
	}
	if h.Cache != nil {
		if err := h.Cache.Invalidate(ctx); err != nil {
			h.logger().WithError(err).Warn("cache invalidation after scenario load failed")
		}
	}

	h.currentScenario = id
	h.logger().WithField("scenario", id).Info("scenario loaded")
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func cash(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func scheduleRow(threshold int64, t1u int64, t1c string, t2u int64, t2c string, t3u int64, t3c string) payout.IncentiveScheduleRow {
	return payout.IncentiveScheduleRow{
		Threshold: threshold,
		Rewards: map[payout.Tier]payout.Reward{
			payout.Tier1: {Units: t1u, Cash: cash(t1c)},
			payout.Tier2: {Units: t2u, Cash: cash(t2c)},
			payout.Tier3: {Units: t3u, Cash: cash(t3c)},
		},
	}
}

// demoSchedule is shared by every scenario.
func demoSchedule() []payout.IncentiveScheduleRow {
	return []payout.IncentiveScheduleRow{
		scheduleRow(0, 0, "0", 0, "0", 0, "0"),
		scheduleRow(5000, 20, "5.00", 40, "10.00", 100, "25.00"),
		scheduleRow(50000, 150, "35.00", 300, "70.00", 600, "140.00"),
		scheduleRow(150000, 500, "110.00", 900, "210.00", 1500, "350.00"),
	}
}

func loadAgencySeptemberScenario(ctx context.Context, store *sqlite.Store) error {
	aug := payout.NewPeriod(2025, time.August)
	sept := payout.NewPeriod(2025, time.September)

	if err := store.SaveSchedule(ctx, demoSchedule()...); err != nil {
		return err
	}
	for _, c := range []payout.ContractConfig{
		{Code: "A001", CollapseLowTiers: false},
		{Code: "B002", CollapseLowTiers: true},
	} {
		if err := store.SaveContract(ctx, c); err != nil {
			return err
		}
	}

	activity := []payout.StreamerPeriodRecord{
		// A001, September
		{PlatformID: "7001000001", DisplayName: "luna.live", Agency: "Agencia Norte", ContractCode: "A001", Period: sept, DaysActive: 22, HoursActive: 48, Diamonds: 150000},
		{PlatformID: "7001000002", DisplayName: "", Agency: "Agencia Norte", ContractCode: "A001", Period: sept, DaysActive: 15, HoursActive: 31.5, Diamonds: 52000},
		{PlatformID: "7001000003", DisplayName: "nan", Agency: "Agencia Sur", ContractCode: "A001", Period: sept, DaysActive: 9, HoursActive: 18, Diamonds: 7400},
		{PlatformID: "7001000004", DisplayName: "sol.stream", Agency: "Agencia Sur", ContractCode: "A001", Period: sept, DaysActive: 8, HoursActive: 16, Diamonds: 6000},
		{PlatformID: "7001000005", DisplayName: "rio", Agency: "Agencia Sur", ContractCode: "A001", Period: sept, DaysActive: 3, HoursActive: 5, Diamonds: 90000},
		// A001, August
		{PlatformID: "7001000001", DisplayName: "luna.live", Agency: "Agencia Norte", ContractCode: "A001", Period: aug, DaysActive: 20, HoursActive: 41, Diamonds: 98000},
		{PlatformID: "7001000004", DisplayName: "sol.stream", Agency: "Agencia Sur", ContractCode: "A001", Period: aug, DaysActive: 14, HoursActive: 30, Diamonds: 12000},
		// B002, September
		{PlatformID: "7002000001", DisplayName: "mar", Agency: "Agencia Este", ContractCode: "B002", Period: sept, DaysActive: 7, HoursActive: 15, Diamonds: 60000},
		{PlatformID: "7002000002", DisplayName: "cielo", Agency: "Agencia Este", ContractCode: "B002", Period: sept, DaysActive: 16, HoursActive: 33, Diamonds: 4000},
	}
	if err := store.SaveActivity(ctx, activity...); err != nil {
		return err
	}

	if err := store.SaveAliases(ctx,
		payout.HistoricalAlias{PlatformID: "7001000002", LastSeen: time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), Names: [3]string{"estrella_old"}},
		payout.HistoricalAlias{PlatformID: "7001000002", LastSeen: time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC), Names: [3]string{"", "estrella.tv", "estrella"}},
	); err != nil {
		return err
	}

	if err := store.SavePayroll(ctx,
		payout.PayrollReportRow{PlatformID: "7001000001", ContractCode: "A001", Period: sept, GrossPay: cash("320.50"), GrossCoins: cash("12.00")},
		payout.PayrollReportRow{PlatformID: "7001000002", ContractCode: "A001", Period: sept, GrossPay: cash("180.00"), GrossCoins: cash("0")},
		payout.PayrollReportRow{PlatformID: "7002000001", ContractCode: "B002", Period: sept, GrossPay: cash("150.00"), GrossCoins: cash("5.00")},
	); err != nil {
		return err
	}

	return store.SaveRules(ctx,
		payout.VisibilityRule{FieldToken: "agencia", Audience: "public"},
		payout.VisibilityRule{Contract: "A001", FieldToken: "sueldo", Audience: "player"},
	)
}

// legacyRows holds rows exactly as the old import scripts wrote them.
var legacyRows = map[string]string{
	"incentivos_horizontales": `[
		{"acumulado": "0",     "nivel_1_monedas": "0",   "nivel_1_paypal": "0",     "nivel_2_monedas": "0",   "nivel_2_paypal": "0",     "nivel_3_monedas": "0",   "nivel_3_paypal": "0"},
		{"acumulado": "10000", "nivel_1_monedas": "30",  "nivel_1_paypal": "7,50",  "nivel_2_monedas": "60",  "nivel_2_paypal": "15,00", "nivel_3_monedas": "120", "nivel_3_paypal": "30,00"}
	]`,
	"contratos": `[
		{"codigo": "L001", "nivel1_tabla3": "SI"}
	]`,
	"usuarios_tiktok": `[
		{"id_tiktok": 7003000001, "usuario": "alba",  "agencia": "Agencia Oeste", "contrato": "L001", "fecha_datos": "2025-07-01", "dias": "21", "duracion": "44,5", "diamantes": "15000"},
		{"id_tiktok": 7003000002, "usuario": "None",  "agencia": "Agencia Oeste", "contrato": "L001", "fecha_datos": "2025-07-01", "dias": "8",  "duracion": "16",   "diamantes": "11000"},
		{"id_tiktok": 7003000003, "usuario": "",      "agencia": "Agencia Oeste", "contrato": "L001", "fecha_datos": "2025-07-01", "dias": "NaN", "duracion": "",    "diamantes": "2500"}
	]`,
	"historico_usuarios": `[
		{"id_tiktok": "7003000002", "usuario_1": "null", "usuario_2": "bruma", "visto_ultima_vez": "2025-06-15 10:00:00"}
	]`,
	"reportes_contratos": `[
		{"usuario_id": "7003000001", "contrato": "L001", "periodo": "2025-07-01", "paypal_bruto": "210,40", "coins_bruto": ""}
	]`,
	"config_columnas_ocultas": `[
		{"contrato": null, "columna": "Agencia", "audiencia": "public"},
		{"contrato": "L001", "columna": "Incentivo Coin", "audiencia": "player"}
	]`,
}

func loadLegacyImportScenario(ctx context.Context, store *sqlite.Store) error {
	for _, table := range []string{
		"incentivos_horizontales",
		"contratos",
		"usuarios_tiktok",
		"historico_usuarios",
		"reportes_contratos",
		"config_columnas_ocultas",
	} {
		rows, err := factory.DecodeRows([]byte(legacyRows[table]))
		if err != nil {
			return fmt.Errorf("%s: %w", table, err)
		}
		if err := store.InsertRows(ctx, table, rows); err != nil {
			return err
		}
	}
	return nil
}

func loadEmptyContractScenario(ctx context.Context, store *sqlite.Store) error {
	if err := store.SaveSchedule(ctx, demoSchedule()...); err != nil {
		return err
	}
	return store.SaveContract(ctx, payout.ContractConfig{Code: "C003"})
}
