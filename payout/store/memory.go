// Package store provides Source implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/incentive-engine/payout"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is an in-memory payout.Source. Every fetch returns copies.
// The Fail* fields inject errors per operation.
type Memory struct {
	mu        sync.RWMutex
	activity  map[key][]payout.StreamerPeriodRecord
	aliases   map[string][]payout.HistoricalAlias
	schedule  []payout.IncentiveScheduleRow
	contracts map[string]payout.ContractConfig
	payroll   map[key][]payout.PayrollReportRow
	rules     []payout.VisibilityRule

	FailActivity error
	FailAliases  error
	FailSchedule error
	FailContract error
	FailPayroll  error
	FailRules    error

	aliasCalls [][]string
}

type key struct {
	Contract string
	Period   payout.Period
}

var _ payout.Source = (*Memory)(nil)
var _ payout.PeriodLister = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		activity:  make(map[key][]payout.StreamerPeriodRecord),
		aliases:   make(map[string][]payout.HistoricalAlias),
		contracts: make(map[string]payout.ContractConfig),
		payroll:   make(map[key][]payout.PayrollReportRow),
	}
}

// =============================================================================
// SEEDING
// =============================================================================

// AddActivity appends records, keyed by each record's contract and period.
func (m *Memory) AddActivity(records ...payout.StreamerPeriodRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		k := key{Contract: r.ContractCode, Period: r.Period}
		m.activity[k] = append(m.activity[k], r)
	}
}

func (m *Memory) AddAliases(aliases ...payout.HistoricalAlias) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range aliases {
		m.aliases[a.PlatformID] = append(m.aliases[a.PlatformID], a)
	}
}

func (m *Memory) SetSchedule(rows ...payout.IncentiveScheduleRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedule = append([]payout.IncentiveScheduleRow(nil), rows...)
}

func (m *Memory) SetContract(cfg payout.ContractConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[cfg.Code] = cfg
}

func (m *Memory) AddPayroll(rows ...payout.PayrollReportRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		k := key{Contract: r.ContractCode, Period: r.Period}
		m.payroll[k] = append(m.payroll[k], r)
	}
}

func (m *Memory) AddRules(rules ...payout.VisibilityRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rules...)
}

// AliasCalls returns the id batches FetchAliases has been called with.
func (m *Memory) AliasCalls() [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]string, len(m.aliasCalls))
	copy(out, m.aliasCalls)
	return out
}

// =============================================================================
// payout.Source
// =============================================================================

func (m *Memory) FetchActivityRecords(_ context.Context, contract string, period payout.Period) ([]payout.StreamerPeriodRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailActivity != nil {
		return nil, m.FailActivity
	}
	src := m.activity[key{Contract: contract, Period: period}]
	out := make([]payout.StreamerPeriodRecord, len(src))
	copy(out, src)
	return out, nil
}

func (m *Memory) FetchAliases(_ context.Context, platformIDs []string) ([]payout.HistoricalAlias, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aliasCalls = append(m.aliasCalls, append([]string(nil), platformIDs...))
	if m.FailAliases != nil {
		return nil, m.FailAliases
	}
	var out []payout.HistoricalAlias
	for _, id := range platformIDs {
		out = append(out, m.aliases[id]...)
	}
	return out, nil
}

func (m *Memory) FetchIncentiveSchedule(_ context.Context) ([]payout.IncentiveScheduleRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailSchedule != nil {
		return nil, m.FailSchedule
	}
	out := append([]payout.IncentiveScheduleRow(nil), m.schedule...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Threshold < out[j].Threshold })
	return out, nil
}

func (m *Memory) FetchContractConfig(_ context.Context, contract string) (payout.ContractConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailContract != nil {
		return payout.ContractConfig{}, m.FailContract
	}
	cfg, ok := m.contracts[strings.TrimSpace(contract)]
	if !ok {
		return payout.ContractConfig{}, payout.ErrContractNotFound
	}
	return cfg, nil
}

func (m *Memory) FetchPayroll(_ context.Context, contract string, period payout.Period) ([]payout.PayrollReportRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailPayroll != nil {
		return nil, m.FailPayroll
	}
	return append([]payout.PayrollReportRow(nil), m.payroll[key{Contract: contract, Period: period}]...), nil
}

func (m *Memory) FetchVisibilityRules(_ context.Context) ([]payout.VisibilityRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailRules != nil {
		return nil, m.FailRules
	}
	return append([]payout.VisibilityRule(nil), m.rules...), nil
}

// ListPeriods returns the periods with activity for contract, newest first.
func (m *Memory) ListPeriods(_ context.Context, contract string) ([]payout.Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []payout.Period
	for k := range m.activity {
		if k.Contract == contract {
			out = append(out, k.Period)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[j].Before(out[i]) })
	return out, nil
}
