/*
store.go - Read-only interface between the pipeline and the backing store

PURPOSE:
  The pipeline treats the store as four read-only collections (activity,
  aliases, schedule, payroll) plus two small rule tables (contract config,
  visibility rules). Nothing here writes.

CLIENT HANDLES:
  A Source is constructed explicitly and injected into the Builder. There is
  no package-level client.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite-backed production store
  - payout/store/memory.go: In-memory store for tests and dev
  - cache/source.go: TTL decorator for schedule, rules and aliases

RESULT CONTRACT:
  - Empty slices mean "nothing there", never "failed".
  - FetchContractConfig returns ErrContractNotFound for a missing row.
  - Failures should wrap ErrTransient when a retry may help.

SEE ALSO:
  - errors.go: Error taxonomy
  - report.go: How each failure is handled
*/
package payout

import "context"

// ActivitySource returns the raw activity of one contract+period.
type ActivitySource interface {
	FetchActivityRecords(ctx context.Context, contract string, period Period) ([]StreamerPeriodRecord, error)
}

// AliasSource returns historical name snapshots for a batch of ids.
type AliasSource interface {
	FetchAliases(ctx context.Context, platformIDs []string) ([]HistoricalAlias, error)
}

// ScheduleSource returns incentive schedule rows, ascending by threshold.
type ScheduleSource interface {
	FetchIncentiveSchedule(ctx context.Context) ([]IncentiveScheduleRow, error)
}

// ContractSource returns a contract's override flags.
type ContractSource interface {
	FetchContractConfig(ctx context.Context, contract string) (ContractConfig, error)
}

// PayrollSource returns payroll figures for one contract+period.
type PayrollSource interface {
	FetchPayroll(ctx context.Context, contract string, period Period) ([]PayrollReportRow, error)
}

// RuleSource returns every visibility rule.
type RuleSource interface {
	FetchVisibilityRules(ctx context.Context) ([]VisibilityRule, error)
}

// Source is everything the Builder reads.
type Source interface {
	ActivitySource
	AliasSource
	ScheduleSource
	ContractSource
	PayrollSource
	RuleSource
}

// PeriodLister lists the periods that have activity for a contract,
// newest first.
type PeriodLister interface {
	ListPeriods(ctx context.Context, contract string) ([]Period, error)
}
