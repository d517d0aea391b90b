/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Report records are
  served as payout.VisibleRecord directly: a hidden column is a nil
  pointer and is omitted from the JSON, so the wire shape already matches
  the audience's view.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request / *Query: Inputs from clients

VALIDATION:
  Inputs carry go-playground/validator tags and are checked in the
  handlers before any store access.

SEE ALSO:
  - handlers.go: Uses these types
  - payout/report.go: Report, VisibleRecord, Summary
*/
package api

import (
	"strings"

	"github.com/warp/incentive-engine/payout"
)

// =============================================================================
// QUERIES
// =============================================================================

// ReportQuery is the input of GET /api/contracts/{contract}/reports/{period}.
type ReportQuery struct {
	Contract string `validate:"required,max=64"`
	Period   string `validate:"required,max=32"`
	Audience string `validate:"required,oneof=public player agent admin"`
}

// PeriodsQuery is the input of GET /api/contracts/{contract}/periods.
type PeriodsQuery struct {
	Contract string `validate:"required,max=64"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// PeriodDTO is one selectable reporting month.
type PeriodDTO struct {
	Period string `json:"period"` // 2025-09-01
	Label  string `json:"label"`  // Septiembre 2025
}

// PeriodsDTO lists a contract's periods, newest first.
type PeriodsDTO struct {
	Contract string      `json:"contract"`
	Periods  []PeriodDTO `json:"periods"`
}

// ReportMetaDTO reports how enrichment went.
type ReportMetaDTO struct {
	NamesResolved      int  `json:"names_resolved"`
	NamesSynthesized   int  `json:"names_synthesized"`
	FailedAliasBatches int  `json:"failed_alias_batches,omitempty"`
	PayrollDegraded    bool `json:"payroll_degraded,omitempty"`
}

// ReportDTO is the report as served to one audience.
type ReportDTO struct {
	ID           string                 `json:"id"`
	Contract     string                 `json:"contract"`
	Period       string                 `json:"period"`
	PeriodLabel  string                 `json:"period_label"`
	Audience     string                 `json:"audience"`
	HiddenFields []string               `json:"hidden_fields"`
	Records      []payout.VisibleRecord `json:"records"`
	Summary      payout.Summary         `json:"summary"`
	Meta         ReportMetaDTO          `json:"meta"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HealthDTO is the health check response.
type HealthDTO struct {
	Status string `json:"status"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPeriodDTO(p payout.Period) PeriodDTO {
	return PeriodDTO{Period: p.String(), Label: p.Label()}
}

func toReportDTO(r *payout.Report) ReportDTO {
	hidden := make([]string, 0, len(r.Hidden))
	for _, f := range r.Hidden.Sorted() {
		hidden = append(hidden, string(f))
	}
	records := r.Records
	if records == nil {
		records = []payout.VisibleRecord{}
	}
	return ReportDTO{
		ID:           r.ID,
		Contract:     r.Contract,
		Period:       r.Period.String(),
		PeriodLabel:  r.Period.Label(),
		Audience:     string(r.Audience),
		HiddenFields: hidden,
		Records:      records,
		Summary:      r.Summary,
		Meta: ReportMetaDTO{
			NamesResolved:      r.Names.Resolved,
			NamesSynthesized:   r.Names.Synthesized,
			FailedAliasBatches: r.Names.FailedBatches,
			PayrollDegraded:    r.PayrollDegraded,
		},
	}
}

// normalizeAudience lowercases and trims; an empty value means public.
func normalizeAudience(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return string(payout.AudiencePublic)
	}
	return s
}
