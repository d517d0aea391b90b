/*
handlers.go - HTTP API handlers for the incentive report engine

PURPOSE:
  Exposes the report builder via REST API. Handles HTTP request/response,
  JSON serialization, input validation, and delegates to payout.Builder.

ENDPOINTS:
  Reports:
    GET    /api/contracts/{contract}/periods           Periods with activity
    GET    /api/contracts/{contract}/reports/{period}  Report (?audience=)

  Scenarios (development only):
    GET    /api/scenarios              List demo scenarios
    GET    /api/scenarios/current      Currently loaded scenario
    POST   /api/scenarios/load         Load a demo scenario

  Health:
    GET    /api/health

AUDIENCE:
  ?audience= accepts public, player, agent or admin (case-insensitive).
  Omitted means public, the narrowest view.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid period/audience/contract
  - 503: Activity store unavailable, transient failure, or a fetch
         cancelled underneath a live request (retry)
  - 504: Fetch deadline exceeded
  - 500: Invalid schedule and everything else

SECURITY NOTE:
  No authentication. The audience parameter selects a view; it does not
  prove who the caller is. Put the service behind an authenticating proxy
  that sets the audience.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/warp/incentive-engine/payout"
	"github.com/warp/incentive-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Invalidator drops cached tables after the data underneath changed.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Builder *payout.Builder
	Periods payout.PeriodLister
	Health  Pinger
	Log     logrus.FieldLogger

	// Scenario loading; nil Store disables it.
	Store *sqlite.Store
	Cache Invalidator

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler around a builder and a period lister.
func NewHandler(builder *payout.Builder, periods payout.PeriodLister, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Builder:  builder,
		Periods:  periods,
		Log:      log,
		validate: validator.New(),
	}
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// ListPeriods returns the periods with activity for a contract.
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	q := PeriodsQuery{Contract: strings.TrimSpace(chi.URLParam(r, "contract"))}
	if err := h.validator().Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid contract", validationDetails(err))
		return
	}

	periods, err := h.Periods.ListPeriods(r.Context(), q.Contract)
	if err != nil {
		h.logger().WithError(err).WithField("contract", q.Contract).Error("list periods failed")
		writeError(w, statusFor(err), "Failed to list periods", err.Error())
		return
	}

	dto := PeriodsDTO{Contract: q.Contract, Periods: make([]PeriodDTO, len(periods))}
	for i, p := range periods {
		dto.Periods[i] = toPeriodDTO(p)
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetReport builds and returns the report of one contract+period.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	q := ReportQuery{
		Contract: strings.TrimSpace(chi.URLParam(r, "contract")),
		Period:   strings.TrimSpace(chi.URLParam(r, "period")),
		Audience: normalizeAudience(r.URL.Query().Get("audience")),
	}
	if err := h.validator().Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid report request", validationDetails(err))
		return
	}

	period, err := payout.ParsePeriod(q.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err.Error())
		return
	}

	report, err := h.Builder.Build(r.Context(), q.Contract, period, payout.Audience(q.Audience))
	if err != nil {
		if r.Context().Err() != nil {
			return // client went away
		}
		writeError(w, statusFor(err), errorMessage(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toReportDTO(report))
}

// Healthz reports whether the store answers.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthDTO{Status: "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) validator() *validator.Validate {
	if h.validate == nil {
		h.validate = validator.New()
	}
	return h.validate
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case payout.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, payout.ErrActivityUnavailable), payout.IsTransient(err),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	switch {
	case payout.IsClientError(err):
		return "Invalid report request"
	case errors.Is(err, payout.ErrActivityUnavailable):
		return "Activity data unavailable"
	case errors.Is(err, payout.ErrInvalidSchedule):
		return "Incentive schedule is invalid"
	case errors.Is(err, context.DeadlineExceeded):
		return "Report timed out"
	default:
		return "Failed to build report"
	}
}

// validationDetails flattens validator errors to field -> rule.
func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}

func (h *Handler) logger() logrus.FieldLogger {
	if h.Log == nil {
		return logrus.StandardLogger()
	}
	return h.Log
}
