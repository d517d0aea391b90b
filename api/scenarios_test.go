package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/incentive-engine/payout"
	"github.com/warp/incentive-engine/payout/store"
)

func post(t *testing.T, router http.Handler, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListScenarios(t *testing.T) {
	router, _ := setupTestRouter(t, "")

	rec := get(t, router, "/api/scenarios")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []ScenarioDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, len(scenarioLoaders))
	for _, s := range list {
		_, ok := scenarioLoaders[s.ID]
		assert.True(t, ok, s.ID)
	}
}

func TestLoadScenario(t *testing.T) {
	// GIVEN: an empty database
	router, h := setupTestRouter(t, "")

	rec := get(t, router, "/api/scenarios/current")
	assert.Equal(t, "null\n", rec.Body.String())

	// WHEN: a scenario is loaded
	rec = post(t, router, "/api/scenarios/load", `{"scenario_id":"agency-september"}`)

	// THEN: it is current and its reports are served
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = get(t, router, "/api/scenarios/current")
	var current ScenarioDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &current))
	assert.Equal(t, "agency-september", current.ID)

	dto := decodeReport(t, get(t, router, "/api/contracts/A001/reports/2025-09?audience=admin"))
	assert.Len(t, dto.Records, 5)

	// Loading another scenario replaces the data and the cached tables
	require.NoError(t, h.loadScenario(context.Background(), "empty-contract"))
	dto = decodeReport(t, get(t, router, "/api/contracts/A001/reports/2025-09?audience=admin"))
	assert.Empty(t, dto.Records)
}

func TestLoadScenario_SwitchDropsCachedRules(t *testing.T) {
	// GIVEN: the agency-september tables are cached by a report
	router, h := setupTestRouter(t, "agency-september")
	dto := decodeReport(t, get(t, router, "/api/contracts/B002/reports/2025-09?audience=player"))
	require.Empty(t, dto.HiddenFields)

	// WHEN: legacy-import replaces them
	require.NoError(t, h.loadScenario(context.Background(), "legacy-import"))

	// THEN: the new rule table and schedule apply immediately
	dto = decodeReport(t, get(t, router, "/api/contracts/L001/reports/2025-07?audience=player"))
	assert.Equal(t, []string{"incentivo_coins"}, dto.HiddenFields)
	require.Len(t, dto.Records, 3)
	assert.Equal(t, "30", dto.Records[0].CashReward.String())
}

func TestLoadScenario_BadRequests(t *testing.T) {
	router, _ := setupTestRouter(t, "")

	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown id", `{"scenario_id":"nope"}`, "Unknown scenario"},
		{"missing id", `{}`, "Invalid request body"},
		{"malformed", `{"scenario_id":`, "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, router, "/api/scenarios/load", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Error)
		})
	}
}

func TestScenarios_Disabled(t *testing.T) {
	mem := store.NewMemory()
	log, _ := test.NewNullLogger()
	router := NewRouter(NewHandler(payout.NewBuilder(mem, log), mem, log), RouterOptions{})

	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/scenarios").Code)
	assert.Equal(t, http.StatusNotFound, post(t, router, "/api/scenarios/load", `{"scenario_id":"empty-contract"}`).Code)
}

func TestLoadScenario_NoStore(t *testing.T) {
	// Routes enabled but nothing to load into
	mem := store.NewMemory()
	h := NewHandler(payout.NewBuilder(mem, nil), mem, nil)
	router := NewRouter(h, RouterOptions{EnableScenarios: true})

	rec := post(t, router, "/api/scenarios/load", `{"scenario_id":"empty-contract"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
