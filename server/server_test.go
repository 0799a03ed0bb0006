package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldsim/worldsim/sim"
	"github.com/worldsim/worldsim/sim/company"
	"github.com/worldsim/worldsim/sim/store"
	"github.com/worldsim/worldsim/sim/tables"
)

func TestMain(m *testing.M) {
	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(logrus.WarnLevel)
	os.Exit(m.Run())
}

// newTestEnv creates a server over an in-memory store.
func newTestEnv(t *testing.T, hub *Hub) http.Handler {
	t.Helper()
	svc := company.NewService(store.NewMemoryStore(), Broadcaster(hub))
	return New(svc, hub).Router()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// createShakes creates the default company over January 2024.
func createShakes(t *testing.T, h http.Handler) {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/v1/companies", CreateCompanyRequest{
		ID: "shakes", Start: "2024-01-01", End: "2024-01-31",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHealth(t *testing.T) {
	h := newTestEnv(t, nil)

	w := do(t, h, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestCreateCompany_DefaultForm(t *testing.T) {
	h := newTestEnv(t, nil)

	w := do(t, h, http.MethodPost, "/api/v1/companies", CreateCompanyRequest{
		ID: "shakes", Start: "2024-01-01", End: "2024-01-31",
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var c store.Company
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, "shakes", c.ID)
	assert.Equal(t, []string{"Vanilla Shake", "Chocolate Shake"}, c.Config.Products)
	assert.Equal(t, int64(sim.KeyFromName("shakes")), c.Seed)
}

func TestCreateCompany_ExplicitConfig(t *testing.T) {
	// GIVEN a config document built from the default form
	h := newTestEnv(t, nil)
	cfg, err := sim.BuildWorldConfig(sim.DefaultCompanyForm(), sim.NewSimulationKey(1).Stream())
	require.NoError(t, err)
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)

	// WHEN it is posted verbatim
	w := do(t, h, http.MethodPost, "/api/v1/companies", CreateCompanyRequest{
		ID: "explicit", Config: raw, Start: "2024-03-01", End: "2024-03-07", Seed: ptr(int64(3)),
	})

	// THEN the stored config equals it
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var c store.Company
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, cfg, c.Config)
	assert.Equal(t, int64(3), c.Seed)
}

func TestCreateCompany_Rejects(t *testing.T) {
	h := newTestEnv(t, nil)
	createShakes(t, h)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"missing id", CreateCompanyRequest{}, http.StatusBadRequest},
		{"bad date", CreateCompanyRequest{ID: "x", Start: "01/01/2024"}, http.StatusBadRequest},
		{"reversed range", CreateCompanyRequest{ID: "x", Start: "2024-02-01", End: "2024-01-01"}, http.StatusBadRequest},
		{"schema violation", CreateCompanyRequest{ID: "x", Config: json.RawMessage(`{"products":["A"]}`)}, http.StatusBadRequest},
		{"form mismatch", CreateCompanyRequest{ID: "x", Form: &sim.CompanyForm{Products: []string{"A"}}}, http.StatusBadRequest},
		{"duplicate", CreateCompanyRequest{ID: "shakes", Start: "2024-01-01", End: "2024-01-02"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/companies", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestCreateCompany_InvalidJSON(t *testing.T) {
	h := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/companies", strings.NewReader("{"))
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCompany_NotFound(t *testing.T) {
	h := newTestEnv(t, nil)

	w := do(t, h, http.MethodGet, "/api/v1/companies/ghost", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListCompanies(t *testing.T) {
	h := newTestEnv(t, nil)
	createShakes(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/companies", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var got []store.Company
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "shakes", got[0].ID)
}

func TestGetTable_CSV(t *testing.T) {
	h := newTestEnv(t, nil)
	createShakes(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/companies/shakes/tables/inventory?format=csv", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	rows, err := tables.ReadInventory(w.Body)
	require.NoError(t, err)
	assert.Len(t, rows, 31*2)
}

func TestGetTable_JSON(t *testing.T) {
	h := newTestEnv(t, nil)
	createShakes(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/companies/shakes/tables/unit_economics", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var rows []sim.UnitEconomicsRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, rows[0].SellingPrice-rows[0].COGS, rows[0].GrossMargin)
}

func TestGetTable_UnknownTable(t *testing.T) {
	h := newTestEnv(t, nil)
	createShakes(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/companies/shakes/tables/payroll", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdvance_AppendsDays(t *testing.T) {
	// GIVEN a company with January history
	h := newTestEnv(t, nil)
	createShakes(t, h)

	// WHEN advancing two days
	w := do(t, h, http.MethodPost, "/api/v1/companies/shakes/advance", AdvanceRequest{Days: 2})

	// THEN February 1 and 2 are reported and persisted
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp AdvanceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Days, 2)
	assert.Equal(t, "2024-02-01", resp.Days[0].Date)
	assert.Equal(t, "2024-02-02", resp.Days[1].Date)

	inv := do(t, h, http.MethodGet, "/api/v1/companies/shakes/tables/inventory?format=csv", nil)
	rows, err := tables.ReadInventory(inv.Body)
	require.NoError(t, err)
	assert.Len(t, rows, 33*2)
}

func TestAdvance_EmptyBody_OneDay(t *testing.T) {
	h := newTestEnv(t, nil)
	createShakes(t, h)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/companies/shakes/advance", nil)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp AdvanceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Days, 1)
}

func TestAdvance_Rejects(t *testing.T) {
	h := newTestEnv(t, nil)

	w := do(t, h, http.MethodPost, "/api/v1/companies/shakes/advance", AdvanceRequest{Days: -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/companies/ghost/advance", AdvanceRequest{Days: 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApplyShock(t *testing.T) {
	h := newTestEnv(t, nil)
	createShakes(t, h)

	w := do(t, h, http.MethodPost, "/api/v1/companies/shakes/shocks/recession-week", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cfg sim.WorldConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.InDelta(t, 60.0, cfg.BaseDailyDemand["Vanilla Shake"], 1e-9)

	w = do(t, h, http.MethodPost, "/api/v1/companies/shakes/shocks/meteor", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListShocks(t *testing.T) {
	h := newTestEnv(t, nil)

	w := do(t, h, http.MethodGet, "/api/v1/shocks", nil)

	var names []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &names))
	assert.Equal(t, sim.ShockNames(), names)
}

func TestSummary(t *testing.T) {
	h := newTestEnv(t, nil)
	createShakes(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/companies/shakes/summary", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var summary sim.RunSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 31, summary.Days)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestEnv(t, nil)
	createShakes(t, h)

	w := do(t, h, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "worldsim_days_simulated_total")
	assert.Contains(t, w.Body.String(), "worldsim_day_persist_seconds_count")
}

func TestWebSocket_ReceivesAdvancedDays(t *testing.T) {
	// GIVEN a running hub and a subscriber for one company
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)
	h := newTestEnv(t, hub)
	srv := httptest.NewServer(h)
	defer srv.Close()
	createShakes(t, h)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?company=shakes"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	msgs := make(chan DayMessage, 16)
	go func() {
		for {
			var m DayMessage
			if err := conn.ReadJSON(&m); err != nil {
				close(msgs)
				return
			}
			msgs <- m
		}
	}()

	// WHEN the company advances (repeated until the subscription is live)
	var got DayMessage
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/companies/shakes/advance", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			return false
		}
		select {
		case got = <-msgs:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	// THEN the feed carries a day message for it
	assert.Equal(t, "day", got.Type)
	assert.Equal(t, "shakes", got.CompanyID)
	assert.True(t, strings.HasPrefix(got.Date, "2024-02"))
}

func TestNewDayMessage_Totals(t *testing.T) {
	cac := 2.0
	day := &sim.DayResult{
		Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Sales: []sim.SalesRecord{
			{Product: "A", UnitsSold: 3, Revenue: 30, CAC: &cac},
			{Product: "A", UnitsSold: 2, Revenue: 20},
		},
		Marketing: []sim.MarketingRecord{{Channel: "X", Spend: 12.5}},
		Inventory: []sim.InventoryRecord{{Product: "A", UnitsDispatched: 5, LostDemand: 4, Stockout: true}},
	}

	msg := NewDayMessage("c", day)

	assert.Equal(t, DayMessage{
		Type: "day", CompanyID: "c", Date: "2024-05-01",
		UnitsSold: 5, LostDemand: 4, Stockouts: 1, Revenue: 50, Spend: 12.5,
	}, msg)
}

func ptr[T any](v T) *T { return &v }

func TestBroadcaster_NilHub_IsNilInterface(t *testing.T) {
	var hub *Hub
	assert.Nil(t, Broadcaster(hub))
	assert.NotNil(t, Broadcaster(NewHub()))
}

func TestHub_BroadcastDay_NilHub_Discards(t *testing.T) {
	var hub *Hub
	day := &sim.DayResult{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	assert.NotPanics(t, func() { hub.BroadcastDay("shakes", day) })
}

func TestCreateAndAdvance_TypedNilHub_Succeeds(t *testing.T) {
	// GIVEN a service handed a nil *Hub directly, without Broadcaster
	var hub *Hub
	svc := company.NewService(store.NewMemoryStore(), hub)
	h := New(svc, hub).Router()

	// WHEN a company is created and advanced over HTTP
	createShakes(t, h)
	w := do(t, h, http.MethodPost, "/api/v1/companies/shakes/advance", AdvanceRequest{Days: 2})

	// THEN both requests succeed
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp AdvanceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Days, 2)
}
