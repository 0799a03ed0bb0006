package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/worldsim/worldsim/sim"
	"github.com/worldsim/worldsim/sim/company"
	"github.com/worldsim/worldsim/sim/tables"
)

// maxBodyBytes bounds request bodies; configs are small.
const maxBodyBytes = 1 << 20

// CreateCompanyRequest is the JSON body for POST /companies. Config takes
// precedence over Form; with neither the default two-shake form is used.
// Start and End default to the current calendar year.
type CreateCompanyRequest struct {
	ID     string           `json:"id"`
	Config json.RawMessage  `json:"config,omitempty"`
	Form   *sim.CompanyForm `json:"form,omitempty"`
	Start  string           `json:"start,omitempty"`
	End    string           `json:"end,omitempty"`
	Seed   *int64           `json:"seed,omitempty"`
}

// AdvanceRequest is the JSON body for POST /companies/{id}/advance.
type AdvanceRequest struct {
	Days   int    `json:"days"`
	Seed   *int64 `json:"seed,omitempty"`
	Random bool   `json:"random,omitempty"`
}

// AdvanceResponse lists the days that were persisted.
type AdvanceResponse struct {
	Days  []DayMessage `json:"days"`
	Error string       `json:"error,omitempty"`
}

// createCompany handles POST /api/v1/companies
func (s *Server) createCompany(w http.ResponseWriter, r *http.Request) {
	var req CreateCompanyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		writeError(w, "id is required", http.StatusBadRequest)
		return
	}

	seed := int64(sim.KeyFromName(req.ID))
	if req.Seed != nil {
		seed = *req.Seed
	}
	cfg, err := requestConfig(req, seed)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	start, end, err := requestRange(req.Start, req.End)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	c, err := s.svc.Create(r.Context(), company.CreateRequest{
		ID: req.ID, Config: cfg, Start: start, End: end, Seed: &seed,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func requestConfig(req CreateCompanyRequest, seed int64) (*sim.WorldConfig, error) {
	if len(req.Config) > 0 {
		return sim.ParseWorldConfig(req.Config)
	}
	form := sim.DefaultCompanyForm()
	if req.Form != nil {
		form = *req.Form
	}
	return sim.BuildWorldConfig(form, sim.NewSimulationKey(seed).Stream())
}

func requestRange(startStr, endStr string) (time.Time, time.Time, error) {
	start, end := company.YearRange(time.Now().UTC().Year())
	var err error
	if startStr != "" {
		if start, err = sim.ParseDate(startStr); err != nil {
			return start, end, fmt.Errorf("start: %w", err)
		}
	}
	if endStr != "" {
		if end, err = sim.ParseDate(endStr); err != nil {
			return start, end, fmt.Errorf("end: %w", err)
		}
	}
	return start, end, nil
}

// listCompanies handles GET /api/v1/companies
func (s *Server) listCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, companies)
}

// getCompany handles GET /api/v1/companies/{companyID}
func (s *Server) getCompany(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Get(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// getSummary handles GET /api/v1/companies/{companyID}/summary
func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Summary(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// getTable handles GET /api/v1/companies/{companyID}/tables/{table}. The
// format query parameter selects csv; the default is JSON.
func (s *Server) getTable(w http.ResponseWriter, r *http.Request) {
	set, err := s.svc.Tables(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var (
		rows     any
		writeCSV func(io.Writer) error
	)
	switch table := chi.URLParam(r, "table"); table {
	case tables.SalesFile:
		rows, writeCSV = set.Sales, func(out io.Writer) error { return tables.WriteSales(out, set.Sales) }
	case tables.MarketingFile:
		rows, writeCSV = set.Marketing, func(out io.Writer) error { return tables.WriteMarketing(out, set.Marketing) }
	case tables.InventoryFile:
		rows, writeCSV = set.Inventory, func(out io.Writer) error { return tables.WriteInventory(out, set.Inventory) }
	case tables.UnitEconomicsFile:
		rows, writeCSV = set.UnitEconomics, func(out io.Writer) error { return tables.WriteUnitEconomics(out, set.UnitEconomics) }
	default:
		writeError(w, fmt.Sprintf("unknown table %q", table), http.StatusNotFound)
		return
	}

	if r.URL.Query().Get("format") != "csv" {
		writeJSON(w, http.StatusOK, rows)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	if err := writeCSV(w); err != nil {
		logrus.Warnf("writing csv table: %v", err)
	}
}

// advanceCompany handles POST /api/v1/companies/{companyID}/advance
func (s *Server) advanceCompany(w http.ResponseWriter, r *http.Request) {
	req := AdvanceRequest{Days: 1}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && err != io.EOF {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	if req.Days < 1 {
		writeError(w, "days must be at least 1", http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "companyID")
	days, err := s.svc.Advance(r.Context(), id, company.AdvanceOptions{
		Days: req.Days, Seed: req.Seed, Random: req.Random,
	})
	resp := AdvanceResponse{Days: make([]DayMessage, 0, len(days))}
	for _, d := range days {
		resp.Days = append(resp.Days, NewDayMessage(id, d))
	}
	if err != nil && len(days) == 0 {
		writeServiceError(w, err)
		return
	}
	if err != nil {
		// Partial batch: the persisted days stay, report them with the error.
		logrus.Errorf("advance %s stopped after %d days: %v", id, len(days), err)
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// applyShock handles POST /api/v1/companies/{companyID}/shocks/{shock}
func (s *Server) applyShock(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.svc.ApplyShock(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "shock"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// listShocks handles GET /api/v1/shocks
func (s *Server) listShocks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sim.ShockNames())
}
