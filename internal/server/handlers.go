package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bobmcallan/tradescope/internal/common"
	"github.com/bobmcallan/tradescope/internal/normalize"
)

// --- System handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": common.GetVersion(),
		"uptime":  time.Since(s.app.StartupTime).Round(time.Second).String(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version": common.GetFullVersion(),
	})
}

// --- Trade handlers ---

// handleTradeImport accepts a JSON array of raw broker rows, normalizes
// each, and saves the valid ones. Invalid rows are reported per-row;
// one bad row never fails the batch.
func (s *Server) handleTradeImport(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var raws []normalize.RawTrade
	if !DecodeJSON(w, r, &raws) {
		return
	}
	if len(raws) == 0 {
		WriteError(w, http.StatusBadRequest, "No trades supplied")
		return
	}

	trades, errs := s.app.Normalizer.NormalizeBatch(raws)

	var rejected []string
	for _, err := range errs {
		rejected = append(rejected, err.Error())
	}

	saved := 0
	for _, trade := range trades {
		if err := s.app.Storage.TradeStore().SaveTrade(r.Context(), trade); err != nil {
			rejected = append(rejected, fmt.Sprintf("save %s: %v", trade.ID, err))
			continue
		}
		saved++
	}

	status := http.StatusOK
	if saved == 0 {
		status = http.StatusUnprocessableEntity
	}
	WriteJSON(w, status, map[string]interface{}{
		"saved_count":    saved,
		"rejected_count": len(rejected),
		"rejected":       rejected,
	})
}

// --- Portfolio handlers ---

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	portfolio, err := s.app.PortfolioService.GetPortfolio(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Sprintf("Error building portfolio: %v", err))
		return
	}

	WriteJSON(w, http.StatusOK, portfolio)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	underlying := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/api/portfolio/"))
	if underlying == "" || strings.Contains(underlying, "/") {
		WriteError(w, http.StatusBadRequest, "Invalid underlying")
		return
	}

	position, err := s.app.PortfolioService.GetPosition(r.Context(), underlying)
	if err != nil {
		WriteError(w, http.StatusNotFound, fmt.Sprintf("Position not found: %v", err))
		return
	}

	WriteJSON(w, http.StatusOK, position)
}

// --- Excursion handlers ---

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Underlying  string `json:"underlying"`
		Recalculate bool   `json:"recalculate"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if !DecodeJSON(w, r, &req) {
			return
		}
	}

	result, err := s.app.ExcursionService.Calculate(r.Context(), strings.ToUpper(req.Underlying), req.Recalculate)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Sprintf("Calculation failed: %v", err))
		return
	}

	// Partial results with failed symbols are still a 200; the response
	// body carries the per-symbol failures.
	WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	underlying := strings.ToUpper(r.URL.Query().Get("underlying"))
	records, err := s.app.ExcursionService.GetRecords(r.Context(), underlying)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Sprintf("Error loading records: %v", err))
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(records),
		"records": records,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	analysis, err := s.app.AnalyticsService.GetStats(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Sprintf("Error computing stats: %v", err))
		return
	}

	WriteJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	png, err := s.app.AnalyticsService.RenderEfficiencyChart(r.Context())
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Chart unavailable: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// --- Cache handlers ---

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	if err := s.app.InvalidateBarCache(symbol); err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Sprintf("Invalidation failed: %v", err))
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"invalidated": symbol,
	})
}
