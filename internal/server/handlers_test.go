package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bobmcallan/tradescope/internal/app"
	"github.com/bobmcallan/tradescope/internal/common"
	"github.com/bobmcallan/tradescope/internal/models"
	"github.com/bobmcallan/tradescope/internal/normalize"
	"github.com/bobmcallan/tradescope/internal/storage/memory"
)

// mockPortfolioService implements interfaces.PortfolioService for testing.
type mockPortfolioService struct {
	getPortfolio func(ctx context.Context) (*models.Portfolio, error)
	getPosition  func(ctx context.Context, underlying string) (*models.Position, error)
}

func (m *mockPortfolioService) GetPortfolio(ctx context.Context) (*models.Portfolio, error) {
	return m.getPortfolio(ctx)
}

func (m *mockPortfolioService) GetPosition(ctx context.Context, underlying string) (*models.Position, error) {
	return m.getPosition(ctx, underlying)
}

// mockExcursionService implements interfaces.ExcursionService for testing.
type mockExcursionService struct {
	calculate  func(ctx context.Context, underlying string, recalculate bool) (*models.CalculationResult, error)
	getRecords func(ctx context.Context, underlying string) ([]*models.MFEMAERecord, error)
}

func (m *mockExcursionService) Calculate(ctx context.Context, underlying string, recalculate bool) (*models.CalculationResult, error) {
	return m.calculate(ctx, underlying, recalculate)
}

func (m *mockExcursionService) GetRecords(ctx context.Context, underlying string) ([]*models.MFEMAERecord, error) {
	return m.getRecords(ctx, underlying)
}

// mockAnalyticsService implements interfaces.AnalyticsService for testing.
type mockAnalyticsService struct {
	getStats    func(ctx context.Context) (*models.Analysis, error)
	renderChart func(ctx context.Context) ([]byte, error)
}

func (m *mockAnalyticsService) GetStats(ctx context.Context) (*models.Analysis, error) {
	return m.getStats(ctx)
}

func (m *mockAnalyticsService) RenderEfficiencyChart(ctx context.Context) ([]byte, error) {
	return m.renderChart(ctx)
}

func testServer(t *testing.T, configure func(*app.App)) *Server {
	t.Helper()
	a := &app.App{
		Config:      common.NewDefaultConfig(),
		Logger:      common.NewSilentLogger(),
		Storage:     memory.NewManager(),
		Normalizer:  normalize.NewNormalizer(),
		StartupTime: time.Now(),
	}
	if configure != nil {
		configure(a)
	}
	return NewServer(a)
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	srv := testServer(t, nil)
	rec := doRequest(t, srv, http.MethodGet, "/api/health", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected correlation ID header")
	}
}

func TestHandleHealthRejectsPost(t *testing.T) {
	srv := testServer(t, nil)
	rec := doRequest(t, srv, http.MethodPost, "/api/health", nil)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandleTradeImport(t *testing.T) {
	srv := testServer(t, nil)

	raws := []normalize.RawTrade{
		{
			Symbol:    "AAPL",
			Action:    "BUY",
			Quantity:  "100",
			Price:     "175.50",
			Timestamp: "20240102",
		},
		{
			Symbol:    "MSFT",
			Action:    "BUY",
			Quantity:  "50",
			Price:     "300",
			Timestamp: "never",
		},
	}
	rec := doRequest(t, srv, http.MethodPost, "/api/trades/import", raws)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		SavedCount    int      `json:"saved_count"`
		RejectedCount int      `json:"rejected_count"`
		Rejected      []string `json:"rejected"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.SavedCount != 1 {
		t.Errorf("expected 1 saved, got %d", body.SavedCount)
	}
	if body.RejectedCount != 1 {
		t.Errorf("expected 1 rejected (bad date), got %d", body.RejectedCount)
	}
}

func TestHandleTradeImportAllInvalid(t *testing.T) {
	srv := testServer(t, nil)

	raws := []normalize.RawTrade{{Symbol: "", Action: "BUY"}}
	rec := doRequest(t, srv, http.MethodPost, "/api/trades/import", raws)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestHandlePortfolio(t *testing.T) {
	srv := testServer(t, func(a *app.App) {
		a.PortfolioService = &mockPortfolioService{
			getPortfolio: func(context.Context) (*models.Portfolio, error) {
				return &models.Portfolio{
					Positions: []models.Position{{Underlying: "AAPL", StockQuantity: 100}},
					Totals:    models.PortfolioTotals{PositionCount: 1},
				}, nil
			},
		}
	})

	rec := doRequest(t, srv, http.MethodGet, "/api/portfolio", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var portfolio models.Portfolio
	if err := json.Unmarshal(rec.Body.Bytes(), &portfolio); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(portfolio.Positions) != 1 || portfolio.Positions[0].Underlying != "AAPL" {
		t.Errorf("unexpected portfolio %+v", portfolio)
	}
}

func TestHandlePositionNotFound(t *testing.T) {
	srv := testServer(t, func(a *app.App) {
		a.PortfolioService = &mockPortfolioService{
			getPosition: func(context.Context, string) (*models.Position, error) {
				return nil, errors.New("no open position")
			},
		}
	})

	rec := doRequest(t, srv, http.MethodGet, "/api/portfolio/TSLA", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandlePositionUppercasesUnderlying(t *testing.T) {
	var captured string
	srv := testServer(t, func(a *app.App) {
		a.PortfolioService = &mockPortfolioService{
			getPosition: func(_ context.Context, underlying string) (*models.Position, error) {
				captured = underlying
				return &models.Position{Underlying: underlying}, nil
			},
		}
	})

	doRequest(t, srv, http.MethodGet, "/api/portfolio/aapl", nil)
	if captured != "AAPL" {
		t.Errorf("expected AAPL, got %q", captured)
	}
}

func TestHandleCalculate(t *testing.T) {
	var capturedUnderlying string
	var capturedRecalc bool
	srv := testServer(t, func(a *app.App) {
		a.ExcursionService = &mockExcursionService{
			calculate: func(_ context.Context, underlying string, recalculate bool) (*models.CalculationResult, error) {
				capturedUnderlying = underlying
				capturedRecalc = recalculate
				return &models.CalculationResult{CalculatedCount: 3, FailedSymbols: []string{"XYZ"}}, nil
			},
		}
	})

	rec := doRequest(t, srv, http.MethodPost, "/api/mfemae/calculate", map[string]interface{}{
		"underlying":  "aapl",
		"recalculate": true,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for partial result, got %d", rec.Code)
	}
	if capturedUnderlying != "AAPL" || !capturedRecalc {
		t.Errorf("unexpected args %q %v", capturedUnderlying, capturedRecalc)
	}

	var result models.CalculationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.CalculatedCount != 3 || len(result.FailedSymbols) != 1 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestHandleCalculateEmptyBody(t *testing.T) {
	srv := testServer(t, func(a *app.App) {
		a.ExcursionService = &mockExcursionService{
			calculate: func(_ context.Context, underlying string, recalculate bool) (*models.CalculationResult, error) {
				if underlying != "" || recalculate {
					t.Errorf("expected zero-value args, got %q %v", underlying, recalculate)
				}
				return &models.CalculationResult{}, nil
			},
		}
	})

	rec := doRequest(t, srv, http.MethodPost, "/api/mfemae/calculate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleRecords(t *testing.T) {
	srv := testServer(t, func(a *app.App) {
		a.ExcursionService = &mockExcursionService{
			getRecords: func(_ context.Context, underlying string) ([]*models.MFEMAERecord, error) {
				if underlying != "AAPL" {
					t.Errorf("expected AAPL filter, got %q", underlying)
				}
				return []*models.MFEMAERecord{{TradeID: "t1"}}, nil
			},
		}
	})

	rec := doRequest(t, srv, http.MethodGet, "/api/mfemae/records?underlying=aapl", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Count != 1 {
		t.Errorf("expected count 1, got %d", body.Count)
	}
}

func TestHandleStats(t *testing.T) {
	srv := testServer(t, func(a *app.App) {
		a.AnalyticsService = &mockAnalyticsService{
			getStats: func(context.Context) (*models.Analysis, error) {
				return &models.Analysis{TotalRecords: 5, AvgMFE: 11.5}, nil
			},
		}
	})

	rec := doRequest(t, srv, http.MethodGet, "/api/mfemae/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var analysis models.Analysis
	if err := json.Unmarshal(rec.Body.Bytes(), &analysis); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if analysis.TotalRecords != 5 {
		t.Errorf("unexpected analysis %+v", analysis)
	}
}

func TestHandleChart(t *testing.T) {
	srv := testServer(t, func(a *app.App) {
		a.AnalyticsService = &mockAnalyticsService{
			renderChart: func(context.Context) ([]byte, error) {
				return []byte{0x89, 'P', 'N', 'G'}, nil
			},
		}
	})

	rec := doRequest(t, srv, http.MethodGet, "/api/mfemae/chart", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}
}

func TestHandleChartUnavailable(t *testing.T) {
	srv := testServer(t, func(a *app.App) {
		a.AnalyticsService = &mockAnalyticsService{
			renderChart: func(context.Context) ([]byte, error) {
				return nil, errors.New("need at least 2 scored trades")
			},
		}
	})

	rec := doRequest(t, srv, http.MethodGet, "/api/mfemae/chart", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := testServer(t, func(a *app.App) {
		a.AnalyticsService = &mockAnalyticsService{
			getStats: func(context.Context) (*models.Analysis, error) {
				panic("boom")
			},
		}
	})

	rec := doRequest(t, srv, http.MethodGet, "/api/mfemae/stats", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 from recovery middleware, got %d", rec.Code)
	}
}
