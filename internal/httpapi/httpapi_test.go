package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pharmadesk/backend/internal/analytics"
	"pharmadesk/backend/internal/cache"
	"pharmadesk/backend/internal/domain"
	"pharmadesk/backend/internal/pagination"
	"pharmadesk/backend/internal/service"
	"pharmadesk/backend/internal/store/memory"
)

func newTestAPI(t *testing.T) (*API, *memory.Store) {
	t.Helper()
	repo := memory.New()
	svc := service.New(repo, cache.NoopReportCache{}, nil, 360, 90, zerolog.Nop())
	agg := analytics.New(repo, cache.NoopReportCache{}, time.Minute, zerolog.Nop())
	return New(svc, agg, 360, zerolog.Nop()), repo
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func seedMedicine(t *testing.T, repo *memory.Store, name string, qty int) domain.Medicine {
	t.Helper()
	m, err := repo.CreateMedicine(context.Background(), domain.Medicine{
		Name:       name,
		Category:   "analgesic",
		MRP:        decimal.RequireFromString("2.50"),
		Price:      decimal.RequireFromString("1.80"),
		Quantity:   qty,
		ExpiryDate: time.Now().UTC().AddDate(1, 0, 0),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return *m
}

func TestCreateMedicineEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/medicines", map[string]any{
		"name":       "Napa 500mg",
		"category":   "analgesic",
		"mrp":        "2.50",
		"price":      "1.80",
		"quantity":   100,
		"expiryDate": time.Now().UTC().AddDate(1, 0, 0).Format(time.RFC3339),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/medicines", map[string]any{
		"name": "", "category": "analgesic",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank name: status = %d, want 400", rec.Code)
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	api, repo := newTestAPI(t)
	handler := api.Handler()
	napa := seedMedicine(t, repo, "Napa 500mg", 10)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders", map[string]any{
		"customer": map[string]string{"name": "Rahim Uddin"},
		"items":    []map[string]any{{"medicineId": napa.ID, "quantity": 3}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp domain.OrderCreateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OrderID == "" || resp.InvoiceStatus != domain.InvoicePending {
		t.Fatalf("response = %+v", resp)
	}

	// Oversell maps to 409.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders", map[string]any{
		"customer": map[string]string{"name": "Karim Mia"},
		"items":    []map[string]any{{"medicineId": napa.ID, "quantity": 50}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("oversell: status = %d, want 409", rec.Code)
	}

	// Unknown medicine maps to 404.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders", map[string]any{
		"customer": map[string]string{"name": "Karim Mia"},
		"items":    []map[string]any{{"medicineId": "med-missing", "quantity": 1}},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing medicine: status = %d, want 404", rec.Code)
	}

	// Empty cart maps to 400.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders", map[string]any{
		"customer": map[string]string{"name": "Karim Mia"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty cart: status = %d, want 400", rec.Code)
	}
}

func TestListOrdersEndpoint(t *testing.T) {
	api, repo := newTestAPI(t)
	handler := api.Handler()
	napa := seedMedicine(t, repo, "Napa 500mg", 100)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders", map[string]any{
			"customer": map[string]string{"name": fmt.Sprintf("Customer %d", i)},
			"items":    []map[string]any{{"medicineId": napa.ID, "quantity": 1}},
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("seed order: %d", rec.Code)
		}
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/orders?page=1&limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Data []domain.Order `json:"data"`
		Meta struct {
			Total      int  `json:"total"`
			TotalPages int  `json:"totalPages"`
			HasNext    bool `json:"hasNext"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 2 || resp.Meta.Total != 3 || resp.Meta.TotalPages != 2 || !resp.Meta.HasNext {
		t.Fatalf("page = %d rows, meta %+v", len(resp.Data), resp.Meta)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/orders?filter=fortnightly", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad filter: status = %d, want 400", rec.Code)
	}
}

func TestDashboardEndpoint(t *testing.T) {
	api, repo := newTestAPI(t)
	handler := api.Handler()
	seedMedicine(t, repo, "Napa 500mg", 100)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/reports/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var report domain.DashboardReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Cards.TotalSKUs != 1 || report.Cards.TotalUnits != 100 {
		t.Fatalf("cards = %+v", report.Cards)
	}

	// Inverted custom range maps to 400.
	rec = doJSON(t, handler, http.MethodGet,
		"/api/v1/reports/dashboard?filter=custom&start=2024-02-01&end=2024-01-01", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("inverted range: status = %d, want 400", rec.Code)
	}
}

func TestInventoryReportEndpoint(t *testing.T) {
	api, repo := newTestAPI(t)
	handler := api.Handler()
	seedMedicine(t, repo, "Napa 500mg", 100)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/reports/inventory", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Data    []domain.InventoryReportRow   `json:"data"`
		Meta    pagination.Meta               `json:"meta"`
		Summary domain.InventoryReportSummary `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 || resp.Summary.TotalRemainingQuantity != 100 {
		t.Fatalf("report = %+v", resp)
	}
	if resp.Meta.Limit != 10 {
		t.Fatalf("default report limit = %d, want 10", resp.Meta.Limit)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodDelete, "/api/v1/medicines", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
