// Package httpapi is the thin JSON boundary over the service and analytics
// cores. It only parses parameters and maps domain errors to status codes.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pharmadesk/backend/internal/analytics"
	"pharmadesk/backend/internal/domain"
	"pharmadesk/backend/internal/service"
	"pharmadesk/backend/internal/store"
	"pharmadesk/backend/internal/timewindow"
)

type API struct {
	service       *service.Service
	analytics     *analytics.Aggregator
	offsetMinutes int
	log           zerolog.Logger
}

func New(svc *service.Service, agg *analytics.Aggregator, offsetMinutes int, log zerolog.Logger) *API {
	return &API{service: svc, analytics: agg, offsetMinutes: offsetMinutes, log: log}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)

	mux.HandleFunc("/api/v1/medicines", a.handleMedicines)
	mux.HandleFunc("/api/v1/medicines/bulk", a.handleMedicinesBulk)
	mux.HandleFunc("/api/v1/medicines/expiring", a.handleExpiring)
	mux.HandleFunc("/api/v1/medicines/", a.handleMedicineActions)

	mux.HandleFunc("/api/v1/orders", a.handleOrders)
	mux.HandleFunc("/api/v1/orders/", a.handleOrderActions)

	mux.HandleFunc("/api/v1/reports/dashboard", a.handleDashboard)
	mux.HandleFunc("/api/v1/reports/inventory", a.handleInventoryReport)

	return mux
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleMedicines(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		medicines, meta, err := a.service.SearchMedicines(r.Context(), q.Get("search"),
			parseInt(q.Get("page"), 1), parseInt(q.Get("limit"), 0))
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": medicines, "meta": meta})
	case http.MethodPost:
		var req domain.MedicineCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err, a.log)
			return
		}
		medicine, err := a.service.CreateMedicine(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"medicine": medicine})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleMedicinesBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var reqs []domain.MedicineCreateRequest
	if err := decodeJSON(r, &reqs); err != nil {
		writeError(w, http.StatusBadRequest, err, a.log)
		return
	}
	medicines, err := a.service.CreateMedicines(r.Context(), reqs)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"medicines": medicines})
}

func (a *API) handleExpiring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	medicines, err := a.service.ListExpiring(r.Context(), parseInt(r.URL.Query().Get("days"), 0))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"medicines": medicines})
}

func (a *API) handleMedicineActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/medicines/"), "/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("medicine id required"), a.log)
		return
	}

	if id, ok := strings.CutSuffix(tail, "/mrp"); ok {
		a.handleMedicineMRP(w, r, strings.Trim(id, "/"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		medicine, err := a.service.GetMedicine(r.Context(), tail)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"medicine": medicine})
	case http.MethodPatch:
		var req domain.MedicineUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err, a.log)
			return
		}
		medicine, err := a.service.UpdateMedicine(r.Context(), tail, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"medicine": medicine})
	case http.MethodDelete:
		if err := a.service.DeleteMedicine(r.Context(), tail); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleMedicineMRP(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPatch {
		writeMethodNotAllowed(w)
		return
	}
	var req struct {
		MRP decimal.Decimal `json:"mrp"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err, a.log)
		return
	}
	medicine, err := a.service.UpdateMedicineMRP(r.Context(), id, req.MRP)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"medicine": medicine})
}

func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		orders, meta, err := a.service.ListOrders(r.Context(), domain.OrderListFilters{
			Filter:       q.Get("filter"),
			Start:        q.Get("start"),
			End:          q.Get("end"),
			OrderID:      q.Get("orderId"),
			CustomerName: q.Get("customerName"),
			MedicineName: q.Get("medicineName"),
			Page:         parseInt(q.Get("page"), 1),
			Limit:        parseInt(q.Get("limit"), 0),
			SortBy:       q.Get("sortBy"),
			SortOrder:    q.Get("sortOrder"),
		})
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": orders, "meta": meta})
	case http.MethodPost:
		var req domain.OrderCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err, a.log)
			return
		}
		order, err := a.service.CreateOrder(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		// The invoice attaches in the background; respond as soon as the
		// order itself is committed.
		writeJSON(w, http.StatusCreated, domain.OrderCreateResponse{
			OrderID:       order.ID,
			InvoiceStatus: order.InvoiceStatus,
		})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleOrderActions(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/orders/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("order id required"), a.log)
		return
	}

	switch r.Method {
	case http.MethodGet:
		order, err := a.service.GetOrder(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": order})
	case http.MethodPatch:
		var req struct {
			Customer domain.Customer `json:"customer"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err, a.log)
			return
		}
		order, err := a.service.UpdateOrderCustomer(r.Context(), id, req.Customer)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": order})
	case http.MethodDelete:
		if err := a.service.DeleteOrder(r.Context(), id); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()

	kind, err := timewindow.ParseKind(strings.TrimSpace(q.Get("filter")))
	if err != nil {
		writeError(w, http.StatusBadRequest, err, a.log)
		return
	}
	window, err := timewindow.Resolve(kind, q.Get("start"), q.Get("end"), a.offsetMinutes, time.Now().UTC())
	if err != nil {
		// Inverted ranges and unparsable dates are both caller mistakes.
		writeError(w, http.StatusBadRequest, err, a.log)
		return
	}

	report, err := a.analytics.Build(r.Context(), analytics.Filters{
		Window:     window,
		Category:   strings.TrimSpace(q.Get("category")),
		Status:     strings.TrimSpace(q.Get("status")),
		NearlyDays: parseInt(q.Get("nearlyDays"), 0),
		GroupBy:    strings.TrimSpace(q.Get("groupBy")),
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleInventoryReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	rows, meta, summary, err := a.service.InventoryReport(r.Context(), domain.InventoryReportFilters{
		Filter:       q.Get("filter"),
		Start:        q.Get("start"),
		End:          q.Get("end"),
		MedicineID:   q.Get("medicineId"),
		MedicineName: q.Get("medicineName"),
		Category:     q.Get("category"),
		Page:         parseInt(q.Get("page"), 1),
		Limit:        parseInt(q.Get("limit"), 0),
		SortBy:       q.Get("sortBy"),
		SortOrder:    q.Get("sortOrder"),
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rows, "meta": meta, "summary": summary})
}

// writeServiceError maps domain errors onto status codes. Stock conflicts are
// 409 so the client can distinguish them from plain bad input.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	var rangeErr *timewindow.InvalidRangeError
	switch {
	case errors.Is(err, store.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err, a.log)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err, a.log)
	case errors.Is(err, store.ErrInvalidInput), errors.As(err, &rangeErr):
		writeError(w, http.StatusBadRequest, err, a.log)
	default:
		writeError(w, http.StatusInternalServerError, err, a.log)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parseInt(raw string, fallback int) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
}

func writeError(w http.ResponseWriter, status int, err error, log zerolog.Logger) {
	// 5xx details stay in the logs; clients get a generic message.
	msg := err.Error()
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("request failed")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
