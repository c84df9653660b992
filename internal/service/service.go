// Package service is the back-office core: catalog management, order
// fulfillment against the stock ledger, and the paged list views.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pharmadesk/backend/internal/cache"
	"pharmadesk/backend/internal/domain"
	"pharmadesk/backend/internal/pagination"
	"pharmadesk/backend/internal/store"
	"pharmadesk/backend/internal/timewindow"
	"pharmadesk/backend/internal/xid"
)

// InvoiceQueue is the attacher's enqueue side. The service never waits on it.
type InvoiceQueue interface {
	Enqueue(o domain.Order)
}

// Default page sizes differ per surface: order listings show 20 rows,
// catalog search and the inventory report show 10.
const (
	defaultOrderPageLimit  = 20
	defaultReportPageLimit = 10
)

type Service struct {
	repo          store.Repository
	cache         cache.ReportCache
	invoices      InvoiceQueue
	offsetMinutes int
	nearlyDays    int
	log           zerolog.Logger
	now           func() time.Time
}

func New(repo store.Repository, c cache.ReportCache, invoices InvoiceQueue, offsetMinutes, nearlyDays int, log zerolog.Logger) *Service {
	if c == nil {
		c = cache.NoopReportCache{}
	}
	if nearlyDays < 1 {
		nearlyDays = 90
	}
	return &Service{
		repo:          repo,
		cache:         c,
		invoices:      invoices,
		offsetMinutes: offsetMinutes,
		nearlyDays:    nearlyDays,
		log:           log,
		now:           time.Now,
	}
}

// CreateOrder reserves stock line by line and rolls every earlier reservation
// back if any line fails, so a rejected order never leaves stock decremented.
// The invoice is enqueued only after the order is durably stored; its upload
// can fail without affecting the sale.
func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (*domain.Order, error) {
	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Phone = strings.TrimSpace(req.Customer.Phone)
	if req.Customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if len(req.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, line := range req.Items {
		if strings.TrimSpace(line.MedicineID) == "" || line.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
	}

	reserved := make([]domain.OrderLineRequest, 0, len(req.Items))
	release := func() {
		for _, line := range reserved {
			if err := s.repo.ReleaseStock(ctx, line.MedicineID, line.Quantity); err != nil {
				s.log.Error().Err(err).Str("medicineId", line.MedicineID).
					Int("quantity", line.Quantity).Msg("stock release failed, ledger drifted")
			}
		}
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	subtotal := decimal.Zero
	for _, line := range req.Items {
		snap, err := s.repo.ReserveStock(ctx, line.MedicineID, line.Quantity)
		if err != nil {
			release()
			return nil, err
		}
		reserved = append(reserved, line)

		lineSubtotal := snap.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2)
		items = append(items, domain.OrderItem{
			MedicineID: snap.MedicineID,
			Name:       snap.Name,
			Quantity:   line.Quantity,
			Price:      snap.UnitPrice,
			Subtotal:   lineSubtotal,
		})
		subtotal = subtotal.Add(lineSubtotal)
	}

	discount := req.Discount
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	discount = discount.Round(2)

	order := domain.Order{
		ID:            xid.New("ord"),
		Customer:      req.Customer,
		Items:         items,
		Subtotal:      subtotal.Round(2),
		Discount:      discount,
		GrandTotal:    subtotal.Sub(discount).Round(2),
		InvoiceStatus: domain.InvoicePending,
		CreatedAt:     s.now().UTC(),
	}

	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		release()
		return nil, err
	}

	s.invalidateReports(ctx)
	if s.invoices != nil {
		s.invoices.Enqueue(*created)
	}
	return created, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.GetOrderByID(ctx, id)
}

func (s *Service) UpdateOrderCustomer(ctx context.Context, id string, c domain.Customer) (*domain.Order, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	if id == "" || c.Name == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.UpdateOrderCustomer(ctx, id, c)
}

func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteOrder(ctx, id); err != nil {
		return err
	}
	s.invalidateReports(ctx)
	return nil
}

// ListOrders resolves the named window filter and returns one page. An
// explicit orderId short-circuits everything else into a one-element page.
func (s *Service) ListOrders(ctx context.Context, f domain.OrderListFilters) ([]domain.Order, pagination.Meta, error) {
	if strings.TrimSpace(f.OrderID) != "" {
		order, err := s.repo.GetOrderByID(ctx, strings.TrimSpace(f.OrderID))
		if err != nil {
			return nil, pagination.Meta{}, err
		}
		return []domain.Order{*order}, pagination.SingleItemMeta(), nil
	}

	window, err := s.resolveWindow(f.Filter, f.Start, f.End)
	if err != nil {
		return nil, pagination.Meta{}, err
	}

	params := pagination.Params{Page: f.Page, Limit: f.Limit, SortBy: f.SortBy, SortOrder: f.SortOrder}.Normalize(defaultOrderPageLimit)
	orders, total, err := s.repo.ListOrders(ctx, store.OrderQuery{
		Window:       window,
		CustomerName: strings.TrimSpace(f.CustomerName),
		MedicineName: strings.TrimSpace(f.MedicineName),
		SortBy:       params.SortBy,
		SortOrder:    params.SortOrder,
		Offset:       params.Offset(),
		Limit:        params.Limit,
	})
	if err != nil {
		return nil, pagination.Meta{}, err
	}
	return orders, pagination.BuildMeta(total, params.Page, params.Limit), nil
}

func (s *Service) CreateMedicine(ctx context.Context, req domain.MedicineCreateRequest) (*domain.Medicine, error) {
	m, err := medicineFromRequest(req)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.CreateMedicine(ctx, m)
	if err != nil {
		return nil, err
	}
	s.invalidateReports(ctx)
	return created, nil
}

func (s *Service) CreateMedicines(ctx context.Context, reqs []domain.MedicineCreateRequest) ([]domain.Medicine, error) {
	if len(reqs) == 0 {
		return nil, store.ErrInvalidInput
	}
	medicines := make([]domain.Medicine, 0, len(reqs))
	for _, req := range reqs {
		m, err := medicineFromRequest(req)
		if err != nil {
			return nil, err
		}
		medicines = append(medicines, m)
	}
	created, err := s.repo.CreateMedicines(ctx, medicines)
	if err != nil {
		return nil, err
	}
	s.invalidateReports(ctx)
	return created, nil
}

func (s *Service) GetMedicine(ctx context.Context, id string) (*domain.Medicine, error) {
	if strings.TrimSpace(id) == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.GetMedicineByID(ctx, id)
}

func (s *Service) SearchMedicines(ctx context.Context, search string, page, limit int) ([]domain.Medicine, pagination.Meta, error) {
	params := pagination.Params{Page: page, Limit: limit}.Normalize(defaultReportPageLimit)
	medicines, total, err := s.repo.SearchMedicines(ctx, store.MedicineSearchQuery{
		Search: strings.TrimSpace(search),
		Offset: params.Offset(),
		Limit:  params.Limit,
	})
	if err != nil {
		return nil, pagination.Meta{}, err
	}
	return medicines, pagination.BuildMeta(total, params.Page, params.Limit), nil
}

func (s *Service) UpdateMedicine(ctx context.Context, id string, req domain.MedicineUpdateRequest) (*domain.Medicine, error) {
	if strings.TrimSpace(id) == "" {
		return nil, store.ErrInvalidInput
	}
	existing, err := s.repo.GetMedicineByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return nil, store.ErrInvalidInput
		}
		updated.Category = category
	}
	if req.Manufacturer != nil {
		updated.Manufacturer = strings.TrimSpace(*req.Manufacturer)
	}
	if req.Strength != nil {
		updated.Strength = strings.TrimSpace(*req.Strength)
	}
	if req.BatchNumber != nil {
		updated.BatchNumber = strings.TrimSpace(*req.BatchNumber)
	}
	if req.MRP != nil {
		if req.MRP.IsNegative() {
			return nil, store.ErrInvalidInput
		}
		updated.MRP = req.MRP.Round(2)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, store.ErrInvalidInput
		}
		updated.Price = req.Price.Round(2)
	}
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			return nil, store.ErrInvalidInput
		}
		updated.Quantity = *req.Quantity
	}
	if req.ExpiryDate != nil {
		updated.ExpiryDate = req.ExpiryDate.UTC()
	}

	saved, err := s.repo.UpdateMedicine(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.invalidateReports(ctx)
	return saved, nil
}

func (s *Service) UpdateMedicineMRP(ctx context.Context, id string, mrp decimal.Decimal) (*domain.Medicine, error) {
	if strings.TrimSpace(id) == "" || mrp.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	existing, err := s.repo.GetMedicineByID(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := *existing
	updated.MRP = mrp.Round(2)
	saved, err := s.repo.UpdateMedicine(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.invalidateReports(ctx)
	return saved, nil
}

func (s *Service) DeleteMedicine(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteMedicine(ctx, id); err != nil {
		return err
	}
	s.invalidateReports(ctx)
	return nil
}

// ListExpiring returns medicines already expired or expiring within the given
// number of days, soonest first.
func (s *Service) ListExpiring(ctx context.Context, withinDays int) ([]domain.Medicine, error) {
	if withinDays < 1 {
		withinDays = s.nearlyDays
	}
	medicines, err := s.repo.ListMedicines(ctx, "")
	if err != nil {
		return nil, err
	}

	cutoff := s.now().UTC().AddDate(0, 0, withinDays)
	expiring := make([]domain.Medicine, 0, len(medicines))
	for _, m := range medicines {
		if !m.ExpiryDate.After(cutoff) {
			expiring = append(expiring, m)
		}
	}
	sort.SliceStable(expiring, func(i, j int) bool {
		return expiring[i].ExpiryDate.Before(expiring[j].ExpiryDate)
	})
	return expiring, nil
}

// inventorySortColumns whitelists report sorting; anything else falls back to
// soldQuantity.
var inventorySortColumns = map[string]struct{}{
	"soldQuantity":      {},
	"remainingQuantity": {},
	"totalQuantity":     {},
	"medicineName":      {},
}

// InventoryReport joins sold quantities over the window with the current
// catalog. Sorting and paging happen in Go over the joined rows.
func (s *Service) InventoryReport(ctx context.Context, f domain.InventoryReportFilters) ([]domain.InventoryReportRow, pagination.Meta, domain.InventoryReportSummary, error) {
	window, err := s.resolveWindow(f.Filter, f.Start, f.End)
	if err != nil {
		return nil, pagination.Meta{}, domain.InventoryReportSummary{}, err
	}

	orders, err := s.repo.ListOrdersBetween(ctx, window)
	if err != nil {
		return nil, pagination.Meta{}, domain.InventoryReportSummary{}, err
	}
	sold := make(map[string]int, 64)
	for _, o := range orders {
		for _, item := range o.Items {
			sold[item.MedicineID] += item.Quantity
		}
	}

	medicines, err := s.repo.ListMedicines(ctx, strings.TrimSpace(f.Category))
	if err != nil {
		return nil, pagination.Meta{}, domain.InventoryReportSummary{}, err
	}

	medicineID := strings.TrimSpace(f.MedicineID)
	nameNeedle := strings.ToLower(strings.TrimSpace(f.MedicineName))

	rows := make([]domain.InventoryReportRow, 0, len(medicines))
	summary := domain.InventoryReportSummary{}
	for _, m := range medicines {
		if medicineID != "" && m.ID != medicineID {
			continue
		}
		if nameNeedle != "" && !strings.Contains(strings.ToLower(m.Name), nameNeedle) {
			continue
		}
		soldQty := sold[m.ID]
		rows = append(rows, domain.InventoryReportRow{
			MedicineID:        m.ID,
			MedicineName:      m.Name,
			Category:          m.Category,
			Manufacturer:      m.Manufacturer,
			Strength:          m.Strength,
			BatchNumber:       m.BatchNumber,
			MRP:               m.MRP,
			Price:             m.Price,
			SoldQuantity:      soldQty,
			RemainingQuantity: m.Quantity,
			TotalQuantity:     soldQty + m.Quantity,
		})
		summary.TotalMedicines++
		summary.TotalSoldQuantity += soldQty
		summary.TotalRemainingQuantity += m.Quantity
	}
	if !window.IsAllTime() {
		start, end := window.Start, window.End
		summary.RangeStart = &start
		summary.RangeEnd = &end
	}

	params := pagination.Params{Page: f.Page, Limit: f.Limit, SortBy: f.SortBy, SortOrder: f.SortOrder}.Normalize(defaultReportPageLimit)
	sortBy := params.SortBy
	if _, ok := inventorySortColumns[sortBy]; !ok {
		sortBy = "soldQuantity"
	}
	asc := params.SortOrder == pagination.SortAsc
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !asc {
			a, b = b, a
		}
		switch sortBy {
		case "medicineName":
			return a.MedicineName < b.MedicineName
		case "remainingQuantity":
			return a.RemainingQuantity < b.RemainingQuantity
		case "totalQuantity":
			return a.TotalQuantity < b.TotalQuantity
		default:
			return a.SoldQuantity < b.SoldQuantity
		}
	})

	page := pagination.Apply(rows, params.Page, params.Limit)
	return page, pagination.BuildMeta(len(rows), params.Page, params.Limit), summary, nil
}

func (s *Service) resolveWindow(filter, start, end string) (timewindow.Window, error) {
	kind, err := timewindow.ParseKind(strings.TrimSpace(filter))
	if err != nil {
		return timewindow.Window{}, store.ErrInvalidInput
	}
	window, err := timewindow.Resolve(kind, strings.TrimSpace(start), strings.TrimSpace(end), s.offsetMinutes, s.now().UTC())
	if err != nil {
		var rangeErr *timewindow.InvalidRangeError
		if errors.As(err, &rangeErr) {
			return timewindow.Window{}, err
		}
		// Unparsable dates are plain bad input.
		return timewindow.Window{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	return window, nil
}

func (s *Service) invalidateReports(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn().Err(err).Msg("report cache invalidation failed")
	}
}

func medicineFromRequest(req domain.MedicineCreateRequest) (domain.Medicine, error) {
	name := strings.TrimSpace(req.Name)
	category := strings.TrimSpace(req.Category)
	if name == "" || category == "" {
		return domain.Medicine{}, store.ErrInvalidInput
	}
	if req.MRP.IsNegative() || req.Price.IsNegative() || req.Quantity < 0 || req.ExpiryDate.IsZero() {
		return domain.Medicine{}, store.ErrInvalidInput
	}
	return domain.Medicine{
		Name:         name,
		Category:     category,
		Manufacturer: strings.TrimSpace(req.Manufacturer),
		Strength:     strings.TrimSpace(req.Strength),
		BatchNumber:  strings.TrimSpace(req.BatchNumber),
		MRP:          req.MRP.Round(2),
		Price:        req.Price.Round(2),
		Quantity:     req.Quantity,
		ExpiryDate:   req.ExpiryDate.UTC(),
	}, nil
}
