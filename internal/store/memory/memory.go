// Package memory is the in-process repository used for dev mode and tests.
// A single RWMutex serializes all mutations, which makes the conditional
// stock decrement trivially atomic.
package memory

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pharmadesk/backend/internal/domain"
	"pharmadesk/backend/internal/pagination"
	"pharmadesk/backend/internal/store"
	"pharmadesk/backend/internal/timewindow"
	"pharmadesk/backend/internal/xid"
)

type Store struct {
	mu          sync.RWMutex
	medicines   map[string]domain.Medicine
	medicineIDs []string
	orders      map[string]domain.Order
	orderIDs    []string
}

func New() *Store {
	return &Store{
		medicines: make(map[string]domain.Medicine),
		orders:    make(map[string]domain.Order),
	}
}

// NewSeeded returns a store preloaded with a small pharmacy catalog for dev
// mode: a mix of fresh, nearly-expired and expired stock.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	seed := []domain.Medicine{
		{Name: "Napa 500mg", Category: "analgesic", Manufacturer: "Beximco", Strength: "500mg", BatchNumber: "NP-2301", MRP: dec("1.20"), Price: dec("0.80"), Quantity: 500, ExpiryDate: now.AddDate(1, 6, 0)},
		{Name: "Seclo 20mg", Category: "antacid", Manufacturer: "Square", Strength: "20mg", BatchNumber: "SC-2218", MRP: dec("7.00"), Price: dec("4.90"), Quantity: 240, ExpiryDate: now.AddDate(0, 11, 0)},
		{Name: "Azithrocin 500mg", Category: "antibiotic", Manufacturer: "Renata", Strength: "500mg", BatchNumber: "AZ-2243", MRP: dec("35.00"), Price: dec("26.50"), Quantity: 90, ExpiryDate: now.AddDate(0, 2, 0)},
		{Name: "Fexo 120mg", Category: "antihistamine", Manufacturer: "Square", Strength: "120mg", BatchNumber: "FX-2307", MRP: dec("9.00"), Price: dec("6.30"), Quantity: 180, ExpiryDate: now.AddDate(2, 0, 0)},
		{Name: "Ceevit", Category: "vitamin", Manufacturer: "Square", Strength: "250mg", BatchNumber: "CV-2288", MRP: dec("2.50"), Price: dec("1.60"), Quantity: 320, ExpiryDate: now.AddDate(0, 1, 15)},
		{Name: "Maxpro 20mg", Category: "antacid", Manufacturer: "Renata", Strength: "20mg", BatchNumber: "MX-2195", MRP: dec("8.00"), Price: dec("5.40"), Quantity: 60, ExpiryDate: now.AddDate(0, -2, 0)},
		{Name: "Monas 10mg", Category: "respiratory", Manufacturer: "ACME", Strength: "10mg", BatchNumber: "MN-2314", MRP: dec("17.50"), Price: dec("12.00"), Quantity: 140, ExpiryDate: now.AddDate(1, 0, 0)},
		{Name: "Amodis 400mg", Category: "antibiotic", Manufacturer: "Square", Strength: "400mg", BatchNumber: "AM-2119", MRP: dec("3.50"), Price: dec("2.20"), Quantity: 0, ExpiryDate: now.AddDate(0, -6, 0)},
	}
	ctx := context.Background()
	for _, m := range seed {
		_, _ = s.CreateMedicine(ctx, m)
	}
	return s
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (s *Store) CreateMedicine(_ context.Context, m domain.Medicine) (*domain.Medicine, error) {
	if strings.TrimSpace(m.Name) == "" || strings.TrimSpace(m.Category) == "" {
		return nil, store.ErrInvalidInput
	}
	if m.MRP.IsNegative() || m.Price.IsNegative() || m.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = xid.New("med")
	}
	if _, exists := s.medicines[m.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	s.medicines[m.ID] = m
	s.medicineIDs = append(s.medicineIDs, m.ID)
	created := m
	return &created, nil
}

func (s *Store) CreateMedicines(ctx context.Context, ms []domain.Medicine) ([]domain.Medicine, error) {
	if len(ms) == 0 {
		return nil, store.ErrInvalidInput
	}
	created := make([]domain.Medicine, 0, len(ms))
	for _, m := range ms {
		saved, err := s.CreateMedicine(ctx, m)
		if err != nil {
			return nil, err
		}
		created = append(created, *saved)
	}
	return created, nil
}

func (s *Store) GetMedicineByID(_ context.Context, id string) (*domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.medicines[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := m
	return &found, nil
}

func (s *Store) UpdateMedicine(_ context.Context, m domain.Medicine) (*domain.Medicine, error) {
	if strings.TrimSpace(m.Name) == "" || strings.TrimSpace(m.Category) == "" {
		return nil, store.ErrInvalidInput
	}
	if m.MRP.IsNegative() || m.Price.IsNegative() || m.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.medicines[m.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	s.medicines[m.ID] = m
	updated := m
	return &updated, nil
}

func (s *Store) DeleteMedicine(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.medicines[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.medicines, id)
	for i, mid := range s.medicineIDs {
		if mid == id {
			s.medicineIDs = append(s.medicineIDs[:i], s.medicineIDs[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) SearchMedicines(_ context.Context, q store.MedicineSearchQuery) ([]domain.Medicine, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matcher *regexp.Regexp
	if strings.TrimSpace(q.Search) != "" {
		matcher = regexp.MustCompile("(?i)" + pagination.EscapeSearch(q.Search))
	}

	matched := make([]domain.Medicine, 0, len(s.medicineIDs))
	for _, id := range s.medicineIDs {
		m := s.medicines[id]
		if matcher != nil &&
			!matcher.MatchString(m.Name) &&
			!matcher.MatchString(m.Category) &&
			!matcher.MatchString(m.BatchNumber) {
			continue
		}
		matched = append(matched, m)
	}

	total := len(matched)
	if q.Offset >= total {
		return []domain.Medicine{}, total, nil
	}
	end := q.Offset + q.Limit
	if q.Limit <= 0 || end > total {
		end = total
	}
	return matched[q.Offset:end], total, nil
}

func (s *Store) ListMedicines(_ context.Context, category string) ([]domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category = strings.TrimSpace(category)
	out := make([]domain.Medicine, 0, len(s.medicineIDs))
	for _, id := range s.medicineIDs {
		m := s.medicines[id]
		if category != "" && m.Category != category {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// ReserveStock checks and decrements under one lock acquisition; concurrent
// reservations for the same medicine serialize here and can never drive the
// quantity below zero.
func (s *Store) ReserveStock(_ context.Context, medicineID string, qty int) (*domain.StockSnapshot, error) {
	if qty < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.medicines[medicineID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if m.Quantity < qty {
		return nil, &store.InsufficientStockError{
			MedicineID: m.ID,
			Name:       m.Name,
			Requested:  qty,
			Available:  m.Quantity,
		}
	}
	m.Quantity -= qty
	m.UpdatedAt = time.Now().UTC()
	s.medicines[medicineID] = m

	return &domain.StockSnapshot{MedicineID: m.ID, Name: m.Name, UnitPrice: m.MRP}, nil
}

func (s *Store) ReleaseStock(_ context.Context, medicineID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.medicines[medicineID]
	if !ok {
		return store.ErrNotFound
	}
	m.Quantity += qty
	m.UpdatedAt = time.Now().UTC()
	s.medicines[medicineID] = m
	return nil
}

func (s *Store) CreateOrder(_ context.Context, o domain.Order) (*domain.Order, error) {
	if len(o.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == "" {
		o.ID = xid.New("ord")
	}
	if _, exists := s.orders[o.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if o.InvoiceStatus == "" {
		o.InvoiceStatus = domain.InvoicePending
	}
	o.Items = append([]domain.OrderItem(nil), o.Items...)

	s.orders[o.ID] = o
	s.orderIDs = append(s.orderIDs, o.ID)
	created := o
	return &created, nil
}

func (s *Store) GetOrderByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := o
	found.Items = append([]domain.OrderItem(nil), o.Items...)
	return &found, nil
}

func (s *Store) ListOrders(_ context.Context, q store.OrderQuery) ([]domain.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var customerRe, medicineRe *regexp.Regexp
	if strings.TrimSpace(q.CustomerName) != "" {
		customerRe = regexp.MustCompile("(?i)" + pagination.EscapeSearch(q.CustomerName))
	}
	if strings.TrimSpace(q.MedicineName) != "" {
		medicineRe = regexp.MustCompile("(?i)" + pagination.EscapeSearch(q.MedicineName))
	}

	matched := make([]domain.Order, 0, len(s.orderIDs))
	for _, id := range s.orderIDs {
		o := s.orders[id]
		if !q.Window.Contains(o.CreatedAt) {
			continue
		}
		if customerRe != nil && !customerRe.MatchString(o.Customer.Name) {
			continue
		}
		if medicineRe != nil && !anyItemMatches(o.Items, medicineRe) {
			continue
		}
		matched = append(matched, o)
	}

	sortOrders(matched, q.SortBy, q.SortOrder)

	total := len(matched)
	if q.Offset >= total {
		return []domain.Order{}, total, nil
	}
	end := q.Offset + q.Limit
	if q.Limit <= 0 || end > total {
		end = total
	}
	page := make([]domain.Order, end-q.Offset)
	for i, o := range matched[q.Offset:end] {
		o.Items = append([]domain.OrderItem(nil), o.Items...)
		page[i] = o
	}
	return page, total, nil
}

func anyItemMatches(items []domain.OrderItem, re *regexp.Regexp) bool {
	for _, it := range items {
		if re.MatchString(it.Name) {
			return true
		}
	}
	return false
}

// sortOrders applies the whitelisted sort keys; empty or unrecognized keys
// sort by createdAt so every backend pages the same way.
func sortOrders(orders []domain.Order, sortBy, sortOrder string) {
	var less func(a, b domain.Order) bool
	switch sortBy {
	case "subtotal":
		less = func(a, b domain.Order) bool { return a.Subtotal.LessThan(b.Subtotal) }
	case "discount":
		less = func(a, b domain.Order) bool { return a.Discount.LessThan(b.Discount) }
	case "grandTotal":
		less = func(a, b domain.Order) bool { return a.GrandTotal.LessThan(b.GrandTotal) }
	default:
		less = func(a, b domain.Order) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
	sort.SliceStable(orders, func(i, j int) bool {
		if sortOrder == pagination.SortAsc {
			return less(orders[i], orders[j])
		}
		return less(orders[j], orders[i])
	})
}

func (s *Store) ListOrdersBetween(_ context.Context, w timewindow.Window) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Order, 0, len(s.orderIDs))
	for _, id := range s.orderIDs {
		o := s.orders[id]
		if !w.Contains(o.CreatedAt) {
			continue
		}
		o.Items = append([]domain.OrderItem(nil), o.Items...)
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SetInvoiceResult(_ context.Context, orderID, url, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	o.InvoiceURL = url
	o.InvoiceStatus = status
	s.orders[orderID] = o
	return nil
}

func (s *Store) UpdateOrderCustomer(_ context.Context, id string, c domain.Customer) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	o.Customer = c
	s.orders[id] = o
	updated := o
	updated.Items = append([]domain.OrderItem(nil), o.Items...)
	return &updated, nil
}

func (s *Store) DeleteOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.orders, id)
	for i, oid := range s.orderIDs {
		if oid == id {
			s.orderIDs = append(s.orderIDs[:i], s.orderIDs[i+1:]...)
			break
		}
	}
	return nil
}
