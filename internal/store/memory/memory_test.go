package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pharmadesk/backend/internal/domain"
	"pharmadesk/backend/internal/store"
	"pharmadesk/backend/internal/timewindow"
)

func seedMedicine(t *testing.T, s *Store, name string, qty int) domain.Medicine {
	t.Helper()
	m, err := s.CreateMedicine(context.Background(), domain.Medicine{
		Name:       name,
		Category:   "analgesic",
		MRP:        dec("10.00"),
		Price:      dec("7.00"),
		Quantity:   qty,
		ExpiryDate: time.Now().UTC().AddDate(1, 0, 0),
	})
	if err != nil {
		t.Fatalf("seed medicine: %v", err)
	}
	return *m
}

func TestReserveStockDecrementsAndSnapshots(t *testing.T) {
	s := New()
	m := seedMedicine(t, s, "Napa 500mg", 10)

	snap, err := s.ReserveStock(context.Background(), m.ID, 4)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if snap.Name != "Napa 500mg" || !snap.UnitPrice.Equal(dec("10.00")) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	after, err := s.GetMedicineByID(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.Quantity != 6 {
		t.Fatalf("quantity = %d, want 6", after.Quantity)
	}
}

func TestReserveStockFailures(t *testing.T) {
	s := New()
	m := seedMedicine(t, s, "Seclo 20mg", 3)

	if _, err := s.ReserveStock(context.Background(), "med-missing", 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing medicine: got %v, want ErrNotFound", err)
	}

	_, err := s.ReserveStock(context.Background(), m.ID, 5)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("got %v, want insufficient stock", err)
	}
	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected typed InsufficientStockError, got %T", err)
	}
	if stockErr.Requested != 5 || stockErr.Available != 3 {
		t.Fatalf("shortfall = %+v", stockErr)
	}

	// Failed reservation must not touch the quantity.
	after, _ := s.GetMedicineByID(context.Background(), m.ID)
	if after.Quantity != 3 {
		t.Fatalf("quantity = %d after failed reserve, want 3", after.Quantity)
	}
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	s := New()
	m := seedMedicine(t, s, "Azithrocin 500mg", 10)

	const workers = 50
	const perRequest = 3

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ReserveStock(context.Background(), m.ID, perRequest); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// floor(10/3) requests can be satisfied.
	if successes != 3 {
		t.Fatalf("successes = %d, want 3", successes)
	}
	after, _ := s.GetMedicineByID(context.Background(), m.ID)
	if after.Quantity != 10-3*perRequest {
		t.Fatalf("final quantity = %d, want 1", after.Quantity)
	}
}

func TestReleaseStockRestoresQuantity(t *testing.T) {
	s := New()
	m := seedMedicine(t, s, "Fexo 120mg", 5)

	if _, err := s.ReserveStock(context.Background(), m.ID, 5); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := s.ReleaseStock(context.Background(), m.ID, 5); err != nil {
		t.Fatalf("release: %v", err)
	}
	after, _ := s.GetMedicineByID(context.Background(), m.ID)
	if after.Quantity != 5 {
		t.Fatalf("quantity = %d, want 5", after.Quantity)
	}
}

func TestSearchMedicinesEscapesPattern(t *testing.T) {
	s := New()
	seedMedicine(t, s, "Napa (Extra) 500mg", 10)
	seedMedicine(t, s, "NapaXExtraY", 10)

	found, total, err := s.SearchMedicines(context.Background(), store.MedicineSearchQuery{
		Search: "Napa (Extra)",
		Limit:  10,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 || len(found) != 1 || found[0].Name != "Napa (Extra) 500mg" {
		t.Fatalf("parentheses must match literally, got %d results", total)
	}
}

func TestListOrdersWindowAndSearch(t *testing.T) {
	s := New()
	m := seedMedicine(t, s, "Monas 10mg", 100)

	mk := func(customer string, created time.Time) {
		_, err := s.CreateOrder(context.Background(), domain.Order{
			Customer:   domain.Customer{Name: customer},
			Items:      []domain.OrderItem{{MedicineID: m.ID, Name: m.Name, Quantity: 1, Price: m.MRP, Subtotal: m.MRP}},
			Subtotal:   m.MRP,
			GrandTotal: m.MRP,
			CreatedAt:  created,
		})
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
	}

	jan := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC)
	mk("Rahim Uddin", jan)
	mk("Karim Mia", feb)

	w := timewindow.Window{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 23, 59, 59, 999000000, time.UTC),
	}
	got, total, err := s.ListOrders(context.Background(), store.OrderQuery{Window: w, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || got[0].Customer.Name != "Rahim Uddin" {
		t.Fatalf("window filter failed: total=%d", total)
	}

	got, total, err = s.ListOrders(context.Background(), store.OrderQuery{CustomerName: "karim", Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || got[0].Customer.Name != "Karim Mia" {
		t.Fatalf("customer search failed: total=%d", total)
	}

	got, total, err = s.ListOrders(context.Background(), store.OrderQuery{MedicineName: "monas", Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 {
		t.Fatalf("medicine search failed: total=%d", total)
	}
	_ = got
}

func TestListOrdersSortWhitelist(t *testing.T) {
	s := New()
	m := seedMedicine(t, s, "Ceevit", 100)

	amounts := []string{"30.00", "10.00", "20.00"}
	for i, amt := range amounts {
		_, err := s.CreateOrder(context.Background(), domain.Order{
			Customer:   domain.Customer{Name: "Customer"},
			Items:      []domain.OrderItem{{MedicineID: m.ID, Name: m.Name, Quantity: 1, Price: dec(amt), Subtotal: dec(amt)}},
			Subtotal:   dec(amt),
			GrandTotal: dec(amt),
			CreatedAt:  time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
	}

	got, _, err := s.ListOrders(context.Background(), store.OrderQuery{SortBy: "grandTotal", SortOrder: "asc", Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !got[0].GrandTotal.Equal(dec("10.00")) || !got[2].GrandTotal.Equal(dec("30.00")) {
		t.Fatalf("grandTotal asc sort broken: %v %v %v", got[0].GrandTotal, got[1].GrandTotal, got[2].GrandTotal)
	}

	// Empty and unknown sortBy both fall back to createdAt, newest first.
	for _, sortBy := range []string{"", "nonsense"} {
		got, _, err = s.ListOrders(context.Background(), store.OrderQuery{SortBy: sortBy, Limit: 10})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if !got[0].GrandTotal.Equal(dec("20.00")) || !got[2].GrandTotal.Equal(dec("30.00")) {
			t.Fatalf("sortBy %q should order by createdAt desc, got %v first", sortBy, got[0].GrandTotal)
		}
	}
}

func TestSetInvoiceResult(t *testing.T) {
	s := New()
	m := seedMedicine(t, s, "Napa 500mg", 10)
	o, err := s.CreateOrder(context.Background(), domain.Order{
		Customer: domain.Customer{Name: "Customer"},
		Items:    []domain.OrderItem{{MedicineID: m.ID, Name: m.Name, Quantity: 1, Price: m.MRP, Subtotal: m.MRP}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if o.InvoiceStatus != domain.InvoicePending {
		t.Fatalf("new order invoice status = %q, want pending", o.InvoiceStatus)
	}

	if err := s.SetInvoiceResult(context.Background(), o.ID, "http://files.local/inv.txt", domain.InvoiceAttached); err != nil {
		t.Fatalf("set invoice: %v", err)
	}
	after, _ := s.GetOrderByID(context.Background(), o.ID)
	if after.InvoiceURL == "" || after.InvoiceStatus != domain.InvoiceAttached {
		t.Fatalf("invoice result not applied: %+v", after)
	}
}
