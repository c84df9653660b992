package store

import (
	"context"
	"errors"
	"fmt"

	"pharmadesk/backend/internal/domain"
	"pharmadesk/backend/internal/timewindow"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// InsufficientStockError names the medicine and the shortfall so the caller
// can surface an actionable message. errors.Is(err, ErrInsufficientStock)
// matches it.
type InsufficientStockError struct {
	MedicineID string
	Name       string
	Requested  int
	Available  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for %s: requested %d, available %d",
		e.Name, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type MedicineSearchQuery struct {
	// Search matches name, category or batch number, case-insensitive.
	// Stores escape it before building any pattern.
	Search string
	Offset int
	Limit  int
}

type OrderQuery struct {
	Window timewindow.Window
	// Free-text searches; stores escape them before matching.
	CustomerName string
	MedicineName string
	SortBy       string
	SortOrder    string
	Offset       int
	Limit        int
}

// Repository is the document-store contract the core depends on. Stores own
// the stock ledger: ReserveStock is the single conditional check-and-decrement
// (no read-then-write window), ReleaseStock the compensating increment.
type Repository interface {
	CreateMedicine(ctx context.Context, m domain.Medicine) (*domain.Medicine, error)
	CreateMedicines(ctx context.Context, ms []domain.Medicine) ([]domain.Medicine, error)
	GetMedicineByID(ctx context.Context, id string) (*domain.Medicine, error)
	UpdateMedicine(ctx context.Context, m domain.Medicine) (*domain.Medicine, error)
	DeleteMedicine(ctx context.Context, id string) error
	SearchMedicines(ctx context.Context, q MedicineSearchQuery) ([]domain.Medicine, int, error)
	ListMedicines(ctx context.Context, category string) ([]domain.Medicine, error)

	ReserveStock(ctx context.Context, medicineID string, qty int) (*domain.StockSnapshot, error)
	ReleaseStock(ctx context.Context, medicineID string, qty int) error

	CreateOrder(ctx context.Context, o domain.Order) (*domain.Order, error)
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, q OrderQuery) ([]domain.Order, int, error)
	ListOrdersBetween(ctx context.Context, w timewindow.Window) ([]domain.Order, error)
	SetInvoiceResult(ctx context.Context, orderID, url, status string) error
	UpdateOrderCustomer(ctx context.Context, id string, c domain.Customer) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id string) error
}
