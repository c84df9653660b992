package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Medicine is a catalog/stock record. Quantity is mutated only through the
// store's reserve/release ledger operations and catalog edits.
type Medicine struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Manufacturer string          `json:"manufacturer,omitempty"`
	Strength     string          `json:"strength,omitempty"`
	BatchNumber  string          `json:"batchNumber,omitempty"`
	MRP          decimal.Decimal `json:"mrp"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	ExpiryDate   time.Time       `json:"expiryDate"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type MedicineCreateRequest struct {
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Manufacturer string          `json:"manufacturer"`
	Strength     string          `json:"strength"`
	BatchNumber  string          `json:"batchNumber"`
	MRP          decimal.Decimal `json:"mrp"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	ExpiryDate   time.Time       `json:"expiryDate"`
}

type MedicineUpdateRequest struct {
	Name         *string          `json:"name,omitempty"`
	Category     *string          `json:"category,omitempty"`
	Manufacturer *string          `json:"manufacturer,omitempty"`
	Strength     *string          `json:"strength,omitempty"`
	BatchNumber  *string          `json:"batchNumber,omitempty"`
	MRP          *decimal.Decimal `json:"mrp,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Quantity     *int             `json:"quantity,omitempty"`
	ExpiryDate   *time.Time       `json:"expiryDate,omitempty"`
}

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// OrderItem snapshots the medicine's name and sale price at order creation;
// later catalog edits do not affect it.
type OrderItem struct {
	MedicineID string          `json:"medicineId"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

const (
	InvoicePending  = "pending"
	InvoiceAttached = "attached"
	InvoiceFailed   = "failed"
)

// Order is immutable after creation except for the invoice fields, which a
// background attacher fills in once the artifact upload settles.
type Order struct {
	ID            string          `json:"id"`
	Customer      Customer        `json:"customer"`
	Items         []OrderItem     `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	GrandTotal    decimal.Decimal `json:"grandTotal"`
	InvoiceURL    string          `json:"invoiceUrl,omitempty"`
	InvoiceStatus string          `json:"invoiceStatus"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type OrderLineRequest struct {
	MedicineID string `json:"medicineId"`
	Quantity   int    `json:"quantity"`
}

type OrderCreateRequest struct {
	Customer Customer           `json:"customer"`
	Items    []OrderLineRequest `json:"items"`
	Discount decimal.Decimal    `json:"discount"`
}

type OrderCreateResponse struct {
	OrderID       string `json:"orderId"`
	InvoiceStatus string `json:"invoiceStatus"`
}

// StockSnapshot is what a successful stock reservation returns: the values to
// copy onto the order line.
type StockSnapshot struct {
	MedicineID string
	Name       string
	UnitPrice  decimal.Decimal
}

type OrderListFilters struct {
	Filter       string
	Start        string
	End          string
	OrderID      string
	CustomerName string
	MedicineName string
	Page         int
	Limit        int
	SortBy       string
	SortOrder    string
}

type InventoryReportFilters struct {
	Filter       string
	Start        string
	End          string
	MedicineID   string
	MedicineName string
	Category     string
	Page         int
	Limit        int
	SortBy       string
	SortOrder    string
}

// InventoryReportRow combines sold vs remaining quantity for one medicine
// over the requested window.
type InventoryReportRow struct {
	MedicineID        string          `json:"medicineId"`
	MedicineName      string          `json:"medicineName"`
	Category          string          `json:"category,omitempty"`
	Manufacturer      string          `json:"manufacturer,omitempty"`
	Strength          string          `json:"strength,omitempty"`
	BatchNumber       string          `json:"batchNumber,omitempty"`
	MRP               decimal.Decimal `json:"mrp"`
	Price             decimal.Decimal `json:"price"`
	SoldQuantity      int             `json:"soldQuantity"`
	RemainingQuantity int             `json:"remainingQuantity"`
	TotalQuantity     int             `json:"totalQuantity"`
}

type InventoryReportSummary struct {
	TotalMedicines         int        `json:"totalMedicines"`
	TotalSoldQuantity      int        `json:"totalSoldQuantity"`
	TotalRemainingQuantity int        `json:"totalRemainingQuantity"`
	RangeStart             *time.Time `json:"rangeStart"`
	RangeEnd               *time.Time `json:"rangeEnd"`
}

const (
	StatusExpired = "expired"
	StatusNearly  = "nearly"
	StatusInStock = "in-stock"
	StatusAll     = "all"
)

const (
	GroupByMonth = "month"
	GroupByWeek  = "week"
)

type DashboardCards struct {
	TotalSKUs         int             `json:"totalSKUs"`
	TotalUnits        int             `json:"totalUnits"`
	ExpiredCount      int             `json:"expiredCount"`
	NearlyExpiryCount int             `json:"nearlyExpiryCount"`
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
	TotalItemsSold    int             `json:"totalItemsSold"`
	TotalProfit       decimal.Decimal `json:"totalProfit"`
}

type CategoryBreakdown struct {
	Category string `json:"category"`
	SKUs     int    `json:"skus"`
	Units    int    `json:"units"`
}

type TrendPoint struct {
	Period    string          `json:"period"`
	Revenue   decimal.Decimal `json:"revenue"`
	ItemsSold int             `json:"itemsSold"`
}

type MedicinePeriodSales struct {
	MedicineID string `json:"medicineId"`
	Name       string `json:"name"`
	Period     string `json:"period"`
	Quantity   int    `json:"quantity"`
}

type TopSellingMedicine struct {
	MedicineID string          `json:"medicineId"`
	Name       string          `json:"name"`
	Category   string          `json:"category,omitempty"`
	Quantity   int             `json:"quantity"`
	Revenue    decimal.Decimal `json:"revenue"`
}

type DashboardCharts struct {
	SalesTrend           []TrendPoint          `json:"salesTrend"`
	MedicinesSoldMonthly []MedicinePeriodSales `json:"medicinesSoldMonthly"`
	TopSelling           []TopSellingMedicine  `json:"topSelling"`
}

type DashboardReport struct {
	Cards      DashboardCards      `json:"cards"`
	ByCategory []CategoryBreakdown `json:"byCategory"`
	Charts     DashboardCharts     `json:"charts"`
}
