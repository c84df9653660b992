// Package analytics assembles the dashboard report: stock cards over the
// catalog and revenue/profit/trend figures over orders in a time window.
//
// An order's flat discount is prorated across its lines by each line's share
// of the pre-discount subtotal, and the same prorated figures feed total
// revenue, the sales trend and top-seller revenue, so the three always agree.
//
// Profit uses the catalog's current acquisition price, not the cost at sale
// time. Cost history is not kept, so a later purchase-price edit shifts the
// reported profit of past sales.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pharmadesk/backend/internal/cache"
	"pharmadesk/backend/internal/domain"
	"pharmadesk/backend/internal/timewindow"
)

// Reader is the slice of the repository the aggregator needs. It is a pure
// read path: no partial results are ever returned.
type Reader interface {
	ListMedicines(ctx context.Context, category string) ([]domain.Medicine, error)
	ListOrdersBetween(ctx context.Context, w timewindow.Window) ([]domain.Order, error)
}

type Filters struct {
	Window     timewindow.Window
	Category   string
	Status     string
	NearlyDays int
	GroupBy    string
}

type AggregationError struct {
	Op  string
	Err error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation failed at %s: %v", e.Op, e.Err)
}

func (e *AggregationError) Unwrap() error {
	return e.Err
}

type Aggregator struct {
	reader Reader
	cache  cache.ReportCache
	ttl    time.Duration
	log    zerolog.Logger
	now    func() time.Time
}

func New(reader Reader, c cache.ReportCache, ttl time.Duration, log zerolog.Logger) *Aggregator {
	if c == nil {
		c = cache.NoopReportCache{}
	}
	return &Aggregator{reader: reader, cache: c, ttl: ttl, log: log, now: time.Now}
}

func (a *Aggregator) Build(ctx context.Context, f Filters) (*domain.DashboardReport, error) {
	if !f.Window.IsAllTime() && f.Window.Start.After(f.Window.End) {
		return nil, &timewindow.InvalidRangeError{Start: f.Window.Start, End: f.Window.End}
	}
	if f.NearlyDays <= 0 {
		f.NearlyDays = 90
	}
	if f.Status == "" {
		f.Status = domain.StatusAll
	}
	if f.GroupBy != domain.GroupByWeek {
		f.GroupBy = domain.GroupByMonth
	}

	key := a.cacheKey(f)
	if cached, ok, err := a.cache.Get(ctx, key); err != nil {
		a.log.Warn().Err(err).Msg("report cache read failed")
	} else if ok {
		return cached, nil
	}

	medicines, err := a.reader.ListMedicines(ctx, f.Category)
	if err != nil {
		return nil, &AggregationError{Op: "list medicines", Err: err}
	}
	orders, err := a.reader.ListOrdersBetween(ctx, f.Window)
	if err != nil {
		return nil, &AggregationError{Op: "list orders", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &AggregationError{Op: "context", Err: err}
	}

	report := &domain.DashboardReport{}
	a.fillStockCards(report, medicines, f)
	a.fillOrderMetrics(report, orders, medicines, f)

	if err := a.cache.Set(ctx, key, report, a.ttl); err != nil {
		a.log.Warn().Err(err).Msg("report cache write failed")
	}
	return report, nil
}

func (a *Aggregator) cacheKey(f Filters) string {
	return fmt.Sprintf("dashboard:%d:%d:%s:%s:%d:%s",
		f.Window.Start.UnixMilli(), f.Window.End.UnixMilli(),
		f.Category, f.Status, f.NearlyDays, f.GroupBy)
}

// expiryStatus buckets are mutually exclusive: a medicine is expired, nearly
// expired, or in stock, never two at once.
func expiryStatus(m domain.Medicine, now time.Time, nearlyDays int) string {
	if m.ExpiryDate.Before(now) {
		return domain.StatusExpired
	}
	if !m.ExpiryDate.After(now.AddDate(0, 0, nearlyDays)) {
		return domain.StatusNearly
	}
	return domain.StatusInStock
}

func (a *Aggregator) fillStockCards(report *domain.DashboardReport, medicines []domain.Medicine, f Filters) {
	now := a.now().UTC()

	type categoryAgg struct {
		skus  int
		units int
	}
	byCategory := make(map[string]*categoryAgg)
	categoryOrder := make([]string, 0, 8)

	for _, m := range medicines {
		status := expiryStatus(m, now, f.NearlyDays)
		if f.Status != domain.StatusAll && status != f.Status {
			continue
		}

		report.Cards.TotalSKUs++
		report.Cards.TotalUnits += m.Quantity
		switch status {
		case domain.StatusExpired:
			report.Cards.ExpiredCount++
		case domain.StatusNearly:
			report.Cards.NearlyExpiryCount++
		}

		agg, ok := byCategory[m.Category]
		if !ok {
			agg = &categoryAgg{}
			byCategory[m.Category] = agg
			categoryOrder = append(categoryOrder, m.Category)
		}
		agg.skus++
		agg.units += m.Quantity
	}

	report.ByCategory = make([]domain.CategoryBreakdown, 0, len(categoryOrder))
	for _, name := range categoryOrder {
		report.ByCategory = append(report.ByCategory, domain.CategoryBreakdown{
			Category: name,
			SKUs:     byCategory[name].skus,
			Units:    byCategory[name].units,
		})
	}
	sort.SliceStable(report.ByCategory, func(i, j int) bool {
		return report.ByCategory[i].Units > report.ByCategory[j].Units
	})
}

func (a *Aggregator) fillOrderMetrics(report *domain.DashboardReport, orders []domain.Order, medicines []domain.Medicine, f Filters) {
	catalog := make(map[string]domain.Medicine, len(medicines))
	for _, m := range medicines {
		catalog[m.ID] = m
	}

	type trendAgg struct {
		revenue   decimal.Decimal
		itemsSold int
	}
	trend := make(map[string]*trendAgg)

	type soldAgg struct {
		medicineID string
		name       string
		period     string
		quantity   int
	}
	soldByPeriod := make(map[string]*soldAgg)
	soldOrder := make([]string, 0, 32)

	type topAgg struct {
		medicineID string
		name       string
		quantity   int
		revenue    decimal.Decimal
	}
	top := make(map[string]*topAgg)
	topOrder := make([]string, 0, 16)

	revenue := decimal.Zero
	profit := decimal.Zero

	for _, o := range orders {
		preDiscount := decimal.Zero
		for _, item := range o.Items {
			preDiscount = preDiscount.Add(item.Subtotal)
		}
		period := periodKey(o.CreatedAt, f.GroupBy)

		for _, item := range o.Items {
			med, inCatalog := catalog[item.MedicineID]
			if f.Category != "" && !inCatalog {
				continue
			}

			// Prorate the order's flat discount by this line's share of the
			// pre-discount subtotal. A zero-subtotal order has nothing to
			// prorate, but its quantities still count.
			net := item.Subtotal
			if preDiscount.IsPositive() {
				share := item.Subtotal.Div(preDiscount)
				net = item.Subtotal.Sub(o.Discount.Mul(share))
			}

			revenue = revenue.Add(net)
			report.Cards.TotalItemsSold += item.Quantity

			if inCatalog {
				cost := med.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
				profit = profit.Add(net.Sub(cost))
			} else {
				profit = profit.Add(net)
			}

			t, ok := trend[period]
			if !ok {
				t = &trendAgg{revenue: decimal.Zero}
				trend[period] = t
			}
			t.revenue = t.revenue.Add(net)
			t.itemsSold += item.Quantity

			soldKey := period + "|" + item.MedicineID
			sp, ok := soldByPeriod[soldKey]
			if !ok {
				sp = &soldAgg{medicineID: item.MedicineID, name: item.Name, period: period}
				soldByPeriod[soldKey] = sp
				soldOrder = append(soldOrder, soldKey)
			}
			sp.quantity += item.Quantity

			ta, ok := top[item.MedicineID]
			if !ok {
				ta = &topAgg{medicineID: item.MedicineID, name: item.Name, revenue: decimal.Zero}
				top[item.MedicineID] = ta
				topOrder = append(topOrder, item.MedicineID)
			}
			ta.quantity += item.Quantity
			ta.revenue = ta.revenue.Add(net)
		}
	}

	report.Cards.TotalRevenue = revenue.Round(2)
	report.Cards.TotalProfit = profit.Round(2)

	periods := make([]string, 0, len(trend))
	for p := range trend {
		periods = append(periods, p)
	}
	sort.Strings(periods)
	report.Charts.SalesTrend = make([]domain.TrendPoint, 0, len(periods))
	for _, p := range periods {
		report.Charts.SalesTrend = append(report.Charts.SalesTrend, domain.TrendPoint{
			Period:    p,
			Revenue:   trend[p].revenue.Round(2),
			ItemsSold: trend[p].itemsSold,
		})
	}

	report.Charts.MedicinesSoldMonthly = make([]domain.MedicinePeriodSales, 0, len(soldOrder))
	sort.SliceStable(soldOrder, func(i, j int) bool {
		return soldByPeriod[soldOrder[i]].period < soldByPeriod[soldOrder[j]].period
	})
	for _, key := range soldOrder {
		sp := soldByPeriod[key]
		report.Charts.MedicinesSoldMonthly = append(report.Charts.MedicinesSoldMonthly, domain.MedicinePeriodSales{
			MedicineID: sp.medicineID,
			Name:       sp.name,
			Period:     sp.period,
			Quantity:   sp.quantity,
		})
	}

	// Ties keep first-aggregated order.
	sort.SliceStable(topOrder, func(i, j int) bool {
		return top[topOrder[i]].quantity > top[topOrder[j]].quantity
	})
	limit := 5
	if len(topOrder) < limit {
		limit = len(topOrder)
	}
	report.Charts.TopSelling = make([]domain.TopSellingMedicine, 0, limit)
	for _, id := range topOrder[:limit] {
		ta := top[id]
		entry := domain.TopSellingMedicine{
			MedicineID: ta.medicineID,
			Name:       ta.name,
			Quantity:   ta.quantity,
			Revenue:    ta.revenue.Round(2),
		}
		if med, ok := catalog[id]; ok {
			entry.Category = med.Category
		}
		report.Charts.TopSelling = append(report.Charts.TopSelling, entry)
	}
}

func periodKey(t time.Time, groupBy string) string {
	t = t.UTC()
	if groupBy == domain.GroupByWeek {
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	}
	return t.Format("2006-01")
}
