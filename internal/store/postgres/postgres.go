// Package postgres is the production repository. Stock mutation relies on a
// single conditional UPDATE (quantity >= requested) so concurrent
// reservations can never drive a medicine's quantity below zero.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"pharmadesk/backend/internal/domain"
	"pharmadesk/backend/internal/pagination"
	"pharmadesk/backend/internal/store"
	"pharmadesk/backend/internal/timewindow"
	"pharmadesk/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const medicineColumns = `id, name, category, manufacturer, strength, batch_number, mrp, price, quantity, expiry_date, created_at, updated_at`

func scanMedicine(row interface{ Scan(...any) error }) (domain.Medicine, error) {
	var m domain.Medicine
	err := row.Scan(&m.ID, &m.Name, &m.Category, &m.Manufacturer, &m.Strength,
		&m.BatchNumber, &m.MRP, &m.Price, &m.Quantity, &m.ExpiryDate, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return domain.Medicine{}, err
	}
	m.ExpiryDate = m.ExpiryDate.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}

func (s *Store) CreateMedicine(ctx context.Context, m domain.Medicine) (*domain.Medicine, error) {
	if strings.TrimSpace(m.Name) == "" || strings.TrimSpace(m.Category) == "" {
		return nil, store.ErrInvalidInput
	}
	if m.MRP.IsNegative() || m.Price.IsNegative() || m.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	if m.ID == "" {
		m.ID = xid.New("med")
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO medicines (id, name, category, manufacturer, strength, batch_number, mrp, price, quantity, expiry_date, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, m.ID, m.Name, m.Category, m.Manufacturer, m.Strength, m.BatchNumber,
		m.MRP, m.Price, m.Quantity, m.ExpiryDate, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, err
	}

	created := m
	return &created, nil
}

func (s *Store) CreateMedicines(ctx context.Context, ms []domain.Medicine) ([]domain.Medicine, error) {
	if len(ms) == 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	created := make([]domain.Medicine, 0, len(ms))
	for _, m := range ms {
		if strings.TrimSpace(m.Name) == "" || strings.TrimSpace(m.Category) == "" {
			return nil, store.ErrInvalidInput
		}
		if m.MRP.IsNegative() || m.Price.IsNegative() || m.Quantity < 0 {
			return nil, store.ErrInvalidInput
		}
		if m.ID == "" {
			m.ID = xid.New("med")
		}
		m.CreatedAt = now
		m.UpdatedAt = now
		_, err := tx.ExecContext(ctx, `
			INSERT INTO medicines (id, name, category, manufacturer, strength, batch_number, mrp, price, quantity, expiry_date, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, m.ID, m.Name, m.Category, m.Manufacturer, m.Strength, m.BatchNumber,
			m.MRP, m.Price, m.Quantity, m.ExpiryDate, m.CreatedAt, m.UpdatedAt)
		if err != nil {
			return nil, err
		}
		created = append(created, m)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) GetMedicineByID(ctx context.Context, id string) (*domain.Medicine, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE id = $1`, id)
	m, err := scanMedicine(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) UpdateMedicine(ctx context.Context, m domain.Medicine) (*domain.Medicine, error) {
	if strings.TrimSpace(m.Name) == "" || strings.TrimSpace(m.Category) == "" {
		return nil, store.ErrInvalidInput
	}
	if m.MRP.IsNegative() || m.Price.IsNegative() || m.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE medicines
		SET name = $2, category = $3, manufacturer = $4, strength = $5, batch_number = $6,
			mrp = $7, price = $8, quantity = $9, expiry_date = $10, updated_at = $11
		WHERE id = $1
	`, m.ID, m.Name, m.Category, m.Manufacturer, m.Strength, m.BatchNumber,
		m.MRP, m.Price, m.Quantity, m.ExpiryDate, m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := m
	return &updated, nil
}

func (s *Store) DeleteMedicine(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM medicines WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SearchMedicines(ctx context.Context, q store.MedicineSearchQuery) ([]domain.Medicine, int, error) {
	conditions := make([]string, 0, 1)
	args := make([]any, 0, 3)

	if strings.TrimSpace(q.Search) != "" {
		pattern := "%" + pagination.EscapeLike(q.Search) + "%"
		args = append(args, pattern)
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			`(name ILIKE $%d OR category ILIKE $%d OR batch_number ILIKE $%d)`, n, n, n))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM medicines`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, q.Limit, q.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+medicineColumns+` FROM medicines`+where+
			fmt.Sprintf(` ORDER BY id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	medicines := make([]domain.Medicine, 0, q.Limit)
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, 0, err
		}
		medicines = append(medicines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return medicines, total, nil
}

func (s *Store) ListMedicines(ctx context.Context, category string) ([]domain.Medicine, error) {
	query := `SELECT ` + medicineColumns + ` FROM medicines`
	args := []any{}
	if strings.TrimSpace(category) != "" {
		query += ` WHERE category = $1`
		args = append(args, strings.TrimSpace(category))
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	medicines := make([]domain.Medicine, 0, 128)
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		medicines = append(medicines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return medicines, nil
}

// ReserveStock performs the check-and-decrement as one conditional UPDATE.
// There is no window between the quantity check and the write, so concurrent
// reservations for the same medicine serialize on the row.
func (s *Store) ReserveStock(ctx context.Context, medicineID string, qty int) (*domain.StockSnapshot, error) {
	if qty < 1 {
		return nil, store.ErrInvalidInput
	}

	var name string
	var mrp decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		UPDATE medicines
		SET quantity = quantity - $2, updated_at = now()
		WHERE id = $1 AND quantity >= $2
		RETURNING name, mrp
	`, medicineID, qty).Scan(&name, &mrp)
	if err == nil {
		return &domain.StockSnapshot{MedicineID: medicineID, Name: name, UnitPrice: mrp}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// No row matched: either the medicine is missing or stock is short.
	var available int
	err = s.db.QueryRowContext(ctx, `SELECT name, quantity FROM medicines WHERE id = $1`, medicineID).
		Scan(&name, &available)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return nil, &store.InsufficientStockError{
		MedicineID: medicineID,
		Name:       name,
		Requested:  qty,
		Available:  available,
	}
}

func (s *Store) ReleaseStock(ctx context.Context, medicineID string, qty int) error {
	if qty < 1 {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE medicines
		SET quantity = quantity + $2, updated_at = now()
		WHERE id = $1
	`, medicineID, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, o domain.Order) (*domain.Order, error) {
	if len(o.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	if o.ID == "" {
		o.ID = xid.New("ord")
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if o.InvoiceStatus == "" {
		o.InvoiceStatus = domain.InvoicePending
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_name, customer_phone, subtotal, discount, grand_total, invoice_url, invoice_status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, o.ID, o.Customer.Name, nullIfEmpty(o.Customer.Phone), o.Subtotal, o.Discount,
		o.GrandTotal, nullIfEmpty(o.InvoiceURL), o.InvoiceStatus, o.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i, item := range o.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, medicine_id, name, quantity, price, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, o.ID, i, item.MedicineID, item.Name, item.Quantity, item.Price, item.Subtotal)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := o
	return &created, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	o, err := s.scanOrderRow(s.db.QueryRowContext(ctx, `
		SELECT id, customer_name, customer_phone, subtotal, discount, grand_total, invoice_url, invoice_status, created_at
		FROM orders WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	itemsByOrder, err := s.loadItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = itemsByOrder[o.ID]
	return &o, nil
}

// orderSortColumns whitelists sortable fields; empty or unrecognized keys
// fall back to created_at, matching the memory store.
var orderSortColumns = map[string]string{
	"createdAt":  "created_at",
	"subtotal":   "subtotal",
	"discount":   "discount",
	"grandTotal": "grand_total",
}

func (s *Store) ListOrders(ctx context.Context, q store.OrderQuery) ([]domain.Order, int, error) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 6)

	if !q.Window.IsAllTime() {
		args = append(args, q.Window.Start, q.Window.End)
		conditions = append(conditions, fmt.Sprintf(`o.created_at >= $%d AND o.created_at <= $%d`, len(args)-1, len(args)))
	}
	if strings.TrimSpace(q.CustomerName) != "" {
		args = append(args, "%"+pagination.EscapeLike(q.CustomerName)+"%")
		conditions = append(conditions, fmt.Sprintf(`o.customer_name ILIKE $%d`, len(args)))
	}
	if strings.TrimSpace(q.MedicineName) != "" {
		args = append(args, "%"+pagination.EscapeLike(q.MedicineName)+"%")
		conditions = append(conditions, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = o.id AND oi.name ILIKE $%d)`, len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM orders o`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	column, ok := orderSortColumns[q.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if q.SortOrder == pagination.SortAsc {
		direction = "ASC"
	}

	args = append(args, q.Limit, q.Offset)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_name, customer_phone, subtotal, discount, grand_total, invoice_url, invoice_status, created_at
		FROM orders o`+where+
		fmt.Sprintf(` ORDER BY o.%s %s, o.id %s LIMIT $%d OFFSET $%d`, column, direction, direction, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	orders, err := s.collectOrders(rows)
	if err != nil {
		return nil, 0, err
	}

	if err := s.attachItems(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (s *Store) ListOrdersBetween(ctx context.Context, w timewindow.Window) ([]domain.Order, error) {
	query := `
		SELECT id, customer_name, customer_phone, subtotal, discount, grand_total, invoice_url, invoice_status, created_at
		FROM orders`
	args := []any{}
	if !w.IsAllTime() {
		query += ` WHERE created_at >= $1 AND created_at <= $2`
		args = append(args, w.Start, w.End)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	orders, err := s.collectOrders(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) SetInvoiceResult(ctx context.Context, orderID, url, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET invoice_url = $2, invoice_status = $3 WHERE id = $1
	`, orderID, nullIfEmpty(url), status)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateOrderCustomer(ctx context.Context, id string, c domain.Customer) (*domain.Order, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET customer_name = $2, customer_phone = $3 WHERE id = $1
	`, id, c.Name, nullIfEmpty(c.Phone))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetOrderByID(ctx, id)
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) scanOrderRow(row interface{ Scan(...any) error }) (domain.Order, error) {
	var o domain.Order
	var phone, invoiceURL sql.NullString
	err := row.Scan(&o.ID, &o.Customer.Name, &phone, &o.Subtotal, &o.Discount,
		&o.GrandTotal, &invoiceURL, &o.InvoiceStatus, &o.CreatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	o.Customer.Phone = phone.String
	o.InvoiceURL = invoiceURL.String
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}

func (s *Store) collectOrders(rows *sql.Rows) ([]domain.Order, error) {
	defer rows.Close()

	orders := make([]domain.Order, 0, 32)
	for rows.Next() {
		o, err := s.scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	itemsByOrder, err := s.loadItems(ctx, ids)
	if err != nil {
		return err
	}
	for i := range orders {
		orders[i].Items = itemsByOrder[orders[i].ID]
	}
	return nil
}

func (s *Store) loadItems(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, medicine_id, name, quantity, price, subtotal
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.MedicineID, &item.Name, &item.Quantity, &item.Price, &item.Subtotal); err != nil {
			return nil, err
		}
		result[orderID] = append(result[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
