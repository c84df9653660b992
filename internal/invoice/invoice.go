// Package invoice renders order invoices and attaches the stored document's
// URL to the order in the background, so order creation never waits on it.
package invoice

import (
	"fmt"
	"strings"

	"pharmadesk/backend/internal/domain"
)

// Letterhead is the pharmacy identity printed on every invoice.
type Letterhead struct {
	Name    string
	Address string
	Phone   string
	Email   string
}

type Renderer interface {
	Render(letterhead Letterhead, o domain.Order) (data []byte, contentType string, err error)
}

// TextRenderer produces a plain-text invoice. The layout mirrors the printed
// receipt: letterhead, customer block, one line per item, then totals.
type TextRenderer struct{}

func (TextRenderer) Render(lh Letterhead, o domain.Order) ([]byte, string, error) {
	if o.ID == "" {
		return nil, "", fmt.Errorf("render invoice: order has no id")
	}

	var b strings.Builder
	line := strings.Repeat("-", 56)

	fmt.Fprintf(&b, "%s\n", lh.Name)
	if lh.Address != "" {
		fmt.Fprintf(&b, "%s\n", lh.Address)
	}
	if lh.Phone != "" || lh.Email != "" {
		fmt.Fprintf(&b, "%s  %s\n", lh.Phone, lh.Email)
	}
	fmt.Fprintf(&b, "%s\n", line)
	fmt.Fprintf(&b, "Invoice for order %s\n", o.ID)
	fmt.Fprintf(&b, "Date: %s\n", o.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Customer: %s", o.Customer.Name)
	if o.Customer.Phone != "" {
		fmt.Fprintf(&b, " (%s)", o.Customer.Phone)
	}
	fmt.Fprintf(&b, "\n%s\n", line)

	for _, item := range o.Items {
		fmt.Fprintf(&b, "%-30s %4d x %10s = %12s\n",
			item.Name, item.Quantity, item.Price.StringFixed(2), item.Subtotal.StringFixed(2))
	}

	fmt.Fprintf(&b, "%s\n", line)
	fmt.Fprintf(&b, "%-48s %12s\n", "Subtotal", o.Subtotal.StringFixed(2))
	if o.Discount.IsPositive() {
		fmt.Fprintf(&b, "%-48s %12s\n", "Discount", o.Discount.Neg().StringFixed(2))
	}
	fmt.Fprintf(&b, "%-48s %12s\n", "Grand total", o.GrandTotal.StringFixed(2))

	return []byte(b.String()), "text/plain", nil
}
