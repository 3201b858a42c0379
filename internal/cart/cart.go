// Package cart holds the shopping cart model and its merge rules. The cart
// lives in the persisted local store and is pushed to the remote profile on
// every change; the total is never stored, it is always derived from the
// lines.
package cart

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Line is a single cart entry. Two lines are the same entry when both the
// product and the size match; adding the same entry again merges quantities.
type Line struct {
	ProductID string          `json:"id"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image"`
	Size      string          `json:"size"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

func (l Line) sameEntry(other Line) bool {
	return l.ProductID == other.ProductID && l.Size == other.Size
}

// Cart is an ordered list of lines. Order is insertion order.
type Cart struct {
	Lines []Line
}

// Total derives the cart amount from the lines.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// AddLine merges line into the cart. An existing entry with the same product
// and size gains the quantity; otherwise the line is appended. Quantities
// below one count as one.
func (c Cart) AddLine(line Line) Cart {
	if line.Quantity < 1 {
		line.Quantity = 1
	}
	lines := make([]Line, len(c.Lines))
	copy(lines, c.Lines)

	for i, existing := range lines {
		if existing.sameEntry(line) {
			lines[i].Quantity += line.Quantity
			return Cart{Lines: lines}
		}
	}
	return Cart{Lines: append(lines, line)}
}

// RemoveLine drops every entry for the product, all sizes included. Removing
// a product that is not in the cart is a no-op.
func (c Cart) RemoveLine(productID string) Cart {
	lines := make([]Line, 0, len(c.Lines))
	for _, l := range c.Lines {
		if l.ProductID == productID {
			continue
		}
		lines = append(lines, l)
	}
	return Cart{Lines: lines}
}

// ChangeQuantity sets the quantity of the entry matching product and size.
// Quantities are clamped at one; removal goes through RemoveLine. Unknown
// entries are left untouched.
func (c Cart) ChangeQuantity(productID, size string, quantity int) Cart {
	if quantity < 1 {
		quantity = 1
	}
	lines := make([]Line, len(c.Lines))
	copy(lines, c.Lines)
	for i, l := range lines {
		if l.ProductID == productID && l.Size == size {
			lines[i].Quantity = quantity
			break
		}
	}
	return Cart{Lines: lines}
}

type cartJSON struct {
	Lines       []Line          `json:"lines"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// MarshalJSON emits the derived total alongside the lines so consumers never
// have to recompute it.
func (c Cart) MarshalJSON() ([]byte, error) {
	lines := c.Lines
	if lines == nil {
		lines = []Line{}
	}
	return json.Marshal(cartJSON{Lines: lines, TotalAmount: c.Total()})
}

// UnmarshalJSON restores the lines and discards any stored total; totals are
// always derived, so a stale persisted amount can never leak back in.
func (c *Cart) UnmarshalJSON(data []byte) error {
	var raw cartJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Lines = raw.Lines
	return nil
}
