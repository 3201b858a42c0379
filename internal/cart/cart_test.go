package cart

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func line(id, size string, price string, qty int) Line {
	return Line{
		ProductID: id,
		Name:      "sneaker " + id,
		Size:      size,
		Price:     decimal.RequireFromString(price),
		Quantity:  qty,
	}
}

func assertTotal(t *testing.T, c Cart, want string) {
	t.Helper()
	if got := c.Total(); !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("total = %s, want %s", got, want)
	}
}

func TestTotalAlwaysDerivedFromLines(t *testing.T) {
	t.Parallel()

	var c Cart
	assertTotal(t, c, "0")

	c = c.AddLine(line("A", "42", "100", 1))
	assertTotal(t, c, "100")

	// same product and size merges quantities
	c = c.AddLine(line("A", "42", "100", 1))
	assertTotal(t, c, "200")
	if len(c.Lines) != 1 || c.Lines[0].Quantity != 2 {
		t.Fatalf("expected one merged line with quantity 2, got %+v", c.Lines)
	}

	c = c.AddLine(line("B", "43", "50", 1))
	assertTotal(t, c, "250")

	c = c.RemoveLine("A")
	assertTotal(t, c, "50")

	c = c.ChangeQuantity("B", "43", 5)
	assertTotal(t, c, "250")
}

func TestAddLineSameProductDifferentSizeStaysSeparate(t *testing.T) {
	t.Parallel()

	c := Cart{}.
		AddLine(line("A", "42", "100", 1)).
		AddLine(line("A", "44", "100", 1))
	if len(c.Lines) != 2 {
		t.Fatalf("expected two lines, got %d", len(c.Lines))
	}
}

func TestRemoveLineDropsAllSizesAndIsIdempotent(t *testing.T) {
	t.Parallel()

	c := Cart{}.
		AddLine(line("A", "42", "100", 1)).
		AddLine(line("A", "44", "100", 2)).
		AddLine(line("B", "43", "50", 1))

	c = c.RemoveLine("A")
	if len(c.Lines) != 1 || c.Lines[0].ProductID != "B" {
		t.Fatalf("expected only B left, got %+v", c.Lines)
	}

	again := c.RemoveLine("A")
	if len(again.Lines) != 1 {
		t.Fatalf("removing an absent product must be a no-op")
	}
}

func TestChangeQuantityClampsAtOne(t *testing.T) {
	t.Parallel()

	c := Cart{}.AddLine(line("A", "42", "100", 3))
	c = c.ChangeQuantity("A", "42", 0)
	if c.Lines[0].Quantity != 1 {
		t.Fatalf("quantity should clamp at 1, got %d", c.Lines[0].Quantity)
	}

	c = c.ChangeQuantity("A", "42", -5)
	if c.Lines[0].Quantity != 1 {
		t.Fatalf("negative quantity should clamp at 1, got %d", c.Lines[0].Quantity)
	}
}

func TestAddLineDoesNotMutateReceiver(t *testing.T) {
	t.Parallel()

	original := Cart{}.AddLine(line("A", "42", "100", 1))
	_ = original.AddLine(line("A", "42", "100", 1))
	if original.Lines[0].Quantity != 1 {
		t.Fatalf("AddLine must not mutate the original cart")
	}
}

func TestJSONEmitsDerivedTotalAndDiscardsStoredOne(t *testing.T) {
	t.Parallel()

	c := Cart{}.AddLine(line("A", "42", "99.99", 2))
	payload, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if string(raw["totalAmount"]) != `"199.98"` {
		t.Fatalf("totalAmount = %s", raw["totalAmount"])
	}

	// a tampered stored total never survives a round trip
	var restored Cart
	if err := json.Unmarshal([]byte(`{"lines":[{"id":"A","size":"42","price":"10","quantity":1}],"totalAmount":"9999"}`), &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	assertTotal(t, restored, "10")
}
