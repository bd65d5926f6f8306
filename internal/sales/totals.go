package sales

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LineInput is the priced part of a document line.
type LineInput struct {
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
}

// LineTotals are the computed amounts of one line, rounded to two places.
type LineTotals struct {
	Gross    decimal.Decimal `json:"gross"`
	Discount decimal.Decimal `json:"discount"`
	Net      decimal.Decimal `json:"net"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Totals are document totals. GrandTotal is the sum of line totals.
type Totals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Discount   decimal.Decimal `json:"discount"`
	Tax        decimal.Decimal `json:"tax"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	Lines      []LineTotals    `json:"lines"`
}

// ClaimedTotals are aggregates sent by a client. Nil fields are not checked.
type ClaimedTotals struct {
	Subtotal   *decimal.Decimal `json:"subtotal,omitempty"`
	Discount   *decimal.Decimal `json:"discount,omitempty"`
	Tax        *decimal.Decimal `json:"tax,omitempty"`
	GrandTotal *decimal.Decimal `json:"grand_total,omitempty"`
}

// CalculateLine computes one line: discount on gross, tax on net.
func CalculateLine(l LineInput) (LineTotals, error) {
	switch {
	case !l.Quantity.IsPositive():
		return LineTotals{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidLine)
	case l.UnitPrice.IsNegative():
		return LineTotals{}, fmt.Errorf("%w: unit price cannot be negative", ErrInvalidLine)
	case l.DiscountPercent.IsNegative() || l.DiscountPercent.GreaterThan(hundred):
		return LineTotals{}, fmt.Errorf("%w: discount must be between 0 and 100", ErrInvalidLine)
	case l.TaxPercent.IsNegative():
		return LineTotals{}, fmt.Errorf("%w: tax cannot be negative", ErrInvalidLine)
	}
	gross := l.Quantity.Mul(l.UnitPrice).Round(2)
	discount := gross.Mul(l.DiscountPercent).Div(hundred).Round(2)
	net := gross.Sub(discount)
	tax := net.Mul(l.TaxPercent).Div(hundred).Round(2)
	return LineTotals{Gross: gross, Discount: discount, Net: net, Tax: tax, Total: net.Add(tax)}, nil
}

// CalculateTotals recomputes document totals from quantities and prices.
// It is shared by sales, invoices and purchase orders.
func CalculateTotals(lines []LineInput) (Totals, error) {
	if len(lines) == 0 {
		return Totals{}, fmt.Errorf("%w: at least one line is required", ErrInvalidLine)
	}
	t := Totals{Lines: make([]LineTotals, 0, len(lines))}
	for i, l := range lines {
		lt, err := CalculateLine(l)
		if err != nil {
			return Totals{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		t.Subtotal = t.Subtotal.Add(lt.Gross)
		t.Discount = t.Discount.Add(lt.Discount)
		t.Tax = t.Tax.Add(lt.Tax)
		t.GrandTotal = t.GrandTotal.Add(lt.Total)
		t.Lines = append(t.Lines, lt)
	}
	return t, nil
}

// Verify rejects claimed aggregates that disagree with the computed totals.
func (t Totals) Verify(claimed *ClaimedTotals) error {
	if claimed == nil {
		return nil
	}
	check := func(name string, got *decimal.Decimal, want decimal.Decimal) error {
		if got != nil && !got.Round(2).Equal(want) {
			return fmt.Errorf("%w: %s is %s, computed %s", ErrTotalsMismatch, name, got.StringFixed(2), want.StringFixed(2))
		}
		return nil
	}
	if err := check("subtotal", claimed.Subtotal, t.Subtotal); err != nil {
		return err
	}
	if err := check("discount", claimed.Discount, t.Discount); err != nil {
		return err
	}
	if err := check("tax", claimed.Tax, t.Tax); err != nil {
		return err
	}
	return check("grand_total", claimed.GrandTotal, t.GrandTotal)
}
