package report

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"money": func(symbol string, d decimal.Decimal) string { return Money(symbol, d) },
	"qty":   func(d decimal.Decimal) string { return d.String() },
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("02 Jan 2006")
	},
}).ParseFS(templateFS, "templates/*.html"))

// Party is a name and address block.
type Party struct {
	Name    string
	Address string
	Phone   string
	TaxID   string
}

// DocumentLine is one row of a printed document.
type DocumentLine struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
}

// InvoiceDocument is everything printed on an invoice or credit note.
type InvoiceDocument struct {
	Title          string
	Number         string
	Status         string
	IssueDate      time.Time
	DueDate        time.Time
	CurrencySymbol string
	Store          Party
	Customer       Party
	Lines          []DocumentLine
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
	Paid           decimal.Decimal
	Balance        decimal.Decimal
	Notes          string
}

// InvoiceHTML renders doc with the invoice template.
func InvoiceHTML(doc InvoiceDocument) (string, error) {
	if doc.Title == "" {
		doc.Title = "Tax Invoice"
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "invoice.html", doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}
