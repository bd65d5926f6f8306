package report

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.English)

// Amount renders a money amount with thousands separators and two decimals,
// e.g. 1,234.50.
func Amount(d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return printer.Sprint(number.Decimal(f, number.Scale(2)))
}

// Money prefixes Amount with a currency symbol.
func Money(symbol string, d decimal.Decimal) string {
	if d.IsNegative() {
		return "-" + symbol + Amount(d.Neg())
	}
	return symbol + Amount(d)
}

// CurrencySymbol returns the display symbol of an ISO 4217 code. Unknown
// or empty codes fall back to the code itself.
func CurrencySymbol(code string) string {
	if code == "" {
		return ""
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return code + " "
	}
	return printer.Sprint(currency.Symbol(unit))
}
