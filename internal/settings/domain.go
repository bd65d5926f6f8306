package settings

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Setting is one row of store_settings.
type Setting struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedBy string          `json:"updated_by,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Sequence is a named document counter such as "invoice" or "sale".
type Sequence struct {
	Name      string    `json:"name"`
	Prefix    string    `json:"prefix"`
	NextValue int64     `json:"next_value"`
	Padding   int       `json:"padding"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Format renders a sequence value as a document number, e.g. INV-000042.
func (s Sequence) Format(value int64) string {
	padding := s.Padding
	if padding <= 0 {
		padding = 6
	}
	return fmt.Sprintf("%s%0*d", s.Prefix, padding, value)
}

// Well known setting keys.
const (
	KeyStoreProfile   = "store.profile"
	KeyPaymentGateway = "payment.gateway"
	KeyLoyaltyRules   = "loyalty.rules"
	KeyTaxRates       = "tax.rates"
)

// Default sequence names.
const (
	SequenceSale          = "sale"
	SequenceInvoice       = "invoice"
	SequenceCreditNote    = "credit_note"
	SequencePurchaseOrder = "purchase_order"
	SequenceGRN           = "grn"
	SequenceReturn        = "return"
	SequenceCustomer      = "customer"
	SequenceExpense       = "expense"
	SequenceSalesOrder    = "sales_order"
	SequenceChallan       = "delivery_challan"
)

// DefaultPrefixes seeds sequences on first use.
var DefaultPrefixes = map[string]string{
	SequenceSale:          "SAL-",
	SequenceInvoice:       "INV-",
	SequenceCreditNote:    "CN-",
	SequencePurchaseOrder: "PO-",
	SequenceGRN:           "GRN-",
	SequenceReturn:        "RET-",
	SequenceCustomer:      "CUST-",
	SequenceExpense:       "EXP-",
	SequenceSalesOrder:    "SO-",
	SequenceChallan:       "DC-",
}

// StoreProfile is the value stored under KeyStoreProfile.
type StoreProfile struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
	GSTIN    string `json:"gstin"`
	Currency string `json:"currency"`
}

func validKey(key string) bool {
	if key == "" || len(key) > 64 {
		return false
	}
	for _, r := range key {
		if !(r == '.' || r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return !strings.HasPrefix(key, ".") && !strings.HasSuffix(key, ".")
}
