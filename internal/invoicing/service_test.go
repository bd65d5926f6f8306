package invoicing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-erp/aurum/internal/sales"
	"github.com/aurum-erp/aurum/internal/settings"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeRenderer struct {
	html string
	err  error
}

func (f *fakeRenderer) RenderHTML(_ context.Context, html string) ([]byte, error) {
	f.html = html
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF"), nil
}

type staticSettings map[string]any

func (s staticSettings) Decode(_ context.Context, key string, dst any) (bool, error) {
	v, ok := s[key]
	if !ok {
		return false, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, dst)
}

func newTestService() (*Service, *memRepo, *fakeRenderer) {
	repo := newMemRepo()
	renderer := &fakeRenderer{}
	profile := staticSettings{settings.KeyStoreProfile: settings.StoreProfile{Name: "Aurum Jewellers", Currency: "INR"}}
	return NewService(repo, renderer, profile, nil), repo, renderer
}

func ringRequest() InvoiceRequest {
	return InvoiceRequest{
		BillingName: "Meera",
		Lines: []LineRequest{
			{Description: "Ring 18K", Quantity: dec("2"), UnitPrice: dec("1000"), DiscountPercent: dec("10"), TaxPercent: dec("3")},
			{Description: "Polishing", Quantity: dec("1"), UnitPrice: dec("200")},
		},
	}
}

func TestCreateComputesTotalsAndNumbers(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	inv, err := svc.Create(ctx, "u1", ringRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, inv.Status)
	assert.Equal(t, "INV-000001", inv.Number)
	assert.True(t, inv.Subtotal.Equal(dec("2200")))
	assert.True(t, inv.Discount.Equal(dec("200")))
	assert.True(t, inv.Tax.Equal(dec("54")))
	assert.True(t, inv.Total.Equal(dec("2054")))
	require.Len(t, inv.Items, 2)
	assert.True(t, inv.Items[0].LineTotal.Equal(dec("1854")))
	assert.Equal(t, "invoice.created", repo.st.activity[0].Action)

	req := ringRequest()
	wrong := dec("9999")
	req.Totals = &sales.ClaimedTotals{GrandTotal: &wrong}
	_, err = svc.Create(ctx, "u1", req)
	require.ErrorIs(t, err, sales.ErrTotalsMismatch)
	assert.Len(t, repo.st.invoices, 1)

	_, err = svc.Create(ctx, "u1", InvoiceRequest{BillingName: "x"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestDraftLifecycle(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	inv, err := svc.Create(ctx, "u1", ringRequest())
	require.NoError(t, err)

	req := ringRequest()
	req.Lines = req.Lines[:1]
	updated, err := svc.Update(ctx, "u1", inv.ID, req)
	require.NoError(t, err)
	assert.True(t, updated.Total.Equal(dec("1854")))
	assert.Len(t, repo.st.invoices[inv.ID].Items, 1)

	issued, err := svc.Issue(ctx, "u1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, issued.Status)
	assert.False(t, issued.IssueDate.IsZero())

	_, err = svc.Update(ctx, "u1", inv.ID, req)
	require.ErrorIs(t, err, ErrNotDraft)
	require.ErrorIs(t, svc.Delete(ctx, "u1", inv.ID), ErrNotDraft)
	_, err = svc.Issue(ctx, "u1", inv.ID)
	require.ErrorIs(t, err, ErrNotDraft)

	voided, err := svc.Void(ctx, "u1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVoid, voided.Status)

	draft, err := svc.Create(ctx, "u1", ringRequest())
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "u1", draft.ID))
	_, err = svc.Get(ctx, draft.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecordPayment(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	inv, err := svc.Create(ctx, "u1", ringRequest())
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, "u1", inv.ID, PaymentRequest{Amount: dec("100"), Method: "cash"})
	require.ErrorIs(t, err, ErrInvalidStatus, "drafts cannot take payments")

	_, err = svc.Issue(ctx, "u1", inv.ID)
	require.NoError(t, err)

	p, err := svc.RecordPayment(ctx, "u1", inv.ID, PaymentRequest{Amount: dec("1000"), Method: "upi", Reference: "UPI123"})
	require.NoError(t, err)
	assert.False(t, p.PaidAt.IsZero())
	assert.Equal(t, StatusPartiallyPaid, repo.st.invoices[inv.ID].Status)

	_, err = svc.RecordPayment(ctx, "u1", inv.ID, PaymentRequest{Amount: dec("1054.01"), Method: "cash"})
	require.ErrorIs(t, err, ErrOverpayment)
	assert.Len(t, repo.st.payments, 1)

	_, err = svc.RecordPayment(ctx, "u1", inv.ID, PaymentRequest{Amount: dec("1054"), Method: "cash"})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, repo.st.invoices[inv.ID].Status)
	assert.True(t, repo.st.invoices[inv.ID].Balance().IsZero())

	_, err = svc.Void(ctx, "u1", inv.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.RecordPayment(ctx, "u1", inv.ID, PaymentRequest{Amount: dec("-1"), Method: "cash"})
	require.ErrorIs(t, err, ErrInvalidInput)

	payments, err := svc.Payments(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestCreateCreditNote(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	inv, err := svc.Create(ctx, "u1", ringRequest())
	require.NoError(t, err)
	ring := inv.Items[0].ID

	_, err = svc.CreateCreditNote(ctx, "u1", inv.ID, CreditNoteRequest{Reason: "x", Lines: []CreditLine{{InvoiceItemID: ring, Quantity: dec("1")}}})
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.Issue(ctx, "u1", inv.ID)
	require.NoError(t, err)

	note, err := svc.CreateCreditNote(ctx, "u1", inv.ID, CreditNoteRequest{
		Reason: "size exchange",
		Lines:  []CreditLine{{InvoiceItemID: ring, Quantity: dec("1")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "CN-000001", note.Number)
	assert.True(t, note.Total.Equal(dec("927")))
	require.Len(t, note.Items, 1)
	assert.Equal(t, StatusPartiallyPaid, repo.st.invoices[inv.ID].Status)
	assert.True(t, repo.st.invoices[inv.ID].Balance().Equal(dec("1127")))

	_, err = svc.CreateCreditNote(ctx, "u1", inv.ID, CreditNoteRequest{
		Reason: "again",
		Lines:  []CreditLine{{InvoiceItemID: ring, Quantity: dec("2")}},
	})
	require.ErrorIs(t, err, ErrCreditExceeds)
	assert.True(t, repo.st.invoices[inv.ID].Items[0].CreditedQty.Equal(dec("1")), "failed credit rolls back")

	_, err = svc.CreateCreditNote(ctx, "u1", inv.ID, CreditNoteRequest{
		Reason: "unknown",
		Lines:  []CreditLine{{InvoiceItemID: "nope", Quantity: dec("1")}},
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	notes, err := svc.CreditNotes(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestPDF(t *testing.T) {
	svc, _, renderer := newTestService()
	ctx := context.Background()
	inv, err := svc.Create(ctx, "u1", ringRequest())
	require.NoError(t, err)

	name, body, err := svc.PDF(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-000001.pdf", name)
	assert.Equal(t, "%PDF", string(body))
	assert.Contains(t, renderer.html, "Proforma Invoice")
	assert.Contains(t, renderer.html, "Aurum Jewellers")
	assert.True(t, strings.Contains(renderer.html, "2,054.00"))

	renderer.err = errors.New("connection refused")
	_, _, err = svc.PDF(ctx, inv.ID)
	require.ErrorIs(t, err, ErrRendererUnavailable)

	_, _, err = NewService(newMemRepo(), nil, nil, nil).PDF(ctx, inv.ID)
	require.ErrorIs(t, err, ErrRendererUnavailable)
}
