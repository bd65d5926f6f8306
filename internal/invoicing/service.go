package invoicing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/sales"
	"github.com/aurum-erp/aurum/internal/settings"
	"github.com/aurum-erp/aurum/internal/shared"
	"github.com/aurum-erp/aurum/report"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error
	GetInvoice(ctx context.Context, id string) (Invoice, error)
	ListInvoices(ctx context.Context, f ListFilters) ([]Invoice, int, error)
	ListPayments(ctx context.Context, invoiceID string) ([]Payment, error)
	ListCreditNotes(ctx context.Context, invoiceID string) ([]CreditNote, error)
	GetCreditNote(ctx context.Context, id string) (CreditNote, error)
}

// Renderer turns HTML into a PDF.
type Renderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// SettingsReader decodes store settings.
type SettingsReader interface {
	Decode(ctx context.Context, key string, dst any) (bool, error)
}

// Service manages invoices, payments and credit notes.
type Service struct {
	repo     RepositoryPort
	renderer Renderer
	settings SettingsReader
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs Service. renderer and settings may be nil, in
// which case PDF returns ErrRendererUnavailable.
func NewService(repo RepositoryPort, renderer Renderer, settings SettingsReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, renderer: renderer, settings: settings, validate: validator.New(), logger: logger, now: time.Now}
}

func (s *Service) price(req InvoiceRequest) (sales.Totals, error) {
	if err := s.validate.Struct(req); err != nil {
		return sales.Totals{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	inputs := make([]sales.LineInput, len(req.Lines))
	for i, l := range req.Lines {
		inputs[i] = sales.LineInput{Quantity: l.Quantity, UnitPrice: l.UnitPrice, DiscountPercent: l.DiscountPercent, TaxPercent: l.TaxPercent}
	}
	totals, err := sales.CalculateTotals(inputs)
	if err != nil {
		return sales.Totals{}, err
	}
	if err := totals.Verify(req.Totals); err != nil {
		return sales.Totals{}, err
	}
	return totals, nil
}

func applyRequest(inv *Invoice, req InvoiceRequest, totals sales.Totals) {
	inv.CustomerID = req.CustomerID
	inv.SaleID = req.SaleID
	inv.BillingName = req.BillingName
	inv.BillingAddr = req.BillingAddr
	inv.BillingPhone = req.BillingPhone
	inv.BillingTaxID = req.BillingTaxID
	inv.DueDate = req.DueDate
	inv.Notes = req.Notes
	inv.Subtotal = totals.Subtotal
	inv.Discount = totals.Discount
	inv.Tax = totals.Tax
	inv.Total = totals.GrandTotal
}

func insertItems(ctx context.Context, tx TxRepository, invoiceID string, lines []LineRequest, totals sales.Totals) ([]Item, error) {
	items := make([]Item, 0, len(lines))
	for i, l := range lines {
		lt := totals.Lines[i]
		it, err := tx.InsertItem(ctx, Item{
			InvoiceID:       invoiceID,
			LineNo:          i + 1,
			ProductID:       l.ProductID,
			Description:     l.Description,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			DiscountPercent: l.DiscountPercent,
			TaxPercent:      l.TaxPercent,
			DiscountAmount:  lt.Discount,
			TaxAmount:       lt.Tax,
			LineTotal:       lt.Total,
		})
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// Create saves a draft invoice with server computed totals.
func (s *Service) Create(ctx context.Context, actorID string, req InvoiceRequest) (Invoice, error) {
	totals, err := s.price(req)
	if err != nil {
		return Invoice{}, err
	}
	var inv Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		number, err := sc.Numbers.Next(ctx, settings.SequenceInvoice)
		if err != nil {
			return err
		}
		draft := Invoice{Number: number, Status: StatusDraft, CreatedBy: actorID}
		applyRequest(&draft, req, totals)
		if inv, err = sc.Invoices.InsertInvoice(ctx, draft); err != nil {
			return err
		}
		if inv.Items, err = insertItems(ctx, sc.Invoices, inv.ID, req.Lines, totals); err != nil {
			return err
		}
		return sc.Activity.Record(ctx, shared.ActivityEntry{
			ActorID: actorID, Action: "invoice.created", Entity: "invoice", EntityID: inv.ID,
			Meta: map[string]any{"number": inv.Number, "total": inv.Total.String()},
		})
	})
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// Update replaces the content of a draft.
func (s *Service) Update(ctx context.Context, actorID, id string, req InvoiceRequest) (Invoice, error) {
	totals, err := s.price(req)
	if err != nil {
		return Invoice{}, err
	}
	var inv Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		current, err := sc.Invoices.LockInvoice(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return ErrNotDraft
		}
		inv = current
		applyRequest(&inv, req, totals)
		if err := sc.Invoices.UpdateDraft(ctx, inv); err != nil {
			return err
		}
		if err := sc.Invoices.DeleteItems(ctx, id); err != nil {
			return err
		}
		if inv.Items, err = insertItems(ctx, sc.Invoices, id, req.Lines, totals); err != nil {
			return err
		}
		return sc.Activity.Record(ctx, shared.ActivityEntry{
			ActorID: actorID, Action: "invoice.updated", Entity: "invoice", EntityID: id,
		})
	})
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// Issue finalises a draft.
func (s *Service) Issue(ctx context.Context, actorID, id string) (Invoice, error) {
	return s.transition(ctx, actorID, id, "invoice.issued", func(ctx context.Context, tx TxRepository, inv Invoice) error {
		if inv.Status != StatusDraft {
			return ErrNotDraft
		}
		return tx.MarkIssued(ctx, id, s.now().UTC())
	})
}

// Void cancels an invoice that has not been paid.
func (s *Service) Void(ctx context.Context, actorID, id string) (Invoice, error) {
	return s.transition(ctx, actorID, id, "invoice.voided", func(ctx context.Context, tx TxRepository, inv Invoice) error {
		if inv.Status == StatusVoid || inv.Status == StatusPaid {
			return ErrInvalidStatus
		}
		if inv.PaidTotal.IsPositive() {
			return ErrHasPayments
		}
		return tx.SetStatus(ctx, id, StatusVoid)
	})
}

func (s *Service) transition(ctx context.Context, actorID, id, action string, fn func(context.Context, TxRepository, Invoice) error) (Invoice, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		inv, err := sc.Invoices.LockInvoice(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, sc.Invoices, inv); err != nil {
			return err
		}
		return sc.Activity.Record(ctx, shared.ActivityEntry{
			ActorID: actorID, Action: action, Entity: "invoice", EntityID: id, Meta: map[string]any{"number": inv.Number},
		})
	})
	if err != nil {
		return Invoice{}, err
	}
	return s.repo.GetInvoice(ctx, id)
}

// Delete removes a draft.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		inv, err := sc.Invoices.LockInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return ErrNotDraft
		}
		if err := sc.Invoices.DeleteDraft(ctx, id); err != nil {
			return err
		}
		return sc.Activity.Record(ctx, shared.ActivityEntry{
			ActorID: actorID, Action: "invoice.deleted", Entity: "invoice", EntityID: id, Meta: map[string]any{"number": inv.Number},
		})
	})
}

func settledStatus(inv Invoice) Status {
	switch {
	case !inv.Balance().IsPositive():
		return StatusPaid
	case inv.PaidTotal.IsPositive() || inv.CreditedTotal.IsPositive():
		return StatusPartiallyPaid
	default:
		return StatusIssued
	}
}

// RecordPayment books a payment. The paid total and the status move in the
// same statement set as the payment row.
func (s *Service) RecordPayment(ctx context.Context, actorID, id string, req PaymentRequest) (Payment, error) {
	if err := s.validate.Struct(req); err != nil {
		return Payment{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !req.Amount.IsPositive() {
		return Payment{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if req.PaidAt.IsZero() {
		req.PaidAt = s.now().UTC()
	}
	var payment Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		current, err := sc.Invoices.LockInvoice(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusIssued && current.Status != StatusPartiallyPaid {
			return ErrInvalidStatus
		}
		inv, err := sc.Invoices.AddPaid(ctx, id, req.Amount.Round(2))
		if err != nil {
			return err
		}
		if err := sc.Invoices.SetStatus(ctx, id, settledStatus(inv)); err != nil {
			return err
		}
		if payment, err = sc.Invoices.InsertPayment(ctx, Payment{
			InvoiceID: id, Amount: req.Amount.Round(2), Method: req.Method, Reference: req.Reference,
			PaidAt: req.PaidAt, CreatedBy: actorID,
		}); err != nil {
			return err
		}
		return sc.Activity.Record(ctx, shared.ActivityEntry{
			ActorID: actorID, Action: "invoice.payment_recorded", Entity: "invoice", EntityID: id,
			Meta: map[string]any{"amount": payment.Amount.String(), "method": payment.Method},
		})
	})
	if err != nil {
		return Payment{}, err
	}
	return payment, nil
}

// CreateCreditNote credits quantities of issued lines. Amounts are the
// proportional share of each line total, rounded down.
func (s *Service) CreateCreditNote(ctx context.Context, actorID, id string, req CreditNoteRequest) (CreditNote, error) {
	if err := s.validate.Struct(req); err != nil {
		return CreditNote{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var note CreditNote
	err := s.repo.WithTx(ctx, func(ctx context.Context, sc TxScope) error {
		inv, err := sc.Invoices.LockInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status == StatusDraft || inv.Status == StatusVoid {
			return ErrInvalidStatus
		}
		byID := make(map[string]Item, len(inv.Items))
		for _, it := range inv.Items {
			byID[it.ID] = it
		}
		items := make([]CreditNoteItem, 0, len(req.Lines))
		total := decimal.Zero
		for _, l := range req.Lines {
			if !l.Quantity.IsPositive() {
				return fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
			}
			it, ok := byID[l.InvoiceItemID]
			if !ok {
				return fmt.Errorf("%w: item %s is not on this invoice", ErrInvalidInput, l.InvoiceItemID)
			}
			if err := sc.Invoices.AddItemCredited(ctx, it.ID, l.Quantity); err != nil {
				return err
			}
			amount := it.LineTotal.Mul(l.Quantity).Div(it.Quantity).RoundDown(2)
			total = total.Add(amount)
			items = append(items, CreditNoteItem{InvoiceItemID: it.ID, Quantity: l.Quantity, Amount: amount})
		}
		updated, err := sc.Invoices.AddCredited(ctx, id, total)
		if err != nil {
			return err
		}
		if err := sc.Invoices.SetStatus(ctx, id, settledStatus(updated)); err != nil {
			return err
		}
		number, err := sc.Numbers.Next(ctx, settings.SequenceCreditNote)
		if err != nil {
			return err
		}
		if note, err = sc.Invoices.InsertCreditNote(ctx, CreditNote{
			Number: number, InvoiceID: id, Reason: req.Reason, Total: total, CreatedBy: actorID,
		}); err != nil {
			return err
		}
		for _, it := range items {
			it.CreditNoteID = note.ID
			saved, err := sc.Invoices.InsertCreditNoteItem(ctx, it)
			if err != nil {
				return err
			}
			note.Items = append(note.Items, saved)
		}
		return sc.Activity.Record(ctx, shared.ActivityEntry{
			ActorID: actorID, Action: "invoice.credit_note_created", Entity: "invoice", EntityID: id,
			Meta: map[string]any{"credit_note": note.Number, "total": total.String()},
		})
	})
	if err != nil {
		return CreditNote{}, err
	}
	return note, nil
}

// Get returns an invoice with its items.
func (s *Service) Get(ctx context.Context, id string) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// List returns a page of invoices.
func (s *Service) List(ctx context.Context, f ListFilters) ([]Invoice, int, error) {
	return s.repo.ListInvoices(ctx, f)
}

// Payments lists payments of an invoice.
func (s *Service) Payments(ctx context.Context, id string) ([]Payment, error) {
	if _, err := s.repo.GetInvoice(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, id)
}

// CreditNotes lists credit notes of an invoice.
func (s *Service) CreditNotes(ctx context.Context, id string) ([]CreditNote, error) {
	if _, err := s.repo.GetInvoice(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListCreditNotes(ctx, id)
}

// GetCreditNote returns one credit note.
func (s *Service) GetCreditNote(ctx context.Context, id string) (CreditNote, error) {
	return s.repo.GetCreditNote(ctx, id)
}

// Document builds the printable form of an invoice.
func (s *Service) Document(ctx context.Context, id string) (report.InvoiceDocument, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return report.InvoiceDocument{}, err
	}
	var profile settings.StoreProfile
	if s.settings != nil {
		if _, err := s.settings.Decode(ctx, settings.KeyStoreProfile, &profile); err != nil {
			s.logger.Warn("load store profile", slog.Any("error", err))
		}
	}
	doc := report.InvoiceDocument{
		Number:         inv.Number,
		Status:         string(inv.Status),
		IssueDate:      inv.IssueDate,
		DueDate:        inv.DueDate,
		CurrencySymbol: report.CurrencySymbol(profile.Currency),
		Store:          report.Party{Name: profile.Name, Address: profile.Address, Phone: profile.Phone, TaxID: profile.GSTIN},
		Customer:       report.Party{Name: inv.BillingName, Address: inv.BillingAddr, Phone: inv.BillingPhone, TaxID: inv.BillingTaxID},
		Subtotal:       inv.Subtotal,
		Discount:       inv.Discount,
		Tax:            inv.Tax,
		Total:          inv.Total,
		Paid:           inv.PaidTotal.Add(inv.CreditedTotal),
		Balance:        inv.Balance(),
		Notes:          inv.Notes,
	}
	if inv.Status == StatusDraft {
		doc.Title = "Proforma Invoice"
	}
	for _, it := range inv.Items {
		doc.Lines = append(doc.Lines, report.DocumentLine{
			Description: it.Description, Quantity: it.Quantity, UnitPrice: it.UnitPrice,
			Discount: it.DiscountAmount, Tax: it.TaxAmount, Total: it.LineTotal,
		})
	}
	return doc, nil
}

// PDF renders an invoice through the document renderer.
func (s *Service) PDF(ctx context.Context, id string) (string, []byte, error) {
	if s.renderer == nil {
		return "", nil, ErrRendererUnavailable
	}
	doc, err := s.Document(ctx, id)
	if err != nil {
		return "", nil, err
	}
	html, err := report.InvoiceHTML(doc)
	if err != nil {
		return "", nil, fmt.Errorf("invoicing: render html: %w", err)
	}
	pdf, err := s.renderer.RenderHTML(ctx, html)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrRendererUnavailable, err)
	}
	return doc.Number + ".pdf", pdf, nil
}
