package catalog

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ImportHeader is the column order of product templates and exports.
var ImportHeader = []string{
	"SKU", "Name", "Description", "Category ID", "Metal", "Purity",
	"Gross Weight", "Net Weight", "Making Charge", "Price", "Tax Rate",
	"Barcode", "HSN Code", "Reorder Level",
}

const productSheet = "Products"

// Importer loads products from CSV or XLSX files. Every row is validated;
// valid rows are upserted by SKU and every rejected row is reported.
type Importer struct {
	service *Service
	repo    RepositoryPort
	logger  *slog.Logger
}

// NewImporter constructs an Importer.
func NewImporter(service *Service, repo RepositoryPort, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{service: service, repo: repo, logger: logger}
}

// Import reads filename's content from r. The extension selects the format.
func (im *Importer) Import(ctx context.Context, actorID, filename string, r io.Reader) (ImportResult, error) {
	rows, err := ReadRows(filename, r)
	if err != nil {
		return ImportResult{}, err
	}
	return im.ImportRows(ctx, actorID, rows)
}

// ReadRows decodes a CSV or XLSX upload into string rows including the header.
func ReadRows(filename string, r io.Reader) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		rows, err := reader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("%w: csv: %v", ErrInvalidInput, err)
		}
		return rows, nil
	case ".xlsx":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: xlsx: %v", ErrInvalidInput, err)
		}
		defer f.Close()
		sheet := productSheet
		if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
			sheet = f.GetSheetName(f.GetActiveSheetIndex())
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("%w: xlsx: %v", ErrInvalidInput, err)
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrInvalidInput, filepath.Ext(filename))
	}
}

// ImportRows validates and upserts parsed rows. rows[0] must be the header.
func (im *Importer) ImportRows(ctx context.Context, actorID string, rows [][]string) (ImportResult, error) {
	result := ImportResult{Errors: []RowError{}}
	if len(rows) == 0 {
		return result, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}
	index, err := headerIndex(rows[0])
	if err != nil {
		return result, err
	}

	seen := map[string]int{}
	for i, row := range rows[1:] {
		line := i + 2
		if blank(row) {
			continue
		}
		in, err := parseRow(row, index)
		if err == nil {
			in = normalizeProduct(in)
			err = im.service.validateProduct(in)
		}
		if err == nil {
			if first, dup := seen[in.SKU]; dup {
				err = fmt.Errorf("duplicate SKU %s (first seen on row %d)", in.SKU, first)
			}
		}
		if err != nil {
			result.Errors = append(result.Errors, RowError{Row: line, Message: cleanMessage(err)})
			continue
		}
		seen[in.SKU] = line

		_, created, err := im.repo.UpsertProductBySKU(ctx, in)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Errors = append(result.Errors, RowError{Row: line, Message: cleanMessage(err)})
			continue
		}
		if created {
			result.Imported++
		} else {
			result.Updated++
		}
	}
	im.service.record(ctx, actorID, "product.imported", "bulk", map[string]any{
		"imported": result.Imported, "updated": result.Updated, "rejected": len(result.Errors),
	})
	im.logger.Info("catalog: import finished",
		slog.Int("imported", result.Imported),
		slog.Int("updated", result.Updated),
		slog.Int("rejected", len(result.Errors)))
	return result, nil
}

// ExportXLSX writes products in the import layout so an export can be edited
// and re-imported.
func ExportXLSX(products []Product) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", productSheet); err != nil {
		return nil, err
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	write := func(rowNum int, values []any) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		return f.SetSheetRow(productSheet, cell, &values)
	}
	header := make([]any, len(ImportHeader))
	for i, h := range ImportHeader {
		header[i] = h
	}
	if err := write(1, header); err != nil {
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(ImportHeader), 1)
	if err := f.SetCellStyle(productSheet, "A1", last, style); err != nil {
		return nil, err
	}
	for i, p := range products {
		if err := write(i+2, []any{
			p.SKU, p.Name, p.Description, p.CategoryID, p.Metal, p.Purity,
			p.GrossWeight.String(), p.NetWeight.String(), p.MakingCharge.String(), p.Price.String(), p.TaxRate.String(),
			p.Barcode, p.HSNCode, p.ReorderLevel,
		}); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[normalizeHeader(h)] = i
	}
	var missing []string
	for _, required := range []string{"sku", "name", "price"} {
		if _, ok := index[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return index, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.ReplaceAll(h, " ", "_")
}

func parseRow(row []string, index map[string]int) (ProductInput, error) {
	get := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	var errs []error
	dec := func(col string) decimal.Decimal {
		raw := strings.ReplaceAll(get(col), ",", "")
		if raw == "" {
			return decimal.Zero
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %q is not a number", col, get(col)))
		}
		return d
	}
	in := ProductInput{
		SKU:          get("sku"),
		Name:         get("name"),
		Description:  get("description"),
		CategoryID:   get("category_id"),
		Metal:        get("metal"),
		Purity:       get("purity"),
		GrossWeight:  dec("gross_weight"),
		NetWeight:    dec("net_weight"),
		MakingCharge: dec("making_charge"),
		Price:        dec("price"),
		TaxRate:      dec("tax_rate"),
		Barcode:      get("barcode"),
		HSNCode:      get("hsn_code"),
	}
	if raw := get("reorder_level"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("reorder_level %q is not an integer", raw))
		}
		in.ReorderLevel = n
	}
	return in, errors.Join(errs...)
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func cleanMessage(err error) string {
	msg := err.Error()
	msg = strings.TrimPrefix(msg, ErrInvalidInput.Error()+": ")
	return strings.ReplaceAll(msg, "\n", "; ")
}
