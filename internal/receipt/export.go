package receipt

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	receiptsSheet = "Receipts"
	itemsSheet    = "Items"
)

var (
	receiptHeaders = []any{"ID", "Date", "Time", "Merchant", "Category", "Items", "Total", "Source", "Created"}
	itemHeaders    = []any{"Receipt ID", "Date", "Merchant", "Item", "Price", "Discount", "Total"}
)

// ExportXLSX returns an XLSX workbook (as bytes) with one sheet of receipts
// and one sheet of line items, oldest receipt first.
func (s *Service) ExportXLSX() ([]byte, error) {
	start := time.Now()

	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	sort.SliceStable(receipts, func(i, j int) bool {
		if !receipts[i].CreatedAt.Equal(receipts[j].CreatedAt) {
			return receipts[i].CreatedAt.Before(receipts[j].CreatedAt)
		}
		return receipts[i].ID < receipts[j].ID
	})

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", receiptsSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, fmt.Errorf("creating sheet: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return nil, fmt.Errorf("creating style: %w", err)
	}

	if err := f.SetSheetRow(receiptsSheet, "A1", &receiptHeaders); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	if err := f.SetSheetRow(itemsSheet, "A1", &itemHeaders); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	itemRow := 2
	for i, r := range receipts {
		row := []any{
			r.ID, r.Date, r.Time, r.Merchant, r.Category, len(r.Items),
			r.Total.InexactFloat64(), r.Source, r.CreatedAt.Format(time.RFC3339),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(receiptsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("writing receipt %s: %w", r.ID, err)
		}

		for _, item := range r.Items {
			var discount any
			if item.Discount != nil {
				discount = item.Discount.InexactFloat64()
			}
			row := []any{
				r.ID, r.Date, r.Merchant, item.Name,
				item.Price.InexactFloat64(), discount, item.Total().InexactFloat64(),
			}
			cell, _ := excelize.CoordinatesToCellName(1, itemRow)
			if err := f.SetSheetRow(itemsSheet, cell, &row); err != nil {
				return nil, fmt.Errorf("writing items of %s: %w", r.ID, err)
			}
			itemRow++
		}
	}

	if len(receipts) > 0 {
		_ = f.SetCellStyle(receiptsSheet, "G2", fmt.Sprintf("G%d", len(receipts)+1), money)
	}
	if itemRow > 2 {
		_ = f.SetCellStyle(itemsSheet, "E2", fmt.Sprintf("G%d", itemRow-1), money)
	}
	_ = f.SetColWidth(receiptsSheet, "A", "A", 28)
	_ = f.SetColWidth(receiptsSheet, "D", "E", 18)
	_ = f.SetColWidth(receiptsSheet, "I", "I", 22)
	_ = f.SetColWidth(itemsSheet, "A", "A", 28)
	_ = f.SetColWidth(itemsSheet, "D", "D", 32)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	slog.Info("Exported receipts",
		"receipts", len(receipts),
		"items", itemRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
