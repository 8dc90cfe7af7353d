package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const (
	supplierSheet = "By supplier"
	periodSheet   = "By period"
)

// WritePayablesWorkbook renders the payable rollups as an XLSX workbook.
func WritePayablesWorkbook(w io.Writer, rng Range, bySupplier []SupplierPayables, byPeriod []PeriodPayables) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), supplierSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(periodSheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	if err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return err
	}

	title := fmt.Sprintf("Payables due %s to %s", dateToken(rng.From), dateToken(rng.To))

	supplierRows := make([][]any, 0, len(bySupplier))
	for _, row := range bySupplier {
		supplierRows = append(supplierRows, []any{
			row.SupplierID, row.SupplierName, row.Count,
			row.TotalDue.InexactFloat64(), row.TotalPaid.InexactFloat64(), row.Balance.InexactFloat64(),
		})
	}
	if err := writeSheet(f, supplierSheet, title, bold, money,
		[]any{"Supplier ID", "Supplier", "Payables", "Total due", "Paid", "Balance"}, supplierRows, 4); err != nil {
		return err
	}

	periodRows := make([][]any, 0, len(byPeriod))
	for _, row := range byPeriod {
		periodRows = append(periodRows, []any{
			row.Period, row.Count,
			row.TotalDue.InexactFloat64(), row.TotalPaid.InexactFloat64(), row.Balance.InexactFloat64(),
		})
	}
	if err := writeSheet(f, periodSheet, title, bold, money,
		[]any{"Month", "Payables", "Total due", "Paid", "Balance"}, periodRows, 3); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

// writeSheet puts the title on row 1, the header on row 2 and data below it.
// Columns from moneyFrom (1-based) onwards get the money format.
func writeSheet(f *excelize.File, sheet, title string, headerStyle, moneyStyle int, header []any, rows [][]any, moneyFrom int) error {
	if err := f.SetCellValue(sheet, "A1", title); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A2", &header); err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A2", lastCol+"2", headerStyle); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+3)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	if len(rows) > 0 {
		first, _ := excelize.CoordinatesToCellName(moneyFrom, 3)
		last, _ := excelize.CoordinatesToCellName(len(header), len(rows)+2)
		if err := f.SetCellStyle(sheet, first, last, moneyStyle); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheet, "A", lastCol, 16)
}

// WritePurchasesCSV serialises purchases per supplier.
func WritePurchasesCSV(w io.Writer, rows []SupplierPurchases) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Supplier ID", "Supplier", "Orders", "Total"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			strconv.FormatInt(row.SupplierID, 10),
			row.SupplierName,
			strconv.Itoa(row.Orders),
			row.Total.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
