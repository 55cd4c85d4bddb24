// Package export renders transactions as downloadable CSV or XLSX files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/statement-engine/internal/domain"
)

var columns = []string{"id", "statement_id", "txn_date", "description", "amount", "category", "subcategory", "rule_id"}

// WriteCSV writes the transactions as CSV with a header row.
func WriteCSV(w io.Writer, txns []domain.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range txns {
		if err := cw.Write(record(t)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the transactions as a single-sheet XLSX workbook.
func WriteXLSX(w io.Writer, txns []domain.Transaction) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Transactions"
	f.SetSheetName("Sheet1", sheet)

	for col, name := range columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("header cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("write header cell: %w", err)
		}
	}

	for row, t := range txns {
		for col, value := range record(t) {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return fmt.Errorf("cell name: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("write cell: %w", err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func record(t domain.Transaction) []string {
	date := ""
	if !t.TxnDate.IsZero() {
		date = t.TxnDate.Format("2006-01-02")
	}
	category, subcategory, ruleID := "", "", ""
	if t.Category != nil {
		category = *t.Category
	}
	if t.Subcategory != nil {
		subcategory = *t.Subcategory
	}
	if t.RuleID != nil {
		ruleID = fmt.Sprintf("%d", *t.RuleID)
	}
	return []string{t.ID, t.StatementID, date, t.Description, t.Amount.String(), category, subcategory, ruleID}
}
