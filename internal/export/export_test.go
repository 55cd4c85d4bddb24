package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/statement-engine/internal/domain"
)

func sampleTransactions() []domain.Transaction {
	category := "Business Income"
	subcategory := "Payments"
	ruleID := int64(7)
	return []domain.Transaction{
		{
			ID:          "tx-1",
			StatementID: "stmt-1",
			TxnDate:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Description: "STRIPE PAYMENT",
			Amount:      decimal.RequireFromString("-50.00"),
			Category:    &category,
			Subcategory: &subcategory,
			RuleID:      &ruleID,
		},
		{
			ID:          "tx-2",
			StatementID: "stmt-1",
			Description: "UNKNOWN VENDOR",
			Amount:      decimal.RequireFromString("-10.00"),
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleTransactions()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, columns, records[0])
	assert.Equal(t, []string{"tx-1", "stmt-1", "2024-03-01", "STRIPE PAYMENT", "-50", "Business Income", "Payments", "7"}, records[1])
	// Uncategorized fields and the unknown date come out empty.
	assert.Equal(t, []string{"tx-2", "stmt-1", "", "UNKNOWN VENDOR", "-10", "", "", ""}, records[2])
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1) // header only
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleTransactions()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Transactions")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, columns, rows[0])
	assert.Equal(t, "STRIPE PAYMENT", rows[1][3])
	assert.Equal(t, "Business Income", rows[1][5])
	assert.Equal(t, "UNKNOWN VENDOR", rows[2][3])
}
