package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"financeflow/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sample() []core.Transaction {
	return []core.Transaction{
		{
			ID: 2, Type: core.Expense, Amount: decimal.RequireFromString("12.5"),
			Category: "Food", Description: `pizza, "large"`, Date: core.NewDate(2025, 3, 2),
			CreatedAt: time.Date(2025, 3, 2, 19, 30, 0, 0, time.UTC),
		},
		{
			ID: 1, Type: core.Income, Amount: decimal.NewFromInt(1000),
			Category: "Salary", Date: core.NewDate(2025, 3, 1),
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Header, records[0])
	assert.Equal(t, []string{"2", "2025-03-02", "Expense", "Food", "12.50", `pizza, "large"`, "2025-03-02 19:30:00"}, records[1])
	assert.Equal(t, "", records[2][6])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "id,date,type,category,amount,description,created_at\n", buf.String())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sample()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, "Food", rows[1][3])
	amount, err := decimal.NewFromString(rows[1][4])
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.RequireFromString("12.5")), "amount cell = %q", rows[1][4])
	assert.Equal(t, "Salary", rows[2][3])
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("xlsx")
	require.NoError(t, err)
	assert.Equal(t, "transactions_20250301.xlsx", f.Filename(core.NewDate(2025, 3, 1)))

	_, err = ParseFormat("pdf")
	assert.Error(t, err)
}
