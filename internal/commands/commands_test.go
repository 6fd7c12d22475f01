package commands_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"financeflow/internal/commands"
	"financeflow/internal/core"
)

var fixedNow = time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

func runLedgerctl(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	cmd := commands.NewRootCommand(commands.WithClock(func() time.Time { return fixedNow }))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db", db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestInit_SeedsCategories(t *testing.T) {
	db := filepath.Join(t.TempDir(), "nested", "finance.db")

	out, err := runLedgerctl(t, db, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "(14 categories)")
	assert.FileExists(t, db)
}

func TestInit_SecondUser(t *testing.T) {
	db := filepath.Join(t.TempDir(), "finance.db")

	out, err := runLedgerctl(t, db, "--user", "2", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "(14 categories)")

	_, err = runLedgerctl(t, db, "--user", "2", "add", "--type", "Expense", "--amount", "3", "--category", "Food")
	require.NoError(t, err)

	out, err = runLedgerctl(t, db, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No transactions found.")
}

func TestAddListSummaryDelete(t *testing.T) {
	db := filepath.Join(t.TempDir(), "finance.db")

	out, err := runLedgerctl(t, db, "add", "--type", "income", "--amount", "2500", "--category", "Salary", "--date", "2025-03-01")
	require.NoError(t, err)
	assert.Contains(t, out, "Added #1: Income 2500.00 Salary on 2025-03-01")

	out, err = runLedgerctl(t, db, "add", "--type", "Expense", "--amount", "12,345", "--category", "Food", "--description", "groceries")
	require.NoError(t, err)
	assert.Contains(t, out, "Expense 12.35 Food on 2025-03-15")

	out, err = runLedgerctl(t, db, "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "groceries")
	assert.Contains(t, lines[2], "Salary")

	out, err = runLedgerctl(t, db, "summary", "--start", "2025-03-01", "--end", "2025-03-31")
	require.NoError(t, err)
	assert.Contains(t, out, "Income:       2500.00")
	assert.Contains(t, out, "Expenses:     12.35")
	assert.Contains(t, out, "Balance:      2487.65")
	assert.Contains(t, out, "Transactions: 2")

	out, err = runLedgerctl(t, db, "delete", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted #2")

	_, err = runLedgerctl(t, db, "delete", "2")
	assert.EqualError(t, err, "transaction 2 not found")
}

func TestAdd_Validation(t *testing.T) {
	db := filepath.Join(t.TempDir(), "finance.db")

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"negative amount", []string{"--type", "Expense", "--amount", "-3", "--category", "Food"}, core.ErrInvalidAmount},
		{"bad type", []string{"--type", "Gift", "--amount", "3", "--category", "Food"}, core.ErrInvalidType},
		{"future date", []string{"--type", "Expense", "--amount", "3", "--category", "Food", "--date", "2025-04-01"}, core.ErrFutureDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runLedgerctl(t, db, append([]string{"add"}, tt.args...)...)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := runLedgerctl(t, db, "add", "--amount", "3")
	assert.Error(t, err, "missing required flags")
}

func TestCategories(t *testing.T) {
	db := filepath.Join(t.TempDir(), "finance.db")

	out, err := runLedgerctl(t, db, "categories", "--type", "income")
	require.NoError(t, err)
	assert.Contains(t, out, "Salary")
	assert.NotContains(t, out, "Food")

	out, err = runLedgerctl(t, db, "categories", "add", "Pets", "--type", "Expense")
	require.NoError(t, err)
	assert.Contains(t, out, "Added category Pets")

	out, err = runLedgerctl(t, db, "categories", "add", "Pets", "--type", "Expense")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = runLedgerctl(t, db, "categories", "--type", "expense")
	require.NoError(t, err)
	assert.Contains(t, out, "Pets")
}

func TestBreakdownAndTrend(t *testing.T) {
	db := filepath.Join(t.TempDir(), "finance.db")
	for _, args := range [][]string{
		{"--type", "Expense", "--amount", "40", "--category", "Food", "--date", "2025-03-02"},
		{"--type", "Expense", "--amount", "900", "--category", "Rent", "--date", "2025-03-01"},
		{"--type", "Income", "--amount", "1000", "--category", "Salary", "--date", "2025-02-01"},
	} {
		_, err := runLedgerctl(t, db, append([]string{"add"}, args...)...)
		require.NoError(t, err)
	}

	out, err := runLedgerctl(t, db, "breakdown")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "Rent")
	assert.Contains(t, lines[2], "Food")

	out, err = runLedgerctl(t, db, "trend", "--months", "2")
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "2025-01")
	assert.Contains(t, lines[2], "1000.00")
	assert.Contains(t, lines[3], "-940.00")

	_, err = runLedgerctl(t, db, "trend", "--months", "0")
	assert.ErrorIs(t, err, core.ErrInvalidMonths)
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "finance.db")
	_, err := runLedgerctl(t, db, "add", "--type", "Expense", "--amount", "7.5", "--category", "Transport")
	require.NoError(t, err)

	out, err := runLedgerctl(t, db, "export")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "id,date,type,category,amount,description,created_at"))
	assert.Contains(t, out, "Transport,7.50")

	xlsx := filepath.Join(dir, "ledger.xlsx")
	_, err = runLedgerctl(t, db, "export", "--format", "xlsx", "-o", xlsx)
	require.NoError(t, err)
	data, err := os.ReadFile(xlsx)
	require.NoError(t, err)
	assert.Equal(t, "PK", string(data[:2]))

	_, err = runLedgerctl(t, db, "export", "--format", "pdf")
	assert.Error(t, err)
}
