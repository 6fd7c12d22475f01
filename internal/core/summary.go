package core

import "github.com/shopspring/decimal"

// Summary aggregates a user's ledger over a date range.
type Summary struct {
	TotalIncome      decimal.Decimal
	TotalExpense     decimal.Decimal
	Balance          decimal.Decimal
	TransactionCount int64
}

// NewSummary builds a Summary from cent totals; Balance is always income minus expense.
func NewSummary(incomeCents, expenseCents, count int64) Summary {
	income := FromCents(incomeCents)
	expense := FromCents(expenseCents)
	return Summary{
		TotalIncome:      income,
		TotalExpense:     expense,
		Balance:          income.Sub(expense),
		TransactionCount: count,
	}
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Category string
	Amount   decimal.Decimal
}

// MonthTrend is one row of the monthly income/expense series.
type MonthTrend struct {
	Month   string // YYYY-MM
	Income  decimal.Decimal
	Expense decimal.Decimal
	Balance decimal.Decimal
}

// MonthTotals holds the cent sums of one month, keyed by transaction type.
type MonthTotals map[TransactionType]int64

// BuildTrend zero-fills totals onto the month spine and derives balances.
func BuildTrend(spine []string, totals map[string]MonthTotals) []MonthTrend {
	trend := make([]MonthTrend, 0, len(spine))
	for _, month := range spine {
		t := totals[month]
		income := FromCents(t[Income])
		expense := FromCents(t[Expense])
		trend = append(trend, MonthTrend{
			Month:   month,
			Income:  income,
			Expense: expense,
			Balance: income.Sub(expense),
		})
	}
	return trend
}
