package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"financeflow/internal/charts"
	"financeflow/internal/core"
)

type transactionJSON struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
}

func newTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:          t.ID,
		Type:        t.Type.String(),
		Amount:      t.Amount,
		Category:    t.Category,
		Date:        t.Date.String(),
		Description: t.Description,
	}
}

type summaryJSON struct {
	Start            string          `json:"start,omitempty"`
	End              string          `json:"end,omitempty"`
	TotalIncome      decimal.Decimal `json:"total_income"`
	TotalExpense     decimal.Decimal `json:"total_expense"`
	Balance          decimal.Decimal `json:"balance"`
	TransactionCount int64           `json:"transaction_count"`
}

type monthJSON struct {
	Month   string          `json:"month"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Balance decimal.Decimal `json:"balance"`
}

type categoryJSON struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

func (s *Server) handleAPISummary(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rng, err := ParseRangeParams(r.URL.Query(), s.ledger.Today(), LastThirtyDays)
	if err != nil {
		s.failJSON(w, r, "Invalid summary range", err)
		return
	}
	sum, err := s.summary(ctx, rng)
	if err != nil {
		s.failJSON(w, r, "Failed to load summary", err)
		return
	}
	NewHTMXResponse().BodyJSON(summaryJSON{
		Start:            rng.Start.String(),
		End:              rng.End.String(),
		TotalIncome:      sum.TotalIncome,
		TotalExpense:     sum.TotalExpense,
		Balance:          sum.Balance,
		TransactionCount: sum.TransactionCount,
	}).Write(w)
}

func (s *Server) handleAPITrend(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	months, err := ParseMonths(r.URL.Query(), s.trendMonths)
	if err != nil {
		s.failJSON(w, r, "Invalid trend window", err)
		return
	}
	trend, err := s.trend(ctx, months)
	if err != nil {
		s.failJSON(w, r, "Failed to load monthly trend", err)
		return
	}
	out := make([]monthJSON, 0, len(trend))
	for _, m := range trend {
		out = append(out, monthJSON{Month: m.Month, Income: m.Income, Expense: m.Expense, Balance: m.Balance})
	}
	NewHTMXResponse().BodyJSON(out).Write(w)
}

func (s *Server) handleAPIExpensesByCategory(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	query := r.URL.Query()
	rng, err := ParseRangeParams(query, s.ledger.Today(), MonthToDate)
	if err != nil {
		s.failJSON(w, r, "Invalid breakdown range", err)
		return
	}
	limit, err := ParseLimit(query)
	if err != nil {
		s.failJSON(w, r, "Invalid breakdown limit", err)
		return
	}
	items, err := s.breakdown(ctx, rng, limit)
	if err != nil {
		s.failJSON(w, r, "Failed to load expense breakdown", err)
		return
	}
	out := make([]categoryJSON, 0, len(items))
	for _, it := range items {
		out = append(out, categoryJSON{Category: it.Category, Amount: it.Amount})
	}
	NewHTMXResponse().BodyJSON(out).Write(w)
}

// handleExpenseChart renders the category pie. An empty period yields 204.
func (s *Server) handleExpenseChart(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rng, err := ParseRangeParams(r.URL.Query(), s.ledger.Today(), MonthToDate)
	if err != nil {
		s.fail(w, r, "Invalid chart range", err)
		return
	}
	items, err := s.breakdown(ctx, rng, 0)
	if err != nil {
		s.fail(w, r, "Failed to load expense breakdown", err)
		return
	}
	s.writePNG(w, r, func(buf *bytes.Buffer) error { return charts.RenderExpensePie(buf, items) })
}

// handleTrendChart renders the income, expense and balance lines.
func (s *Server) handleTrendChart(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	months, err := ParseMonths(r.URL.Query(), s.trendMonths)
	if err != nil {
		s.fail(w, r, "Invalid trend window", err)
		return
	}
	trend, err := s.trend(ctx, months)
	if err != nil {
		s.fail(w, r, "Failed to load monthly trend", err)
		return
	}
	s.writePNG(w, r, func(buf *bytes.Buffer) error { return charts.RenderTrendLine(buf, trend) })
}

func (s *Server) writePNG(w http.ResponseWriter, r *http.Request, draw func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := draw(&buf); err != nil {
		if errors.Is(err, charts.ErrNoData) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.fail(w, r, "Failed to render chart", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
