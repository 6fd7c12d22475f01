package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"financeflow/internal/core"
	"financeflow/internal/log"
)

var templateFuncs = template.FuncMap{
	"lower": strings.ToLower,
}

var errTemplatesNotLoaded = errors.New("templates not loaded")

type summaryView struct {
	Start, End string
	Income     string
	Expense    string
	Balance    string
	Count      int64
	Negative   bool
}

func newSummaryView(sum core.Summary, r core.DateRange) summaryView {
	return summaryView{
		Start:    r.Start.String(),
		End:      r.End.String(),
		Income:   formatMoney(sum.TotalIncome),
		Expense:  formatMoney(sum.TotalExpense),
		Balance:  formatMoney(sum.Balance),
		Count:    sum.TransactionCount,
		Negative: sum.Balance.IsNegative(),
	}
}

type transactionRow struct {
	ID          int64
	Date        string
	Type        string
	Category    string
	Amount      string
	Description string
}

func newTransactionRows(txs []core.Transaction) []transactionRow {
	rows := make([]transactionRow, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, transactionRow{
			ID:          t.ID,
			Date:        t.Date.String(),
			Type:        t.Type.String(),
			Category:    t.Category,
			Amount:      formatMoney(t.Amount),
			Description: t.Description,
		})
	}
	return rows
}

type breakdownRow struct {
	Category string
	Amount   string
	Percent  string
	Width    int
}

type breakdownView struct {
	Start, End string
	Total      string
	Rows       []breakdownRow
}

func newBreakdownView(items []core.CategoryAmount, r core.DateRange) breakdownView {
	view := breakdownView{Start: r.Start.String(), End: r.End.String()}
	total := core.FromCents(0)
	for _, it := range items {
		total = total.Add(it.Amount)
	}
	view.Total = formatMoney(total)
	if len(items) == 0 {
		return view
	}
	max := items[0].Amount
	for _, it := range items {
		view.Rows = append(view.Rows, breakdownRow{
			Category: it.Category,
			Amount:   formatMoney(it.Amount),
			Percent:  percentOf(it.Amount, total),
			Width:    barWidth(it.Amount, max),
		})
	}
	return view
}

type dashboardView struct {
	Today             string
	Start, End        string
	Summary           summaryView
	Recent            []transactionRow
	IncomeCategories  []string
	ExpenseCategories []string
	AllCategories     []string
	TrendMonths       int
}

// render executes a template into a buffer so that a failing template
// produces a clean 500 instead of a truncated page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data interface{}) {
	if s.templates == nil {
		s.fail(w, r, "Templates not loaded", errTemplatesNotLoaded)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.requestLogger(r).ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err,
			log.FieldComponent, log.ComponentTemplate,
			"template", name)
		InternalServerError("Error rendering page").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// handleDashboard renders the main page: summary metrics, recent transactions
// and the add form, loaded concurrently.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	today := s.ledger.Today()
	rng, err := ParseRangeParams(r.URL.Query(), today, LastThirtyDays)
	if err != nil {
		s.fail(w, r, "Invalid dashboard range", err)
		return
	}

	view := dashboardView{
		Today:       today.String(),
		Start:       rng.Start.String(),
		End:         rng.End.String(),
		TrendMonths: s.trendMonths,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sum, err := s.summary(gctx, rng)
		if err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		view.Summary = newSummaryView(sum, rng)
		return nil
	})
	g.Go(func() error {
		txs, err := s.ledger.GetTransactions(gctx, core.TransactionFilter{UserID: s.userID, Range: rng, Limit: recentCount})
		if err != nil {
			return fmt.Errorf("recent transactions: %w", err)
		}
		view.Recent = newTransactionRows(txs)
		return nil
	})
	g.Go(func() error {
		cats, err := s.categories(gctx, core.Income.String())
		if err != nil {
			return fmt.Errorf("income categories: %w", err)
		}
		view.IncomeCategories = cats
		return nil
	})
	g.Go(func() error {
		cats, err := s.categories(gctx, core.Expense.String())
		if err != nil {
			return fmt.Errorf("expense categories: %w", err)
		}
		view.ExpenseCategories = cats
		return nil
	})
	g.Go(func() error {
		cats, err := s.categories(gctx, "")
		if err != nil {
			return fmt.Errorf("categories: %w", err)
		}
		view.AllCategories = cats
		return nil
	})
	if err := g.Wait(); err != nil {
		s.fail(w, r, "Failed to load dashboard", err)
		return
	}

	s.render(w, r, "dashboard", view)
}

// handleSummaryPartial renders the four summary metrics for a range.
func (s *Server) handleSummaryPartial(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rng, err := ParseRangeParams(r.URL.Query(), s.ledger.Today(), LastThirtyDays)
	if err != nil {
		s.fail(w, r, "Invalid summary range", err)
		return
	}
	sum, err := s.summary(ctx, rng)
	if err != nil {
		s.fail(w, r, "Failed to load summary", err)
		return
	}
	s.render(w, r, "summary", newSummaryView(sum, rng))
}

// handleExpenseBreakdown renders per-category expense totals with their share.
func (s *Server) handleExpenseBreakdown(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rng, err := ParseRangeParams(r.URL.Query(), s.ledger.Today(), MonthToDate)
	if err != nil {
		s.fail(w, r, "Invalid breakdown range", err)
		return
	}
	items, err := s.breakdown(ctx, rng, 0)
	if err != nil {
		s.fail(w, r, "Failed to load expense breakdown", err)
		return
	}
	s.render(w, r, "breakdown", newBreakdownView(items, rng))
}

// handleCategoryOptions returns the user's categories as <option> elements,
// optionally restricted to one transaction type.
func (s *Server) handleCategoryOptions(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	typ := strings.TrimSpace(r.URL.Query().Get("type"))
	if typ != "" {
		tt, err := core.ParseTransactionType(typ)
		if err != nil {
			s.logFailure(r, "Invalid category type", err)
			NewHTMXResponse().
				Status(http.StatusUnprocessableEntity).
				BodyHTML(`<option value="">Choose Income or Expense first</option>`).
				Write(w)
			return
		}
		typ = tt.String()
	}

	names, err := s.categories(ctx, typ)
	if err != nil {
		s.fail(w, r, "Failed to load categories", err)
		return
	}

	var b strings.Builder
	if r.URL.Query().Get("all") != "" {
		b.WriteString(`<option value="All">All</option>`)
	}
	for _, name := range names {
		escaped := template.HTMLEscapeString(name)
		fmt.Fprintf(&b, `<option value="%s">%s</option>`, escaped, escaped)
	}
	NewHTMXResponse().BodyHTML(b.String()).Write(w)
}
