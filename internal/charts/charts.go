// Package charts renders ledger reports as PNG images.
package charts

import (
	"errors"
	"fmt"
	"io"
	"time"

	"financeflow/internal/core"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrNoData is returned when there is nothing meaningful to draw.
var ErrNoData = errors.New("no data to chart")

const (
	Width  = 900
	Height = 480
)

var (
	incomeColor  = drawing.ColorFromHex("2e7d32")
	expenseColor = drawing.ColorFromHex("c62828")
	balanceColor = drawing.ColorFromHex("1565c0")
)

func background() chart.Style {
	return chart.Style{
		Padding:   chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		FillColor: chart.ColorWhite,
	}
}

func dollars(v interface{}) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("$%.0f", f)
	}
	return ""
}

// RenderExpensePie draws one slice per category, labelled with its amount and share.
func RenderExpensePie(w io.Writer, items []core.CategoryAmount) error {
	total := 0.0
	for _, it := range items {
		total += it.Amount.InexactFloat64()
	}
	if total <= 0 {
		return ErrNoData
	}

	values := make([]chart.Value, 0, len(items))
	for _, it := range items {
		amount := it.Amount.InexactFloat64()
		if amount <= 0 {
			continue
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s: $%s (%.1f%%)", it.Category, it.Amount.StringFixed(2), amount/total*100),
			Value: amount,
		})
	}

	pie := chart.PieChart{
		Title:      "Expenses by Category",
		Width:      Width,
		Height:     Height,
		Values:     values,
		Background: background(),
	}
	if err := pie.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render expense pie: %w", err)
	}
	return nil
}

// RenderTrendLine draws monthly income, expense and balance lines.
func RenderTrendLine(w io.Writer, trend []core.MonthTrend) error {
	if len(trend) < 2 {
		return ErrNoData
	}

	xs := make([]time.Time, len(trend))
	income := make([]float64, len(trend))
	expense := make([]float64, len(trend))
	balance := make([]float64, len(trend))
	lo, hi := 0.0, 0.0
	for i, m := range trend {
		t, err := time.Parse(core.MonthLayout, m.Month)
		if err != nil {
			return fmt.Errorf("month %q: %w", m.Month, err)
		}
		xs[i] = t
		income[i] = m.Income.InexactFloat64()
		expense[i] = m.Expense.InexactFloat64()
		balance[i] = m.Balance.InexactFloat64()
		for _, v := range []float64{income[i], expense[i], balance[i]} {
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}
	if lo == hi {
		return ErrNoData
	}

	graph := chart.Chart{
		Title:      "Monthly Income vs Expenses",
		Width:      Width,
		Height:     Height,
		Background: background(),
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("Jan 2006"),
		},
		YAxis: chart.YAxis{
			ValueFormatter: dollars,
			Range:          &chart.ContinuousRange{Min: lo, Max: hi * 1.1},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Income",
				XValues: xs,
				YValues: income,
				Style:   chart.Style{StrokeColor: incomeColor, StrokeWidth: 2},
			},
			chart.TimeSeries{
				Name:    "Expense",
				XValues: xs,
				YValues: expense,
				Style:   chart.Style{StrokeColor: expenseColor, StrokeWidth: 2},
			},
			chart.TimeSeries{
				Name:    "Balance",
				XValues: xs,
				YValues: balance,
				Style:   chart.Style{StrokeColor: balanceColor, StrokeWidth: 2, StrokeDashArray: []float64{5, 5}},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render trend line: %w", err)
	}
	return nil
}
