package http

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"financeflow/internal/core"
	"financeflow/internal/export"
	"financeflow/internal/log"
)

type historyView struct {
	Start, End string
	Category   string
	Rows       []transactionRow
	Page       int
	HasPrev    bool
	HasNext    bool
	PrevQuery  string
	NextQuery  string
	ExportCSV  string
	ExportXLSX string
}

func historyQuery(rng core.DateRange, category string, extra url.Values) string {
	q := url.Values{}
	if !rng.Start.IsZero() {
		q.Set("start", rng.Start.String())
	}
	if !rng.End.IsZero() {
		q.Set("end", rng.End.String())
	}
	if category != "" {
		q.Set("category", category)
	}
	for k, v := range extra {
		q[k] = v
	}
	return q.Encode()
}

// handleTransactionsPartial renders one page of the filtered history table.
func (s *Server) handleTransactionsPartial(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	query := r.URL.Query()
	rng, err := ParseRangeParams(query, s.ledger.Today(), LastThirtyDays)
	if err != nil {
		s.fail(w, r, "Invalid history range", err)
		return
	}
	category := sanitizeInput(query.Get("category"))
	page := ParsePage(query)

	// one extra row tells whether a next page exists
	txs, err := s.ledger.GetTransactions(ctx, core.TransactionFilter{
		UserID:   s.userID,
		Range:    rng,
		Category: category,
		Limit:    historyPageSize + 1,
		Offset:   (page - 1) * historyPageSize,
	})
	if err != nil {
		s.fail(w, r, "Failed to load transactions", err)
		return
	}

	view := historyView{
		Start:    rng.Start.String(),
		End:      rng.End.String(),
		Category: category,
		Page:     page,
		HasPrev:  page > 1,
	}
	if len(txs) > historyPageSize {
		view.HasNext = true
		txs = txs[:historyPageSize]
	}
	view.Rows = newTransactionRows(txs)
	view.PrevQuery = historyQuery(rng, category, url.Values{"page": {strconv.Itoa(page - 1)}})
	view.NextQuery = historyQuery(rng, category, url.Values{"page": {strconv.Itoa(page + 1)}})
	view.ExportCSV = historyQuery(rng, category, url.Values{"format": {string(export.FormatCSV)}})
	view.ExportXLSX = historyQuery(rng, category, url.Values{"format": {string(export.FormatXLSX)}})

	s.render(w, r, "transactions", view)
}

// handleCreateTransaction records a transaction sent as a form or JSON body.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		s.requestLogger(r).WarnContext(ctx, "Malformed transaction body",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeValidation)
		BadRequestError("Invalid request format").Write(w)
		return
	}

	in, err := parser.TransactionInput(s.userID, s.ledger.Today())
	if err != nil {
		s.respondError(w, r, parser.IsJSON(), "Rejected transaction", err)
		return
	}

	t, err := s.ledger.AddTransaction(ctx, in)
	if err != nil {
		s.respondError(w, r, parser.IsJSON(), "Failed to add transaction", err)
		return
	}

	atomic.AddInt64(&s.appMetrics.transactionsCreated, 1)
	s.invalidateReports(t.UserID)

	s.requestLogger(r).InfoContext(ctx, "Transaction created",
		log.NewFields().
			WithOperation(log.OpCreate).
			WithTransaction(t.ID, t.Type.String(), t.Amount, t.Category, t.Date.String()).
			ToSlice()...)

	resp := NewHTMXResponse().TriggerTransactionCreated(t.ID, t.Date.String())
	if parser.IsJSON() {
		resp.Status(http.StatusCreated).BodyJSON(newTransactionJSON(t)).Write(w)
		return
	}
	msg := fmt.Sprintf("%s of %s added to %s", t.Type, formatMoney(t.Amount), t.Category)
	resp.TriggerFormReset().
		TriggerSuccessNotification(msg).
		BodyHTML(`<div class="success">` + template.HTMLEscapeString(msg) + `</div>`).
		Write(w)
}

// handleDeleteTransaction removes a transaction by id; 404 when it does not exist.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if resp := RequireDeleteOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	id, err := parser.TransactionID()
	if err != nil {
		s.respondError(w, r, parser.IsJSON(), "Rejected delete", err)
		return
	}

	deleted, err := s.ledger.DeleteTransaction(ctx, s.userID, id)
	if err != nil {
		s.respondError(w, r, parser.IsJSON(), "Failed to delete transaction", err)
		return
	}
	if !deleted {
		s.requestLogger(r).InfoContext(ctx, "Transaction to delete not found",
			log.FieldTransactionID, id,
			log.FieldErrorType, log.ErrorTypeNotFound)
		if parser.IsJSON() {
			JSONError(http.StatusNotFound, "transaction not found").Write(w)
			return
		}
		NotFoundError("Transaction not found").Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.transactionsDeleted, 1)
	s.invalidateReports(s.userID)

	s.requestLogger(r).InfoContext(ctx, "Transaction deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldTransactionID, id)

	resp := NewHTMXResponse().TriggerTransactionDeleted(id)
	if parser.IsJSON() {
		resp.BodyJSON(map[string]interface{}{"deleted": true, "id": id}).Write(w)
		return
	}
	// an empty body removes the row the request came from
	resp.TriggerSuccessNotification("Transaction deleted").BodyHTML("").Write(w)
}

// handleExport downloads the filtered history as CSV or XLSX.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	query := r.URL.Query()
	format, err := export.ParseFormat(strings.ToLower(strings.TrimSpace(query.Get("format"))))
	if err != nil {
		s.requestLogger(r).WarnContext(ctx, "Unsupported export format",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeValidation)
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	today := s.ledger.Today()
	rng, err := ParseRangeParams(query, today, LastThirtyDays)
	if err != nil {
		s.fail(w, r, "Invalid export range", err)
		return
	}

	txs, err := s.ledger.GetTransactions(ctx, core.TransactionFilter{
		UserID:   s.userID,
		Range:    rng,
		Category: sanitizeInput(query.Get("category")),
	})
	if err != nil {
		s.fail(w, r, "Failed to load transactions for export", err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, txs); err != nil {
		s.fail(w, r, "Failed to write export", err)
		return
	}

	s.requestLogger(r).InfoContext(ctx, "Transactions exported",
		log.FieldOperation, log.OpExport,
		"format", format,
		"count", len(txs))

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.Filename(today)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// respondError writes err as JSON or as an HTML fragment, matching the request.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, asJSON bool, msg string, err error) {
	if asJSON {
		s.failJSON(w, r, msg, err)
		return
	}
	s.fail(w, r, msg, err)
}
