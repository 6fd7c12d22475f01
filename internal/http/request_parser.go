package http

// This file implements utilities for parsing and validating HTTP request data:
// report ranges, pagination and transaction bodies sent as forms or JSON.

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"financeflow/internal/core"
)

const maxBodyBytes = 64 << 10

// RangeDefault picks the range used when a request names neither bound.
type RangeDefault func(today core.Date) core.DateRange

// LastThirtyDays is the dashboard and history default.
func LastThirtyDays(today core.Date) core.DateRange {
	return core.LastDays(today, 30)
}

// MonthToDate is the analytics default.
func MonthToDate(today core.Date) core.DateRange {
	return core.DateRange{Start: today.FirstOfMonth(), End: today}
}

// ParseRangeParams reads start/end (YYYY-MM-DD) from query. When both are
// absent def supplies the range; a single bound leaves the other side open.
func ParseRangeParams(query url.Values, today core.Date, def RangeDefault) (core.DateRange, error) {
	start := strings.TrimSpace(query.Get("start"))
	end := strings.TrimSpace(query.Get("end"))
	if start == "" && end == "" {
		return def(today), nil
	}
	return core.ParseDateRange(start, end)
}

// ParsePage returns the 1-based page number; missing or invalid values mean page 1.
func ParsePage(query url.Values) int {
	page, err := strconv.Atoi(strings.TrimSpace(query.Get("page")))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// ParseMonths reads the trend window. Missing means def; anything that is not
// a positive integer is a validation error.
func ParseMonths(query url.Values, def int) (int, error) {
	v := strings.TrimSpace(query.Get("months"))
	if v == "" {
		return def, nil
	}
	months, err := strconv.Atoi(v)
	if err != nil || months <= 0 {
		return 0, &core.ValidationError{Field: "months", Err: core.ErrInvalidMonths}
	}
	return months, nil
}

// ParseLimit reads an optional non-negative row limit; 0 means no limit.
func ParseLimit(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("limit"))
	if v == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit < 0 {
		return 0, &core.ValidationError{Field: "limit", Err: core.ErrInvalidPagination}
	}
	return limit, nil
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	query       url.Values
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the request body once, up to maxBodyBytes.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
		query:       r.URL.Query(),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if strings.Contains(p.contentType, "application/json") || p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized value from the body, falling back to the query string.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
	}
	if p.formData != nil {
		if v := p.formData.Get(key); v != "" {
			return sanitizeInput(v)
		}
	}
	return sanitizeInput(p.query.Get(key))
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// TransactionInput builds the ledger input from the body. Only the amount and
// date are interpreted here; the ledger validates everything else.
func (p *RequestBodyParser) TransactionInput(userID int64, today core.Date) (core.TransactionInput, error) {
	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		return core.TransactionInput{}, err
	}

	date := today
	if v := p.Get("date"); v != "" {
		if date, err = core.ParseDate(v); err != nil {
			return core.TransactionInput{}, err
		}
	}

	return core.TransactionInput{
		UserID:      userID,
		Type:        p.Get("type"),
		Amount:      amount,
		Category:    p.Get("category"),
		Date:        date,
		Description: p.Get("description"),
	}, nil
}

// TransactionID reads the "id" field as a transaction id.
func (p *RequestBodyParser) TransactionID() (int64, error) {
	id, err := strconv.ParseInt(p.Get("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &core.ValidationError{Field: "transaction id", Err: core.ErrInvalidTransactionID}
	}
	return id, nil
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

func RequireGET(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodGet, http.MethodHead)
}

func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

func RequireDeleteOrPOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodDelete, http.MethodPost)
}
