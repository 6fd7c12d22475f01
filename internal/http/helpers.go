package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"financeflow/internal/core"
	"financeflow/internal/log"
)

var hundred = decimal.NewFromInt(100)

// formatMoney renders an amount as "$1,234.56" ("-$12.00" when negative).
func formatMoney(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	out := "$" + b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

// percentOf returns part as a percentage of total with one decimal, or 0 for an empty total.
func percentOf(part, total decimal.Decimal) string {
	if !total.IsPositive() {
		return "0.0"
	}
	return part.Mul(hundred).Div(total).StringFixed(1)
}

// barWidth scales part against max to a 0..100 width, keeping tiny values visible.
func barWidth(part, max decimal.Decimal) int {
	if !max.IsPositive() || !part.IsPositive() {
		return 0
	}
	width := int(part.Mul(hundred).Div(max).Round(0).IntPart())
	if width < 2 {
		width = 2
	}
	if width > 100 {
		width = 100
	}
	return width
}

// sanitizeInput removes control characters except tab and newlines, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// userPrefix scopes cache keys to one user so a write can drop them all.
func userPrefix(userID int64) string {
	return fmt.Sprintf("u%d:", userID)
}

func rangeKey(userID int64, kind string, r core.DateRange, extra ...any) string {
	key := fmt.Sprintf("%s%s:%s:%s", userPrefix(userID), kind, r.Start, r.End)
	for _, e := range extra {
		key += fmt.Sprintf(":%v", e)
	}
	return key
}

// statusFor maps ledger errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case core.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal error details from clients.
func publicMessage(err error) string {
	if core.IsValidation(err) {
		return err.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The request took too long, please retry"
	}
	return "Something went wrong, please retry"
}

func errorType(err error) string {
	switch {
	case core.IsValidation(err):
		return log.ErrorTypeValidation
	case errors.Is(err, context.DeadlineExceeded):
		return log.ErrorTypeTimeout
	case errors.Is(err, core.ErrStorage):
		return log.ErrorTypeDatabase
	default:
		return log.ErrorTypeInternal
	}
}

// fail logs err at a level matching its class and writes an HTML error fragment.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logFailure(r, msg, err)
	ErrorResponse(statusFor(err), publicMessage(err)).Write(w)
}

// failJSON is fail for the JSON endpoints.
func (s *Server) failJSON(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logFailure(r, msg, err)
	JSONError(statusFor(err), publicMessage(err)).Write(w)
}

func (s *Server) logFailure(r *http.Request, msg string, err error) {
	logger := s.requestLogger(r)
	args := []any{
		log.FieldError, err,
		log.FieldErrorType, errorType(err),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path,
	}
	if core.IsValidation(err) {
		logger.WarnContext(r.Context(), msg, args...)
		return
	}
	logger.ErrorContext(r.Context(), msg, args...)
}

// requestLogger prefers the logger stored by the trace middleware.
func (s *Server) requestLogger(r *http.Request) *log.Logger {
	if l, ok := r.Context().Value(log.LoggerContextKey).(*log.Logger); ok {
		return l.WithComponent(log.ComponentHTTP)
	}
	return s.logger
}
