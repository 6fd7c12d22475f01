package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "Income"
	Expense TransactionType = "Expense"
)

const (
	// MaxDescriptionLength is the number of characters kept from a description.
	MaxDescriptionLength = 255

	// AllCategories is the category filter sentinel meaning "no filter".
	AllCategories = "All"

	DefaultUserID   int64 = 1
	DefaultUsername       = "default_user"
)

type (
	TransactionType string

	Transaction struct {
		ID          int64
		UserID      int64
		Type        TransactionType
		Amount      decimal.Decimal
		Category    string
		Description string
		Date        Date
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// TransactionInput is the unvalidated form of a new ledger entry.
	TransactionInput struct {
		UserID      int64
		Type        string
		Amount      decimal.Decimal
		Category    string
		Date        Date
		Description string
	}

	// TransactionFilter selects rows for listing. Zero values mean "no constraint";
	// a zero Limit returns every matching row.
	TransactionFilter struct {
		UserID   int64
		Range    DateRange
		Category string
		Limit    int
		Offset   int
	}

	DefaultCategory struct {
		Name string
		Type TransactionType
	}
)

var (
	ErrInvalidUserID        = errors.New("user id must be a positive integer")
	ErrInvalidType          = errors.New("transaction type must be 'Income' or 'Expense'")
	ErrInvalidAmount        = errors.New("amount must be a positive number")
	ErrEmptyCategory        = errors.New("category is required")
	ErrInvalidDate          = errors.New("invalid date, use YYYY-MM-DD")
	ErrFutureDate           = errors.New("transaction date cannot be in the future")
	ErrInvalidDateRange     = errors.New("start date cannot be after end date")
	ErrInvalidMonths        = errors.New("months must be a positive integer")
	ErrInvalidTransactionID = errors.New("transaction id must be a positive integer")
	ErrInvalidPagination    = errors.New("limit and offset cannot be negative")

	// ErrStorage marks failures of the underlying store, as opposed to bad input.
	ErrStorage = errors.New("storage error")
)

// DefaultCategories are seeded for every user.
var DefaultCategories = []DefaultCategory{
	{"Salary", Income},
	{"Freelance", Income},
	{"Investment", Income},
	{"Gift", Income},
	{"Other Income", Income},
	{"Food", Expense},
	{"Transport", Expense},
	{"Shopping", Expense},
	{"Bills", Expense},
	{"Entertainment", Expense},
	{"Healthcare", Expense},
	{"Education", Expense},
	{"Rent", Expense},
	{"Other Expense", Expense},
}

// ValidationError reports which input field was rejected.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation reports whether err was produced by input validation.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ParseTransactionType normalizes s to its capitalized form ("income" -> Income).
func ParseTransactionType(s string) (TransactionType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalid("type", ErrInvalidType)
	}
	norm := strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	switch TransactionType(norm) {
	case Income, Expense:
		return TransactionType(norm), nil
	default:
		return "", invalid("type", ErrInvalidType)
	}
}

func (t TransactionType) String() string { return string(t) }

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func ValidateUserID(id int64) error {
	if id <= 0 {
		return invalid("user id", ErrInvalidUserID)
	}
	return nil
}

func ValidateTransactionID(id int64) error {
	if id <= 0 {
		return invalid("transaction id", ErrInvalidTransactionID)
	}
	return nil
}

// Normalize validates the input against today's date and returns the transaction
// ready to be stored: type capitalized, amount rounded to cents, description truncated.
func (in TransactionInput) Normalize(today Date) (Transaction, error) {
	if err := ValidateUserID(in.UserID); err != nil {
		return Transaction{}, err
	}
	typ, err := ParseTransactionType(in.Type)
	if err != nil {
		return Transaction{}, err
	}
	amount := RoundAmount(in.Amount)
	if !amount.IsPositive() {
		return Transaction{}, invalid("amount", ErrInvalidAmount)
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		return Transaction{}, invalid("category", ErrEmptyCategory)
	}
	if in.Date.IsZero() {
		return Transaction{}, invalid("date", ErrInvalidDate)
	}
	if in.Date.After(today) {
		return Transaction{}, invalid("date", ErrFutureDate)
	}

	return Transaction{
		UserID:      in.UserID,
		Type:        typ,
		Amount:      amount,
		Category:    category,
		Description: TruncateDescription(in.Description),
		Date:        in.Date,
	}, nil
}

// TruncateDescription keeps at most MaxDescriptionLength characters.
func TruncateDescription(s string) string {
	if utf8.RuneCountInString(s) <= MaxDescriptionLength {
		return s
	}
	return string([]rune(s)[:MaxDescriptionLength])
}

func (f TransactionFilter) Validate() error {
	if err := ValidateUserID(f.UserID); err != nil {
		return err
	}
	if err := f.Range.Validate(); err != nil {
		return err
	}
	if f.Limit < 0 || f.Offset < 0 {
		return invalid("pagination", ErrInvalidPagination)
	}
	return nil
}

// CategoryName returns the category to match, or "" when the filter is absent or "All".
func (f TransactionFilter) CategoryName() string {
	c := strings.TrimSpace(f.Category)
	if c == AllCategories {
		return ""
	}
	return c
}
