package sheets

import (
	"context"

	"financeflow/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionAppender mirrors a stored transaction into a spreadsheet.
	TransactionAppender interface {
		// AppendTransaction writes one row and returns a reference to it.
		AppendTransaction(ctx context.Context, t core.Transaction) (rowRef string, err error)
	}
)

// Columns is the header of a mirrored transaction sheet.
var Columns = []string{"Date", "Type", "Category", "Amount", "Description", "ID"}

// Row renders t in Columns order.
func Row(t core.Transaction) []any {
	return []any{
		t.Date.String(),
		t.Type.String(),
		t.Category,
		t.Amount.StringFixed(2),
		t.Description,
		t.ID,
	}
}
