package storage

import (
	"context"
	"database/sql"
	"strings"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Row types mirror the columns as stored; conversion to domain types happens in the repository.
type (
	TransactionRow struct {
		ID          int64
		UserID      int64
		Type        string
		Amount      float64
		Category    string
		Description string
		Date        string
		CreatedAt   string
		UpdatedAt   string
	}

	InsertTransactionParams struct {
		UserID      int64
		Type        string
		Amount      float64
		Category    string
		Description string
		Date        string
	}

	// ListTransactionsParams bounds are YYYY-MM-DD strings; empty means unbounded.
	ListTransactionsParams struct {
		UserID    int64
		StartDate string
		EndDate   string
		Category  string
		Limit     int
		Offset    int
	}

	SummaryRow struct {
		IncomeCents  int64
		ExpenseCents int64
		Count        int64
	}

	CategoryTotalRow struct {
		Category   string
		TotalCents int64
	}

	MonthTotalRow struct {
		Month      string
		Type       string
		TotalCents int64
	}
)

const centsExpr = `COALESCE(SUM(CAST(ROUND(amount * 100) AS INTEGER)), 0)`

const insertUser = `INSERT OR IGNORE INTO users (id, username) VALUES (?, ?)`

func (q *Queries) InsertUser(ctx context.Context, id int64, username string) error {
	_, err := q.db.ExecContext(ctx, insertUser, id, username)
	return err
}

const userExists = `SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`

func (q *Queries) UserExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, userExists, id).Scan(&exists)
	return exists, err
}

const insertCategoryIgnore = `INSERT OR IGNORE INTO categories (user_id, name, type) VALUES (?, ?, ?)`

// InsertCategory adds a category unless it already exists and reports whether a row was written.
func (q *Queries) InsertCategory(ctx context.Context, userID int64, name, typ string) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertCategoryIgnore, userID, name, typ)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const categoryExists = `SELECT EXISTS (SELECT 1 FROM categories WHERE user_id = ? AND name = ? AND type = ?)`

func (q *Queries) CategoryExists(ctx context.Context, userID int64, name, typ string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, categoryExists, userID, name, typ).Scan(&exists)
	return exists, err
}

const insertTransaction = `INSERT INTO transactions (user_id, type, amount, category, description, date)
VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertTransaction(ctx context.Context, arg InsertTransactionParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertTransaction,
		arg.UserID, arg.Type, arg.Amount, arg.Category, arg.Description, arg.Date)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const transactionColumns = `id, user_id, type, amount, category, description, date, created_at, updated_at`

func scanTransaction(s interface{ Scan(...any) error }) (TransactionRow, error) {
	var r TransactionRow
	err := s.Scan(&r.ID, &r.UserID, &r.Type, &r.Amount, &r.Category,
		&r.Description, &r.Date, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ? AND user_id = ?`

func (q *Queries) GetTransaction(ctx context.Context, userID, id int64) (TransactionRow, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id, userID))
}

// dateBounds appends inclusive date predicates for the non-empty bounds.
func dateBounds(sb *strings.Builder, args []any, start, end string) []any {
	if start != "" {
		sb.WriteString(" AND date >= ?")
		args = append(args, start)
	}
	if end != "" {
		sb.WriteString(" AND date <= ?")
		args = append(args, end)
	}
	return args
}

func (q *Queries) ListTransactions(ctx context.Context, arg ListTransactionsParams) ([]TransactionRow, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ?`)
	args := []any{arg.UserID}
	args = dateBounds(&sb, args, arg.StartDate, arg.EndDate)
	if arg.Category != "" {
		sb.WriteString(" AND category = ?")
		args = append(args, arg.Category)
	}
	sb.WriteString(" ORDER BY date DESC, created_at DESC, id DESC")
	if arg.Limit > 0 {
		sb.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, arg.Limit, arg.Offset)
	} else if arg.Offset > 0 {
		sb.WriteString(" LIMIT -1 OFFSET ?")
		args = append(args, arg.Offset)
	}

	rows, err := q.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []TransactionRow{}
	for rows.Next() {
		r, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (q *Queries) Summary(ctx context.Context, userID int64, start, end string) (SummaryRow, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT
    COALESCE(SUM(CASE WHEN type = 'Income' THEN CAST(ROUND(amount * 100) AS INTEGER) ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN type = 'Expense' THEN CAST(ROUND(amount * 100) AS INTEGER) ELSE 0 END), 0),
    COUNT(*)
FROM transactions WHERE user_id = ?`)
	args := dateBounds(&sb, []any{userID}, start, end)

	var r SummaryRow
	err := q.db.QueryRowContext(ctx, sb.String(), args...).Scan(&r.IncomeCents, &r.ExpenseCents, &r.Count)
	return r, err
}

func (q *Queries) ExpenseByCategory(ctx context.Context, userID int64, start, end string, limit int) ([]CategoryTotalRow, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT category, ` + centsExpr + ` AS total FROM transactions WHERE user_id = ? AND type = 'Expense'`)
	args := dateBounds(&sb, []any{userID}, start, end)
	sb.WriteString(" GROUP BY category ORDER BY total DESC, category ASC")
	if limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	rows, err := q.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []CategoryTotalRow{}
	for rows.Next() {
		var r CategoryTotalRow
		if err := rows.Scan(&r.Category, &r.TotalCents); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const monthlyTotals = `SELECT strftime('%Y-%m', date) AS month, type, ` + centsExpr + `
FROM transactions
WHERE user_id = ? AND date >= ? AND date <= ?
GROUP BY month, type
ORDER BY month`

func (q *Queries) MonthlyTotals(ctx context.Context, userID int64, start, end string) ([]MonthTotalRow, error) {
	rows, err := q.db.QueryContext(ctx, monthlyTotals, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []MonthTotalRow{}
	for rows.Next() {
		var r MonthTotalRow
		if err := rows.Scan(&r.Month, &r.Type, &r.TotalCents); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (q *Queries) ListCategories(ctx context.Context, userID int64, typ string) ([]string, error) {
	query := `SELECT DISTINCT name FROM categories WHERE user_id = ?`
	args := []any{userID}
	if typ != "" {
		query += " AND type = ?"
		args = append(args, typ)
	}
	query += " ORDER BY name"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ? AND user_id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, userID, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
