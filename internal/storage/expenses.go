package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"spendbook/internal/models"
)

const expenseColumns = "id, amount, description, category, date, user_id"

// CreateExpense inserts a new expense owned by ownerID. A zero date defaults
// to the current time.
func (db *DB) CreateExpense(ctx context.Context, ownerID int64, amount float64, description, category string, date time.Time) (*models.Expense, error) {
	if date.IsZero() {
		date = time.Now()
	}
	result, err := db.conn.ExecContext(ctx,
		"INSERT INTO expenses (amount, description, category, date, user_id) VALUES (?, ?, ?, ?, ?)",
		amount, description, category, date.UTC(), ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert expense: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return db.GetExpense(ctx, ownerID, id)
}

// GetExpense retrieves a single expense by ID, scoped to its owner.
func (db *DB) GetExpense(ctx context.Context, ownerID, id int64) (*models.Expense, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ? AND user_id = ?",
		id, ownerID,
	)
	return scanExpense(row)
}

// ListRecentExpenses returns at most limit expenses of the owner, newest first.
func (db *DB) ListRecentExpenses(ctx context.Context, ownerID int64, limit int) ([]models.Expense, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE user_id = ? ORDER BY date DESC, id DESC LIMIT ?",
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent expenses: %w", err)
	}
	return scanExpenses(rows)
}

// ListExpenses returns every expense of the owner, newest first.
func (db *DB) ListExpenses(ctx context.Context, ownerID int64) ([]models.Expense, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE user_id = ? ORDER BY date DESC, id DESC",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	return scanExpenses(rows)
}

// EarliestExpense returns the owner's oldest expense, or ErrNotFound when the
// owner has none.
func (db *DB) EarliestExpense(ctx context.Context, ownerID int64) (*models.Expense, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE user_id = ? ORDER BY date ASC, id ASC LIMIT 1",
		ownerID,
	)
	return scanExpense(row)
}

// DeleteExpense removes the expense with the given id if it belongs to
// ownerID. Expenses of other users are reported as ErrNotFound.
func (db *DB) DeleteExpense(ctx context.Context, ownerID, id int64) error {
	result, err := db.conn.ExecContext(ctx, "DELETE FROM expenses WHERE id = ? AND user_id = ?", id, ownerID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanExpense(row interface{ Scan(...any) error }) (*models.Expense, error) {
	var e models.Expense
	if err := row.Scan(&e.ID, &e.Amount, &e.Description, &e.Category, &e.Date, &e.UserID); err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func scanExpenses(rows *sql.Rows) ([]models.Expense, error) {
	defer rows.Close()

	var expenses []models.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}
	return expenses, rows.Err()
}
