package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// OrderRow is one ledger row: one student's share of a paid session.
type OrderRow struct {
	OrderNumber      string `json:"order_number"`
	SessionID        string `json:"session_id"`
	ParentEmail      string `json:"parent_email"`
	StudentIndex     int    `json:"student_index"`
	StudentDisplay   string `json:"student_display"`
	First            string `json:"first"`
	Last             string `json:"last"`
	Grade            string `json:"grade"`
	Teacher          string `json:"teacher"`
	Background       string `json:"background"`
	Package          string `json:"package"`
	Addons           string `json:"addons"`
	PackageAndAddons string `json:"package_and_addons"`
	AmountCents      int64  `json:"amount_cents"`
	Currency         string `json:"currency"`
	ReceiptURL       string `json:"receipt_url,omitempty"`
	CreatedAt        time.Time
}

// InsertOrderRows appends all of a session's rows in a single transaction.
func InsertOrderRows(rows []OrderRow) error {
	if len(rows) == 0 {
		return fmt.Errorf("no order rows to insert")
	}

	dbConn, err := GetDB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	tx, err := dbConn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const insertSQL = `
        INSERT INTO orders (
            order_number, session_id, parent_email, student_index,
            student_display, first_name, last_name, grade, teacher,
            background, package, addons, package_and_addons,
            amount_cents, currency, receipt_url, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for _, row := range rows {
		createdAt := row.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		currency := row.Currency
		if currency == "" {
			currency = "usd"
		}

		_, err := tx.ExecContext(ctx, insertSQL,
			row.OrderNumber, row.SessionID, row.ParentEmail, row.StudentIndex,
			row.StudentDisplay, row.First, row.Last, row.Grade, row.Teacher,
			row.Background, row.Package, row.Addons, row.PackageAndAddons,
			row.AmountCents, currency, row.ReceiptURL, formatTime(createdAt))
		if err != nil {
			return fmt.Errorf("failed to insert order row for %s: %w", row.OrderNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order rows: %w", err)
	}
	return nil
}

// GetOrderRowsBySession returns the ledger rows for one checkout session,
// in student order. An empty slice means the session has not reconciled.
func GetOrderRowsBySession(sessionID string) ([]OrderRow, error) {
	rows, err := QueryDB(`
        SELECT order_number, session_id, parent_email, student_index,
               student_display, first_name, last_name, grade, teacher,
               background, package, addons, package_and_addons,
               amount_cents, currency, receipt_url, created_at
        FROM orders WHERE session_id = ? ORDER BY student_index`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []OrderRow
	for rows.Next() {
		row, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// GetOrderRowsByNumber looks rows up by the human-facing order number.
func GetOrderRowsByNumber(orderNumber string) ([]OrderRow, error) {
	rows, err := QueryDB(`
        SELECT order_number, session_id, parent_email, student_index,
               student_display, first_name, last_name, grade, teacher,
               background, package, addons, package_and_addons,
               amount_cents, currency, receipt_url, created_at
        FROM orders WHERE order_number = ? ORDER BY student_index`, orderNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []OrderRow
	for rows.Next() {
		row, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func scanOrderRow(rows *sql.Rows) (OrderRow, error) {
	var row OrderRow
	var receiptURL sql.NullString
	var createdAt string

	err := rows.Scan(
		&row.OrderNumber, &row.SessionID, &row.ParentEmail, &row.StudentIndex,
		&row.StudentDisplay, &row.First, &row.Last, &row.Grade, &row.Teacher,
		&row.Background, &row.Package, &row.Addons, &row.PackageAndAddons,
		&row.AmountCents, &row.Currency, &receiptURL, &createdAt)
	if err != nil {
		return OrderRow{}, fmt.Errorf("failed to scan order row: %w", err)
	}

	row.ReceiptURL = receiptURL.String
	if t, err := parseTime(createdAt); err == nil {
		row.CreatedAt = t
	}
	return row, nil
}
