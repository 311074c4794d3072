package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/printhub/printhub/internal/platform/db"
	"github.com/printhub/printhub/internal/shared"
)

// PostgresStore persists ledger records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// WithTx runs fn in a read-committed transaction; row locks taken through the ForUpdate
// reads serialise writers on the same record.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.WithTx(ctx, s.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

const taskColumns = `id, order_id, branch, title, products, product_ref, price, quantity, waste,
	status, advance_payment, full_payment, end_price, end_time, last_payment_method,
	cheque_status, cheque_notes, online_payment_status, online_payment_notes,
	payment_history, version, created_at, updated_at`

const orderColumns = `id, branch, customer_name, customer_phone, total_price, advance_payment, created_at, updated_at`

const inventoryColumns = `id, branch, product_id, product_code, name, quantity, status, updated_at`

const deferredColumns = `id, task_id, order_id, branch, method, amount, customer_name, customer_phone,
	cheque_number, bank_name, cheque_date, bill_number, status, notes, created_at, resolved_at`

// GetTask loads a task by id.
func (s *PostgresStore) GetTask(ctx context.Context, id string) (Task, error) {
	return scanTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id), id)
}

// GetOrder loads an order by id.
func (s *PostgresStore) GetOrder(ctx context.Context, id string) (Order, error) {
	return scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id), id)
}

// GetCreditAccount loads a credit account.
func (s *PostgresStore) GetCreditAccount(ctx context.Context, customerKey string) (CreditAccount, error) {
	return scanCreditAccount(s.pool.QueryRow(ctx,
		`SELECT customer_key, name, balance, used_amount, updated_at FROM credit_accounts WHERE customer_key = $1`,
		customerKey), customerKey)
}

// ListCreditEntries returns the newest entries first.
func (s *PostgresStore) ListCreditEntries(ctx context.Context, customerKey string, limit int) ([]CreditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `SELECT id, customer_key, amount, balance_after, task_id, note, created_at
FROM credit_entries WHERE customer_key = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, customerKey, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list credit entries: %w", err)
	}
	defer rows.Close()
	var out []CreditEntry
	for rows.Next() {
		var entry CreditEntry
		if err := rows.Scan(&entry.ID, &entry.CustomerKey, &entry.Amount, &entry.BalanceAfter,
			&entry.TaskID, &entry.Note, &entry.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ListDeferredPayments returns matching records oldest first.
func (s *PostgresStore) ListDeferredPayments(ctx context.Context, filter DeferredFilter) ([]DeferredPayment, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Branch != "" {
		add("branch = $%d", filter.Branch)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Method != "" {
		add("method = $%d", string(filter.Method))
	}
	if !filter.CreatedBefore.IsZero() {
		add("created_at < $%d", filter.CreatedBefore)
	}
	sql := `SELECT ` + deferredColumns + ` FROM deferred_payments`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list deferred payments: %w", err)
	}
	return collectDeferred(rows)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetTaskForUpdate(ctx context.Context, id string) (Task, error) {
	return scanTask(t.tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id), id)
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, id string) (Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id), id)
}

func (t *pgTx) NextOrderSeq(ctx context.Context, branch, period string) (int64, error) {
	var seq int64
	err := t.tx.QueryRow(ctx, `INSERT INTO order_sequences (branch, period, last_seq) VALUES ($1, $2, 1)
ON CONFLICT (branch, period) DO UPDATE SET last_seq = order_sequences.last_seq + 1
RETURNING last_seq`, branch, period).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("ledger: next order seq: %w", err)
	}
	return seq, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, order Order) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO orders (`+orderColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		order.ID, order.Branch, order.CustomerName, order.CustomerPhone,
		order.TotalPrice, order.AdvancePayment, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ledger: insert order: %w", err)
	}
	return nil
}

func (t *pgTx) InsertTask(ctx context.Context, task Task) error {
	products, history, err := encodeTaskJSON(task)
	if err != nil {
		return err
	}
	if task.Version == 0 {
		task.Version = 1
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO tasks (`+taskColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		task.ID, task.OrderID, task.Branch, task.Title, products, task.ProductRef, task.Price, task.Quantity, task.Waste,
		string(task.Status), task.AdvancePayment, task.FullPayment, task.EndPrice, task.EndTime, string(task.LastPaymentMethod),
		string(task.ChequeStatus), task.ChequeNotes, string(task.OnlinePaymentStatus), task.OnlinePaymentNotes,
		history, task.Version, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ledger: insert task: %w", err)
	}
	return nil
}

func (t *pgTx) SaveOrder(ctx context.Context, order Order) error {
	tag, err := t.tx.Exec(ctx, `UPDATE orders SET customer_name = $2, customer_phone = $3, total_price = $4,
advance_payment = $5, updated_at = $6 WHERE id = $1`,
		order.ID, order.CustomerName, order.CustomerPhone, order.TotalPrice, order.AdvancePayment, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ledger: save order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger: order %s: %w", order.ID, shared.ErrNotFound)
	}
	return nil
}

func (t *pgTx) SaveTask(ctx context.Context, task Task) (Task, error) {
	products, history, err := encodeTaskJSON(task)
	if err != nil {
		return Task{}, err
	}
	tag, err := t.tx.Exec(ctx, `UPDATE tasks SET title = $3, products = $4, product_ref = $5, price = $6,
quantity = $7, waste = $8, status = $9, advance_payment = $10, full_payment = $11, end_price = $12,
end_time = $13, last_payment_method = $14, cheque_status = $15, cheque_notes = $16,
online_payment_status = $17, online_payment_notes = $18, payment_history = $19,
version = version + 1, updated_at = $20
WHERE id = $1 AND version = $2`,
		task.ID, task.Version, task.Title, products, task.ProductRef, task.Price,
		task.Quantity, task.Waste, string(task.Status), task.AdvancePayment, task.FullPayment, task.EndPrice,
		task.EndTime, string(task.LastPaymentMethod), string(task.ChequeStatus), task.ChequeNotes,
		string(task.OnlinePaymentStatus), task.OnlinePaymentNotes, history, task.UpdatedAt)
	if err != nil {
		return Task{}, fmt.Errorf("ledger: save task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Task{}, shared.Conflictf("ledger: task %s modified concurrently", task.ID)
	}
	task.Version++
	return task, nil
}

func (t *pgTx) GetInventoryItemByID(ctx context.Context, branch, id string) (InventoryItem, error) {
	return scanInventory(t.tx.QueryRow(ctx,
		`SELECT `+inventoryColumns+` FROM inventory_items WHERE id = $1 AND branch = $2 FOR UPDATE`, id, branch),
		id)
}

func (t *pgTx) FindInventoryItem(ctx context.Context, branch string, field LookupField, value string) (InventoryItem, error) {
	var column string
	switch field {
	case FieldProductID:
		column = "product_id"
	case FieldProductCode:
		column = "product_code"
	default:
		return InventoryItem{}, shared.Invalidf("ledger: unknown lookup field %q", field)
	}
	if value == "" {
		return InventoryItem{}, fmt.Errorf("ledger: inventory item %s is empty: %w", field, shared.ErrNotFound)
	}
	return scanInventory(t.tx.QueryRow(ctx, `SELECT `+inventoryColumns+` FROM inventory_items
WHERE branch = $1 AND `+column+` = $2 ORDER BY created_at ASC, id ASC LIMIT 1 FOR UPDATE`, branch, value),
		fmt.Sprintf("%s=%s", field, value))
}

func (t *pgTx) GetCatalogProduct(ctx context.Context, id string) (CatalogProduct, error) {
	var product CatalogProduct
	err := t.tx.QueryRow(ctx, `SELECT id, product_id, product_code, code, name FROM catalog_products WHERE id = $1`, id).
		Scan(&product.ID, &product.ProductID, &product.ProductCode, &product.Code, &product.Name)
	if err != nil {
		return CatalogProduct{}, notFound(err, "catalog product", id)
	}
	return product, nil
}

func (t *pgTx) SaveInventoryItem(ctx context.Context, item InventoryItem) error {
	tag, err := t.tx.Exec(ctx, `UPDATE inventory_items SET quantity = $2, status = $3, updated_at = $4 WHERE id = $1`,
		item.ID, item.Quantity, string(item.Status), item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ledger: save inventory item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger: inventory item %s: %w", item.ID, shared.ErrNotFound)
	}
	return nil
}

func (t *pgTx) GetCreditAccountForUpdate(ctx context.Context, customerKey string) (CreditAccount, error) {
	return scanCreditAccount(t.tx.QueryRow(ctx,
		`SELECT customer_key, name, balance, used_amount, updated_at FROM credit_accounts WHERE customer_key = $1 FOR UPDATE`,
		customerKey), customerKey)
}

func (t *pgTx) SaveCreditAccount(ctx context.Context, account CreditAccount) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO credit_accounts (customer_key, name, balance, used_amount, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (customer_key) DO UPDATE SET name = EXCLUDED.name, balance = EXCLUDED.balance,
used_amount = EXCLUDED.used_amount, updated_at = EXCLUDED.updated_at`,
		account.CustomerKey, account.Name, account.Balance, account.UsedAmount, account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ledger: save credit account: %w", err)
	}
	return nil
}

func (t *pgTx) InsertCreditEntry(ctx context.Context, entry CreditEntry) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO credit_entries (id, customer_key, amount, balance_after, task_id, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.CustomerKey, entry.Amount, entry.BalanceAfter, entry.TaskID, entry.Note, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("ledger: insert credit entry: %w", err)
	}
	return nil
}

func (t *pgTx) InsertDeferredPayment(ctx context.Context, p DeferredPayment) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO deferred_payments (`+deferredColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		p.ID, p.TaskID, p.OrderID, p.Branch, string(p.Method), p.Amount, p.CustomerName, p.CustomerPhone,
		p.ChequeNumber, p.BankName, p.ChequeDate, p.BillNumber, string(p.Status), p.Notes, p.CreatedAt, p.ResolvedAt)
	if err != nil {
		return fmt.Errorf("ledger: insert deferred payment: %w", err)
	}
	return nil
}

func (t *pgTx) ListDeferredPaymentsForTask(ctx context.Context, taskID string, method PaymentMethod) ([]DeferredPayment, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+deferredColumns+` FROM deferred_payments
WHERE task_id = $1 AND ($2 = '' OR method = $2) ORDER BY created_at ASC FOR UPDATE`, taskID, string(method))
	if err != nil {
		return nil, fmt.Errorf("ledger: list task deferred payments: %w", err)
	}
	return collectDeferred(rows)
}

func (t *pgTx) SaveDeferredPayment(ctx context.Context, p DeferredPayment) error {
	tag, err := t.tx.Exec(ctx, `UPDATE deferred_payments SET status = $2, notes = $3, resolved_at = $4 WHERE id = $1`,
		p.ID, string(p.Status), p.Notes, p.ResolvedAt)
	if err != nil {
		return fmt.Errorf("ledger: save deferred payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger: deferred payment %s: %w", p.ID, shared.ErrNotFound)
	}
	return nil
}

func scanTask(row pgx.Row, id string) (Task, error) {
	var (
		task         Task
		products     []byte
		history      []byte
		status       string
		lastMethod   string
		chequeStatus string
		onlineStatus string
	)
	err := row.Scan(&task.ID, &task.OrderID, &task.Branch, &task.Title, &products, &task.ProductRef,
		&task.Price, &task.Quantity, &task.Waste, &status, &task.AdvancePayment, &task.FullPayment,
		&task.EndPrice, &task.EndTime, &lastMethod, &chequeStatus, &task.ChequeNotes, &onlineStatus,
		&task.OnlinePaymentNotes, &history, &task.Version, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return Task{}, notFound(err, "task", id)
	}
	task.Status = TaskStatus(status)
	task.LastPaymentMethod = PaymentMethod(lastMethod)
	task.ChequeStatus = ClearanceStatus(chequeStatus)
	task.OnlinePaymentStatus = ClearanceStatus(onlineStatus)
	if err := json.Unmarshal(products, &task.Products); err != nil {
		return Task{}, fmt.Errorf("ledger: decode task products: %w", err)
	}
	if err := json.Unmarshal(history, &task.PaymentHistory); err != nil {
		return Task{}, fmt.Errorf("ledger: decode payment history: %w", err)
	}
	return task, nil
}

func encodeTaskJSON(task Task) ([]byte, []byte, error) {
	lines := task.Products
	if lines == nil {
		lines = []LineItem{}
	}
	entries := task.PaymentHistory
	if entries == nil {
		entries = []PaymentEntry{}
	}
	products, err := json.Marshal(lines)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger: encode task products: %w", err)
	}
	history, err := json.Marshal(entries)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger: encode payment history: %w", err)
	}
	return products, history, nil
}

func scanOrder(row pgx.Row, id string) (Order, error) {
	var order Order
	err := row.Scan(&order.ID, &order.Branch, &order.CustomerName, &order.CustomerPhone,
		&order.TotalPrice, &order.AdvancePayment, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return Order{}, notFound(err, "order", id)
	}
	return order, nil
}

func scanInventory(row pgx.Row, ref string) (InventoryItem, error) {
	var (
		item   InventoryItem
		status string
	)
	err := row.Scan(&item.ID, &item.Branch, &item.ProductID, &item.ProductCode, &item.Name,
		&item.Quantity, &status, &item.UpdatedAt)
	if err != nil {
		return InventoryItem{}, notFound(err, "inventory item", ref)
	}
	item.Status = StockStatus(status)
	return item, nil
}

func scanCreditAccount(row pgx.Row, key string) (CreditAccount, error) {
	var account CreditAccount
	err := row.Scan(&account.CustomerKey, &account.Name, &account.Balance, &account.UsedAmount, &account.UpdatedAt)
	if err != nil {
		return CreditAccount{}, notFound(err, "credit account", key)
	}
	return account, nil
}

func collectDeferred(rows pgx.Rows) ([]DeferredPayment, error) {
	defer rows.Close()
	var out []DeferredPayment
	for rows.Next() {
		var (
			p      DeferredPayment
			method string
			status string
		)
		if err := rows.Scan(&p.ID, &p.TaskID, &p.OrderID, &p.Branch, &method, &p.Amount, &p.CustomerName,
			&p.CustomerPhone, &p.ChequeNumber, &p.BankName, &p.ChequeDate, &p.BillNumber, &status, &p.Notes,
			&p.CreatedAt, &p.ResolvedAt); err != nil {
			return nil, err
		}
		p.Method = PaymentMethod(method)
		p.Status = ClearanceStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("ledger: %s %s: %w", entity, id, shared.ErrNotFound)
	}
	return fmt.Errorf("ledger: load %s: %w", entity, err)
}
