package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/printhub/printhub/internal/shared"
)

// MemoryStore keeps every record in process. WithTx runs one unit of work at a time
// against a private copy of the state and publishes it only when fn succeeds. Readers
// must not be called from inside fn.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	orders         map[string]Order
	tasks          map[string]Task
	inventory      map[string]InventoryItem
	inventoryOrder []string
	catalog        map[string]CatalogProduct
	credits        map[string]CreditAccount
	creditEntries  []CreditEntry
	deferred       map[string]DeferredPayment
	deferredOrder  []string
	seqs           map[string]int64
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		orders:    map[string]Order{},
		tasks:     map[string]Task{},
		inventory: map[string]InventoryItem{},
		catalog:   map[string]CatalogProduct{},
		credits:   map[string]CreditAccount{},
		deferred:  map[string]DeferredPayment{},
		seqs:      map[string]int64{},
	}}
}

func (s *memState) clone() *memState {
	out := &memState{
		orders:         make(map[string]Order, len(s.orders)),
		tasks:          make(map[string]Task, len(s.tasks)),
		inventory:      make(map[string]InventoryItem, len(s.inventory)),
		inventoryOrder: append([]string(nil), s.inventoryOrder...),
		catalog:        make(map[string]CatalogProduct, len(s.catalog)),
		credits:        make(map[string]CreditAccount, len(s.credits)),
		creditEntries:  append([]CreditEntry(nil), s.creditEntries...),
		deferred:       make(map[string]DeferredPayment, len(s.deferred)),
		deferredOrder:  append([]string(nil), s.deferredOrder...),
		seqs:           make(map[string]int64, len(s.seqs)),
	}
	for k, v := range s.orders {
		out.orders[k] = v
	}
	for k, v := range s.tasks {
		out.tasks[k] = v.Clone()
	}
	for k, v := range s.inventory {
		out.inventory[k] = v
	}
	for k, v := range s.catalog {
		out.catalog[k] = v
	}
	for k, v := range s.credits {
		out.credits[k] = v
	}
	for k, v := range s.deferred {
		out.deferred[k] = v
	}
	for k, v := range s.seqs {
		out.seqs[k] = v
	}
	return out
}

// WithTx executes fn against a staged copy of the store.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := m.state.clone()
	if err := fn(ctx, &memTx{state: staged}); err != nil {
		return err
	}
	m.state = staged
	return nil
}

// PutInventoryItem seeds or replaces an inventory item.
func (m *MemoryStore) PutInventoryItem(item InventoryItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	(&memTx{state: m.state}).putInventory(item)
}

// PutCatalogProduct seeds or replaces a catalog entry.
func (m *MemoryStore) PutCatalogProduct(product CatalogProduct) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.catalog[product.ID] = product
}

// InventoryItem returns a stored inventory item by id.
func (m *MemoryStore) InventoryItem(id string) (InventoryItem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.state.inventory[id]
	return item, ok
}

// GetTask loads a task by id.
func (m *MemoryStore) GetTask(_ context.Context, id string) (Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.state.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("ledger: task %s: %w", id, shared.ErrNotFound)
	}
	return task.Clone(), nil
}

// GetOrder loads an order by id.
func (m *MemoryStore) GetOrder(_ context.Context, id string) (Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.state.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("ledger: order %s: %w", id, shared.ErrNotFound)
	}
	return order, nil
}

// GetCreditAccount loads a credit account.
func (m *MemoryStore) GetCreditAccount(_ context.Context, customerKey string) (CreditAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.state.credits[customerKey]
	if !ok {
		return CreditAccount{}, fmt.Errorf("ledger: credit account %s: %w", customerKey, shared.ErrNotFound)
	}
	return account, nil
}

// ListCreditEntries returns the newest entries first.
func (m *MemoryStore) ListCreditEntries(_ context.Context, customerKey string, limit int) ([]CreditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []CreditEntry
	for i := len(m.state.creditEntries) - 1; i >= 0; i-- {
		entry := m.state.creditEntries[i]
		if entry.CustomerKey != customerKey {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListDeferredPayments returns matching records oldest first.
func (m *MemoryStore) ListDeferredPayments(_ context.Context, filter DeferredFilter) ([]DeferredPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []DeferredPayment
	for _, id := range m.state.deferredOrder {
		payment := m.state.deferred[id]
		if filter.Branch != "" && payment.Branch != filter.Branch {
			continue
		}
		if filter.Status != "" && payment.Status != filter.Status {
			continue
		}
		if filter.Method != "" && payment.Method != filter.Method {
			continue
		}
		if !filter.CreatedBefore.IsZero() && !payment.CreatedAt.Before(filter.CreatedBefore) {
			continue
		}
		out = append(out, payment)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type memTx struct {
	state *memState
}

func (t *memTx) GetTaskForUpdate(_ context.Context, id string) (Task, error) {
	task, ok := t.state.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("ledger: task %s: %w", id, shared.ErrNotFound)
	}
	return task.Clone(), nil
}

func (t *memTx) GetOrderForUpdate(_ context.Context, id string) (Order, error) {
	order, ok := t.state.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("ledger: order %s: %w", id, shared.ErrNotFound)
	}
	return order, nil
}

func (t *memTx) NextOrderSeq(_ context.Context, branch, period string) (int64, error) {
	key := branch + "|" + period
	t.state.seqs[key]++
	return t.state.seqs[key], nil
}

func (t *memTx) InsertOrder(_ context.Context, order Order) error {
	if _, exists := t.state.orders[order.ID]; exists {
		return shared.Conflictf("ledger: order %s already exists", order.ID)
	}
	t.state.orders[order.ID] = order
	return nil
}

func (t *memTx) InsertTask(_ context.Context, task Task) error {
	if _, exists := t.state.tasks[task.ID]; exists {
		return shared.Conflictf("ledger: task %s already exists", task.ID)
	}
	if task.Version == 0 {
		task.Version = 1
	}
	t.state.tasks[task.ID] = task.Clone()
	return nil
}

func (t *memTx) SaveOrder(_ context.Context, order Order) error {
	if _, ok := t.state.orders[order.ID]; !ok {
		return fmt.Errorf("ledger: order %s: %w", order.ID, shared.ErrNotFound)
	}
	t.state.orders[order.ID] = order
	return nil
}

func (t *memTx) SaveTask(_ context.Context, task Task) (Task, error) {
	current, ok := t.state.tasks[task.ID]
	if !ok {
		return Task{}, fmt.Errorf("ledger: task %s: %w", task.ID, shared.ErrNotFound)
	}
	if current.Version != task.Version {
		return Task{}, shared.Conflictf("ledger: task %s modified concurrently", task.ID)
	}
	task.Version++
	t.state.tasks[task.ID] = task.Clone()
	return task.Clone(), nil
}

func (t *memTx) GetInventoryItemByID(_ context.Context, branch, id string) (InventoryItem, error) {
	item, ok := t.state.inventory[id]
	if !ok || item.Branch != branch {
		return InventoryItem{}, fmt.Errorf("ledger: inventory item %s: %w", id, shared.ErrNotFound)
	}
	return item, nil
}

func (t *memTx) FindInventoryItem(_ context.Context, branch string, field LookupField, value string) (InventoryItem, error) {
	if value != "" {
		for _, id := range t.state.inventoryOrder {
			item := t.state.inventory[id]
			if item.Branch != branch {
				continue
			}
			switch field {
			case FieldProductID:
				if item.ProductID == value {
					return item, nil
				}
			case FieldProductCode:
				if item.ProductCode == value {
					return item, nil
				}
			}
		}
	}
	return InventoryItem{}, fmt.Errorf("ledger: inventory item %s=%s: %w", field, value, shared.ErrNotFound)
}

func (t *memTx) GetCatalogProduct(_ context.Context, id string) (CatalogProduct, error) {
	product, ok := t.state.catalog[id]
	if !ok {
		return CatalogProduct{}, fmt.Errorf("ledger: catalog product %s: %w", id, shared.ErrNotFound)
	}
	return product, nil
}

func (t *memTx) SaveInventoryItem(_ context.Context, item InventoryItem) error {
	if _, ok := t.state.inventory[item.ID]; !ok {
		return fmt.Errorf("ledger: inventory item %s: %w", item.ID, shared.ErrNotFound)
	}
	t.state.inventory[item.ID] = item
	return nil
}

func (t *memTx) putInventory(item InventoryItem) {
	if _, exists := t.state.inventory[item.ID]; !exists {
		t.state.inventoryOrder = append(t.state.inventoryOrder, item.ID)
	}
	t.state.inventory[item.ID] = item
}

func (t *memTx) GetCreditAccountForUpdate(_ context.Context, customerKey string) (CreditAccount, error) {
	account, ok := t.state.credits[customerKey]
	if !ok {
		return CreditAccount{}, fmt.Errorf("ledger: credit account %s: %w", customerKey, shared.ErrNotFound)
	}
	return account, nil
}

func (t *memTx) SaveCreditAccount(_ context.Context, account CreditAccount) error {
	t.state.credits[account.CustomerKey] = account
	return nil
}

func (t *memTx) InsertCreditEntry(_ context.Context, entry CreditEntry) error {
	t.state.creditEntries = append(t.state.creditEntries, entry)
	return nil
}

func (t *memTx) InsertDeferredPayment(_ context.Context, payment DeferredPayment) error {
	if _, exists := t.state.deferred[payment.ID]; exists {
		return shared.Conflictf("ledger: deferred payment %s already exists", payment.ID)
	}
	t.state.deferred[payment.ID] = payment
	t.state.deferredOrder = append(t.state.deferredOrder, payment.ID)
	return nil
}

func (t *memTx) ListDeferredPaymentsForTask(_ context.Context, taskID string, method PaymentMethod) ([]DeferredPayment, error) {
	var out []DeferredPayment
	for _, id := range t.state.deferredOrder {
		payment := t.state.deferred[id]
		if payment.TaskID == taskID && (method == "" || payment.Method == method) {
			out = append(out, payment)
		}
	}
	return out, nil
}

func (t *memTx) SaveDeferredPayment(_ context.Context, payment DeferredPayment) error {
	if _, ok := t.state.deferred[payment.ID]; !ok {
		return fmt.Errorf("ledger: deferred payment %s: %w", payment.ID, shared.ErrNotFound)
	}
	t.state.deferred[payment.ID] = payment
	return nil
}
