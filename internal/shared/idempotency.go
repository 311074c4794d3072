package shared

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrIdempotencyConflict reports a replayed request key.
var ErrIdempotencyConflict = fmt.Errorf("idempotent request already processed: %w", ErrConflict)

const uniqueViolation = "23505"

func checkKey(key, module string) error {
	if key == "" {
		return Invalidf("idempotency key required")
	}
	if module == "" {
		return errors.New("shared: idempotency module required")
	}
	return nil
}

// IdempotencyStore claims request keys in the idempotency_keys table.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// CheckAndInsert claims key for module, or returns ErrIdempotencyConflict when a
// previous request already holds it.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil || s.pool == nil {
		return errors.New("shared: idempotency store not initialised")
	}
	if err := checkKey(key, module); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module) VALUES ($1, $2)`, key, module)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrIdempotencyConflict
	}
	if err != nil {
		return fmt.Errorf("shared: claim idempotency key: %w", err)
	}
	return nil
}

// Delete releases key so a failed request can be retried with it.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.pool == nil || key == "" {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key); err != nil {
		return fmt.Errorf("shared: release idempotency key: %w", err)
	}
	return nil
}

// Cleanup drops keys claimed more than olderThan ago and reports how many went.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < NOW() - make_interval(secs => $1)`,
		olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("shared: prune idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MemoryIdempotency keeps claimed keys in process for the memory store driver.
type MemoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

// NewMemoryIdempotency constructs MemoryIdempotency.
func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{keys: make(map[string]time.Time), now: time.Now}
}

// CheckAndInsert claims key.
func (m *MemoryIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	if err := checkKey(key, module); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return ErrIdempotencyConflict
	}
	m.keys[key] = m.now()
	return nil
}

// Delete releases key.
func (m *MemoryIdempotency) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// Cleanup drops keys claimed more than olderThan ago.
func (m *MemoryIdempotency) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-olderThan)
	var removed int64
	for key, at := range m.keys {
		if at.Before(cutoff) {
			delete(m.keys, key)
			removed++
		}
	}
	return removed, nil
}
