package branches

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/printhub/printhub/internal/shared"
)

// Repository defines persistence operations for branch tokens.
type Repository interface {
	FindToken(ctx context.Context, id string) (*Token, error)
	CreateToken(ctx context.Context, token Token) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindToken fetches a token by id.
func (r *PGRepository) FindToken(ctx context.Context, id string) (*Token, error) {
	var token Token
	err := r.pool.QueryRow(ctx,
		`SELECT id, branch, secret_hash, created_at, revoked_at FROM branch_tokens WHERE id=$1`, id).
		Scan(&token.ID, &token.Branch, &token.SecretHash, &token.CreatedAt, &token.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &token, nil
}

// CreateToken stores a new token; existing ids are replaced so seeding is repeatable.
func (r *PGRepository) CreateToken(ctx context.Context, token Token) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO branch_tokens (id, branch, secret_hash)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET branch=EXCLUDED.branch, secret_hash=EXCLUDED.secret_hash, revoked_at=NULL`,
		token.ID, token.Branch, token.SecretHash)
	return err
}

// StaticRepository keeps tokens in process; used with the memory store driver.
type StaticRepository struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

// NewStaticRepository constructs an empty StaticRepository.
func NewStaticRepository() *StaticRepository {
	return &StaticRepository{tokens: make(map[string]Token)}
}

// ParseStaticTokens builds a repository from "branch:secret,branch:secret". Each token id
// equals its branch name, so callers present "<branch>.<secret>".
func ParseStaticTokens(raw string) (*StaticRepository, error) {
	repo := NewStaticRepository()
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		branch, secret, ok := strings.Cut(pair, ":")
		branch, secret = strings.TrimSpace(branch), strings.TrimSpace(secret)
		if !ok || branch == "" || secret == "" || strings.Contains(branch, ".") {
			return nil, fmt.Errorf("branches: malformed token entry %q", pair)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
		if err != nil {
			return nil, fmt.Errorf("branches: hash secret for %s: %w", branch, err)
		}
		repo.tokens[branch] = Token{ID: branch, Branch: branch, SecretHash: string(hash)}
	}
	return repo, nil
}

// FindToken fetches a token by id.
func (r *StaticRepository) FindToken(_ context.Context, id string) (*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.tokens[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &token, nil
}

// CreateToken stores a token.
func (r *StaticRepository) CreateToken(_ context.Context, token Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.ID] = token
	return nil
}

var (
	_ Repository = (*PGRepository)(nil)
	_ Repository = (*StaticRepository)(nil)
)
