package branches

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/printhub/printhub/internal/shared"
)

// Service wraps branch credential rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates a "<tokenID>.<secret>" credential and returns the branch it
// belongs to.
func (s *Service) Authenticate(ctx context.Context, credential string) (string, error) {
	id, secret, ok := strings.Cut(strings.TrimSpace(credential), ".")
	if !ok || id == "" || secret == "" {
		return "", fmt.Errorf("branches: malformed credential: %w", shared.ErrUnauthorized)
	}
	token, err := s.repo.FindToken(ctx, id)
	if err != nil {
		return "", fmt.Errorf("branches: unknown token: %w", shared.ErrUnauthorized)
	}
	if !token.Active() {
		return "", fmt.Errorf("branches: token %s revoked: %w", id, shared.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(token.SecretHash), []byte(secret)); err != nil {
		return "", fmt.Errorf("branches: secret mismatch: %w", shared.ErrUnauthorized)
	}
	return token.Branch, nil
}

// Issue creates a fresh token for branch and returns the credential to hand out. The
// secret is not recoverable afterwards.
func (s *Service) Issue(ctx context.Context, branch string) (string, error) {
	branch = strings.TrimSpace(branch)
	if branch == "" {
		return "", shared.Invalidf("branches: branch required")
	}
	id, err := randomHex(8)
	if err != nil {
		return "", err
	}
	secret, err := randomHex(24)
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("branches: hash secret: %w", err)
	}
	if err := s.repo.CreateToken(ctx, Token{ID: id, Branch: branch, SecretHash: string(hash)}); err != nil {
		return "", err
	}
	return id + "." + secret, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("branches: random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
