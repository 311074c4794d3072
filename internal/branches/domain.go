package branches

import (
	"time"
)

// Token is a branch API credential. Only the bcrypt hash of the secret is stored.
type Token struct {
	ID         string
	Branch     string
	SecretHash string
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// Active reports whether the token may still authenticate.
func (t Token) Active() bool {
	return t.RevokedAt == nil
}
