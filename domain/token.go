package domain

import (
	"errors"
	"sync"
	"time"
)

type TokenKind string

const (
	TokenKindUnauthenticated TokenKind = "unauthenticated"
	TokenKindAuthenticated   TokenKind = "authenticated"
	TokenKindStale           TokenKind = "stale"
)

// RefreshSafetyMargin is the lead time before true expiry at which a refresh
// is due. Refreshing closer to expiry risks an in-flight request being
// rejected mid-flight.
const RefreshSafetyMargin = 5 * time.Minute

var ErrInvalidToken = errors.New("authenticated token must carry a positive validity duration")

// Token is a credential pair obtained from the authentication endpoint.
// It is replaced atomically on refresh, never partially updated.
type Token struct {
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
	ExpiresIn    time.Duration
	Kind         TokenKind
}

// TokenLifecycle owns the current token and its expiry bookkeeping. It is
// touched from caller context and from code paths driven by the stream
// session, so the check-then-act sequences are mutex-guarded.
type TokenLifecycle struct {
	mu     sync.Mutex
	token  *Token
	expiry time.Time

	now func() time.Time
}

func NewTokenLifecycle() *TokenLifecycle {
	return &TokenLifecycle{now: time.Now}
}

// Record stores a freshly obtained token and its absolute expiry. A failed
// refresh must not call Record: the prior token stays intact.
func (l *TokenLifecycle) Record(t *Token) error {
	if t.Kind == TokenKindAuthenticated && t.ExpiresIn <= 0 {
		return ErrInvalidToken
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.token = t
	l.expiry = t.IssuedAt.Add(t.ExpiresIn)
	return nil
}

// IsDue reports whether a refresh is due: no token is held, or less than
// margin remains until expiry.
func (l *TokenLifecycle) IsDue(margin time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token == nil {
		return true
	}
	return l.expiry.Sub(l.now()) < margin
}

func (l *TokenLifecycle) AccessToken() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token == nil {
		return "", false
	}
	return l.token.AccessToken, true
}

func (l *TokenLifecycle) RefreshToken() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token == nil || l.token.RefreshToken == "" {
		return "", false
	}
	return l.token.RefreshToken, true
}

// Kind reports the lifecycle state: unauthenticated before the first Record,
// stale once the recorded token has passed its expiry.
func (l *TokenLifecycle) Kind() TokenKind {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token == nil {
		return TokenKindUnauthenticated
	}
	if !l.now().Before(l.expiry) {
		return TokenKindStale
	}
	return l.token.Kind
}
