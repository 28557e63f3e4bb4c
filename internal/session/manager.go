package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mnemosyne-api/internal/model"
	"mnemosyne-api/pkg/uid"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

var (
	// ErrInvalidToken covers malformed, badly signed and expired tokens.
	ErrInvalidToken = errors.New("invalid or expired session token")

	// ErrRevoked means the token verified but its session was ended.
	ErrRevoked = errors.New("session has been revoked")
)

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Manager issues and validates session tokens. Tokens are HS256 JWTs whose
// jti must still be present in the Store.
type Manager struct {
	secret []byte
	ttl    time.Duration
	store  Store
	now    func() time.Time
	log    *zap.SugaredLogger
}

// Option configures a Manager.
type Option func(*Manager)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session manager.
func NewManager(secret []byte, ttl time.Duration, store Store, log *zap.SugaredLogger, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	m := &Manager{
		secret: secret,
		ttl:    ttl,
		store:  store,
		now:    time.Now,
		log:    log.Named("session"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue creates a new session for id.
func (m *Manager) Issue(ctx context.Context, id model.Identity) (*model.Session, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	tokenID := uid.New()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	if err := m.store.Save(ctx, tokenID, id.UserID, m.ttl); err != nil {
		return nil, err
	}

	m.log.Debugw("session issued", "user_id", id.UserID, "expires_at", expiresAt)

	return &model.Session{
		Token:     signed,
		UserID:    id.UserID,
		Email:     id.Email,
		ExpiresAt: expiresAt,
	}, nil
}

func (m *Manager) parse(token string) (*claims, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Subject == "" || c.ID == "" {
		return nil, ErrInvalidToken
	}
	return &c, nil
}

// Validate checks the signature, expiry and that the session is still live.
func (m *Manager) Validate(ctx context.Context, token string) (model.Identity, error) {
	if token == "" {
		return model.Identity{}, ErrInvalidToken
	}

	c, err := m.parse(token)
	if err != nil {
		return model.Identity{}, err
	}

	userID, err := m.store.Lookup(ctx, c.ID)
	if err != nil {
		return model.Identity{}, err
	}
	if userID == "" || userID != c.Subject {
		return model.Identity{}, ErrRevoked
	}

	return model.Identity{UserID: c.Subject, Email: c.Email}, nil
}

// Revoke ends the session behind token and returns whose it was.
func (m *Manager) Revoke(ctx context.Context, token string) (model.Identity, error) {
	c, err := m.parse(token)
	if err != nil {
		return model.Identity{}, err
	}

	if err := m.store.Delete(ctx, c.ID); err != nil {
		return model.Identity{}, fmt.Errorf("failed to revoke session: %w", err)
	}

	m.log.Debugw("session revoked", "user_id", c.Subject)
	return model.Identity{UserID: c.Subject, Email: c.Email}, nil
}

// Refresh swaps a live token for a new one with a full lifetime.
func (m *Manager) Refresh(ctx context.Context, token string) (*model.Session, error) {
	id, err := m.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	next, err := m.Issue(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := m.Revoke(ctx, token); err != nil {
		m.log.Warnw("failed to revoke refreshed session", "user_id", id.UserID, "error", err)
	}
	return next, nil
}
