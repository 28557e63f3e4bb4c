package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"mnemosyne-api/internal/model"
	"mnemosyne-api/internal/repository"
	"mnemosyne-api/internal/session"
	"mnemosyne-api/pkg/uid"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLength = 72
)

// AuthService handles signup, login and session lifecycle.
type AuthService struct {
	accounts repository.AccountRepository
	sessions *session.Manager
	data     *DataService
	cost     int
	log      *zap.SugaredLogger
}

// NewAuthService creates an auth service. data may be nil, in which case
// logout does not touch the cache.
func NewAuthService(accounts repository.AccountRepository, sessions *session.Manager, data *DataService, log *zap.SugaredLogger) *AuthService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &AuthService{
		accounts: accounts,
		sessions: sessions,
		data:     data,
		cost:     bcrypt.DefaultCost,
		log:      log.Named("auth"),
	}
}

// SetHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *AuthService) SetHashCost(cost int) {
	s.cost = cost
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("email", "is not a valid address")
	}
	return email, nil
}

// Signup registers a new account and signs it in.
func (s *AuthService) Signup(ctx context.Context, email, password string) (*model.Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, invalid("password", "must be at least %d characters", minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return nil, invalid("password", "must be at most %d bytes", maxPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}

	account := &model.Account{ID: uid.New(), Email: email, PasswordHash: string(hash)}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		s.log.Errorw("failed to create account", "error", err)
		return nil, remote("create your account", err)
	}

	s.log.Infow("account created", "user_id", account.ID)
	return s.issue(ctx, account)
}

// Login verifies credentials and starts a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.Session, error) {
	account, err := s.accounts.GetAccountByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		s.log.Errorw("failed to load account", "error", err)
		return nil, remote("sign you in", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(ctx, account)
}

func (s *AuthService) issue(ctx context.Context, account *model.Account) (*model.Session, error) {
	sess, err := s.sessions.Issue(ctx, model.Identity{UserID: account.ID, Email: account.Email})
	if err != nil {
		s.log.Errorw("failed to issue session", "user_id", account.ID, "error", err)
		return nil, remote("start your session", err)
	}
	return sess, nil
}

// Logout ends the session and drops the user's cache keys.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	id, err := s.sessions.Revoke(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrInvalidToken) {
			return err
		}
		return remote("sign you out", err)
	}

	if s.data != nil {
		s.data.ForgetUser(id.UserID)
	}
	s.log.Infow("signed out", "user_id", id.UserID)
	return nil
}

// Refresh trades a live token for a new one.
func (s *AuthService) Refresh(ctx context.Context, token string) (*model.Session, error) {
	sess, err := s.sessions.Refresh(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrInvalidToken) || errors.Is(err, session.ErrRevoked) {
			return nil, err
		}
		return nil, remote("refresh your session", err)
	}
	return sess, nil
}

// Authenticate resolves a bearer token to its caller.
func (s *AuthService) Authenticate(ctx context.Context, token string) (model.Identity, error) {
	return s.sessions.Validate(ctx, token)
}
