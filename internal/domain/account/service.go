package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nursebridge/nursebridge/internal/platform/apperr"
	"github.com/nursebridge/nursebridge/internal/platform/auth"
)

const msgMissingCredentials = "Please enter both email and password"

// TokenIssuer signs access tokens; *auth.TokenIssuer implements it.
type TokenIssuer interface {
	Issue(accountID uuid.UUID, email string, roles []string) (string, time.Time, error)
}

type Service struct {
	accounts AccountRepository
	tokens   TokenIssuer
	logger   zerolog.Logger
}

func NewService(accounts AccountRepository, tokens TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{accounts: accounts, tokens: tokens, logger: logger.With().Str("service", "account").Logger()}
}

// SignUp creates an account and signs it in. Only administrators may
// create administrator accounts.
func (s *Service) SignUp(ctx context.Context, caller auth.Identity, req SignUpRequest) (*Session, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: %s", apperr.ErrValidation, msgMissingCredentials)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email address", apperr.ErrValidation)
	}
	role := req.Role
	if role == "" {
		role = auth.RoleNurse
	}
	if !auth.ValidRoles[role] {
		return nil, fmt.Errorf("%w: invalid role: %s", apperr.ErrValidation, role)
	}
	if role == auth.RoleAdmin && !caller.IsAdmin() {
		return nil, fmt.Errorf("%w: only administrators can create administrator accounts", apperr.ErrForbidden)
	}

	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrWeakPassword) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrValidation, err.Error())
	}
	if err != nil {
		return nil, apperr.Logged(s.logger, "account.signup", err)
	}

	a := &Account{Email: email, PasswordHash: hash, Role: role}
	if err := s.accounts.Create(ctx, a); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, fmt.Errorf("%w: an account with this email already exists", apperr.ErrConflict)
		}
		return nil, apperr.Logged(s.logger, "account.signup", err)
	}
	return s.session(a)
}

// SignIn verifies credentials and issues a token.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*Session, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: %s", apperr.ErrValidation, msgMissingCredentials)
	}

	invalid := fmt.Errorf("%w: invalid email or password", apperr.ErrUnauthorized)
	a, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, apperr.Logged(s.logger, "account.signin", err)
	}
	if !auth.CheckPassword(a.PasswordHash, req.Password) {
		return nil, invalid
	}
	return s.session(a)
}

// Me returns the caller's account.
func (s *Service) Me(ctx context.Context, caller auth.Identity) (*Account, error) {
	return s.Get(ctx, caller.UserID)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Account, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: account not found", apperr.ErrNotFound)
	}
	a, err := s.accounts.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: account not found", apperr.ErrNotFound)
	}
	return a, apperr.Logged(s.logger, "account.get", err)
}

// Email returns the address of an account. It backs notification email.
func (s *Service) Email(ctx context.Context, id uuid.UUID) (string, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return a.Email, nil
}

func (s *Service) session(a *Account) (*Session, error) {
	token, exp, err := s.tokens.Issue(a.ID, a.Email, []string{a.Role})
	if err != nil {
		return nil, apperr.Logged(s.logger, "account.token", err)
	}
	return &Session{Token: token, ExpiresAt: exp, Account: a}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
