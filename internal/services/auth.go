package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/deckofthoughts/apiserver/internal/store"
	"github.com/deckofthoughts/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// TokenIssuer signs session tokens for an identity.
type TokenIssuer interface {
	Issue(identity types.Identity) (string, error)
}

// PasswordPolicy holds the password rules applied at registration.
// The zero value only requires a non-empty password.
type PasswordPolicy struct {
	MinLength  int
	BcryptCost int
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token string         `json:"token"`
	User  types.Identity `json:"user"`
}

// AuthService registers and authenticates users.
type AuthService struct {
	repo      UserRepository
	tokens    TokenIssuer
	policy    PasswordPolicy
	dummyHash []byte
}

// NewAuthService fails when policy.BcryptCost is outside bcrypt's accepted
// range. A zero cost selects bcrypt.DefaultCost.
func NewAuthService(repo UserRepository, tokens TokenIssuer, policy PasswordPolicy) (*AuthService, error) {
	if policy.MinLength < 1 {
		policy.MinLength = 1
	}
	if policy.BcryptCost == 0 {
		policy.BcryptCost = bcrypt.DefaultCost
	}
	if policy.BcryptCost < bcrypt.MinCost || policy.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d outside %d..%d", policy.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	// Compared against when the username is unknown so both login failure
	// paths pay for one bcrypt comparison.
	dummy, err := bcrypt.GenerateFromPassword([]byte("deck-dummy-password"), policy.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}
	return &AuthService{
		repo:      repo,
		tokens:    tokens,
		policy:    policy,
		dummyHash: dummy,
	}, nil
}

// Register creates a user with a bcrypt hash of password.
func (s *AuthService) Register(ctx context.Context, username, password string) (types.PublicUser, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return types.PublicUser{}, invalid("username", "username is required")
	}
	if err := validateText("username", username); err != nil {
		return types.PublicUser{}, err
	}
	if password == "" {
		return types.PublicUser{}, invalid("password", "password is required")
	}
	if n := len([]rune(password)); n < s.policy.MinLength {
		return types.PublicUser{}, invalid("password", "password must be at least %d characters", s.policy.MinLength)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.policy.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return types.PublicUser{}, invalid("password", "password must be at most 72 bytes")
		}
		return types.PublicUser{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:     username,
		PasswordHash: string(hashed),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.PublicUser{}, ErrDuplicateUsername
		}
		return types.PublicUser{}, fmt.Errorf("create user: %w", err)
	}

	return user.Public(), nil
}

// Login verifies the credentials and issues a session token.
func (s *AuthService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	identity := types.Identity{ID: user.ID, Username: user.Username}
	token, err := s.tokens.Issue(identity)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	return LoginResult{Token: token, User: identity}, nil
}

// Me returns the public fields of the user behind identity.
func (s *AuthService) Me(ctx context.Context, identity types.Identity) (types.PublicUser, error) {
	user, err := s.repo.GetByID(ctx, identity.ID)
	if err != nil {
		return types.PublicUser{}, err
	}
	return user.Public(), nil
}
