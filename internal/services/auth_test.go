package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/deckofthoughts/apiserver/internal/auth"
	"github.com/deckofthoughts/apiserver/internal/store"
	"github.com/deckofthoughts/apiserver/internal/testutil"
	"github.com/deckofthoughts/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type failingIssuer struct{}

func (failingIssuer) Issue(types.Identity) (string, error) {
	return "", errors.New("signing failed")
}

type brokenUserRepo struct{ err error }

func (r brokenUserRepo) GetByID(context.Context, string) (types.User, error) {
	return types.User{}, r.err
}

func (r brokenUserRepo) GetByUsername(context.Context, string) (types.User, error) {
	return types.User{}, r.err
}

func (r brokenUserRepo) Create(context.Context, types.User) (types.User, error) {
	return types.User{}, r.err
}

func newAuthService(t *testing.T) (*AuthService, *testutil.UserRepo, *auth.TokenManager) {
	t.Helper()
	repo := testutil.NewUserRepo()
	tokens := auth.NewTokenManager("test-secret", 0)
	return mustAuthService(t, repo, tokens, PasswordPolicy{BcryptCost: bcrypt.MinCost}), repo, tokens
}

func mustAuthService(t *testing.T, repo UserRepository, tokens TokenIssuer, policy PasswordPolicy) *AuthService {
	t.Helper()
	svc, err := NewAuthService(repo, tokens, policy)
	require.NoError(t, err)
	return svc
}

func TestNewAuthService_BcryptCostRange(t *testing.T) {
	tokens := auth.NewTokenManager("s", 0)
	for _, cost := range []int{bcrypt.MinCost - 1, bcrypt.MaxCost + 1, -5} {
		svc, err := NewAuthService(testutil.NewUserRepo(), tokens, PasswordPolicy{BcryptCost: cost})
		require.Error(t, err, "cost %d", cost)
		assert.Nil(t, svc)
	}

	svc, err := NewAuthService(testutil.NewUserRepo(), tokens, PasswordPolicy{BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	assert.NotEmpty(t, svc.dummyHash)
}

func TestAuthService_Register(t *testing.T) {
	svc, repo, _ := newAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Positive(t, user.CreatedAt)

	stored, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "pw1", stored.PasswordHash)
	assert.NotContains(t, stored.PasswordHash, "pw1")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("pw1")))
}

func TestAuthService_Register_TrimsUsername(t *testing.T) {
	svc, _, _ := newAuthService(t)

	user, err := svc.Register(context.Background(), "  bob ", "pw")
	require.NoError(t, err)
	assert.Equal(t, "bob", user.Username)

	_, err = svc.Register(context.Background(), "bob", "other")
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestAuthService_Register_Validation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		field    string
	}{
		{"missing username", "", "pw", "username"},
		{"blank username", "   ", "pw", "username"},
		{"missing password", "alice", "", "password"},
		{"NUL in username", "al\x00ice", "pw", "username"},
		{"password over bcrypt limit", "alice", strings.Repeat("x", 73), "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newAuthService(t)

			_, err := svc.Register(context.Background(), tt.username, tt.password)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Zero(t, repo.Count())
		})
	}
}

func TestAuthService_Register_MinLength(t *testing.T) {
	repo := testutil.NewUserRepo()
	svc := mustAuthService(t, repo, auth.NewTokenManager("s", 0), PasswordPolicy{MinLength: 4, BcryptCost: bcrypt.MinCost})

	_, err := svc.Register(context.Background(), "alice", "abc")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password must be at least 4 characters", verr.Message)

	_, err = svc.Register(context.Background(), "alice", "abcd")
	assert.NoError(t, err)
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	svc, repo, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "pw1")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "pw2")
	assert.ErrorIs(t, err, ErrDuplicateUsername)
	assert.Equal(t, 1, repo.Count())
}

func TestAuthService_Register_ConcurrentSameUsername(t *testing.T) {
	svc, repo, _ := newAuthService(t)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		dupes     int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Register(context.Background(), "race", "pw")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrDuplicateUsername):
				dupes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, dupes)
	assert.Equal(t, 1, repo.Count())
}

func TestAuthService_Register_RepoError(t *testing.T) {
	svc := mustAuthService(t, brokenUserRepo{err: errors.New("db down")}, auth.NewTokenManager("s", 0), PasswordPolicy{BcryptCost: bcrypt.MinCost})

	_, err := svc.Register(context.Background(), "alice", "pw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateUsername)
	assert.Contains(t, err.Error(), "db down")
}

func TestAuthService_Login(t *testing.T) {
	svc, _, tokens := newAuthService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "alice", "pw1")
	require.NoError(t, err)

	result, err := svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, types.Identity{ID: registered.ID, Username: "alice"}, result.User)

	identity, err := tokens.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User, identity)
}

func TestAuthService_Login_UniformFailure(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "pw1")
	require.NoError(t, err)

	_, wrongPassword := svc.Login(ctx, "alice", "nope")
	_, unknownUser := svc.Login(ctx, "ghost", "pw1")
	_, empty := svc.Login(ctx, "", "")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, ErrInvalidCredentials)
	assert.ErrorIs(t, empty, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestAuthService_Login_IssuerError(t *testing.T) {
	repo := testutil.NewUserRepo()
	svc := mustAuthService(t, repo, failingIssuer{}, PasswordPolicy{BcryptCost: bcrypt.MinCost})
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "pw1")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice", "pw1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_Me(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "alice", "pw1")
	require.NoError(t, err)

	me, err := svc.Me(ctx, types.Identity{ID: registered.ID, Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, registered, me)

	_, err = svc.Me(ctx, types.Identity{ID: "gone"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
