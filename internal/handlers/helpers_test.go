package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/deckofthoughts/apiserver/internal/auth"
	"github.com/deckofthoughts/apiserver/internal/logger"
	"github.com/deckofthoughts/apiserver/internal/services"
	"github.com/deckofthoughts/apiserver/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "handler-test-secret"

type testEnv struct {
	router  *chi.Mux
	tokens  *auth.TokenManager
	cards   *testutil.CardRepo
	events  *testutil.Publisher
	objects *testutil.Objects
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logger.Nop()
	users := testutil.NewUserRepo()
	cards := testutil.NewCardRepo()
	events := &testutil.Publisher{}
	objects := testutil.NewObjects()
	tokens := auth.NewTokenManager(testSecret, 0)

	authService, err := services.NewAuthService(users, tokens, services.PasswordPolicy{BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	cardService := services.NewCardService(cards, events, log)
	exportService := services.NewExportService(cards, objects)

	authMiddleware := RequireAuth(tokens)
	router := chi.NewRouter()
	AuthRouter(router, authService, authMiddleware, log)
	router.Route("/cards", func(r chi.Router) {
		CardRouter(r, cardService, exportService, authMiddleware, log)
	})

	return &testEnv{
		router:  router,
		tokens:  tokens,
		cards:   cards,
		events:  events,
		objects: objects,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// signup registers and logs in a user, returning the session token and user id.
func (e *testEnv) signup(t *testing.T, username, password string) (string, string) {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/register", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var login services.LoginResult
	decode(t, rec, &login)
	return login.Token, login.User.ID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(strings.NewReader(rec.Body.String())).Decode(dst))
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	decode(t, rec, &body)
	return body
}
