package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"textreply/backend/internal/facebook"
	"textreply/backend/pkg/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthFixture(t *testing.T, graph *fakeGraph) (*AuthService, *stores, *jwt.Service) {
	t.Helper()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" || r.Form.Get("client_secret") != "app-secret" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Invalid verification code format.","type":"OAuthException","code":100}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"short-token","token_type":"bearer","expires_in":3600}`))
	}))
	t.Cleanup(tokenSrv.Close)

	s := newStores(t)
	tokens := jwt.NewService("test-secret", time.Hour)
	svc := NewAuthService(AuthConfig{
		AppID:        "app-id",
		AppSecret:    "app-secret",
		BaseURL:      "https://api.example.com",
		DialogBase:   "https://www.facebook.com/v21.0",
		GraphAPIBase: tokenSrv.URL,
		HTTPClient:   tokenSrv.Client(),
	}, s.users, graph, tokens, nil)
	return svc, s, tokens
}

func TestAuthCodeURL(t *testing.T) {
	svc, _, _ := newAuthFixture(t, &fakeGraph{})

	raw := svc.AuthCodeURL("state-123")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "www.facebook.com", u.Host)
	assert.Equal(t, "/v21.0/dialog/oauth", u.Path)
	q := u.Query()
	assert.Equal(t, "app-id", q.Get("client_id"))
	assert.Equal(t, "https://api.example.com"+CallbackPath, q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, strings.Join(LoginScopes, " "), q.Get("scope"))
}

func TestLoginCreatesAccountWithLongLivedToken(t *testing.T) {
	graph := &fakeGraph{
		longLived: "long-token",
		profile: &facebook.UserProfile{
			ID:    "fb-42",
			Name:  "Ada",
			Email: "ada@example.com",
		},
	}
	svc, s, tokens := newAuthFixture(t, graph)
	ctx := context.Background()

	session, user, err := svc.Login(ctx, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "long-token", graph.profileToken)

	claims, err := tokens.ValidateToken(session)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "fb-42", claims.FacebookID)

	stored, err := s.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "long-token", stored.AccessToken)
	require.NotNil(t, stored.Email)
	assert.Equal(t, "ada@example.com", *stored.Email)
	assert.Nil(t, stored.ProfilePicture)

	again, _, err := svc.Login(ctx, "good-code")
	require.NoError(t, err)
	claims, err = tokens.ValidateToken(again)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID, "signing in again keeps the account")
}

func TestLoginFallsBackToShortLivedToken(t *testing.T) {
	graph := &fakeGraph{
		longLivedErr: errors.New("exchange failed"),
		profile:      &facebook.UserProfile{ID: "fb-7", Name: "Grace"},
	}
	svc, s, _ := newAuthFixture(t, graph)
	ctx := context.Background()

	_, user, err := svc.Login(ctx, "good-code")
	require.NoError(t, err)

	stored, err := s.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "short-token", stored.AccessToken)
	assert.Nil(t, stored.Email)
}

func TestLoginRejectsBadCode(t *testing.T) {
	svc, _, _ := newAuthFixture(t, &fakeGraph{profile: &facebook.UserProfile{ID: "x"}})

	_, _, err := svc.Login(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingCode)

	_, _, err = svc.Login(context.Background(), "bad-code")
	assert.Error(t, err)
}

func TestCurrentUser(t *testing.T) {
	svc, s, _ := newAuthFixture(t, &fakeGraph{})
	ctx := context.Background()
	account := s.seedAccount(t, "fb-9")

	user, err := svc.CurrentUser(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "fb-9", user.FacebookID)

	_, err = svc.CurrentUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
