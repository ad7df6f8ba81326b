package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"textreply/backend/internal/facebook"
	"textreply/backend/internal/models"
	"textreply/backend/internal/repository"
	"textreply/backend/pkg/jwt"
	"textreply/backend/pkg/logger"

	"golang.org/x/oauth2"
)

// CallbackPath is where Facebook redirects after the consent dialog
const CallbackPath = "/api/auth/facebook/callback"

// LoginScopes are the permissions requested at sign-in
var LoginScopes = []string{
	"email",
	"pages_show_list",
	"pages_messaging",
	"pages_manage_metadata",
	"pages_read_engagement",
}

var ErrMissingCode = errors.New("authorization code is required")

// AccountGraph is the Graph API surface used at sign-in
type AccountGraph interface {
	LongLivedToken(ctx context.Context, shortLivedToken string) (string, error)
	UserProfile(ctx context.Context, userAccessToken string) (*facebook.UserProfile, error)
}

// AuthConfig configures Facebook login
type AuthConfig struct {
	AppID        string
	AppSecret    string
	BaseURL      string // public URL of this API, used for the redirect URI
	DialogBase   string // e.g. https://www.facebook.com/v21.0
	GraphAPIBase string // e.g. https://graph.facebook.com/v21.0
	HTTPClient   *http.Client
}

// AuthService signs accounts in with Facebook and issues session tokens
type AuthService struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	users      repository.UserRepository
	graph      AccountGraph
	tokens     *jwt.Service
	log        *logger.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(cfg AuthConfig, users repository.UserRepository, graph AccountGraph, tokens *jwt.Service, log *logger.Logger) *AuthService {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthService{
		oauth: &oauth2.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppSecret,
			RedirectURL:  cfg.BaseURL + CallbackPath,
			Scopes:       LoginScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.DialogBase + "/dialog/oauth",
				TokenURL:  cfg.GraphAPIBase + "/oauth/access_token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: cfg.HTTPClient,
		users:      users,
		graph:      graph,
		tokens:     tokens,
		log:        log,
	}
}

// AuthCodeURL returns the consent dialog URL carrying state.
func (s *AuthService) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

// Login exchanges an authorization code for a session token. The account is
// created on first sign-in and refreshed on later ones.
func (s *AuthService) Login(ctx context.Context, code string) (string, *models.User, error) {
	if code == "" {
		return "", nil, ErrMissingCode
	}

	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return "", nil, fmt.Errorf("exchange code: %w", err)
	}

	accessToken := token.AccessToken
	if long, err := s.graph.LongLivedToken(ctx, accessToken); err != nil {
		s.log.Warn("Long-lived token exchange failed, keeping short-lived token", "error", err.Error())
	} else {
		accessToken = long
	}

	profile, err := s.graph.UserProfile(ctx, accessToken)
	if err != nil {
		return "", nil, fmt.Errorf("fetch profile: %w", err)
	}

	user := &models.User{
		FacebookID:  profile.ID,
		Name:        profile.Name,
		AccessToken: accessToken,
	}
	if profile.Email != "" {
		email := profile.Email
		user.Email = &email
	}
	if pic := profile.PictureURL(); pic != "" {
		user.ProfilePicture = &pic
	}

	stored, err := s.users.Upsert(ctx, user)
	if err != nil {
		return "", nil, fmt.Errorf("save account: %w", err)
	}

	session, err := s.tokens.GenerateToken(stored.ID, stored.FacebookID)
	if err != nil {
		return "", nil, fmt.Errorf("sign session token: %w", err)
	}

	s.log.Info("Account signed in", "user_id", stored.ID)
	return session, stored, nil
}

// CurrentUser returns the signed-in account.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return user, nil
}
