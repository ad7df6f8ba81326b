// Package facebook talks to the Graph API and decodes Messenger webhook deliveries.
package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultGraphBase = "https://graph.facebook.com/v21.0"

// APIError is a non-2xx Graph API answer.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
	Code       int
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("facebook: status %d: %s (%s %d)", e.StatusCode, e.Message, e.Type, e.Code)
	}
	return fmt.Sprintf("facebook: status %d: %s", e.StatusCode, e.Message)
}

// Picture is the Graph API picture edge
type Picture struct {
	Data struct {
		URL string `json:"url"`
	} `json:"data"`
}

// UserProfile is the signed-in account as returned by /me
type UserProfile struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Email   string   `json:"email,omitempty"`
	Picture *Picture `json:"picture,omitempty"`
}

// PictureURL returns the profile picture URL or "" when none was returned.
func (p *UserProfile) PictureURL() string {
	if p.Picture == nil {
		return ""
	}
	return p.Picture.Data.URL
}

// ManagedPage is a page the account administers, with its page token.
type ManagedPage struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	AccessToken string   `json:"access_token"`
	Picture     *Picture `json:"picture,omitempty"`
	FanCount    int      `json:"fan_count"`
	Category    string   `json:"category"`
}

// SenderProfile is the public profile of a Messenger user
type SenderProfile struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	ProfilePic string `json:"profile_pic"`
}

// FullName joins first and last name, or returns "" if both are empty.
func (p SenderProfile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Client is a Graph API client
type Client struct {
	baseURL    string
	appID      string
	appSecret  string
	httpClient *http.Client
	tracer     trace.Tracer
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAppCredentials sets the app id and secret used for token exchange.
func WithAppCredentials(appID, appSecret string) Option {
	return func(c *Client) {
		c.appID = appID
		c.appSecret = appSecret
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultGraphBase,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		tracer:     otel.Tracer("textreply/facebook"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sendRequest struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
	MessagingType string `json:"messaging_type"`
}

// SendMessage delivers text to recipientID through the Send API.
func (c *Client) SendMessage(ctx context.Context, pageAccessToken, recipientID, text string) error {
	var body sendRequest
	body.Recipient.ID = recipientID
	body.Message.Text = text
	body.MessagingType = "RESPONSE"

	q := url.Values{"access_token": {pageAccessToken}}
	return c.do(ctx, "facebook.send_message", http.MethodPost, "/me/messages", q, body, nil)
}

// SenderProfile fetches the name and picture of a Messenger user.
func (c *Client) SenderProfile(ctx context.Context, senderID, pageAccessToken string) (SenderProfile, error) {
	var profile SenderProfile
	q := url.Values{
		"fields":       {"first_name,last_name,profile_pic"},
		"access_token": {pageAccessToken},
	}
	err := c.do(ctx, "facebook.sender_profile", http.MethodGet, "/"+url.PathEscape(senderID), q, nil, &profile)
	return profile, err
}

// SubscribePage subscribes the page to the app's messaging webhooks.
func (c *Client) SubscribePage(ctx context.Context, pageID, pageAccessToken string) error {
	q := url.Values{
		"subscribed_fields": {"messages,messaging_postbacks,messaging_optins"},
		"access_token":      {pageAccessToken},
	}
	return c.do(ctx, "facebook.subscribe_page", http.MethodPost, "/"+url.PathEscape(pageID)+"/subscribed_apps", q, nil, nil)
}

// UserPages lists the pages the account administers.
func (c *Client) UserPages(ctx context.Context, userAccessToken string) ([]ManagedPage, error) {
	var out struct {
		Data []ManagedPage `json:"data"`
	}
	q := url.Values{
		"fields":       {"id,name,access_token,picture.type(large),fan_count,category"},
		"access_token": {userAccessToken},
	}
	if err := c.do(ctx, "facebook.user_pages", http.MethodGet, "/me/accounts", q, nil, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return []ManagedPage{}, nil
	}
	return out.Data, nil
}

// UserProfile fetches the signed-in account.
func (c *Client) UserProfile(ctx context.Context, userAccessToken string) (*UserProfile, error) {
	var profile UserProfile
	q := url.Values{
		"fields":       {"id,name,email,picture.type(large)"},
		"access_token": {userAccessToken},
	}
	if err := c.do(ctx, "facebook.user_profile", http.MethodGet, "/me", q, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// LongLivedToken exchanges a short-lived user token for a long-lived one.
func (c *Client) LongLivedToken(ctx context.Context, shortLivedToken string) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	q := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {c.appID},
		"client_secret":     {c.appSecret},
		"fb_exchange_token": {shortLivedToken},
	}
	if err := c.do(ctx, "facebook.long_lived_token", http.MethodGet, "/oauth/access_token", q, nil, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("facebook: token exchange returned no access_token")
	}
	return out.AccessToken, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	ctx, span := c.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("http.method", method)))
	defer span.End()

	err := c.roundTrip(ctx, method, path, query, in, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("facebook: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("facebook: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error would echo the endpoint, access token included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("facebook: %s %s: %w", method, path, err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("facebook: read response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return decodeAPIError(res.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("facebook: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, raw []byte) error {
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: status}
	if json.Unmarshal(raw, &payload) == nil && payload.Error.Message != "" {
		apiErr.Message = payload.Error.Message
		apiErr.Type = payload.Error.Type
		apiErr.Code = payload.Error.Code
	} else {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
