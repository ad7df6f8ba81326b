package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"textreply/backend/ai"
	"textreply/backend/internal/facebook"
	"textreply/backend/internal/models"
	"textreply/backend/internal/repository"
	"textreply/backend/internal/repository/repotest"
	"textreply/backend/internal/ws"

	"github.com/stretchr/testify/require"
)

type stores struct {
	users         *repository.GormUserRepository
	pages         *repository.GormPageRepository
	conversations *repository.GormConversationRepository
	messages      *repository.GormMessageRepository
}

func newStores(t *testing.T) *stores {
	db := repotest.NewDB(t)
	return &stores{
		users:         repository.NewGormUserRepository(db),
		pages:         repository.NewGormPageRepository(db),
		conversations: repository.NewGormConversationRepository(db),
		messages:      repository.NewGormMessageRepository(db),
	}
}

func (s *stores) seedAccount(t *testing.T, facebookID string) *models.User {
	t.Helper()
	user, err := s.users.Upsert(context.Background(), &models.User{
		FacebookID:  facebookID,
		Name:        "Owner " + facebookID,
		AccessToken: "user-token-" + facebookID,
	})
	require.NoError(t, err)
	return user
}

func (s *stores) seedPage(t *testing.T, userID, pageID string) *models.Page {
	t.Helper()
	page := models.NewPage(pageID, "Page "+pageID, "page-token-"+pageID, userID)
	require.NoError(t, s.pages.Create(context.Background(), page))
	return page
}

type fakeCompleter struct {
	mu       sync.Mutex
	result   ai.Result
	requests []ai.CompletionRequest
}

func (f *fakeCompleter) Reply(_ context.Context, req ai.CompletionRequest) ai.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.result
}

func (f *fakeCompleter) calls() []ai.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ai.CompletionRequest(nil), f.requests...)
}

type sentMessage struct {
	token     string
	recipient string
	text      string
}

type fakeOutbound struct {
	mu sync.Mutex
	// failReplies fails every send except the apology
	failReplies bool
	failAll     bool
	sent        []sentMessage
}

var errSendFailed = errors.New("send failed")

func (f *fakeOutbound) SendMessage(_ context.Context, token, recipient, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{token: token, recipient: recipient, text: text})
	if f.failAll || (f.failReplies && text != ApologyMessage) {
		return errSendFailed
	}
	return nil
}

func (f *fakeOutbound) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeSenders struct {
	mu      sync.Mutex
	name    string
	lookups int
}

func (f *fakeSenders) DisplayName(context.Context, string, string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.name
}

type fakePublisher struct {
	mu     sync.Mutex
	events []ws.Event
}

func (f *fakePublisher) Publish(ev ws.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

type fakeGraph struct {
	mu         sync.Mutex
	pages      []facebook.ManagedPage
	pagesErr   error
	subscribed []string
	subErr     error

	longLived    string
	longLivedErr error
	profile      *facebook.UserProfile
	profileToken string
}

func (f *fakeGraph) UserPages(context.Context, string) ([]facebook.ManagedPage, error) {
	if f.pagesErr != nil {
		return nil, f.pagesErr
	}
	return f.pages, nil
}

func (f *fakeGraph) SubscribePage(_ context.Context, pageID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return f.subErr
	}
	f.subscribed = append(f.subscribed, pageID+":"+token)
	return nil
}

func (f *fakeGraph) LongLivedToken(context.Context, string) (string, error) {
	if f.longLivedErr != nil {
		return "", f.longLivedErr
	}
	return f.longLived, nil
}

func (f *fakeGraph) UserProfile(_ context.Context, token string) (*facebook.UserProfile, error) {
	f.profileToken = token
	return f.profile, nil
}

type fakeProfiles struct {
	profile facebook.SenderProfile
	err     error
}

func (f fakeProfiles) SenderProfile(context.Context, string, string) (facebook.SenderProfile, error) {
	return f.profile, f.err
}

type fakeSetNX struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func (f *fakeSetNX) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.keys == nil {
		f.keys = map[string]bool{}
	}
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}
