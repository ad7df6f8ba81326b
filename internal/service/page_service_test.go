package service

import (
	"context"
	"errors"
	"testing"

	"textreply/backend/internal/facebook"
	"textreply/backend/internal/models"
	"textreply/backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pageFixture struct {
	*stores
	user  *models.User
	graph *fakeGraph
	svc   *PageService
}

func newPageFixture(t *testing.T) *pageFixture {
	s := newStores(t)
	f := &pageFixture{
		stores: s,
		user:   s.seedAccount(t, "fb-1"),
		graph: &fakeGraph{pages: []facebook.ManagedPage{
			{ID: "P1", Name: "Shop", AccessToken: "pt-1", Category: "Retail", FanCount: 12},
			{ID: "P2", Name: "Blog", AccessToken: "pt-2"},
		}},
	}
	f.svc = NewPageService(s.users, s.pages, s.conversations, s.messages, f.graph, nil)
	return f
}

func TestConnectValidatesAndSubscribes(t *testing.T) {
	f := newPageFixture(t)
	ctx := context.Background()

	_, err := f.svc.Connect(ctx, f.user.ID, "  ")
	assert.ErrorIs(t, err, ErrPageIDRequired)

	_, err = f.svc.Connect(ctx, f.user.ID, "P404")
	assert.ErrorIs(t, err, ErrPageNotManaged)

	page, err := f.svc.Connect(ctx, f.user.ID, "P1")
	require.NoError(t, err)
	assert.Equal(t, "Shop", page.Name)
	assert.True(t, page.IsActive)
	assert.Equal(t, models.DefaultSystemPrompt, page.SystemPrompt)
	assert.Equal(t, []string{"P1:pt-1"}, f.graph.subscribed)

	_, err = f.svc.Connect(ctx, f.user.ID, "P1")
	assert.ErrorIs(t, err, ErrPageAlreadyConnected)
	assert.Len(t, f.graph.subscribed, 1)
}

func TestConnectDoesNotStoreWhenSubscribeFails(t *testing.T) {
	f := newPageFixture(t)
	ctx := context.Background()
	f.graph.subErr = errors.New("graph down")

	_, err := f.svc.Connect(ctx, f.user.ID, "P1")
	require.Error(t, err)

	_, err = f.pages.GetByPageID(ctx, "P1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListManageableMarksConnected(t *testing.T) {
	f := newPageFixture(t)
	ctx := context.Background()

	_, err := f.svc.Connect(ctx, f.user.ID, "P1")
	require.NoError(t, err)

	pages, err := f.svc.ListManageable(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.True(t, pages[0].IsConnected)
	assert.Equal(t, "Retail", pages[0].Category)
	assert.False(t, pages[1].IsConnected)
	assert.Equal(t, "N/A", pages[1].Category)
	assert.Nil(t, pages[1].Picture)
}

func TestListManageableUnknownAccount(t *testing.T) {
	f := newPageFixture(t)

	_, err := f.svc.ListManageable(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestListConnectedCountsConversations(t *testing.T) {
	f := newPageFixture(t)
	ctx := context.Background()

	page, err := f.svc.Connect(ctx, f.user.ID, "P1")
	require.NoError(t, err)
	for _, sender := range []string{"S1", "S2"} {
		_, _, err := f.conversations.CreateOrGet(ctx, &models.Conversation{SenderID: sender, PageID: page.ID})
		require.NoError(t, err)
	}

	pages, err := f.svc.ListConnected(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, int64(2), pages[0].ConversationCount)
	assert.Equal(t, page.CreatedAt.Unix(), pages[0].ConnectedAt.Unix())
}

func TestToggleTwiceRestoresState(t *testing.T) {
	f := newPageFixture(t)
	ctx := context.Background()

	page, err := f.svc.Connect(ctx, f.user.ID, "P1")
	require.NoError(t, err)

	active, err := f.svc.Toggle(ctx, f.user.ID, page.ID)
	require.NoError(t, err)
	assert.False(t, active)

	active, err = f.svc.Toggle(ctx, f.user.ID, page.ID)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestPagesOfOtherAccountsAreNotFound(t *testing.T) {
	f := newPageFixture(t)
	ctx := context.Background()

	page, err := f.svc.Connect(ctx, f.user.ID, "P1")
	require.NoError(t, err)
	stranger := f.seedAccount(t, "fb-2")

	_, err = f.svc.Toggle(ctx, stranger.ID, page.ID)
	assert.ErrorIs(t, err, ErrPageNotFound)
	_, err = f.svc.Conversations(ctx, stranger.ID, page.ID)
	assert.ErrorIs(t, err, ErrPageNotFound)
	assert.ErrorIs(t, f.svc.Disconnect(ctx, stranger.ID, page.ID), ErrPageNotFound)
}

func TestUpdateSettingsIsPartial(t *testing.T) {
	f := newPageFixture(t)
	ctx := context.Background()

	page, err := f.svc.Connect(ctx, f.user.ID, "P1")
	require.NoError(t, err)

	kb := "We open at 9am."
	updated, err := f.svc.UpdateSettings(ctx, f.user.ID, page.ID, nil, &kb)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSystemPrompt, updated.SystemPrompt)
	assert.Equal(t, kb, updated.Context)

	prompt := "Be brief."
	updated, err = f.svc.UpdateSettings(ctx, f.user.ID, page.ID, &prompt, nil)
	require.NoError(t, err)
	assert.Equal(t, prompt, updated.SystemPrompt)
	assert.Equal(t, kb, updated.Context)
}

func TestConversationsSummaries(t *testing.T) {
	f := newPageFixture(t)
	ctx := context.Background()

	page, err := f.svc.Connect(ctx, f.user.ID, "P1")
	require.NoError(t, err)

	quiet, _, err := f.conversations.CreateOrGet(ctx, &models.Conversation{SenderID: "S1", PageID: page.ID})
	require.NoError(t, err)
	busy, _, err := f.conversations.CreateOrGet(ctx, &models.Conversation{SenderID: "S2", PageID: page.ID})
	require.NoError(t, err)
	require.NoError(t, f.messages.Create(ctx, &models.Message{ConversationID: busy.ID, Role: models.RoleUser, Content: "hi"}))
	require.NoError(t, f.messages.Create(ctx, &models.Message{ConversationID: busy.ID, Role: models.RoleAssistant, Content: "hello"}))
	require.NoError(t, f.conversations.Touch(ctx, busy.ID))

	summaries, err := f.svc.Conversations(ctx, f.user.ID, page.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, busy.ID, summaries[0].ID)
	assert.Equal(t, "hello", summaries[0].LastMessage)

	assert.Equal(t, quiet.ID, summaries[1].ID)
	assert.Equal(t, NoMessagesYet, summaries[1].LastMessage)
	assert.Equal(t, quiet.CreatedAt.Unix(), summaries[1].LastMessageAt.Unix())
}

func TestMessagesRequireConversationInPage(t *testing.T) {
	f := newPageFixture(t)
	ctx := context.Background()

	p1, err := f.svc.Connect(ctx, f.user.ID, "P1")
	require.NoError(t, err)
	p2, err := f.svc.Connect(ctx, f.user.ID, "P2")
	require.NoError(t, err)

	conv, _, err := f.conversations.CreateOrGet(ctx, &models.Conversation{SenderID: "S1", PageID: p1.ID})
	require.NoError(t, err)
	require.NoError(t, f.messages.Create(ctx, &models.Message{ConversationID: conv.ID, Role: models.RoleUser, Content: "a"}))
	require.NoError(t, f.messages.Create(ctx, &models.Message{ConversationID: conv.ID, Role: models.RoleAssistant, Content: "b"}))

	msgs, err := f.svc.Messages(ctx, f.user.ID, p1.ID, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].Content)
	assert.Equal(t, "b", msgs[1].Content)

	_, err = f.svc.Messages(ctx, f.user.ID, p2.ID, conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestDisconnectCascades(t *testing.T) {
	f := newPageFixture(t)
	ctx := context.Background()

	page, err := f.svc.Connect(ctx, f.user.ID, "P1")
	require.NoError(t, err)
	conv, _, err := f.conversations.CreateOrGet(ctx, &models.Conversation{SenderID: "S1", PageID: page.ID})
	require.NoError(t, err)
	require.NoError(t, f.messages.Create(ctx, &models.Message{ConversationID: conv.ID, Role: models.RoleUser, Content: "a"}))

	require.NoError(t, f.svc.Disconnect(ctx, f.user.ID, page.ID))

	_, err = f.conversations.GetBySenderAndPage(ctx, "S1", page.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	msgs, err := f.messages.ListByConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = f.svc.Owned(ctx, f.user.ID, page.ID)
	assert.ErrorIs(t, err, ErrPageNotFound)
}

var errInvalidUUID = errors.New(`ERROR: invalid input syntax for type uuid: "not-a-uuid" (SQLSTATE 22P02)`)

// uuidPages and uuidConversations reject malformed ids the way a uuid column does.
type uuidPages struct{ *repository.GormPageRepository }

func (p uuidPages) GetOwned(ctx context.Context, id, userID string) (*models.Page, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errInvalidUUID
	}
	return p.GormPageRepository.GetOwned(ctx, id, userID)
}

type uuidConversations struct {
	*repository.GormConversationRepository
}

func (c uuidConversations) GetInPage(ctx context.Context, id, pageID string) (*models.Conversation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errInvalidUUID
	}
	return c.GormConversationRepository.GetInPage(ctx, id, pageID)
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	f := newPageFixture(t)
	ctx := context.Background()
	svc := NewPageService(f.users, uuidPages{f.pages}, uuidConversations{f.conversations}, f.messages, f.graph, nil)

	page, err := svc.Connect(ctx, f.user.ID, "P1")
	require.NoError(t, err)

	_, err = svc.Owned(ctx, f.user.ID, "not-a-uuid")
	assert.ErrorIs(t, err, ErrPageNotFound)
	_, err = svc.Toggle(ctx, f.user.ID, "not-a-uuid")
	assert.ErrorIs(t, err, ErrPageNotFound)
	assert.ErrorIs(t, svc.Disconnect(ctx, f.user.ID, "not-a-uuid"), ErrPageNotFound)

	_, err = svc.Messages(ctx, f.user.ID, page.ID, "not-a-uuid")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}
