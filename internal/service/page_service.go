package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"textreply/backend/internal/facebook"
	"textreply/backend/internal/models"
	"textreply/backend/internal/repository"
	"textreply/backend/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrPageIDRequired       = errors.New("pageId is required")
	ErrPageNotManaged       = errors.New("page not found or you do not have access")
	ErrPageAlreadyConnected = errors.New("page is already connected")
	ErrPageNotFound         = errors.New("page not found")
	ErrConversationNotFound = errors.New("conversation not found")
)

// NoMessagesYet is the summary text of a conversation without messages
const NoMessagesYet = "No messages yet"

// PageGraph is the Graph API surface used to manage pages
type PageGraph interface {
	UserPages(ctx context.Context, userAccessToken string) ([]facebook.ManagedPage, error)
	SubscribePage(ctx context.Context, pageID, pageAccessToken string) error
}

// ManageablePage is a page the account administers on Facebook
type ManageablePage struct {
	PageID      string  `json:"pageId"`
	Name        string  `json:"name"`
	Picture     *string `json:"picture"`
	FanCount    int     `json:"fanCount"`
	Category    string  `json:"category"`
	IsConnected bool    `json:"isConnected"`
}

// ConnectedPage is a page connected to auto-replies, for listings
type ConnectedPage struct {
	ID                string    `json:"id"`
	PageID            string    `json:"pageId"`
	Name              string    `json:"name"`
	IsActive          bool      `json:"isActive"`
	SystemPrompt      string    `json:"systemPrompt"`
	Context           string    `json:"context"`
	ConversationCount int64     `json:"conversationCount"`
	ConnectedAt       time.Time `json:"connectedAt"`
}

// PageService manages an account's connected pages and their conversations
type PageService struct {
	users         repository.UserRepository
	pages         repository.PageRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	graph         PageGraph
	log           *logger.Logger
}

// NewPageService creates a new page service
func NewPageService(
	users repository.UserRepository,
	pages repository.PageRepository,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	graph PageGraph,
	log *logger.Logger,
) *PageService {
	if log == nil {
		log = logger.Nop()
	}
	return &PageService{
		users:         users,
		pages:         pages,
		conversations: conversations,
		messages:      messages,
		graph:         graph,
		log:           log,
	}
}

func (s *PageService) account(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return user, nil
}

// ListManageable returns the account's Facebook pages marked with whether
// each is already connected.
func (s *PageService) ListManageable(ctx context.Context, userID string) ([]ManageablePage, error) {
	user, err := s.account(ctx, userID)
	if err != nil {
		return nil, err
	}

	fbPages, err := s.graph.UserPages(ctx, user.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch facebook pages: %w", err)
	}

	connected, err := s.pages.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list connected pages: %w", err)
	}
	ids := make(map[string]bool, len(connected))
	for _, p := range connected {
		ids[p.PageID] = true
	}

	result := make([]ManageablePage, 0, len(fbPages))
	for _, p := range fbPages {
		mp := ManageablePage{
			PageID:      p.ID,
			Name:        p.Name,
			FanCount:    p.FanCount,
			Category:    p.Category,
			IsConnected: ids[p.ID],
		}
		if p.Picture != nil && p.Picture.Data.URL != "" {
			url := p.Picture.Data.URL
			mp.Picture = &url
		}
		if mp.Category == "" {
			mp.Category = "N/A"
		}
		result = append(result, mp)
	}
	return result, nil
}

// ListConnected returns the account's connected pages, newest first.
func (s *PageService) ListConnected(ctx context.Context, userID string) ([]ConnectedPage, error) {
	pages, err := s.pages.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list connected pages: %w", err)
	}

	ids := make([]string, len(pages))
	for i, p := range pages {
		ids[i] = p.ID
	}
	counts, err := s.pages.ConversationCounts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("count conversations: %w", err)
	}

	result := make([]ConnectedPage, 0, len(pages))
	for _, p := range pages {
		result = append(result, ConnectedPage{
			ID:                p.ID,
			PageID:            p.PageID,
			Name:              p.Name,
			IsActive:          p.IsActive,
			SystemPrompt:      p.SystemPrompt,
			Context:           p.Context,
			ConversationCount: counts[p.ID],
			ConnectedAt:       p.CreatedAt,
		})
	}
	return result, nil
}

// Connect subscribes one of the account's Facebook pages to the webhook and
// stores it with the default persona.
func (s *PageService) Connect(ctx context.Context, userID, pageID string) (*models.Page, error) {
	pageID = strings.TrimSpace(pageID)
	if pageID == "" {
		return nil, ErrPageIDRequired
	}

	user, err := s.account(ctx, userID)
	if err != nil {
		return nil, err
	}

	fbPages, err := s.graph.UserPages(ctx, user.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch facebook pages: %w", err)
	}
	var target *facebook.ManagedPage
	for i := range fbPages {
		if fbPages[i].ID == pageID {
			target = &fbPages[i]
			break
		}
	}
	if target == nil {
		return nil, ErrPageNotManaged
	}

	if _, err := s.pages.GetByPageID(ctx, pageID); err == nil {
		return nil, ErrPageAlreadyConnected
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check existing page: %w", err)
	}

	if err := s.graph.SubscribePage(ctx, target.ID, target.AccessToken); err != nil {
		return nil, fmt.Errorf("subscribe webhook: %w", err)
	}

	page := models.NewPage(target.ID, target.Name, target.AccessToken, userID)
	if err := s.pages.Create(ctx, page); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrPageAlreadyConnected
		}
		return nil, fmt.Errorf("create page: %w", err)
	}

	s.log.Info("Page connected", "page_id", page.PageID, "name", page.Name, "user_id", userID)
	return page, nil
}

// Owned returns the page with internal id if userID owns it.
func (s *PageService) Owned(ctx context.Context, userID, id string) (*models.Page, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrPageNotFound
	}
	page, err := s.pages.GetOwned(ctx, id, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load page: %w", err)
	}
	return page, nil
}

// UpdateSettings changes the persona and/or knowledge base. Nil fields are left alone.
func (s *PageService) UpdateSettings(ctx context.Context, userID, id string, systemPrompt, kb *string) (*models.Page, error) {
	if _, err := s.Owned(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := s.pages.UpdateSettings(ctx, id, systemPrompt, kb); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPageNotFound
		}
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return s.Owned(ctx, userID, id)
}

// Toggle flips auto-reply for the page and returns the new state.
func (s *PageService) Toggle(ctx context.Context, userID, id string) (bool, error) {
	if _, err := s.Owned(ctx, userID, id); err != nil {
		return false, err
	}
	active, err := s.pages.ToggleActive(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return false, ErrPageNotFound
	}
	if err != nil {
		return false, fmt.Errorf("toggle page: %w", err)
	}
	s.log.Info("Auto-reply toggled", "page_id", id, "active", active)
	return active, nil
}

// Conversations lists the page's conversations, most recently active first.
func (s *PageService) Conversations(ctx context.Context, userID, id string) ([]models.ConversationSummary, error) {
	page, err := s.Owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	convs, err := s.conversations.ListByPage(ctx, page.ID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	ids := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}
	latest, err := s.messages.Latest(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load latest messages: %w", err)
	}

	result := make([]models.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		summary := models.ConversationSummary{
			ID:            c.ID,
			SenderID:      c.SenderID,
			SenderName:    c.SenderName,
			LastMessage:   NoMessagesYet,
			LastMessageAt: c.CreatedAt,
			UpdatedAt:     c.UpdatedAt,
		}
		if msg, ok := latest[c.ID]; ok {
			summary.LastMessage = msg.Content
			summary.LastMessageAt = msg.CreatedAt
		}
		result = append(result, summary)
	}
	return result, nil
}

// Messages returns a conversation's messages oldest first. The conversation
// must belong to the page.
func (s *PageService) Messages(ctx context.Context, userID, id, conversationID string) ([]models.Message, error) {
	page, err := s.Owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if _, err := uuid.Parse(conversationID); err != nil {
		return nil, ErrConversationNotFound
	}
	if _, err := s.conversations.GetInPage(ctx, conversationID, page.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	messages, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// Disconnect deletes the page along with its conversations and messages.
func (s *PageService) Disconnect(ctx context.Context, userID, id string) error {
	page, err := s.Owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.pages.Delete(ctx, page.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPageNotFound
		}
		return fmt.Errorf("delete page: %w", err)
	}
	s.log.Info("Page disconnected", "page_id", page.PageID, "user_id", userID)
	return nil
}
