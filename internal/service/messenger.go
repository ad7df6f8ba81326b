package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"textreply/backend/ai"
	"textreply/backend/internal/facebook"
	"textreply/backend/internal/models"
	"textreply/backend/internal/repository"
	"textreply/backend/internal/ws"
	"textreply/backend/pkg/logger"
	"textreply/backend/pkg/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ApologyMessage is sent to the sender when a turn fails midway.
const ApologyMessage = "I'm sorry, I'm having trouble right now. Please try again in a moment."

const (
	// DefaultHistoryLimit bounds the messages loaded as completion context
	DefaultHistoryLimit = 20

	apologyTimeout = 10 * time.Second
)

// Completer produces the reply text for one inbound message. It never fails.
type Completer interface {
	Reply(ctx context.Context, req ai.CompletionRequest) ai.Result
}

// Outbound delivers a text message to a Messenger user on behalf of a page.
type Outbound interface {
	SendMessage(ctx context.Context, pageAccessToken, recipientID, text string) error
}

// Publisher receives every stored message for live dashboards.
type Publisher interface {
	Publish(ev ws.Event)
}

// MessengerDeps are the collaborators of the reply pipeline
type MessengerDeps struct {
	Pages         repository.PageRepository
	Conversations repository.ConversationRepository
	Messages      repository.MessageRepository
	Senders       SenderDirectory
	Completer     Completer
	Outbound      Outbound
	Deduper       Deduper   // optional
	Publisher     Publisher // optional
	Logger        *logger.Logger
	HistoryLimit  int
	// Timeout bounds one event's processing; zero means no bound.
	Timeout time.Duration
}

// Messenger turns inbound Messenger events into stored, delivered replies.
type Messenger struct {
	pages         repository.PageRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	senders       SenderDirectory
	completer     Completer
	outbound      Outbound
	deduper       Deduper
	publisher     Publisher
	log           *logger.Logger
	historyLimit  int
	timeout       time.Duration
	tracer        trace.Tracer
}

// NewMessenger creates a new reply pipeline
func NewMessenger(deps MessengerDeps) *Messenger {
	m := &Messenger{
		pages:         deps.Pages,
		conversations: deps.Conversations,
		messages:      deps.Messages,
		senders:       deps.Senders,
		completer:     deps.Completer,
		outbound:      deps.Outbound,
		deduper:       deps.Deduper,
		publisher:     deps.Publisher,
		log:           deps.Logger,
		historyLimit:  deps.HistoryLimit,
		timeout:       deps.Timeout,
		tracer:        otel.Tracer("textreply/messenger"),
	}
	if m.log == nil {
		m.log = logger.Nop()
	}
	if m.historyLimit <= 0 {
		m.historyLimit = DefaultHistoryLimit
	}
	return m
}

// HandleDelivery processes one webhook delivery. Events run one after another;
// a failed event does not stop the rest.
func (m *Messenger) HandleDelivery(ctx context.Context, payload *facebook.WebhookPayload) {
	if payload == nil || !payload.IsPage() {
		return
	}

	for _, entry := range payload.Entry {
		for _, event := range entry.Messaging {
			if !event.IsInboundText() {
				metrics.RecordEvent(metrics.OutcomeIgnored)
				continue
			}
			if mid := event.Message.Mid; mid != "" && m.deduper != nil && !m.deduper.FirstSeen(ctx, mid) {
				m.log.Debug("Skipping redelivered message", "mid", mid)
				metrics.RecordEvent(metrics.OutcomeDuplicate)
				continue
			}
			m.HandleMessage(ctx, entry.ID, event.Sender.ID, event.Message.Text)
		}
	}
}

// HandleMessage answers one inbound text. pageID is the Facebook page id the
// message was sent to. On failure the sender gets a single apology.
func (m *Messenger) HandleMessage(ctx context.Context, pageID, senderID, text string) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	ctx, span := m.tracer.Start(ctx, "messenger.handle_message", trace.WithAttributes(
		attribute.String("page_id", pageID),
		attribute.String("sender_id", senderID),
	))
	defer span.End()

	log := logger.FromContext(ctx, m.log).With("page_id", pageID, "sender_id", senderID)
	start := time.Now()

	outcome, err := m.process(ctx, log, pageID, senderID, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.LogError(err, "Failed to handle message")
		metrics.RecordPipeline(metrics.OutcomeFailed, time.Since(start).Seconds())
		m.apologize(ctx, log, pageID, senderID)
		return
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	metrics.RecordPipeline(outcome, time.Since(start).Seconds())
}

func (m *Messenger) process(ctx context.Context, log *logger.Logger, pageID, senderID, text string) (string, error) {
	page, err := m.pages.GetByPageID(ctx, pageID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Info("Message for unknown page")
		return metrics.OutcomeUnknownPage, nil
	}
	if err != nil {
		return "", fmt.Errorf("find page: %w", err)
	}
	if !page.IsActive {
		log.Debug("Auto-reply disabled for page")
		return metrics.OutcomeInactivePage, nil
	}

	conv, err := m.resolveConversation(ctx, log, page, senderID)
	if err != nil {
		return "", err
	}
	log = log.With("conversation_id", conv.ID)

	inbound := &models.Message{ConversationID: conv.ID, Role: models.RoleUser, Content: text}
	if err := m.messages.Create(ctx, inbound); err != nil {
		return "", fmt.Errorf("store inbound message: %w", err)
	}
	m.publish(page.ID, inbound)

	history, err := m.history(ctx, conv.ID, inbound.ID)
	if err != nil {
		return "", err
	}

	started := time.Now()
	result := m.completer.Reply(ctx, ai.CompletionRequest{
		SystemPrompt: page.SystemPrompt,
		Context:      page.Context,
		History:      history,
		Message:      text,
	})
	metrics.RecordCompletion(string(result.Fallback), time.Since(started).Seconds())
	if result.Fallback != ai.FallbackNone {
		log.Warn("Replying with fallback", "fallback", string(result.Fallback))
	}

	reply := &models.Message{ConversationID: conv.ID, Role: models.RoleAssistant, Content: result.Text}
	if err := m.messages.Create(ctx, reply); err != nil {
		return "", fmt.Errorf("store reply: %w", err)
	}
	m.publish(page.ID, reply)

	err = m.outbound.SendMessage(ctx, page.AccessToken, senderID, result.Text)
	metrics.RecordSend("reply", err)
	if err != nil {
		return "", fmt.Errorf("send reply: %w", err)
	}

	if err := m.conversations.Touch(ctx, conv.ID); err != nil {
		return "", fmt.Errorf("touch conversation: %w", err)
	}

	log.Info("Replied to message")
	return metrics.OutcomeReplied, nil
}

func (m *Messenger) resolveConversation(ctx context.Context, log *logger.Logger, page *models.Page, senderID string) (*models.Conversation, error) {
	conv, err := m.conversations.GetBySenderAndPage(ctx, senderID, page.ID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	name := m.senders.DisplayName(ctx, senderID, page.AccessToken)
	conv, created, err := m.conversations.CreateOrGet(ctx, &models.Conversation{
		SenderID:   senderID,
		SenderName: name,
		PageID:     page.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	if created {
		log.Info("New conversation", "conversation_id", conv.ID, "sender_name", name)
	}
	return conv, nil
}

// history returns the recent turns preceding the message with id current.
func (m *Messenger) history(ctx context.Context, conversationID, current string) ([]ai.Turn, error) {
	recent, err := m.messages.Recent(ctx, conversationID, m.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	turns := make([]ai.Turn, 0, len(recent))
	for _, msg := range recent {
		if msg.ID == current {
			continue
		}
		turns = append(turns, ai.Turn{Role: string(msg.Role), Content: msg.Content})
	}
	return turns, nil
}

func (m *Messenger) publish(pageID string, msg *models.Message) {
	if m.publisher == nil {
		return
	}
	m.publisher.Publish(ws.Event{
		Type:           ws.EventMessage,
		PageID:         pageID,
		ConversationID: msg.ConversationID,
		Message:        msg,
	})
}

// apologize runs detached from ctx so a timed-out turn can still be answered.
func (m *Messenger) apologize(ctx context.Context, log *logger.Logger, pageID, senderID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), apologyTimeout)
	defer cancel()

	page, err := m.pages.GetByPageID(ctx, pageID)
	if err != nil {
		log.Warn("No page to apologize from", "error", err.Error())
		return
	}

	err = m.outbound.SendMessage(ctx, page.AccessToken, senderID, ApologyMessage)
	metrics.RecordSend("apology", err)
	if err != nil {
		log.LogError(err, "Failed to send apology")
	}
}
