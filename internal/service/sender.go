package service

import (
	"context"

	"textreply/backend/internal/facebook"
	"textreply/backend/internal/models"
	"textreply/backend/pkg/logger"
)

// SenderDirectory resolves a Messenger sender to a display name. It never fails.
type SenderDirectory interface {
	DisplayName(ctx context.Context, senderID, pageAccessToken string) string
}

// ProfileFetcher is the Graph API call behind GraphSenderDirectory
type ProfileFetcher interface {
	SenderProfile(ctx context.Context, senderID, pageAccessToken string) (facebook.SenderProfile, error)
}

// GraphSenderDirectory looks senders up through the Graph API
type GraphSenderDirectory struct {
	graph ProfileFetcher
	log   *logger.Logger
}

// NewGraphSenderDirectory creates a new sender directory
func NewGraphSenderDirectory(graph ProfileFetcher, log *logger.Logger) *GraphSenderDirectory {
	if log == nil {
		log = logger.Nop()
	}
	return &GraphSenderDirectory{graph: graph, log: log}
}

// DisplayName returns "first last", or models.DefaultSenderName when the
// profile is unavailable.
func (d *GraphSenderDirectory) DisplayName(ctx context.Context, senderID, pageAccessToken string) string {
	profile, err := d.graph.SenderProfile(ctx, senderID, pageAccessToken)
	if err != nil {
		d.log.Warn("Could not fetch sender profile", "sender_id", senderID, "error", err.Error())
		return models.DefaultSenderName
	}
	if name := profile.FullName(); name != "" {
		return name
	}
	return models.DefaultSenderName
}
