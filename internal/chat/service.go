// Package chat implements the realtime core on top of the gateway: room
// membership, presence, typing indicators and message dispatch.
package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/inland-taipen/teamchat/internal/gateway"
	"github.com/inland-taipen/teamchat/internal/metrics"
	"github.com/inland-taipen/teamchat/internal/store"
)

// Options configures a Service.
type Options struct {
	InlineAttachmentLimit int
	AuthorizeJoins        bool
	TypingTTL             time.Duration
	Logger                *slog.Logger
	Metrics               *metrics.Metrics
}

// Service wires the trackers and the dispatcher to one gateway. It
// implements gateway.Handler.
type Service struct {
	Membership *Membership
	Presence   *Presence
	Typing     *Typing
	Dispatcher *Dispatcher

	store   Store
	access  access
	metrics *metrics.Metrics
	log     *slog.Logger
}

var _ gateway.Handler = (*Service)(nil)

func NewService(rooms Rooms, st Store, opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.InlineAttachmentLimit <= 0 {
		opts.InlineAttachmentLimit = 1 << 20
	}

	membership := NewMembership(rooms, st, opts.AuthorizeJoins, log)
	typing := NewTyping(rooms, opts.TypingTTL)
	return &Service{
		Membership: membership,
		Presence:   NewPresence(rooms, st, membership, log),
		Typing:     typing,
		Dispatcher: &Dispatcher{
			rooms:       rooms,
			store:       st,
			typing:      typing,
			access:      access{store: st},
			authorize:   opts.AuthorizeJoins,
			inlineLimit: opts.InlineAttachmentLimit,
			metrics:     opts.Metrics,
			log:         log,
		},
		store:   st,
		access:  access{store: st},
		metrics: opts.Metrics,
		log:     log,
	}
}

// AuthorizeChannel reports whether userID may read a channel.
func (s *Service) AuthorizeChannel(ctx context.Context, userID, channelID string) error {
	return s.access.channel(ctx, userID, channelID)
}

// AuthorizeDM reports whether userID takes part in a direct conversation.
func (s *Service) AuthorizeDM(ctx context.Context, userID, conversationID string) error {
	return s.access.dm(ctx, userID, conversationID)
}

// AuthorizeWorkspace reports whether userID belongs to a workspace.
func (s *Service) AuthorizeWorkspace(ctx context.Context, userID, workspaceID string) error {
	return s.access.workspace(ctx, userID, workspaceID)
}

// AuthorizeMessage loads a message userID may read.
func (s *Service) AuthorizeMessage(ctx context.Context, userID, messageID string) (*store.MessageView, error) {
	return s.Dispatcher.readable(ctx, userID, messageID)
}

// HandleDisconnect clears the connection's typing indicator and, for the
// user's last connection, marks them offline.
func (s *Service) HandleDisconnect(c *gateway.Conn) {
	s.Typing.ClearTyping(c)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Presence.Disconnected(ctx, c); err != nil {
		s.log.Warn("presence_offline_failed", "user", c.UserID(), "error", err)
	}
}
