// Package connector reads the live chat feed and forwards raw protocol
// lines into the ingestion path.
package connector

import (
	"context"
	"log/slog"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/user/chatvault/internal/domain"
	"github.com/user/chatvault/internal/usecase"
)

// Connector manages the anonymous chat connection and the set of joined
// channels.
type Connector struct {
	client *twitch.Client
	ingest *usecase.IngestUseCase
	logger *slog.Logger
}

// New creates a Connector feeding the given ingest use case.
func New(ingest *usecase.IngestUseCase, logger *slog.Logger) *Connector {
	return &Connector{
		client: twitch.NewAnonymousClient(),
		ingest: ingest,
		logger: logger.With("component", "connector"),
	}
}

// Start joins the given channels and blocks until ctx is cancelled or the
// connection fails permanently.
func (c *Connector) Start(ctx context.Context, channels []string) error {
	c.client.OnConnect(func() {
		c.logger.Info("connected to chat feed")
	})

	c.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		c.forward(ctx, msg.RoomID, msg.User.ID, msg.Raw)
	})
	c.client.OnClearChatMessage(func(msg twitch.ClearChatMessage) {
		c.forward(ctx, msg.RoomID, msg.TargetUserID, msg.Raw)
	})
	c.client.OnUserNoticeMessage(func(msg twitch.UserNoticeMessage) {
		c.forward(ctx, msg.RoomID, msg.User.ID, msg.Raw)
	})

	if len(channels) > 0 {
		c.client.Join(channels...)
		c.logger.Info("joined channels", "count", len(channels))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.client.Connect()
	}()

	select {
	case <-ctx.Done():
		c.logger.Info("disconnecting from chat feed")
		if err := c.client.Disconnect(); err != nil {
			c.logger.Warn("disconnect failed", "error", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Join subscribes to additional channels at runtime.
func (c *Connector) Join(channels ...string) {
	c.client.Join(channels...)
}

// Part unsubscribes from a channel.
func (c *Connector) Part(channel string) {
	c.client.Depart(channel)
}

func (c *Connector) forward(ctx context.Context, channelID, userID, raw string) {
	c.ingest.Ingest(ctx, domain.Unstructured{
		ChannelID: channelID,
		UserID:    userID,
		Timestamp: time.Now().UTC().UnixMilli(),
		Raw:       raw,
	})
}
