package channels

import (
	"context"
	"errors"

	"github.com/dotsetgreg/masquerade/pkg/bus"
	"github.com/dotsetgreg/masquerade/pkg/permissions"
	"github.com/dotsetgreg/masquerade/pkg/profiles"
)

var (
	// ErrTransport wraps every failure of an outbound transport call.
	ErrTransport  = errors.New("transport failure")
	ErrNotRunning = errors.New("transport not running")
	ErrNotFound   = errors.New("message not found")
	ErrTooLarge   = errors.New("download exceeds size limit")
)

// OutgoingMessage is a plain message sent as the bot itself.
type OutgoingMessage struct {
	Content string
	// ReplyTo is the message being answered, if any.
	ReplyTo string
	// Reactions are added to the sent message in order.
	Reactions []string
}

// MasqueradeMessage is sent under a profile's identity.
type MasqueradeMessage struct {
	Content    string
	Masquerade profiles.Masquerade
	ReplyTo    []string
}

// SentMessage identifies what a send emitted. A transport that had to split
// content returns the first message as ID and the rest in Parts.
type SentMessage struct {
	ID        string
	ChannelID string
	Parts     []string
}

// IDs lists every emitted message in order.
func (s SentMessage) IDs() []string {
	ids := make([]string, 0, 1+len(s.Parts))
	if s.ID != "" {
		ids = append(ids, s.ID)
	}
	return append(ids, s.Parts...)
}

func (s *SentMessage) add(id, channelID string) {
	if s.ID == "" {
		s.ID, s.ChannelID = id, channelID
		return
	}
	s.Parts = append(s.Parts, id)
}

// Channel is the lifecycle half of a transport.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// Transport is everything the bot needs from a chat platform.
type Transport interface {
	Channel
	permissions.Fetcher

	// BotUserID is empty until the transport is connected.
	BotUserID() string
	// Mentions lists the message prefixes that address the bot.
	Mentions() []string
	// BotName is substituted into the help text.
	BotName() string

	Send(ctx context.Context, channelID string, msg OutgoingMessage) (SentMessage, error)
	SendMasquerade(ctx context.Context, channelID string, msg MasqueradeMessage) (SentMessage, error)
	SendDirect(ctx context.Context, userID, content string) error
	EditMessage(ctx context.Context, channelID, messageID, content string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	FetchMessage(ctx context.Context, channelID, messageID string) (bus.Message, error)

	// Download fetches an attachment, failing with ErrTooLarge past limit
	// bytes.
	Download(ctx context.Context, url string, limit int64) ([]byte, error)

	// CapabilityName is the platform's own name for a capability, as shown to
	// users in permission errors.
	CapabilityName(side permissions.Side, c permissions.Capability) string
}
