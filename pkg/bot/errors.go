package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/dotsetgreg/masquerade/pkg/bus"
	"github.com/dotsetgreg/masquerade/pkg/channels"
	"github.com/dotsetgreg/masquerade/pkg/logger"
	"github.com/dotsetgreg/masquerade/pkg/permissions"
	"github.com/dotsetgreg/masquerade/pkg/profiles"
	"github.com/dotsetgreg/masquerade/pkg/store"
)

const replyInternal = "Something went wrong, try again later."

// errorReply turns a handler error into the text shown to the user. dm is
// set when the channel itself cannot be written to. An empty reply means the
// error is only logged.
func (b *Bot) errorReply(err error) (reply string, dm bool) {
	var missing *permissions.MissingError
	var invalid *profiles.ValidationError
	var capacity *store.CapacityError

	switch {
	case errors.As(err, &missing):
		name := b.transport.CapabilityName(missing.Side, missing.Capability)
		if missing.Side == permissions.User {
			return fmt.Sprintf("You don't have `%s` permission.", name), false
		}
		return fmt.Sprintf("I don't have `%s` permission.", name), missing.Capability == permissions.SendMessages
	case errors.As(err, &invalid):
		return invalid.Error(), false
	case errors.As(err, &capacity):
		return fmt.Sprintf("You can't have more than %d profiles!", capacity.Limit), false
	case errors.Is(err, store.ErrProfileNotFound):
		return replyNoProfile, false
	case errors.Is(err, store.ErrStorage):
		return replyInternal, false
	}
	return "", false
}

func (b *Bot) onMessageError(ctx context.Context, eventID string, m bus.Message, err error) {
	fields := map[string]any{
		"event_id":   eventID,
		"message_id": m.ID,
		"channel_id": m.ChannelID,
		"user_id":    m.AuthorID,
		"error":      err.Error(),
	}

	var invalid *profiles.ValidationError
	var missing *permissions.MissingError
	switch {
	case errors.As(err, &invalid), errors.As(err, &missing), errors.Is(err, store.ErrCapacity):
		logger.DebugCF("bot", "Request rejected", fields)
	default:
		logger.ErrorCF("bot", "Message handling failed", fields)
	}

	reply, dm := b.errorReply(err)
	if reply == "" {
		return
	}
	b.stats.errReplies.Add(1)

	if dm {
		err = b.transport.SendDirect(ctx, m.AuthorID, reply)
	} else {
		_, err = b.transport.Send(ctx, m.ChannelID, channels.OutgoingMessage{Content: reply, ReplyTo: m.ID})
	}
	if err != nil {
		logger.WarnCF("bot", "Failed to report error", map[string]any{
			"event_id": eventID,
			"error":    err.Error(),
		})
	}
}
