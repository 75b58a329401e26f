package bot

import (
	"context"

	"github.com/dotsetgreg/masquerade/pkg/bus"
	"github.com/dotsetgreg/masquerade/pkg/listing"
)

// onReaction pages a listing. Only the user whose command produced the
// listing can turn its pages; adding and removing a reaction both count.
func (b *Bot) onReaction(ctx context.Context, r bus.Reaction) error {
	botID := b.transport.BotUserID()
	if r.UserID == botID {
		return nil
	}
	dir, ok := listing.DirectionFor(r.Emoji)
	if !ok {
		return nil
	}

	msg, err := b.transport.FetchMessage(ctx, r.ChannelID, r.MessageID)
	if err != nil {
		return err
	}
	if msg.AuthorID != botID || len(msg.ReplyIDs) == 0 {
		return nil
	}
	state, ok := listing.ParseState(msg.Content)
	if !ok {
		return nil
	}

	request, err := b.transport.FetchMessage(ctx, r.ChannelID, msg.ReplyIDs[0])
	if err != nil {
		return err
	}
	if request.AuthorID != r.UserID {
		return nil
	}

	ps := b.store.GetProfiles(r.UserID)
	page := listing.Navigate(state.Page, len(ps), b.cfg.PageSize, dir)
	content := listing.RenderPage(ps, page, b.cfg.PageSize)
	if content == msg.Content {
		b.stats.pageSkips.Add(1)
		return nil
	}
	if err := b.transport.EditMessage(ctx, r.ChannelID, r.MessageID, content); err != nil {
		return err
	}
	b.stats.pageEdits.Add(1)
	return nil
}
