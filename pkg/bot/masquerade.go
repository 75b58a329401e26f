package bot

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dotsetgreg/masquerade/pkg/bus"
	"github.com/dotsetgreg/masquerade/pkg/channels"
	"github.com/dotsetgreg/masquerade/pkg/logger"
	"github.com/dotsetgreg/masquerade/pkg/masq"
	"github.com/dotsetgreg/masquerade/pkg/permissions"
	"github.com/dotsetgreg/masquerade/pkg/profiles"
	"github.com/dotsetgreg/masquerade/pkg/store"
)

func (b *Bot) onMessage(ctx context.Context, m bus.Message) error {
	if m.AuthorID == b.transport.BotUserID() {
		return nil
	}

	command, addressed := b.stripMention(m.Content)

	segments := masq.Split(b.store, m.AuthorID, m.Content, m.ReplyIDs, nil)
	if len(segments) == 0 && !addressed && !m.AuthorIsBot && b.cfg.UseDefaults {
		if p, ok := b.store.ResolveDefault(m.AuthorID, m.ServerID, m.ChannelID); ok {
			segments = masq.Split(b.store, m.AuthorID, m.Content, m.ReplyIDs, &p)
		}
	}
	if len(segments) > 0 {
		return b.sendSegments(ctx, m, segments)
	}

	if !addressed || m.AuthorIsBot {
		return nil
	}
	return b.runCommand(ctx, m, command)
}

// sendSegments gates every segment before the first send, then sends them in
// order. The original is deleted alongside the first send.
func (b *Bot) sendSegments(ctx context.Context, m bus.Message, segments []masq.Segment) error {
	segments = masq.Limit(segments, b.cfg.MaxSegments)

	sendable := segments[:0:0]
	for _, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		sendable = append(sendable, seg)
	}
	if len(sendable) == 0 {
		return nil
	}
	// A skipped first segment must not lose the reply target.
	if sendable[0].ReplyTo == nil {
		sendable[0].ReplyTo = segments[0].ReplyTo
	}

	ps := make([]profiles.Profile, len(sendable))
	for i, seg := range sendable {
		ps[i] = seg.Profile
	}
	checked, err := b.gate.CheckAll(ctx, m.ChannelID, m.AuthorID, ps)
	if err != nil {
		return err
	}

	logger.DebugCF("bot", "Masquerading", map[string]any{
		"message_id": m.ID,
		"segments":   len(sendable),
	})

	for i, seg := range sendable {
		out := channels.MasqueradeMessage{
			Content:    seg.Text,
			Masquerade: checked[i].Masquerade(),
			ReplyTo:    seg.ReplyTo,
		}
		if i > 0 || !b.cfg.DeleteOriginal {
			if err := b.sendMasquerade(ctx, m.ChannelID, m.AuthorID, out); err != nil {
				return err
			}
			continue
		}

		// A failed first send cancels the delete so the user keeps their text.
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return b.sendMasquerade(gctx, m.ChannelID, m.AuthorID, out)
		})
		g.Go(func() error {
			b.deleteOriginal(gctx, m)
			return nil
		})
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) sendMasquerade(ctx context.Context, channelID, authorID string, out channels.MasqueradeMessage) error {
	sent, sendErr := b.transport.SendMasquerade(ctx, channelID, out)
	if sendErr == nil {
		b.stats.segments.Add(1)
	}
	// Parts that went out before a failure still need an author.
	for _, id := range sent.IDs() {
		if err := b.store.SetAuthor(ctx, store.Author{MessageID: id, UserID: authorID}); err != nil {
			return err
		}
	}
	return sendErr
}

// deleteOriginal removes the triggering message when the bot may. Failures
// only cost tidiness and are logged.
func (b *Bot) deleteOriginal(ctx context.Context, m bus.Message) {
	perms, err := b.gate.Bot(ctx, m.ChannelID)
	if err != nil || !perms.Has(permissions.ManageMessages) {
		return
	}
	if err := b.transport.DeleteMessage(ctx, m.ChannelID, m.ID); err != nil {
		logger.WarnCF("bot", "Failed to delete original message", map[string]any{
			"message_id": m.ID,
			"error":      err.Error(),
		})
	}
}
