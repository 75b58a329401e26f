package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dotsetgreg/masquerade/pkg/bus"
	"github.com/dotsetgreg/masquerade/pkg/channels"
	"github.com/dotsetgreg/masquerade/pkg/listing"
	"github.com/dotsetgreg/masquerade/pkg/logger"
	"github.com/dotsetgreg/masquerade/pkg/profiles"
	"github.com/dotsetgreg/masquerade/pkg/store"
)

const (
	replySuccess        = "Success!"
	replyNone           = "None"
	replyUnknown        = "Unknown"
	replyNotFound       = "Profile not found!\n%s"
	replyExists         = "Profile already exists!\n%s"
	replyNoProfile      = "Profile doesn't exist!"
	replyNotInServer    = "Not in a server!"
	replyNeedsExport    = "Command requires a json file from running pk;export"
	replyFileTooLarge   = "File too large!"
	replyDownloadFailed = "Failed to download file!"
	replyParseFailed    = "Failed to parse file!\n%s"
)

// runCommand dispatches a mention-prefixed message. Unknown commands get the
// help text.
func (b *Bot) runCommand(ctx context.Context, m bus.Message, text string) error {
	command, args := splitWord(text)
	b.stats.commands.Add(1)

	logger.DebugCF("bot", "Command", map[string]any{
		"command":    command,
		"user_id":    m.AuthorID,
		"channel_id": m.ChannelID,
	})

	if field, ok := profiles.LookupField(command); ok {
		return b.editProfile(ctx, m, field, args)
	}

	switch command {
	case "create":
		return b.createProfile(ctx, m, args)
	case "delete":
		return b.deleteProfile(ctx, m, args)
	case "list":
		return b.listProfiles(ctx, m)
	case "author":
		return b.whoSent(ctx, m)
	case "default", "global_default", "gdefault":
		return b.setDefault(ctx, m, store.GlobalKey(m.AuthorID), args)
	case "server_default", "sdefault":
		if m.ServerID == "" {
			return b.reply(ctx, m, replyNotInServer)
		}
		return b.setDefault(ctx, m, store.ServerKey(m.AuthorID, m.ServerID), args)
	case "channel_default", "cdefault":
		return b.setDefault(ctx, m, store.ChannelKey(m.AuthorID, m.ChannelID), args)
	case "import":
		return b.importProfiles(ctx, m)
	default:
		return b.reply(ctx, m, b.helpText())
	}
}

// replyAs confirms a profile write by speaking as the profile itself.
func (b *Bot) replyAs(ctx context.Context, m bus.Message, p profiles.Profile, content string) error {
	checked, err := b.gate.Check(ctx, m.ChannelID, m.AuthorID, p)
	if err != nil {
		return err
	}
	return b.sendMasquerade(ctx, m.ChannelID, m.AuthorID, channels.MasqueradeMessage{
		Content:    content,
		Masquerade: checked.Masquerade(),
		ReplyTo:    []string{m.ID},
	})
}

// createProfile handles "create <name> [display name]". The first attachment
// becomes the avatar. An existing profile of that name is overwritten.
func (b *Bot) createProfile(ctx context.Context, m bus.Message, args string) error {
	name, display := splitWord(args)
	p := profiles.New(m.AuthorID, name)
	p.DisplayName = display
	if len(m.Attachments) > 0 {
		p.Avatar = m.Attachments[0].URL
	}
	if err := b.store.SaveProfile(ctx, p); err != nil {
		return err
	}
	return b.replyAs(ctx, m, p, replySuccess)
}

// editProfile handles "<field> <name> [value]". Without a value the current
// one is shown; "clear" unsets it. Editing a missing profile creates it.
func (b *Bot) editProfile(ctx context.Context, m bus.Message, field profiles.Field, args string) error {
	name, value := splitWord(args)
	if value == "" && field == profiles.FieldAvatar && len(m.Attachments) > 0 {
		value = m.Attachments[0].URL
	}

	existing, found := b.store.GetProfile(m.AuthorID, name)
	if value == "" {
		switch {
		case !found:
			return b.reply(ctx, m, fmt.Sprintf(replyNotFound, name))
		case field.Get(existing) == "":
			return b.reply(ctx, m, replyNone)
		default:
			return b.reply(ctx, m, field.Get(existing))
		}
	}
	if value == "clear" {
		value = ""
	}

	p := existing
	if !found {
		p = profiles.New(m.AuthorID, name)
	}
	field.Set(&p, value)

	var err error
	if found && p.Name != name {
		err = b.store.RenameProfile(ctx, m.AuthorID, name, p)
	} else {
		err = b.store.SaveProfile(ctx, p)
	}
	if errors.Is(err, store.ErrProfileExists) {
		return b.reply(ctx, m, fmt.Sprintf(replyExists, p.Name))
	}
	if err != nil {
		return err
	}
	return b.replyAs(ctx, m, p, replySuccess)
}

func (b *Bot) deleteProfile(ctx context.Context, m bus.Message, args string) error {
	name := strings.TrimSpace(args)
	_, found, err := b.store.DeleteProfile(ctx, m.AuthorID, name)
	if err != nil {
		return err
	}
	if !found {
		return b.reply(ctx, m, fmt.Sprintf(replyNotFound, name))
	}
	return b.reply(ctx, m, replySuccess)
}

// listProfiles sends the first page of the sender's profiles with paging
// reactions. The listing replies to the command so reactions can be tied back
// to whoever asked.
func (b *Bot) listProfiles(ctx context.Context, m bus.Message) error {
	ps := b.store.GetProfiles(m.AuthorID)
	_, err := b.transport.Send(ctx, m.ChannelID, channels.OutgoingMessage{
		Content:   listing.RenderPage(ps, 0, b.cfg.PageSize),
		ReplyTo:   m.ID,
		Reactions: []string{listing.EmojiPrevious, listing.EmojiNext},
	})
	return err
}

// whoSent answers which user triggered the replied-to masquerade message.
// Without a reply there is nothing to look up and the command is ignored.
func (b *Bot) whoSent(ctx context.Context, m bus.Message) error {
	if len(m.ReplyIDs) == 0 {
		return nil
	}
	a, found, err := b.store.GetAuthor(ctx, m.ReplyIDs[0])
	if err != nil {
		return err
	}
	if !found {
		return b.reply(ctx, m, replyUnknown)
	}
	return b.reply(ctx, m, "<@"+a.UserID+">")
}

// setDefault assigns or, without a name, clears the default for key.
func (b *Bot) setDefault(ctx context.Context, m bus.Message, key store.DefaultKey, args string) error {
	name, _ := splitWord(args)
	if name == "" {
		if err := b.store.SetDefault(ctx, key, ""); err != nil {
			return err
		}
		return b.reply(ctx, m, replySuccess)
	}

	p, found := b.store.GetProfile(m.AuthorID, name)
	if !found {
		return b.reply(ctx, m, replyNoProfile)
	}
	err := b.store.SetDefault(ctx, key, name)
	if errors.Is(err, store.ErrProfileNotFound) {
		return b.reply(ctx, m, replyNoProfile)
	}
	if err != nil {
		return err
	}
	return b.replyAs(ctx, m, p, replySuccess)
}

// importProfiles loads a PluralKit export from the first attachment. The
// batch is written all-or-nothing.
func (b *Bot) importProfiles(ctx context.Context, m bus.Message) error {
	if len(m.Attachments) == 0 {
		return b.reply(ctx, m, replyNeedsExport)
	}
	att := m.Attachments[0]
	if att.Size > b.cfg.ImportMaxBytes {
		return b.reply(ctx, m, replyFileTooLarge)
	}

	data, err := b.transport.Download(ctx, att.URL, b.cfg.ImportMaxBytes)
	if errors.Is(err, channels.ErrTooLarge) {
		return b.reply(ctx, m, replyFileTooLarge)
	}
	if err != nil {
		logger.WarnCF("bot", "Import download failed", map[string]any{
			"user_id": m.AuthorID,
			"error":   err.Error(),
		})
		return b.reply(ctx, m, replyDownloadFailed)
	}

	export, err := profiles.ParseExport(data)
	if err != nil {
		return b.reply(ctx, m, fmt.Sprintf(replyParseFailed, err))
	}
	ps, err := export.Profiles(m.AuthorID)
	if err != nil {
		return err
	}
	n, err := b.store.ImportProfiles(ctx, m.AuthorID, ps)
	if err != nil {
		return err
	}

	logger.InfoCF("bot", "Profiles imported", map[string]any{
		"user_id": m.AuthorID,
		"count":   n,
	})
	suffix := ""
	if n > 1 {
		suffix = "s"
	}
	return b.reply(ctx, m, fmt.Sprintf("Imported %d Profile%s!", n, suffix))
}
