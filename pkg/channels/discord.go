package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/dotsetgreg/masquerade/pkg/bus"
	"github.com/dotsetgreg/masquerade/pkg/config"
	"github.com/dotsetgreg/masquerade/pkg/logger"
	"github.com/dotsetgreg/masquerade/pkg/permissions"
)

const (
	sendTimeout = 10 * time.Second
	// messageLimit is Discord's per-message character limit. Longer content
	// is cut into chunkLimit-byte pieces, leaving room for fence extension.
	messageLimit = 2000
	chunkLimit   = 1500
	chunkSlack   = 400
)

// discordChunks leaves content that fits in one message whole.
func discordChunks(content string) []string {
	if utf8.RuneCountInString(content) <= messageLimit {
		return []string{content}
	}
	return chunkContent(content, chunkLimit, chunkSlack)
}

// DiscordChannel is the Discord transport. Discord has no per-message
// identity override, so masquerade sends go through a channel webhook owned
// by the bot, which carries the profile's name and avatar. Webhooks cannot
// colour a name; the colour is dropped.
type DiscordChannel struct {
	*BaseChannel
	session    *discordgo.Session
	config     config.DiscordConfig
	statusText string

	mu       sync.RWMutex
	botID    string
	botName  string
	webhooks map[string]*discordgo.Webhook
}

func NewDiscordChannel(cfg config.DiscordConfig, statusText string, mb *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsDirectMessageReactions |
		discordgo.IntentsMessageContent

	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", mb, cfg.AllowFrom),
		session:     session,
		config:      cfg,
		statusText:  statusText,
		webhooks:    make(map[string]*discordgo.Webhook),
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")

	c.session.AddHandler(c.handleReady)
	c.session.AddHandler(c.handleMessage)
	c.session.AddHandler(c.handleReactionAdd)
	c.session.AddHandler(c.handleReactionRemove)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	botUser, err := c.session.User("@me")
	if err != nil {
		_ = c.session.Close()
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	c.mu.Lock()
	c.botID = botUser.ID
	c.botName = botUser.Username
	c.mu.Unlock()
	c.setRunning(true)

	logger.InfoCF("discord", "Discord bot connected", map[string]any{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})
	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	return nil
}

func (c *DiscordChannel) BotUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.botID
}

func (c *DiscordChannel) BotName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.botName
}

func (c *DiscordChannel) Mentions() []string {
	id := c.BotUserID()
	if id == "" {
		return nil
	}
	return []string{"<@" + id + ">", "<@!" + id + ">"}
}

// transportErr maps Discord's missing-permission response onto the bot side
// of the permission model; everything else is a transport failure.
func transportErr(op string, err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Message != nil && rest.Message.Code == discordgo.ErrCodeMissingPermissions {
		return &permissions.MissingError{Side: permissions.Bot, Capability: permissions.SendMessages}
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

func (c *DiscordChannel) requestCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, sendTimeout)
}

func (c *DiscordChannel) Send(ctx context.Context, channelID string, msg OutgoingMessage) (SentMessage, error) {
	if !c.IsRunning() {
		return SentMessage{}, ErrNotRunning
	}
	ctx, cancel := c.requestCtx(ctx)
	defer cancel()

	var out SentMessage
	for i, chunk := range discordChunks(msg.Content) {
		send := &discordgo.MessageSend{
			Content:         chunk,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		}
		if i == 0 && msg.ReplyTo != "" {
			send.Reference = &discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: channelID}
		}
		sent, err := c.session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
		if err != nil {
			return out, transportErr("send message", err)
		}
		out.add(sent.ID, sent.ChannelID)
	}

	for _, emoji := range msg.Reactions {
		if err := c.session.MessageReactionAdd(channelID, out.ID, emoji, discordgo.WithContext(ctx)); err != nil {
			return out, transportErr("add reaction", err)
		}
	}
	return out, nil
}

// webhook returns the bot's webhook for channelID, creating it on first use.
func (c *DiscordChannel) webhook(ctx context.Context, channelID string) (*discordgo.Webhook, error) {
	c.mu.RLock()
	hook, ok := c.webhooks[channelID]
	c.mu.RUnlock()
	if ok {
		return hook, nil
	}

	hooks, err := c.session.ChannelWebhooks(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, transportErr("list webhooks", err)
	}
	for _, h := range hooks {
		if h.Name == c.config.WebhookName && h.Token != "" {
			hook = h
			break
		}
	}
	if hook == nil {
		hook, err = c.session.WebhookCreate(channelID, c.config.WebhookName, "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, transportErr("create webhook", err)
		}
		logger.InfoCF("discord", "Webhook created", map[string]any{
			"channel_id": channelID,
			"webhook_id": hook.ID,
		})
	}

	c.mu.Lock()
	c.webhooks[channelID] = hook
	c.mu.Unlock()
	return hook, nil
}

func (c *DiscordChannel) jumpLink(channelID, messageID string) string {
	guild := "@me"
	if ch, err := c.session.State.Channel(channelID); err == nil && ch.GuildID != "" {
		guild = ch.GuildID
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guild, channelID, messageID)
}

func (c *DiscordChannel) SendMasquerade(ctx context.Context, channelID string, msg MasqueradeMessage) (SentMessage, error) {
	if !c.IsRunning() {
		return SentMessage{}, ErrNotRunning
	}
	ctx, cancel := c.requestCtx(ctx)
	defer cancel()

	hook, err := c.webhook(ctx, channelID)
	if err != nil {
		return SentMessage{}, err
	}

	content := msg.Content
	if len(msg.ReplyTo) > 0 {
		content = "-# ↪ " + c.jumpLink(channelID, msg.ReplyTo[0]) + "\n" + content
	}

	var out SentMessage
	for _, chunk := range discordChunks(content) {
		params := &discordgo.WebhookParams{
			Content:         chunk,
			Username:        msg.Masquerade.Name,
			AvatarURL:       msg.Masquerade.Avatar,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		}
		sent, err := c.session.WebhookExecute(hook.ID, hook.Token, true, params, discordgo.WithContext(ctx))
		if err != nil {
			var rest *discordgo.RESTError
			if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
				c.mu.Lock()
				delete(c.webhooks, channelID)
				c.mu.Unlock()
			}
			return out, transportErr("execute webhook", err)
		}
		out.add(sent.ID, sent.ChannelID)
	}
	return out, nil
}

func (c *DiscordChannel) SendDirect(ctx context.Context, userID, content string) error {
	ctx, cancel := c.requestCtx(ctx)
	defer cancel()

	dm, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return transportErr("open dm", err)
	}
	if _, err := c.session.ChannelMessageSend(dm.ID, content, discordgo.WithContext(ctx)); err != nil {
		return transportErr("send dm", err)
	}
	return nil
}

func (c *DiscordChannel) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	ctx, cancel := c.requestCtx(ctx)
	defer cancel()
	if _, err := c.session.ChannelMessageEdit(channelID, messageID, content, discordgo.WithContext(ctx)); err != nil {
		return transportErr("edit message", err)
	}
	return nil
}

func (c *DiscordChannel) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	ctx, cancel := c.requestCtx(ctx)
	defer cancel()
	if err := c.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return transportErr("delete message", err)
	}
	return nil
}

func (c *DiscordChannel) FetchMessage(ctx context.Context, channelID, messageID string) (bus.Message, error) {
	if m, err := c.session.State.Message(channelID, messageID); err == nil {
		return convertMessage(m), nil
	}
	ctx, cancel := c.requestCtx(ctx)
	defer cancel()
	m, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return bus.Message{}, transportErr("fetch message", err)
	}
	return convertMessage(m), nil
}

// Permissions maps Discord permission bits onto capabilities. Outside guilds
// only SendMessages is granted: webhooks do not exist in DMs.
func (c *DiscordChannel) Permissions(ctx context.Context, channelID, userID string) (permissions.Set, error) {
	ch, err := c.session.State.Channel(channelID)
	if err != nil {
		ch, err = c.session.Channel(channelID, discordgo.WithContext(ctx))
		if err != nil {
			return 0, transportErr("fetch channel", err)
		}
	}
	if ch.GuildID == "" {
		return permissions.Of(permissions.SendMessages), nil
	}

	bits, err := c.session.State.UserChannelPermissions(userID, channelID)
	if err != nil {
		bits, err = c.session.UserChannelPermissions(userID, channelID, discordgo.WithContext(ctx))
		if err != nil {
			return 0, transportErr("fetch permissions", err)
		}
	}

	var set permissions.Set
	if bits&discordgo.PermissionSendMessages != 0 {
		set = set.With(permissions.SendMessages)
	}
	if bits&discordgo.PermissionManageMessages != 0 {
		set = set.With(permissions.ManageMessages)
	}
	if bits&discordgo.PermissionManageRoles != 0 {
		set = set.With(permissions.ManageColour)
	}
	var speak int64 = discordgo.PermissionSendMessages
	if userID == c.BotUserID() {
		speak = discordgo.PermissionManageWebhooks
	}
	if bits&speak != 0 {
		set = set.With(permissions.SpeakAsCustom)
	}
	return set, nil
}

func (c *DiscordChannel) CapabilityName(side permissions.Side, capability permissions.Capability) string {
	switch capability {
	case permissions.SendMessages:
		return "Send Messages"
	case permissions.SpeakAsCustom:
		if side == permissions.Bot {
			return "Manage Webhooks"
		}
		return "Send Messages"
	case permissions.ManageColour:
		return "Manage Roles"
	case permissions.ManageMessages:
		return "Manage Messages"
	}
	return capability.String()
}

func (c *DiscordChannel) Download(ctx context.Context, url string, limit int64) ([]byte, error) {
	return download(ctx, url, limit)
}

func convertMessage(m *discordgo.Message) bus.Message {
	out := bus.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		ServerID:  m.GuildID,
		Content:   m.Content,
	}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
		out.AuthorIsBot = m.Author.Bot
	}
	if m.MessageReference != nil && m.MessageReference.MessageID != "" {
		out.ReplyIDs = []string{m.MessageReference.MessageID}
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, bus.Attachment{
			URL:      a.URL,
			Filename: a.Filename,
			Size:     int64(a.Size),
		})
	}
	return out
}

func (c *DiscordChannel) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	if c.statusText == "" {
		return
	}
	if err := s.UpdateCustomStatus(c.statusText); err != nil {
		logger.ErrorCF("discord", "Failed to set status", map[string]any{
			"error": err.Error(),
		})
	}
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}
	// Webhook echoes are our own masquerade sends.
	if m.WebhookID != "" || m.Author.ID == c.BotUserID() {
		return
	}

	msg := convertMessage(m.Message)
	logger.DebugCF("discord", "Received message", map[string]any{
		"message_id": msg.ID,
		"sender_id":  msg.AuthorID,
		"channel_id": msg.ChannelID,
	})
	c.HandleMessage(msg)
}

func (c *DiscordChannel) handleReaction(r *discordgo.MessageReaction, removed bool) {
	if r == nil || r.UserID == c.BotUserID() {
		return
	}
	emoji := r.Emoji.Name
	if r.Emoji.ID != "" {
		emoji = r.Emoji.APIName()
	}
	c.HandleReaction(bus.Reaction{
		MessageID: r.MessageID,
		ChannelID: r.ChannelID,
		UserID:    r.UserID,
		Emoji:     emoji,
		Removed:   removed,
	})
}

func (c *DiscordChannel) handleReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	c.handleReaction(r.MessageReaction, false)
}

func (c *DiscordChannel) handleReactionRemove(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
	c.handleReaction(r.MessageReaction, true)
}
