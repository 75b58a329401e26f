package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/dotsetgreg/masquerade/pkg/bus"
	"github.com/dotsetgreg/masquerade/pkg/logger"
	"github.com/dotsetgreg/masquerade/pkg/permissions"
)

const (
	consoleChannelID = "console"
	consoleServerID  = "local"
	consoleBotID     = "masquerade"
)

// ConsoleOptions configures the local terminal transport.
type ConsoleOptions struct {
	// UserID is the identity typed messages are sent as.
	UserID  string
	BotName string
	Prompt  string
	// Out receives rendered messages; defaults to the readline stdout.
	Out io.Writer
}

// ConsoleChannel is a single-channel transport on the local terminal. Every
// capability is granted. Lines ending in "\" continue on the next line.
//
// Commands:
//
//	^<message-id> text             reply to a message
//	/react <message-id> <emoji>    react to a message
//	/attach <path>                 attach a file to the next message
//	/quit                          stop reading input
type ConsoleChannel struct {
	*BaseChannel
	opts ConsoleOptions

	mu       sync.Mutex
	nextID   int
	messages map[string]*bus.Message
	pending  strings.Builder
	attach   []bus.Attachment
	rl       *readline.Instance
	done     chan struct{}
}

func NewConsoleChannel(opts ConsoleOptions, mb *bus.MessageBus) *ConsoleChannel {
	if opts.UserID == "" {
		opts.UserID = "console-user"
	}
	if opts.BotName == "" {
		opts.BotName = consoleBotID
	}
	if opts.Prompt == "" {
		opts.Prompt = "> "
	}
	return &ConsoleChannel{
		BaseChannel: NewBaseChannel("console", mb, nil),
		opts:        opts,
		messages:    make(map[string]*bus.Message),
		done:        make(chan struct{}),
	}
}

func (c *ConsoleChannel) Start(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.opts.Prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".masquerade_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}

	c.mu.Lock()
	c.rl = rl
	if c.opts.Out == nil {
		c.opts.Out = rl.Stdout()
	}
	c.mu.Unlock()
	c.setRunning(true)

	fmt.Fprintf(c.out(), "Speaking as %s. Mention the bot with @%s, /quit to exit.\n", c.opts.UserID, c.opts.BotName)
	go c.readLoop(rl)
	return nil
}

// Done is closed when input ends.
func (c *ConsoleChannel) Done() <-chan struct{} {
	return c.done
}

func (c *ConsoleChannel) readLoop(rl *readline.Instance) {
	defer close(c.done)
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return
			}
			logger.WarnCF("console", "Read failed", map[string]any{"error": err.Error()})
			continue
		}
		if !c.HandleLine(line) {
			return
		}
	}
}

func (c *ConsoleChannel) Stop(ctx context.Context) error {
	c.setRunning(false)
	c.mu.Lock()
	rl := c.rl
	c.mu.Unlock()
	if rl != nil {
		return rl.Close()
	}
	return nil
}

func (c *ConsoleChannel) out() io.Writer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opts.Out == nil {
		return os.Stdout
	}
	return c.opts.Out
}

// HandleLine processes one line of input. It returns false when the user
// asked to quit.
func (c *ConsoleChannel) HandleLine(line string) bool {
	if cont, ok := strings.CutSuffix(line, `\`); ok {
		c.mu.Lock()
		c.pending.WriteString(cont)
		c.pending.WriteByte('\n')
		c.mu.Unlock()
		return true
	}

	c.mu.Lock()
	c.pending.WriteString(line)
	content := c.pending.String()
	c.pending.Reset()
	c.mu.Unlock()

	trimmed := strings.TrimSpace(content)
	switch {
	case trimmed == "":
		return true
	case trimmed == "/quit" || trimmed == "exit":
		return false
	case strings.HasPrefix(trimmed, "/react "):
		fields := strings.Fields(trimmed)
		if len(fields) != 3 {
			fmt.Fprintln(c.out(), "usage: /react <message-id> <emoji>")
			return true
		}
		c.HandleReaction(bus.Reaction{MessageID: fields[1], ChannelID: consoleChannelID, UserID: c.opts.UserID, Emoji: fields[2]})
		return true
	case strings.HasPrefix(trimmed, "/attach "):
		path := strings.TrimSpace(strings.TrimPrefix(trimmed, "/attach "))
		info, err := os.Stat(path)
		if err != nil {
			fmt.Fprintf(c.out(), "cannot attach: %v\n", err)
			return true
		}
		abs, _ := filepath.Abs(path)
		c.mu.Lock()
		c.attach = append(c.attach, bus.Attachment{URL: "file://" + abs, Filename: info.Name(), Size: info.Size()})
		c.mu.Unlock()
		fmt.Fprintf(c.out(), "attached %s\n", info.Name())
		return true
	}

	c.mu.Lock()
	attachments := c.attach
	c.attach = nil
	c.mu.Unlock()

	var replies []string
	if ref, rest, ok := strings.Cut(content, " "); ok && strings.HasPrefix(ref, "^") {
		replies = []string{strings.TrimPrefix(ref, "^")}
		content = rest
	}

	msg := bus.Message{
		ChannelID:   consoleChannelID,
		ServerID:    consoleServerID,
		AuthorID:    c.opts.UserID,
		Content:     content,
		ReplyIDs:    replies,
		Attachments: attachments,
	}
	msg.ID = c.record(msg)
	c.HandleMessage(msg)
	return true
}

func (c *ConsoleChannel) record(msg bus.Message) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := strconv.Itoa(c.nextID)
	msg.ID = id
	c.messages[id] = &msg
	return id
}

func (c *ConsoleChannel) BotUserID() string { return consoleBotID }

func (c *ConsoleChannel) BotName() string { return c.opts.BotName }

func (c *ConsoleChannel) Mentions() []string { return []string{"@" + c.opts.BotName} }

func (c *ConsoleChannel) print(id, who, content string) {
	fmt.Fprintf(c.out(), "[%s] %s: %s\n", id, who, content)
}

func (c *ConsoleChannel) Send(ctx context.Context, channelID string, msg OutgoingMessage) (SentMessage, error) {
	m := bus.Message{ChannelID: channelID, AuthorID: consoleBotID, Content: msg.Content, AuthorIsBot: true}
	if msg.ReplyTo != "" {
		m.ReplyIDs = []string{msg.ReplyTo}
	}
	id := c.record(m)
	c.print(id, c.opts.BotName, msg.Content)
	if len(msg.Reactions) > 0 {
		fmt.Fprintf(c.out(), "    reactions: %s\n", strings.Join(msg.Reactions, " "))
	}
	return SentMessage{ID: id, ChannelID: channelID}, nil
}

func (c *ConsoleChannel) SendMasquerade(ctx context.Context, channelID string, msg MasqueradeMessage) (SentMessage, error) {
	m := bus.Message{ChannelID: channelID, AuthorID: consoleBotID, Content: msg.Content, ReplyIDs: msg.ReplyTo, AuthorIsBot: true}
	id := c.record(m)
	who := msg.Masquerade.Name
	if msg.Masquerade.Colour != "" {
		who += " (" + msg.Masquerade.Colour + ")"
	}
	c.print(id, who, msg.Content)
	return SentMessage{ID: id, ChannelID: channelID}, nil
}

func (c *ConsoleChannel) SendDirect(ctx context.Context, userID, content string) error {
	fmt.Fprintf(c.out(), "(dm to %s) %s\n", userID, content)
	return nil
}

func (c *ConsoleChannel) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	c.mu.Lock()
	m, ok := c.messages[messageID]
	if ok {
		m.Content = content
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: edit %s: %w", ErrTransport, messageID, ErrNotFound)
	}
	fmt.Fprintf(c.out(), "[%s] (edited) %s\n", messageID, content)
	return nil
}

func (c *ConsoleChannel) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	c.mu.Lock()
	delete(c.messages, messageID)
	c.mu.Unlock()
	return nil
}

func (c *ConsoleChannel) FetchMessage(ctx context.Context, channelID, messageID string) (bus.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.messages[messageID]
	if !ok {
		return bus.Message{}, fmt.Errorf("%w: fetch %s: %w", ErrTransport, messageID, ErrNotFound)
	}
	return *m, nil
}

func (c *ConsoleChannel) Permissions(ctx context.Context, channelID, userID string) (permissions.Set, error) {
	return permissions.All(), nil
}

func (c *ConsoleChannel) CapabilityName(side permissions.Side, capability permissions.Capability) string {
	return capability.String()
}

func (c *ConsoleChannel) Download(ctx context.Context, url string, limit int64) ([]byte, error) {
	return download(ctx, url, limit)
}
