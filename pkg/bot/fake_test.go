package bot

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/dotsetgreg/masquerade/pkg/bus"
	"github.com/dotsetgreg/masquerade/pkg/channels"
	"github.com/dotsetgreg/masquerade/pkg/config"
	"github.com/dotsetgreg/masquerade/pkg/permissions"
	"github.com/dotsetgreg/masquerade/pkg/profiles"
	"github.com/dotsetgreg/masquerade/pkg/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testBotID = "bot"

type sentMessage struct {
	ID         string
	ChannelID  string
	Content    string
	ReplyTo    []string
	Reactions  []string
	Masquerade *profiles.Masquerade
}

// fakeTransport records everything the bot does. Users without an entry in
// perms have every capability.
type fakeTransport struct {
	mu       sync.Mutex
	nextID   int
	perms    map[string]permissions.Set
	messages map[string]bus.Message
	files    map[string][]byte
	sent     []sentMessage
	dms      []string
	edits    map[string]string
	deleted  []string
	masqErr  error
	// partLen > 0 splits masquerade content into parts of that many bytes.
	partLen int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		perms:    make(map[string]permissions.Set),
		messages: make(map[string]bus.Message),
		files:    make(map[string][]byte),
		edits:    make(map[string]string),
	}
}

func (f *fakeTransport) Name() string                    { return "fake" }
func (f *fakeTransport) Start(ctx context.Context) error { return nil }
func (f *fakeTransport) Stop(ctx context.Context) error  { return nil }
func (f *fakeTransport) IsRunning() bool                 { return true }
func (f *fakeTransport) BotUserID() string               { return testBotID }
func (f *fakeTransport) Mentions() []string              { return []string{"<@" + testBotID + ">"} }
func (f *fakeTransport) BotName() string                 { return "Masq" }

func (f *fakeTransport) CapabilityName(side permissions.Side, c permissions.Capability) string {
	return c.String()
}

func (f *fakeTransport) Permissions(ctx context.Context, channelID, userID string) (permissions.Set, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.perms[userID]; ok {
		return s, nil
	}
	return permissions.All(), nil
}

func (f *fakeTransport) record(channelID string, out sentMessage) channels.SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	out.ID = "s" + strconv.Itoa(f.nextID)
	out.ChannelID = channelID
	f.sent = append(f.sent, out)
	f.messages[out.ID] = bus.Message{ID: out.ID, ChannelID: channelID, AuthorID: testBotID, Content: out.Content, ReplyIDs: out.ReplyTo}
	return channels.SentMessage{ID: out.ID, ChannelID: channelID}
}

func (f *fakeTransport) Send(ctx context.Context, channelID string, msg channels.OutgoingMessage) (channels.SentMessage, error) {
	var reply []string
	if msg.ReplyTo != "" {
		reply = []string{msg.ReplyTo}
	}
	return f.record(channelID, sentMessage{Content: msg.Content, ReplyTo: reply, Reactions: msg.Reactions}), nil
}

func (f *fakeTransport) SendMasquerade(ctx context.Context, channelID string, msg channels.MasqueradeMessage) (channels.SentMessage, error) {
	f.mu.Lock()
	err := f.masqErr
	f.mu.Unlock()
	if err != nil {
		return channels.SentMessage{}, err
	}
	m := msg.Masquerade
	f.mu.Lock()
	partLen := f.partLen
	f.mu.Unlock()
	if partLen <= 0 || len(msg.Content) <= partLen {
		return f.record(channelID, sentMessage{Content: msg.Content, ReplyTo: msg.ReplyTo, Masquerade: &m}), nil
	}

	var out channels.SentMessage
	for rest := msg.Content; rest != ""; {
		n := min(partLen, len(rest))
		part := f.record(channelID, sentMessage{Content: rest[:n], ReplyTo: msg.ReplyTo, Masquerade: &m})
		if out.ID == "" {
			out = part
		} else {
			out.Parts = append(out.Parts, part.ID)
		}
		rest = rest[n:]
	}
	return out, nil
}

func (f *fakeTransport) SendDirect(ctx context.Context, userID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms = append(f.dms, userID+": "+content)
	return nil
}

func (f *fakeTransport) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok {
		return fmt.Errorf("%w: edit %s", channels.ErrNotFound, messageID)
	}
	m.Content = content
	f.messages[messageID] = m
	f.edits[messageID] = content
	return nil
}

func (f *fakeTransport) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.messages, messageID)
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeTransport) FetchMessage(ctx context.Context, channelID, messageID string) (bus.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok {
		return bus.Message{}, fmt.Errorf("%w: %s", channels.ErrNotFound, messageID)
	}
	return m, nil
}

func (f *fakeTransport) Download(ctx context.Context, url string, limit int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", channels.ErrTransport, url)
	}
	if int64(len(data)) > limit {
		return nil, channels.ErrTooLarge
	}
	return data, nil
}

func (f *fakeTransport) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeTransport) last(t *testing.T) sentMessage {
	t.Helper()
	sent := f.Sent()
	if len(sent) == 0 {
		t.Fatal("nothing was sent")
	}
	return sent[len(sent)-1]
}

type harness struct {
	bot       *Bot
	transport *fakeTransport
	store     *store.Store
	mem       *store.MemoryBackend
	nextID    int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := store.NewMemoryBackend()
	s, err := store.Open(context.Background(), mem)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	tr := newFakeTransport()
	cfg := config.DefaultConfig().Bot
	b := New(Options{Transport: tr, Store: s, Bus: bus.NewMessageBusSize(8), Config: cfg})
	return &harness{bot: b, transport: tr, store: s, mem: mem}
}

// post delivers a message from user u1 in server g1 and waits for the bot.
func (h *harness) post(content string, mutate ...func(*bus.Message)) bus.Message {
	h.nextID++
	m := bus.Message{
		ID:        "m" + strconv.Itoa(h.nextID),
		ChannelID: "c1",
		ServerID:  "g1",
		AuthorID:  "u1",
		Content:   content,
	}
	for _, fn := range mutate {
		fn(&m)
	}
	h.transport.mu.Lock()
	h.transport.messages[m.ID] = m
	h.transport.mu.Unlock()

	h.bot.handleEvent(context.Background(), bus.NewMessageEvent("fake", m))
	return m
}

func (h *harness) react(r bus.Reaction) {
	if r.ChannelID == "" {
		r.ChannelID = "c1"
	}
	h.bot.handleEvent(context.Background(), bus.NewReactionEvent("fake", r))
}

func (h *harness) save(t *testing.T, p profiles.Profile) {
	t.Helper()
	if err := h.store.SaveProfile(context.Background(), p); err != nil {
		t.Fatalf("save %q: %v", p.Name, err)
	}
}
