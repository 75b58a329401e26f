package bus

import "github.com/google/uuid"

// Attachment is a file uploaded with a message. URL is directly fetchable.
type Attachment struct {
	URL      string
	Filename string
	Size     int64
}

// Message is an inbound chat message, already normalised by its transport.
type Message struct {
	ID          string
	ChannelID   string
	ServerID    string // empty outside servers
	AuthorID    string
	AuthorIsBot bool
	Content     string
	ReplyIDs    []string
	Attachments []Attachment
}

// Reaction is a reaction added to or removed from a message.
type Reaction struct {
	MessageID string
	ChannelID string
	UserID    string
	Emoji     string
	Removed   bool
}

type EventKind string

const (
	KindMessage  EventKind = "message"
	KindReaction EventKind = "reaction"
)

// Event is one unit of work for the dispatcher. Exactly one of Message and
// Reaction is set, matching Kind.
type Event struct {
	ID       string
	Source   string
	Kind     EventKind
	Message  *Message
	Reaction *Reaction
}

func NewMessageEvent(source string, m Message) Event {
	return Event{ID: uuid.NewString(), Source: source, Kind: KindMessage, Message: &m}
}

func NewReactionEvent(source string, r Reaction) Event {
	return Event{ID: uuid.NewString(), Source: source, Kind: KindReaction, Reaction: &r}
}
