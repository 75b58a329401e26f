package channels

import (
	"strings"
	"sync/atomic"

	"github.com/dotsetgreg/masquerade/pkg/bus"
	"github.com/dotsetgreg/masquerade/pkg/logger"
)

// BaseChannel holds what every transport shares: its name, the bus it
// publishes to and the sender allowlist.
type BaseChannel struct {
	bus       *bus.MessageBus
	running   atomic.Bool
	name      string
	allowList []string
}

func NewBaseChannel(name string, mb *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		bus:       mb,
		name:      name,
		allowList: allowList,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

// IsAllowed reports whether senderID may use the bot. An empty allowlist
// allows everyone. Entries may carry a leading "@".
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	for _, allowed := range c.allowList {
		candidate := strings.TrimSpace(strings.TrimPrefix(allowed, "@"))
		if candidate != "" && candidate == senderID {
			return true
		}
	}
	return false
}

// HandleMessage publishes an inbound message if its author is allowed.
func (c *BaseChannel) HandleMessage(m bus.Message) {
	if !c.IsAllowed(m.AuthorID) {
		logger.DebugCF(c.name, "Message rejected by allowlist", map[string]any{
			"user_id": m.AuthorID,
		})
		return
	}
	c.bus.PublishInbound(bus.NewMessageEvent(c.name, m))
}

// HandleReaction publishes an inbound reaction if its user is allowed.
func (c *BaseChannel) HandleReaction(r bus.Reaction) {
	if !c.IsAllowed(r.UserID) {
		return
	}
	c.bus.PublishInbound(bus.NewReactionEvent(c.name, r))
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}
