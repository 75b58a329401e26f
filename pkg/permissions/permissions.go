// Package permissions models the capabilities the bot and the acting user
// need before a masquerade send, and the gate that checks them.
package permissions

import (
	"context"
	"fmt"

	"github.com/dotsetgreg/masquerade/pkg/logger"
	"github.com/dotsetgreg/masquerade/pkg/profiles"
)

// Capability is a transport-neutral permission. Transports map their own
// permission bits onto these.
type Capability uint8

const (
	SendMessages Capability = iota
	SpeakAsCustom
	ManageColour
	ManageMessages
)

var capabilityNames = [...]string{
	SendMessages:   "SendMessages",
	SpeakAsCustom:  "Masquerade",
	ManageColour:   "ManageRole",
	ManageMessages: "ManageMessages",
}

func (c Capability) String() string {
	if int(c) < len(capabilityNames) {
		return capabilityNames[c]
	}
	return fmt.Sprintf("Capability(%d)", c)
}

// Set is a bitset of capabilities.
type Set uint32

func Of(caps ...Capability) Set {
	var s Set
	for _, c := range caps {
		s |= 1 << c
	}
	return s
}

// All grants every capability.
func All() Set {
	return Of(SendMessages, SpeakAsCustom, ManageColour, ManageMessages)
}

func (s Set) Has(c Capability) bool {
	return s&(1<<c) != 0
}

func (s Set) With(c Capability) Set {
	return s | 1<<c
}

func (s Set) Without(c Capability) Set {
	return s &^ (1 << c)
}

// Side says whose capability is missing.
type Side int

const (
	Bot Side = iota
	User
)

func (s Side) String() string {
	if s == Bot {
		return "bot"
	}
	return "user"
}

// MissingError reports a capability that one side lacks in a channel.
type MissingError struct {
	Side       Side
	Capability Capability
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s is missing %s permission", e.Side, e.Capability)
}

// Fetcher returns the effective capabilities of userID in channelID.
type Fetcher interface {
	Permissions(ctx context.Context, channelID, userID string) (Set, error)
}

// Gate checks both sides before every masquerade send. Results are never
// cached; permissions can change between messages.
type Gate struct {
	fetcher Fetcher
	botID   func() string
}

// NewGate takes the bot's user id lazily because transports only learn it
// after connecting.
func NewGate(fetcher Fetcher, botID func() string) *Gate {
	return &Gate{fetcher: fetcher, botID: botID}
}

// Check returns the profile as it may be sent. The colour is dropped when the
// bot cannot manage colours; missing SpeakAsCustom on either side is an error.
func (g *Gate) Check(ctx context.Context, channelID, userID string, p profiles.Profile) (profiles.Profile, error) {
	botPerms, err := g.fetcher.Permissions(ctx, channelID, g.botID())
	if err != nil {
		return p, fmt.Errorf("fetch bot permissions: %w", err)
	}
	if !botPerms.Has(SpeakAsCustom) {
		return p, &MissingError{Side: Bot, Capability: SpeakAsCustom}
	}
	if !botPerms.Has(ManageColour) && p.Colour != "" {
		logger.DebugCF("permissions", "Colour stripped", map[string]any{
			"channel_id": channelID,
			"profile":    p.Name,
		})
		p.Colour = ""
	}

	userPerms, err := g.fetcher.Permissions(ctx, channelID, userID)
	if err != nil {
		return p, fmt.Errorf("fetch user permissions: %w", err)
	}
	if !userPerms.Has(SpeakAsCustom) {
		return p, &MissingError{Side: User, Capability: SpeakAsCustom}
	}
	return p, nil
}

// CheckAll gates every profile, stopping at the first failure. Permissions
// are fetched once per call.
func (g *Gate) CheckAll(ctx context.Context, channelID, userID string, ps []profiles.Profile) ([]profiles.Profile, error) {
	cached := &onceFetcher{inner: g.fetcher, sets: make(map[string]Set)}
	inner := &Gate{fetcher: cached, botID: g.botID}
	out := make([]profiles.Profile, 0, len(ps))
	for _, p := range ps {
		checked, err := inner.Check(ctx, channelID, userID, p)
		if err != nil {
			return nil, err
		}
		out = append(out, checked)
	}
	return out, nil
}

// Bot returns the bot's own capabilities in channelID.
func (g *Gate) Bot(ctx context.Context, channelID string) (Set, error) {
	return g.fetcher.Permissions(ctx, channelID, g.botID())
}

type onceFetcher struct {
	inner Fetcher
	sets  map[string]Set
}

func (f *onceFetcher) Permissions(ctx context.Context, channelID, userID string) (Set, error) {
	key := channelID + "/" + userID
	if s, ok := f.sets[key]; ok {
		return s, nil
	}
	s, err := f.inner.Permissions(ctx, channelID, userID)
	if err != nil {
		return 0, err
	}
	f.sets[key] = s
	return s, nil
}
