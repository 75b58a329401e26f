// Package bot wires transports, the profile store and the permission gate
// together: it consumes inbound events, performs masquerade sends, runs
// profile commands and pages listings.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/dotsetgreg/masquerade/pkg/bus"
	"github.com/dotsetgreg/masquerade/pkg/channels"
	"github.com/dotsetgreg/masquerade/pkg/config"
	"github.com/dotsetgreg/masquerade/pkg/listing"
	"github.com/dotsetgreg/masquerade/pkg/logger"
	"github.com/dotsetgreg/masquerade/pkg/masq"
	"github.com/dotsetgreg/masquerade/pkg/permissions"
	"github.com/dotsetgreg/masquerade/pkg/store"
)

// eventTimeout bounds the work done for one event, including the drain
// after shutdown starts.
const eventTimeout = 30 * time.Second

type Options struct {
	Transport channels.Transport
	Store     *store.Store
	Bus       *bus.MessageBus
	Config    config.BotConfig
}

type Bot struct {
	transport channels.Transport
	store     *store.Store
	bus       *bus.MessageBus
	gate      *permissions.Gate
	cfg       config.BotConfig

	wg      sync.WaitGroup
	started time.Time
	stats   counters
}

type counters struct {
	received   atomic.Uint64
	processed  atomic.Uint64
	failed     atomic.Uint64
	inFlight   atomic.Int64
	segments   atomic.Uint64
	commands   atomic.Uint64
	pageEdits  atomic.Uint64
	pageSkips  atomic.Uint64
	errReplies atomic.Uint64
}

// Stats is a snapshot of the dispatcher counters.
type Stats struct {
	Received       uint64 `json:"events_received"`
	Processed      uint64 `json:"events_processed"`
	Failed         uint64 `json:"events_failed"`
	InFlight       int64  `json:"events_in_flight"`
	SegmentsSent   uint64 `json:"segments_sent"`
	Commands       uint64 `json:"commands"`
	PageEdits      uint64 `json:"page_edits"`
	PageEditsSkip  uint64 `json:"page_edits_skipped"`
	ErrorReplies   uint64 `json:"error_replies"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	DroppedInbound uint64 `json:"dropped_inbound"`
}

func New(opts Options) *Bot {
	cfg := opts.Config
	if cfg.MaxSegments <= 0 || cfg.MaxSegments > masq.MaxSegments {
		cfg.MaxSegments = masq.MaxSegments
	}
	if cfg.PageSize <= 0 || cfg.PageSize > listing.DefaultPageSize {
		cfg.PageSize = listing.DefaultPageSize
	}
	if cfg.ImportMaxBytes <= 0 {
		cfg.ImportMaxBytes = 256 * 1024
	}
	return &Bot{
		transport: opts.Transport,
		store:     opts.Store,
		bus:       opts.Bus,
		gate:      permissions.NewGate(opts.Transport, opts.Transport.BotUserID),
		cfg:       cfg,
		started:   time.Now(),
	}
}

// Run consumes the bus until it is closed or ctx is done, handling each
// event in its own goroutine. It returns after every in-flight handler has
// finished.
func (b *Bot) Run(ctx context.Context) {
	logger.InfoCF("bot", "Dispatcher started", map[string]any{
		"transport": b.transport.Name(),
	})
	for {
		ev, ok := b.bus.ConsumeInbound(ctx)
		if !ok {
			break
		}
		b.Dispatch(ctx, ev)
	}
	b.wg.Wait()
	logger.InfoC("bot", "Dispatcher stopped")
}

// Dispatch handles ev asynchronously. Handlers are detached from ctx's
// cancellation so shutdown drains them instead of aborting mid-send.
func (b *Bot) Dispatch(ctx context.Context, ev bus.Event) {
	b.stats.received.Add(1)
	b.stats.inFlight.Add(1)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.stats.inFlight.Add(-1)

		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
		defer cancel()
		b.handleEvent(hctx, ev)
	}()
}

// Wait blocks until every dispatched handler has returned.
func (b *Bot) Wait() {
	b.wg.Wait()
}

func (b *Bot) handleEvent(ctx context.Context, ev bus.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.stats.failed.Add(1)
			logger.ErrorCF("bot", "Handler panic", map[string]any{
				"event_id": ev.ID,
				"panic":    fmt.Sprint(r),
			})
		}
	}()
	defer b.stats.processed.Add(1)

	switch ev.Kind {
	case bus.KindMessage:
		if ev.Message == nil {
			return
		}
		if err := b.onMessage(ctx, *ev.Message); err != nil {
			b.stats.failed.Add(1)
			b.onMessageError(ctx, ev.ID, *ev.Message, err)
		}
	case bus.KindReaction:
		if ev.Reaction == nil {
			return
		}
		if err := b.onReaction(ctx, *ev.Reaction); err != nil {
			b.stats.failed.Add(1)
			logger.ErrorCF("bot", "Reaction handling failed", map[string]any{
				"event_id":   ev.ID,
				"message_id": ev.Reaction.MessageID,
				"error":      err.Error(),
			})
		}
	}
}

func (b *Bot) Stats() Stats {
	s := Stats{
		Received:      b.stats.received.Load(),
		Processed:     b.stats.processed.Load(),
		Failed:        b.stats.failed.Load(),
		InFlight:      b.stats.inFlight.Load(),
		SegmentsSent:  b.stats.segments.Load(),
		Commands:      b.stats.commands.Load(),
		PageEdits:     b.stats.pageEdits.Load(),
		PageEditsSkip: b.stats.pageSkips.Load(),
		ErrorReplies:  b.stats.errReplies.Load(),
		UptimeSeconds: int64(time.Since(b.started).Seconds()),
	}
	if b.bus != nil {
		s.DroppedInbound = b.bus.DroppedInbound()
	}
	return s
}

// stripMention reports whether content addresses the bot, returning the
// trimmed remainder.
func (b *Bot) stripMention(content string) (string, bool) {
	for _, mention := range b.transport.Mentions() {
		if rest, ok := strings.CutPrefix(content, mention); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}

// splitWord cuts s at its first whitespace; rest is left-trimmed.
func splitWord(s string) (word, rest string) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace)
}

func (b *Bot) reply(ctx context.Context, m bus.Message, content string) error {
	_, err := b.transport.Send(ctx, m.ChannelID, channels.OutgoingMessage{Content: content, ReplyTo: m.ID})
	return err
}
