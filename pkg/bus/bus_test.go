package bus

import (
	"context"
	"testing"
	"time"
)

func msgEvent(content string) Event {
	return NewMessageEvent("test", Message{ID: "m", ChannelID: "c", AuthorID: "u", Content: content})
}

func TestMessageBus_PublishInboundDropsWhenBufferFull(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	for i := 0; i < cap(mb.inbound); i++ {
		mb.PublishInbound(msgEvent("msg"))
	}

	mb.PublishInbound(msgEvent("overflow"))
	if mb.DroppedInbound() != 1 {
		t.Fatalf("expected dropped inbound count 1, got %d", mb.DroppedInbound())
	}
	if mb.Published() != uint64(cap(mb.inbound)) {
		t.Fatalf("expected %d published, got %d", cap(mb.inbound), mb.Published())
	}
}

func TestMessageBus_ConsumeInOrder(t *testing.T) {
	mb := NewMessageBusSize(4)
	defer mb.Close()

	mb.PublishInbound(msgEvent("first"))
	mb.PublishInbound(NewReactionEvent("test", Reaction{MessageID: "m", ChannelID: "c", UserID: "u", Emoji: "👉"}))

	ev, ok := mb.ConsumeInbound(context.Background())
	if !ok || ev.Kind != KindMessage || ev.Message.Content != "first" {
		t.Fatalf("unexpected first event: %+v ok=%v", ev, ok)
	}
	if ev.ID == "" {
		t.Fatalf("expected event id")
	}
	ev, ok = mb.ConsumeInbound(context.Background())
	if !ok || ev.Kind != KindReaction || ev.Reaction.Emoji != "👉" {
		t.Fatalf("unexpected second event: %+v ok=%v", ev, ok)
	}
}

func TestMessageBus_ConsumeHonoursContext(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Fatalf("expected ok=false after context deadline")
	}
}

func TestMessageBus_ClosedChannelsReturnFalse(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()
	mb.Close()

	if _, ok := mb.ConsumeInbound(context.Background()); ok {
		t.Fatalf("expected closed inbound consume to return ok=false")
	}
	mb.PublishInbound(msgEvent("late"))
	if mb.Published() != 0 || mb.DroppedInbound() != 0 {
		t.Fatalf("publish after close must be ignored")
	}
}
