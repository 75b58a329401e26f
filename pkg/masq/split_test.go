package masq

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dotsetgreg/masquerade/pkg/profiles"
)

type fakeLookup map[string]profiles.Profile

func (f fakeLookup) GetProfile(userID, name string) (profiles.Profile, bool) {
	p, ok := f[userID+"/"+name]
	return p, ok
}

func lookupFor(userID string, names ...string) fakeLookup {
	f := fakeLookup{}
	for _, n := range names {
		f[userID+"/"+n] = profiles.New(userID, n)
	}
	return f
}

func TestSplit(t *testing.T) {
	lookup := lookupFor("u1", "bob", "alice")
	bob := profiles.New("u1", "bob")
	alice := profiles.New("u1", "alice")

	tests := []struct {
		name    string
		content string
		replyTo []string
		want    []Segment
	}{
		{
			name:    "single profile spans lines",
			content: "bob;hello\nworld",
			want:    []Segment{{Profile: bob, Text: "hello\nworld"}},
		},
		{
			name:    "unknown profile is plain text",
			content: "nobody;hello",
			want:    nil,
		},
		{
			name:    "two profiles reply on first only",
			content: "bob;hi\nalice;yo",
			replyTo: []string{"m0"},
			want: []Segment{
				{Profile: bob, Text: "hi", ReplyTo: []string{"m0"}},
				{Profile: alice, Text: "yo"},
			},
		},
		{
			name:    "rest is left trimmed",
			content: "bob;   spaced; kept ; inside",
			want:    []Segment{{Profile: bob, Text: "spaced; kept ; inside"}},
		},
		{
			name:    "later switch does not rescue first line",
			content: "hello\nbob;hi",
			want:    nil,
		},
		{
			name:    "unknown switch mid message is appended",
			content: "bob;a\nnobody;b\nc",
			want:    []Segment{{Profile: bob, Text: "a\nnobody;b\nc"}},
		},
		{
			name:    "crlf and trailing newline",
			content: "bob;a\r\nb\r\n",
			want:    []Segment{{Profile: bob, Text: "a\nb"}},
		},
		{
			name:    "empty switch text",
			content: "bob;\nalice;",
			want:    []Segment{{Profile: bob, Text: ""}, {Profile: alice, Text: ""}},
		},
		{
			name:    "blank lines are kept",
			content: "bob;a\n\nb",
			want:    []Segment{{Profile: bob, Text: "a\n\nb"}},
		},
		{
			name:    "empty message",
			content: "",
			want:    nil,
		},
		{
			name:    "same profile twice gives two segments",
			content: "bob;a\nbob;b",
			want:    []Segment{{Profile: bob, Text: "a"}, {Profile: bob, Text: "b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(lookup, "u1", tt.content, tt.replyTo, nil)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Split(%q) mismatch (-want +got):\n%s", tt.content, diff)
			}
		})
	}
}

func TestSplitIsScopedToSender(t *testing.T) {
	lookup := lookupFor("u1", "bob")
	if got := Split(lookup, "u2", "bob;hello", nil, nil); got != nil {
		t.Fatalf("another user's profile matched: %+v", got)
	}
}

func TestSplitWithFallback(t *testing.T) {
	lookup := lookupFor("u1", "bob")
	def := profiles.Profile{UserID: "u1", Name: "def", DisplayName: "Default"}
	bob := profiles.New("u1", "bob")

	got := Split(lookup, "u1", "hello there\nsecond\nbob;switched", []string{"r1"}, &def)
	want := []Segment{
		{Profile: def, Text: "hello there\nsecond", ReplyTo: []string{"r1"}},
		{Profile: bob, Text: "switched"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	// An explicit prefix still wins on the first line.
	got = Split(lookup, "u1", "bob;hi", nil, &def)
	if len(got) != 1 || got[0].Profile.Name != "bob" {
		t.Fatalf("expected bob segment, got %+v", got)
	}

	// Text that merely contains the separator stays whole.
	got = Split(lookup, "u1", "nobody;hi", nil, &def)
	if len(got) != 1 || got[0].Text != "nobody;hi" || got[0].Profile.Name != "def" {
		t.Fatalf("unexpected fallback segment: %+v", got)
	}
}

func TestSplitDoesNotAliasReplyTo(t *testing.T) {
	lookup := lookupFor("u1", "bob")
	reply := []string{"m1"}
	got := Split(lookup, "u1", "bob;x", reply, nil)
	reply[0] = "changed"
	if got[0].ReplyTo[0] != "m1" {
		t.Fatalf("segment shares caller's reply slice")
	}
}

func TestLimit(t *testing.T) {
	lookup := lookupFor("u1", "bob")
	var b strings.Builder
	for i := 0; i < 15; i++ {
		fmt.Fprintf(&b, "bob;%d\n", i)
	}
	segs := Split(lookup, "u1", b.String(), nil, nil)
	if len(segs) != 15 {
		t.Fatalf("expected 15 segments, got %d", len(segs))
	}
	limited := Limit(segs, MaxSegments)
	if len(limited) != MaxSegments {
		t.Fatalf("Limit=%d want %d", len(limited), MaxSegments)
	}
	if limited[9].Text != "9" {
		t.Fatalf("Limit must keep the first segments in order, last=%q", limited[9].Text)
	}
	if got := Limit(segs[:3], MaxSegments); len(got) != 3 {
		t.Fatalf("short input changed: %d", len(got))
	}
	if got := Limit(segs, 0); len(got) != 15 {
		t.Fatalf("zero cap should not drop segments")
	}
}

func TestParseSwitch(t *testing.T) {
	tests := []struct {
		line, name, rest string
		ok               bool
	}{
		{"bob;hi", "bob", "hi", true},
		{"bob; \thi", "bob", "hi", true},
		{"a;b;c", "a", "b;c", true},
		{";x", "", "x", true},
		{"no separator", "", "", false},
	}
	for _, tt := range tests {
		name, rest, ok := ParseSwitch(tt.line)
		if name != tt.name || rest != tt.rest || ok != tt.ok {
			t.Fatalf("ParseSwitch(%q)=(%q,%q,%v) want (%q,%q,%v)", tt.line, name, rest, ok, tt.name, tt.rest, tt.ok)
		}
	}
}
