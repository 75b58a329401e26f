// Package masq turns one inbound message body into the masquerade sends it
// asks for.
//
// A line of the form "name;text" switches to the sender's profile "name" for
// that line and every following line, until the next switch. The first line
// must either be a switch or be covered by a fallback profile; otherwise the
// message is not a masquerade message at all.
package masq

import (
	"strings"
	"unicode"

	"github.com/dotsetgreg/masquerade/pkg/profiles"
)

// Separator divides a profile name from the text of a switch line.
const Separator = ";"

// MaxSegments caps the fan-out of one inbound message. Configuration may
// lower it but never raise it.
const MaxSegments = 10

// Lookup resolves a sender's profile by name. *store.Store satisfies it.
type Lookup interface {
	GetProfile(userID, name string) (profiles.Profile, bool)
}

// Segment is one outgoing masquerade send.
type Segment struct {
	Profile profiles.Profile
	Text    string
	// ReplyTo is only set on the first segment of a message.
	ReplyTo []string
}

// Lines splits content the way a reader sees it: "\r\n" and "\n" both end a
// line and a single trailing line ending does not add an empty line.
func Lines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n")
}

// ParseSwitch reports the profile name and left-trimmed text of a candidate
// switch line. It does not check that the profile exists.
func ParseSwitch(line string) (name, rest string, ok bool) {
	name, rest, ok = strings.Cut(line, Separator)
	if !ok {
		return "", "", false
	}
	return name, strings.TrimLeftFunc(rest, unicode.IsSpace), true
}

// Split decomposes content into ordered segments in a single pass.
//
// fallback, when non-nil, opens a segment for a first line that is not a
// switch; that segment carries the whole line. A nil fallback with a
// non-switch first line yields no segments.
func Split(lookup Lookup, userID, content string, replyTo []string, fallback *profiles.Profile) []Segment {
	var (
		out     []Segment
		current *Segment
		text    strings.Builder
	)

	emit := func() {
		if current == nil {
			return
		}
		current.Text = text.String()
		if len(out) == 0 && len(replyTo) > 0 {
			current.ReplyTo = append([]string(nil), replyTo...)
		}
		out = append(out, *current)
		current = nil
		text.Reset()
	}

	for _, line := range Lines(content) {
		if name, rest, ok := ParseSwitch(line); ok {
			if p, found := lookup.GetProfile(userID, name); found {
				emit()
				current = &Segment{Profile: p}
				text.WriteString(rest)
				continue
			}
		}

		if current == nil {
			if fallback == nil {
				return nil
			}
			current = &Segment{Profile: *fallback}
			text.WriteString(line)
			continue
		}
		text.WriteByte('\n')
		text.WriteString(line)
	}
	emit()
	return out
}

// Limit keeps at most n segments, dropping the rest. n <= 0 means no cap.
func Limit(segments []Segment, n int) []Segment {
	if n > 0 && len(segments) > n {
		return segments[:n]
	}
	return segments
}
