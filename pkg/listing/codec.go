// Package listing renders paged profile listings and carries their state
// inside the rendered text, so a later reaction can recover it without any
// server-side session.
//
// State grammar, always at the very start of the text:
//
//	state := tag*
//	tag   := "[](" key ":" value ")"
//	key   := one ASCII letter
//	value := one or more characters other than ")" and newline
//
// A "[]()" link with an empty label renders as nothing in markdown, so the
// state is invisible to readers.
package listing

import (
	"errors"
	"fmt"
	"strings"
)

var errInvalidTag = errors.New("invalid state tag")

const (
	tagOpen  = "[]("
	tagClose = ")"
	tagSep   = ":"
)

type Tag struct {
	Key   string
	Value string
}

// Tags keeps insertion order; encoding is deterministic.
type Tags []Tag

// Get returns the value of the first tag with key.
func (t Tags) Get(key string) (string, bool) {
	for _, tag := range t {
		if tag.Key == key {
			return tag.Value, true
		}
	}
	return "", false
}

func validKey(k string) bool {
	if len(k) != 1 {
		return false
	}
	c := k[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func validValue(v string) bool {
	return v != "" && !strings.ContainsAny(v, ")\n")
}

// Encode renders tags in order. It rejects anything Decode could not read
// back.
func Encode(tags Tags) (string, error) {
	var b strings.Builder
	for _, tag := range tags {
		if !validKey(tag.Key) || !validValue(tag.Value) {
			return "", fmt.Errorf("%w: %q:%q", errInvalidTag, tag.Key, tag.Value)
		}
		b.WriteString(tagOpen)
		b.WriteString(tag.Key)
		b.WriteString(tagSep)
		b.WriteString(tag.Value)
		b.WriteString(tagClose)
	}
	return b.String(), nil
}

// Decode reads tags from the start of text and stops at the first token that
// does not match the grammar. rest is the untouched remainder.
func Decode(text string) (tags Tags, rest string) {
	rest = text
	for strings.HasPrefix(rest, tagOpen) {
		body := rest[len(tagOpen):]
		end := strings.IndexAny(body, ")\n")
		if end < 0 || body[end] != ')' {
			break
		}
		key, value, ok := strings.Cut(body[:end], tagSep)
		if !ok || !validKey(key) || !validValue(value) {
			break
		}
		tags = append(tags, Tag{Key: key, Value: value})
		rest = body[end+len(tagClose):]
	}
	return tags, rest
}
