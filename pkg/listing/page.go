package listing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dotsetgreg/masquerade/pkg/profiles"
)

// DefaultPageSize is the number of profiles shown per listing page. It is
// also the most a page may show, so a page always fits in MaxPageLength.
const DefaultPageSize = 5

// MaxPageLength is the longest rendered page, in characters. Pages that would
// run over drop the name colouring and shorten colour cells to compactColour
// characters.
const (
	MaxPageLength = 1500
	compactColour = 16
)

// Reaction emoji used to page through a listing.
const (
	EmojiPrevious = "👈"
	EmojiNext     = "👉"
)

const (
	keyType   = "T"
	keyPage   = "P"
	typeList  = "L"
	tableHead = "| Name | Display Name | Avatar | Colour |\n|-|-|-|-|"
)

var plainColourRe = regexp.MustCompile(`(?i)^(#[a-f0-9]{6}|[a-z]+)$`)

type Direction int

const (
	Previous Direction = iota
	Next
)

// DirectionFor maps a reaction emoji to a page direction.
func DirectionFor(emoji string) (Direction, bool) {
	switch emoji {
	case EmojiPrevious:
		return Previous, true
	case EmojiNext:
		return Next, true
	}
	return 0, false
}

// PageCount is never less than one so an empty listing still has a page.
func PageCount(total, perPage int) int {
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	if total <= 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}

// Navigate moves one page in dir, wrapping at both ends.
func Navigate(current, total, perPage int, dir Direction) int {
	last := PageCount(total, perPage) - 1
	if current < 0 {
		current = 0
	}
	switch dir {
	case Previous:
		if current == 0 {
			return last
		}
		return min(current-1, last)
	default:
		if current >= last {
			return 0
		}
		return current + 1
	}
}

// State is what a listing message carries for later reactions.
type State struct {
	Page int
}

// EncodeState renders the state tags for page.
func EncodeState(s State) string {
	out, err := Encode(Tags{{Key: keyType, Value: typeList}, {Key: keyPage, Value: strconv.Itoa(s.Page)}})
	if err != nil {
		// Both keys and values are fixed-shape.
		panic(err)
	}
	return out
}

// ParseState recovers listing state from a rendered message. ok is false when
// text is not a listing. A missing or malformed page reads as page 0.
func ParseState(text string) (State, bool) {
	tags, _ := Decode(text)
	if t, _ := tags.Get(keyType); t != typeList {
		return State{}, false
	}
	var s State
	if p, ok := tags.Get(keyPage); ok {
		if n, err := strconv.Atoi(p); err == nil && n >= 0 {
			s.Page = n
		}
	}
	return s, true
}

// RenderPage renders one page of ps, which should already be sorted. A page
// past the end renders the header only. perPage outside 1..DefaultPageSize
// uses DefaultPageSize.
func RenderPage(ps []profiles.Profile, page, perPage int) string {
	if perPage <= 0 || perPage > DefaultPageSize {
		perPage = DefaultPageSize
	}
	out := renderPage(ps, page, perPage, false)
	if utf8.RuneCountInString(out) > MaxPageLength {
		out = renderPage(ps, page, perPage, true)
	}
	return out
}

func renderPage(ps []profiles.Profile, page, perPage int, compact bool) string {
	count := PageCount(len(ps), perPage)

	var b strings.Builder
	b.WriteString(EncodeState(State{Page: page}))
	fmt.Fprintf(&b, "%d/%d\n%s", page+1, count, tableHead)

	start := page * perPage
	if page < 0 || start >= len(ps) {
		return b.String()
	}
	end := min(start+perPage, len(ps))
	for _, p := range ps[start:end] {
		b.WriteString("\n|")
		colour := p.Colour
		if !compact && colour != "" && plainColourRe.MatchString(colour) {
			fmt.Fprintf(&b, `$\color{%s}\textsf{%s}$`, colour, p.Name)
		} else {
			b.WriteString(p.Name)
		}
		if compact && utf8.RuneCountInString(colour) > compactColour {
			colour = string([]rune(colour)[:compactColour-1]) + "…"
		}
		avatar := ""
		if p.Avatar != "" {
			avatar = "[Link](<" + p.Avatar + ">)"
		}
		fmt.Fprintf(&b, "|%s|%s|%s|", p.DisplayName, avatar, colour)
	}
	return b.String()
}
