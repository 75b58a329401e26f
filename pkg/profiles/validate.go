package profiles

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	nameRe    = regexp.MustCompile(`^(\p{L}|[\d_.-])+$`)
	displayRe = regexp.MustCompile(`^[^\x{200B}\n\r]+$`)
	colourRe  = regexp.MustCompile(colourPattern())
)

func colourPattern() string {
	value := `[a-z ]+|var\(--[a-z\d-]+\)|rgba?\([\d, ]+\)|#[a-f0-9]+`
	stop := `(?:[ ]+(?:\d{1,3}%|0))?`
	gradient := `(?:repeating-)?(?:linear|conic|radial)-gradient\((?:` + value + `|\d+deg)` + stop +
		`(?:,[ ]*(?:` + value + `)` + stop + `)+\)`
	return `(?i)^(?:` + value + `|` + gradient + `)$`
}

// FieldError is one failed rule on one attribute.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every rule a profile failed, in field order.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	lines := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		lines = append(lines, fe.Field+" "+fe.Message)
	}
	return strings.Join(lines, "\n")
}

type rule func(string) string

func minLen(n int) rule {
	return func(v string) string {
		if utf8.RuneCountInString(v) < n {
			return "cannot be empty"
		}
		return ""
	}
}

func maxLen(n int) rule {
	return func(v string) string {
		if utf8.RuneCountInString(v) > n {
			return "must be <= " + strconv.Itoa(n) + " characters"
		}
		return ""
	}
}

func matches(re *regexp.Regexp, msg string) rule {
	return func(v string) string {
		if !re.MatchString(v) {
			return msg
		}
		return ""
	}
}

func isURL(v string) string {
	u, err := url.Parse(v)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "isn't a valid url"
	}
	return ""
}

type fieldRules struct {
	name     string
	value    func(Profile) string
	optional bool
	rules    []rule
}

var profileRules = []fieldRules{
	{
		name:  "name",
		value: func(p Profile) string { return p.Name },
		rules: []rule{minLen(1), maxLen(32), matches(nameRe, "contains invalid characters")},
	},
	{
		name:     "display_name",
		value:    func(p Profile) string { return p.DisplayName },
		optional: true,
		rules:    []rule{maxLen(32), matches(displayRe, "contains invalid characters")},
	},
	{
		name:     "avatar",
		value:    func(p Profile) string { return p.Avatar },
		optional: true,
		rules:    []rule{maxLen(128), isURL},
	},
	{
		name:     "colour",
		value:    func(p Profile) string { return p.Colour },
		optional: true,
		rules:    []rule{maxLen(128), matches(colourRe, "not supported")},
	},
}

// Validate returns a *ValidationError naming every failed rule, or nil.
func (p Profile) Validate() error {
	var errs []FieldError
	for _, f := range profileRules {
		v := f.value(p)
		if f.optional && v == "" {
			continue
		}
		for _, r := range f.rules {
			if msg := r(v); msg != "" {
				errs = append(errs, FieldError{Field: f.name, Message: msg})
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}
