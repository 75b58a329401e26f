package channels

import (
	"strings"
	"unicode/utf8"
)

// chunkContent splits content into pieces of at most limit bytes, preferring
// newline then space boundaries near the end of each piece. A piece that
// would end inside a ``` fence is extended to the closing fence when that is
// within slack bytes, or cut before the fence otherwise.
func chunkContent(content string, limit, slack int) []string {
	var chunks []string

	for len(content) > 0 {
		if len(content) <= limit {
			chunks = append(chunks, content)
			break
		}

		end := boundary(content[:limit])
		if open := unclosedFence(content[:end]); open >= 0 {
			if len(content) <= limit+slack {
				end = len(content)
			} else if closing := nextFenceEnd(content, end); closing > 0 && closing <= limit+slack {
				end = closing
			} else if open > 0 {
				end = boundary(content[:open])
			}
		}

		end = runeStart(content, end)

		chunks = append(chunks, content[:end])
		content = strings.TrimSpace(content[end:])
	}

	return chunks
}

// boundary picks a split point in s: the last newline within 200 bytes of
// the end, else the last space within 100 bytes, else len(s).
func boundary(s string) int {
	if i := lastIndexWithin(s, "\n", 200); i > 0 {
		return i
	}
	if i := lastIndexWithin(s, " \t", 100); i > 0 {
		return i
	}
	return len(s)
}

// runeStart moves end back so content[:end] does not split a UTF-8 sequence.
// Content with no rune start before end is cut at end unchanged.
func runeStart(content string, end int) int {
	i := end
	for i > 0 && i < len(content) && !utf8.RuneStart(content[i]) {
		i--
	}
	if i == 0 {
		return end
	}
	return i
}

func lastIndexWithin(s, chars string, window int) int {
	start := max(len(s)-window, 0)
	if i := strings.LastIndexAny(s[start:], chars); i >= 0 {
		return start + i
	}
	return -1
}

// unclosedFence returns the offset of the opening ``` when s has an odd
// number of fences, else -1.
func unclosedFence(s string) int {
	count, last := 0, -1
	for i := 0; i+3 <= len(s); {
		if s[i:i+3] == "```" {
			last = i
			count++
			i += 3
			continue
		}
		i++
	}
	if count%2 == 1 {
		return last
	}
	return -1
}

// nextFenceEnd returns the offset just past the next ``` at or after from.
func nextFenceEnd(s string, from int) int {
	if i := strings.Index(s[from:], "```"); i >= 0 {
		return from + i + 3
	}
	return -1
}
