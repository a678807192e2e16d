package locations

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldName lowercases a location name and strips diacritics so that
// "Hoshangābād" and "hoshangabad" compare equal.
func FoldName(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	folded, _, err := transform.String(foldTransformer, trimmed)
	if err != nil {
		folded = trimmed
	}
	return strings.ToLower(folded)
}

// Mention is a location name recognised inside free text.
type Mention struct {
	Location Location
	Exact    bool
}

// MatchMentions scans the question text for known location names. Exact
// whole-name hits rank ahead of substring hits, and deeper hierarchy levels
// rank ahead of their ancestors so "Warangal district" does not also surface
// the containing state. Candidates that share a folded name are all returned;
// disambiguation is the caller's problem.
func MatchMentions(question string, known []Location) []Mention {
	folded := FoldName(question)
	if folded == "" || len(known) == 0 {
		return nil
	}

	mentions := make([]Mention, 0, 4)
	for _, loc := range known {
		name := loc.NameFolded
		if name == "" {
			name = FoldName(loc.Name)
		}
		if name == "" {
			continue
		}
		idx := strings.Index(folded, name)
		if idx < 0 {
			continue
		}
		mentions = append(mentions, Mention{Location: loc, Exact: isWordBounded(folded, idx, len(name))})
	}

	if len(mentions) == 0 {
		return nil
	}

	// Keep only the deepest level present among exact hits; a question naming a
	// district should resolve to the district, not also to its state.
	best := ""
	for _, m := range mentions {
		if m.Exact && levelDepth(m.Location.Level) > levelDepth(best) {
			best = m.Location.Level
		}
	}
	if best == "" {
		for _, m := range mentions {
			if levelDepth(m.Location.Level) > levelDepth(best) {
				best = m.Location.Level
			}
		}
	}

	filtered := mentions[:0]
	for _, m := range mentions {
		if m.Location.Level == best {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

func isWordBounded(haystack string, start, length int) bool {
	if start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(haystack[:start])
		if unicode.IsLetter(prev) || unicode.IsDigit(prev) {
			return false
		}
	}
	end := start + length
	if end < len(haystack) {
		next, _ := utf8.DecodeRuneInString(haystack[end:])
		if unicode.IsLetter(next) || unicode.IsDigit(next) {
			return false
		}
	}
	return true
}

func levelDepth(level string) int {
	switch level {
	case LevelUnit:
		return 3
	case LevelDistrict:
		return 2
	case LevelState:
		return 1
	default:
		return 0
	}
}
