package crisis

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// emergencyPhrases are statements of immediate risk to life. A match routes straight to the
// emergency handler; the list is intentionally narrow because it can only escalate.
var emergencyPhrases = []string{
	"kill myself", "killing myself", "end my life", "ending my life", "take my own life",
	"want to die", "wanna die", "going to die tonight", "hang myself", "cut myself",
	"slit my wrist", "no reason to live", "better off dead",
	"தற்கொலை", "சாக வேண்டும்", "என் வாழ்க்கையை முடிக்க", "உயிரை மாய்த்துக்",
}

// Match describes one lexicon hit in the screened text.
type Match struct {
	Phrase string
	Pos    int
}

// Screen finds emergency phrases in free text with an Aho-Corasick automaton over
// normalized runes.
type Screen struct {
	matcher *goahocorasick.Machine
}

// NewScreen builds a Screen. A nil or empty phrases slice uses the built-in lexicon.
func NewScreen(phrases []string) (*Screen, error) {
	if len(phrases) == 0 {
		phrases = emergencyPhrases
	}

	patterns := make([][]rune, 0, len(phrases))
	for _, p := range phrases {
		normalized := normalize(p)
		if len(normalized) == 0 {
			continue
		}
		patterns = append(patterns, normalized)
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Screen{matcher: m}, nil
}

// Find returns lexicon hits. With firstOnly set the search stops at the first hit.
func (s *Screen) Find(text string, firstOnly bool) []Match {
	if s == nil || s.matcher == nil {
		return nil
	}
	normalized := normalize(text)
	if len(normalized) == 0 {
		return nil
	}

	terms := s.matcher.MultiPatternSearch(normalized, false)
	matches := make([]Match, 0, len(terms))
	for _, term := range terms {
		if !onWordBoundary(normalized, term.Pos, term.Pos+len(term.Word)) {
			continue
		}
		matches = append(matches, Match{Phrase: string(term.Word), Pos: term.Pos})
		if firstOnly {
			break
		}
	}
	return matches
}

// onWordBoundary rejects hits inside longer words ("want to diet"). Tamil attaches case
// suffixes to the noun ("தற்கொலைக்கு"), so a hit ending in Tamil script only needs the left
// boundary.
func onWordBoundary(text []rune, start, end int) bool {
	if start < 0 || end > len(text) || start >= end {
		return false
	}
	if start > 0 && text[start-1] != ' ' {
		return false
	}
	if end == len(text) || text[end] == ' ' {
		return true
	}
	return unicode.Is(unicode.Tamil, text[end-1]) && unicode.Is(unicode.Tamil, text[end])
}

// normalize lowercases, drops punctuation and collapses whitespace runs to a single space so
// "I want to   DIE!!" and "i want to die" screen the same.
func normalize(text string) []rune {
	out := make([]rune, 0, len(text))
	lastSpace := true
	for _, r := range text {
		switch {
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			if !lastSpace {
				out = append(out, ' ')
				lastSpace = true
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r):
			out = append(out, unicode.ToLower(r))
			lastSpace = false
		}
	}
	if len(out) > 0 && out[len(out)-1] == ' ' {
		out = out[:len(out)-1]
	}
	return out
}
