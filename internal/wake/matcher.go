package wake

import (
	"strings"
	"unicode"
)

// Match describes a successful wake-word hit: which variant fired, its
// similarity score and the rest of the utterance after the matched window.
type Match struct {
	Variant   string
	Score     float64
	Remainder string
}

// Matcher decides whether an utterance contains the assistant's name.
// Speech-to-text output is noisy, so matching is approximate: each variant
// is slid across the utterance token by token and scored with normalized
// edit distance; the best window wins.
type Matcher struct {
	variants  []string
	threshold float64
}

// DefaultVariants covers the canonical activation phrases plus the forms
// speech recognition most often mishears them as.
func DefaultVariants() []string {
	return []string{
		"gideon",
		"hey gideon",
		"ok gideon",
		"okay gideon",
		"hey gidian",
		"hey giddeon",
		"a gideon",
		"he gideon",
	}
}

func NewMatcher(variants []string, threshold float64) *Matcher {
	if len(variants) == 0 {
		variants = DefaultVariants()
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.75
	}
	norm := make([]string, 0, len(variants))
	for _, v := range variants {
		if n := normalize(v); n != "" {
			norm = append(norm, n)
		}
	}
	return &Matcher{variants: norm, threshold: threshold}
}

func (m *Matcher) Threshold() float64 { return m.threshold }

func (m *Matcher) Variants() []string {
	return append([]string(nil), m.variants...)
}

// Match reports whether text contains an activation phrase. Empty or
// whitespace-only input never matches.
func (m *Matcher) Match(text string) (Match, bool) {
	norm := normalize(text)
	if norm == "" {
		return Match{}, false
	}
	words := strings.Fields(norm)

	var best Match
	for _, variant := range m.variants {
		vwords := len(strings.Fields(variant))
		for i := 0; i+vwords <= len(words); i++ {
			window := strings.Join(words[i:i+vwords], " ")
			score := Similarity(window, variant)
			if score > best.Score {
				best = Match{
					Variant:   variant,
					Score:     score,
					Remainder: strings.Join(words[i+vwords:], " "),
				}
			}
		}
	}

	if best.Score < m.threshold {
		return Match{}, false
	}
	return best, true
}

// normalize lowercases, strips everything but letters and spaces, and
// collapses whitespace.
func normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	var cleaned strings.Builder
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			cleaned.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(cleaned.String()), " ")
}

// Similarity is normalized edit distance on a 0..1 scale where 1 is an
// exact match.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}
	longest := la
	if lb > longest {
		longest = lb
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// levenshtein computes edit distance with a single-row DP table.
func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr := make([]int, lb+1)
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min(del, min(ins, sub))
		}
		prev = curr
	}

	return prev[lb]
}
