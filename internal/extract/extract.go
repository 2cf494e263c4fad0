// Package extract implements the rule-based fact extractor: a pure
// function that scores sentences in a block of text for how likely they
// are to be durable, memory-worthy facts.
package extract

import (
	"strings"
	"unicode"
)

// Fact is one extracted sentence plus the topic and derived importance it
// should be stored under.
type Fact struct {
	Topic      string
	Text       string
	Importance string
	Score      float64
}

const (
	minSentenceLen = 20
	maxSentenceLen = 500
	scoreFloor     = 3.0
	preDedupCap    = 30
	finalCap       = 20
	jaccardCutoff  = 0.6
)

var definitionKeywords = []string{
	"maximum", "minimum", "default", "requires", "supports", "timeout",
	"threshold", "configured", "limited by", "port", "nodes", "cluster",
	"protocol", "phase",
}

var architectureKeywords = []string{
	"architecture", "module", "pipeline", "component", "design",
	"structure", "layer", "implementation", "deployed", "system",
	"framework", "model",
}

var algorithmKeywords = []string{
	"algorithm", "implements", "complexity", "o(n", "recursive",
	"tolerance", "consensus", "replication", "latency", "throughput",
	"bandwidth", "fault",
}

var decisionKeywords = []string{
	"chose", "chosen", "decided", "because", "instead of", "trade-off",
	"rather than", "reason", "motivated", "proposed", "introduced",
	"invented",
}

var performanceKeywords = []string{
	"benchmark", "performance", "measured", "achieves", "tps",
	"latency", "availability", "scales",
}

var entityKeywords = []string{
	"licensed", "published", "paper", "team", "professor", "university",
	"company", "stanford", "mit",
}

var codeRefSubstrings = []string{".rs", "fn ", "struct "}

// SplitSentences splits text on '.' and newlines, accumulating characters
// and keeping only sentences whose trimmed length exceeds 15 characters.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	flush := func() {
		s := strings.TrimSpace(current.String())
		if len(s) > 15 {
			sentences = append(sentences, s)
		}
		current.Reset()
	}
	for _, r := range text {
		if r == '.' || r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
	}
	flush()
	return sentences
}

// ExtractFacts scores every sentence in text and returns the top-scoring,
// de-duplicated subset as candidate facts, each tagged with the topic
// "context-{project}".
func ExtractFacts(project, text string) []Fact {
	topic := "context-" + project
	var candidates []Fact
	for _, sentence := range SplitSentences(text) {
		if len(sentence) < minSentenceLen || len(sentence) > maxSentenceLen {
			continue
		}
		score, importance := scoreSentence(sentence)
		if score < scoreFloor {
			continue
		}
		candidates = append(candidates, Fact{Topic: topic, Text: sentence, Importance: importance, Score: score})
	}

	sortByScoreDesc(candidates)
	if len(candidates) > preDedupCap {
		candidates = candidates[:preDedupCap]
	}

	var kept []Fact
	for _, c := range candidates {
		dup := false
		for _, k := range kept {
			if jaccardSimilar(c.Text, k.Text) {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, c)
		}
	}
	if len(kept) > finalCap {
		kept = kept[:finalCap]
	}
	return kept
}

func sortByScoreDesc(facts []Fact) {
	for i := 1; i < len(facts); i++ {
		for j := i; j > 0 && facts[j].Score > facts[j-1].Score; j-- {
			facts[j], facts[j-1] = facts[j-1], facts[j]
		}
	}
}

func scoreSentence(sentence string) (float64, string) {
	lower := strings.ToLower(sentence)
	var score float64
	importance := "medium"

	if containsDigit(sentence) {
		score += 1.5
	}
	if hasInternalCapitalizedWords(sentence) {
		score += 1.5
	}
	for _, kw := range definitionKeywords {
		if strings.Contains(lower, kw) {
			score += 1.5
		}
	}
	for _, kw := range architectureKeywords {
		if strings.Contains(lower, kw) {
			score += 2.0
		}
	}
	for _, kw := range algorithmKeywords {
		if strings.Contains(lower, kw) {
			score += 3.0
			importance = "high"
		}
	}
	for _, kw := range decisionKeywords {
		if strings.Contains(lower, kw) {
			score += 2.5
			importance = "high"
		}
	}
	for _, kw := range performanceKeywords {
		if strings.Contains(lower, kw) {
			score += 2.0
		}
	}
	for _, kw := range entityKeywords {
		if strings.Contains(lower, kw) {
			score += 1.0
		}
	}
	for _, sub := range codeRefSubstrings {
		if strings.Contains(lower, sub) {
			score += 1.0
			break
		}
	}

	return score, importance
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// hasInternalCapitalizedWords reports whether at least two words after the
// first are capitalized but not all-caps (a proxy for named entities and
// proper nouns appearing mid-sentence).
func hasInternalCapitalizedWords(s string) bool {
	words := strings.Fields(s)
	if len(words) < 2 {
		return false
	}
	count := 0
	for _, w := range words[1:] {
		r := []rune(w)
		if len(r) == 0 || !unicode.IsUpper(r[0]) {
			continue
		}
		if w == strings.ToUpper(w) {
			continue
		}
		count++
	}
	return count >= 2
}

// jaccardSimilar reports whether two sentences' whitespace-split token
// sets overlap by more than the cutoff fraction.
func jaccardSimilar(a, b string) bool {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return false
	}
	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return false
	}
	return float64(intersection)/float64(union) > jaccardCutoff
}

func tokenSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}
