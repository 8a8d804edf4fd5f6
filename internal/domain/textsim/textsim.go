// Package textsim scores the textual similarity of two OCR'd frames. All
// functions are pure; the TF-IDF vocabulary is built per call over the two
// texts being compared, so the package carries no cross-call state and is safe
// to use from concurrent jobs.
package textsim

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Method selects how Similarity scores a pair of texts.
type Method string

const (
	// MethodLevenshtein scores by normalized edit distance.
	MethodLevenshtein Method = "levenshtein"
	// MethodTFIDF scores by cosine similarity of TF-IDF vectors built over
	// the two-document corpus {a, b}.
	MethodTFIDF Method = "tfidf"
	// MethodHybrid averages the two.
	MethodHybrid Method = "hybrid"
)

// incrementalWordThreshold is the fraction of the earlier text's words that
// must appear in the later text for the pair to count as a progressive reveal.
const incrementalWordThreshold = 0.7

// wordPattern matches content tokens: runs of two or more letters or digits.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]{2,}`)

// Similarity returns a score in [0, 1]. Two empty texts are identical (1.0);
// exactly one empty text scores 0.0.
func Similarity(a, b string, method Method) (float64, error) {
	if a == "" && b == "" {
		return 1.0, nil
	}
	if a == "" || b == "" {
		return 0.0, nil
	}

	switch method {
	case MethodLevenshtein:
		return levenshteinSimilarity(a, b), nil
	case MethodTFIDF:
		return tfidfSimilarity(a, b), nil
	case MethodHybrid:
		return (levenshteinSimilarity(a, b) + tfidfSimilarity(a, b)) / 2, nil
	default:
		return 0, fmt.Errorf("unknown similarity method %q", method)
	}
}

func levenshteinSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1.0
	}

	dist := levenshtein.ComputeDistance(a, b)
	sim := 1.0 - float64(dist)/float64(maxLen)
	return math.Max(0.0, math.Min(1.0, sim))
}

// tfidfSimilarity vectorizes both texts over their shared vocabulary with
// smoothed inverse document frequency and returns the cosine of the two
// vectors. Degenerate vectorization (no tokens on either side) falls back to
// word-level Jaccard similarity.
func tfidfSimilarity(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return WordJaccard(a, b)
	}

	vocab := map[string]int{}
	for _, tok := range ta {
		if _, ok := vocab[tok]; !ok {
			vocab[tok] = len(vocab)
		}
	}
	for _, tok := range tb {
		if _, ok := vocab[tok]; !ok {
			vocab[tok] = len(vocab)
		}
	}

	va := vectorize(ta, vocab)
	vb := vectorize(tb, vocab)

	// Smoothed IDF over the two-document corpus: terms in both documents
	// weigh 1, terms in one weigh ln(3/2)+1.
	for _, idx := range vocab {
		df := 0
		if va[idx] > 0 {
			df++
		}
		if vb[idx] > 0 {
			df++
		}
		idf := math.Log(3.0/float64(1+df)) + 1.0
		va[idx] *= idf
		vb[idx] *= idf
	}

	na := norm(va)
	nb := norm(vb)
	if na == 0 || nb == 0 {
		return WordJaccard(a, b)
	}

	var dot float64
	for i := range va {
		dot += va[i] * vb[i]
	}
	sim := dot / (na * nb)
	return math.Max(0.0, math.Min(1.0, sim))
}

func tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

func vectorize(tokens []string, vocab map[string]int) []float64 {
	v := make([]float64, len(vocab))
	for _, tok := range tokens {
		v[vocab[tok]]++
	}
	return v
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// WordJaccard is pure set-overlap similarity over case-folded,
// whitespace-separated words.
func WordJaccard(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)

	if len(wa) == 0 && len(wb) == 0 {
		return 1.0
	}
	if len(wa) == 0 || len(wb) == 0 {
		return 0.0
	}

	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

// IsIncremental reports whether later looks like a progressive reveal of
// earlier: either a literal substring containment, or at least 70% of
// earlier's words surviving into later. The word-coverage path tolerates OCR
// noise perturbing a few characters between samples.
func IsIncremental(earlier, later string) bool {
	if strings.Contains(later, earlier) {
		return true
	}

	we := wordSet(earlier)
	if len(we) == 0 {
		return false
	}
	wl := wordSet(later)

	overlap := 0
	for w := range we {
		if _, ok := wl[w]; ok {
			overlap++
		}
	}
	return float64(overlap)/float64(len(we)) >= incrementalWordThreshold
}

// MeaningfulWords extracts content-bearing tokens: case-folded alphanumeric
// runs longer than three characters. Short tokens are dropped because OCR
// noise concentrates there.
func MeaningfulWords(text string) map[string]struct{} {
	words := map[string]struct{}{}
	for _, tok := range tokenize(text) {
		if len([]rune(tok)) > 3 {
			words[tok] = struct{}{}
		}
	}
	return words
}

// NormalizeText lowercases, strips characters outside letters, digits,
// whitespace and basic punctuation, and collapses whitespace. Used to compare
// slides for exact duplication.
func NormalizeText(text string) string {
	text = strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune(' ')
		case r == '.' || r == ',' || r == '!' || r == '?' || r == '-':
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func wordSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}
