package detector

import (
	"github.com/slidecast/slide-extraction-service/internal/domain/entity"
	"github.com/slidecast/slide-extraction-service/internal/domain/textsim"
)

const (
	// dedupeJaccardThreshold is the meaningful-word overlap above which two
	// adjacent slides count as the same slide. Set loose enough to absorb
	// OCR noise in mathematical notation.
	dedupeJaccardThreshold = 0.85
	// dedupeEditThreshold is the normalized edit-distance similarity used
	// when meaningful-word comparison is not possible.
	dedupeEditThreshold = 0.95
)

// Dedupe collapses consecutive near-duplicate slides. Each slide is compared
// only against the immediately preceding retained slide, so a revisit of an
// earlier, non-adjacent slide always survives. Order is preserved and the
// first slide is always retained. A detected duplicate is dropped outright;
// its time span is not merged into the neighbor.
func Dedupe(slides []entity.Slide) []entity.Slide {
	if len(slides) <= 1 {
		return slides
	}

	out := make([]entity.Slide, 0, len(slides))
	out = append(out, slides[0])

	for _, s := range slides[1:] {
		if !isDuplicate(out[len(out)-1], s) {
			out = append(out, s)
		}
	}
	return out
}

func isDuplicate(prev, cur entity.Slide) bool {
	prevNorm := textsim.NormalizeText(prev.ExtractedText)
	curNorm := textsim.NormalizeText(cur.ExtractedText)

	if prevNorm == curNorm {
		return true
	}

	prevWords := textsim.MeaningfulWords(prev.ExtractedText)
	curWords := textsim.MeaningfulWords(cur.ExtractedText)
	if len(prevWords) > 0 && len(curWords) > 0 {
		return setJaccard(prevWords, curWords) > dedupeJaccardThreshold
	}

	sim, err := textsim.Similarity(prevNorm, curNorm, textsim.MethodLevenshtein)
	if err != nil {
		return false
	}
	return sim > dedupeEditThreshold
}

func setJaccard(a, b map[string]struct{}) float64 {
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
