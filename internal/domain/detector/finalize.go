package detector

import (
	"github.com/slidecast/slide-extraction-service/internal/domain/entity"
	"github.com/slidecast/slide-extraction-service/internal/domain/timecode"
)

// Finalize fills in the derived fields of closed slides: readable start/end
// timestamps, duration in seconds and the sequence number by emission order.
// It is a pure, order-preserving transform.
func Finalize(slides []entity.Slide) []entity.Slide {
	out := make([]entity.Slide, len(slides))
	for i, s := range slides {
		s.StartTime = timecode.ToTimestamp(s.StartTimeMS)
		s.EndTime = timecode.ToTimestamp(s.EndTimeMS)
		s.DurationSeconds = float64(s.EndTimeMS-s.StartTimeMS) / 1000.0
		s.Sequence = i + 1
		out[i] = s
	}
	return out
}
