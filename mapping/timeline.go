package mapping

import (
	"sort"

	"kiko-backend/models"

	"github.com/google/uuid"
)

// Span is one sentence's time range on the script timeline.
type Span struct {
	SentenceID uuid.UUID
	Start      float64
	End        float64
}

// Timeline resolves playback positions to sentences. Built from the active
// mappings of a script; spans are kept sorted by start time so lookup is a
// binary search.
type Timeline struct {
	spans []Span
}

func NewTimeline(mappings []models.SentenceMapping) Timeline {
	spans := make([]Span, 0, len(mappings))
	for _, m := range mappings {
		spans = append(spans, Span{
			SentenceID: m.SentenceID,
			Start:      m.StartTime,
			End:        m.EndTime,
		})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return Timeline{spans: spans}
}

// SentenceAt returns the sentence whose span covers position, using
// half-open [start, end) ranges. A position in a gap or past the last
// mapping resolves to nothing.
func (t Timeline) SentenceAt(position float64) (uuid.UUID, bool) {
	// First span starting after position; the candidate is the one before.
	i := sort.Search(len(t.spans), func(i int) bool {
		return t.spans[i].Start > position
	})
	if i == 0 {
		return uuid.Nil, false
	}
	span := t.spans[i-1]
	if position < span.End {
		return span.SentenceID, true
	}
	return uuid.Nil, false
}

// Len reports the number of mapped sentences.
func (t Timeline) Len() int { return len(t.spans) }
