package emotion

import (
	"time"

	"github.com/openefficiency/empathaicoach/domain"
)

// improvementSample is how many trailing events IsImproving inspects
const improvementSample = 5

// History is the append-only log of classified emotion events for one
// session. It is owned by the session and not safe for concurrent use;
// the orchestrator serializes access per session.
type History struct {
	events []domain.EmotionEvent
	now    func() time.Time
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{now: time.Now}
}

// NewHistoryWithClock creates a history with an injectable clock
func NewHistoryWithClock(now func() time.Time) *History {
	return &History{now: now}
}

// Record appends an event. O(1); well-formed events are never rejected.
func (h *History) Record(event domain.EmotionEvent) {
	h.events = append(h.events, event)
}

// Events returns the full history in chronological order
func (h *History) Events() []domain.EmotionEvent {
	return h.events
}

// Len returns the number of recorded events
func (h *History) Len() int {
	return len(h.events)
}

// Last returns the most recent event, or false when history is empty
func (h *History) Last() (domain.EmotionEvent, bool) {
	if len(h.events) == 0 {
		return domain.EmotionEvent{}, false
	}
	return h.events[len(h.events)-1], true
}

// Trend returns the majority-vote emotion among events in the trailing
// window, bounded on both sides: events before now-window or after now are
// excluded. An empty window falls back to the most recent historical
// emotion, or neutral when history is empty. Ties break toward the
// first-encountered label so repeated queries never flap. A zero window
// degenerates to the most recent event only.
func (h *History) Trend(window time.Duration) domain.Emotion {
	if len(h.events) == 0 {
		return domain.EmotionNeutral
	}
	if window <= 0 {
		return h.events[len(h.events)-1].Emotion
	}

	now := h.now()
	cutoff := now.Add(-window)
	counts := make(map[domain.Emotion]int)
	var order []domain.Emotion
	for _, e := range h.events {
		if e.Timestamp.Before(cutoff) || e.Timestamp.After(now) {
			continue
		}
		if counts[e.Emotion] == 0 {
			order = append(order, e.Emotion)
		}
		counts[e.Emotion]++
	}
	if len(order) == 0 {
		return h.events[len(h.events)-1].Emotion
	}

	best := order[0]
	for _, e := range order[1:] {
		if counts[e] > counts[best] {
			best = e
		}
	}
	return best
}

// IsImproving looks at the last five events (or fewer) and reports whether
// fewer than half belong to the negative set. With fewer than two events
// there is not enough evidence and the answer is a conservative false.
func (h *History) IsImproving() bool {
	if len(h.events) < 2 {
		return false
	}
	sample := h.events
	if len(sample) > improvementSample {
		sample = sample[len(sample)-improvementSample:]
	}
	negative := 0
	for _, e := range sample {
		if e.Emotion.Negative() {
			negative++
		}
	}
	return float64(negative) < float64(len(sample))/2
}

// Journey condenses the full history into start/end/predominant emotions
// and a change count for the session summary.
func (h *History) Journey() domain.EmotionalJourney {
	j := domain.EmotionalJourney{
		StartEmotion:       domain.EmotionNeutral,
		EndEmotion:         domain.EmotionNeutral,
		PredominantEmotion: domain.EmotionNeutral,
		Distribution:       make(map[domain.Emotion]int),
	}
	if len(h.events) == 0 {
		return j
	}

	j.StartEmotion = h.events[0].Emotion
	j.EndEmotion = h.events[len(h.events)-1].Emotion

	var order []domain.Emotion
	for i, e := range h.events {
		if j.Distribution[e.Emotion] == 0 {
			order = append(order, e.Emotion)
		}
		j.Distribution[e.Emotion]++
		if i > 0 && e.Emotion != h.events[i-1].Emotion {
			j.EmotionChanges++
		}
	}

	best := order[0]
	for _, e := range order[1:] {
		if j.Distribution[e] > j.Distribution[best] {
			best = e
		}
	}
	j.PredominantEmotion = best
	return j
}
