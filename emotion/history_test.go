package emotion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openefficiency/empathaicoach/domain"
)

func eventAt(base time.Time, offset time.Duration, e domain.Emotion) domain.EmotionEvent {
	return domain.EmotionEvent{
		Timestamp:  base.Add(offset),
		Emotion:    e,
		Confidence: 0.8,
		Phase:      domain.PhaseReaction,
	}
}

func TestTrendEmptyHistory(t *testing.T) {
	h := NewHistory()

	assert.Equal(t, domain.EmotionNeutral, h.Trend(30*time.Second))
}

func TestTrendMajorityWithTieBreak(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := base.Add(35 * time.Second)
	h := NewHistoryWithClock(func() time.Time { return now })

	h.Record(eventAt(base, 0, domain.EmotionFrustrated))
	h.Record(eventAt(base, 10*time.Second, domain.EmotionFrustrated))
	h.Record(eventAt(base, 20*time.Second, domain.EmotionPositive))

	// 30s window at t=35 covers the events at t=10 and t=20; one each, so
	// the tie breaks toward the first-encountered label.
	assert.Equal(t, domain.EmotionFrustrated, h.Trend(30*time.Second))
}

func TestTrendWindowIsBoundedOnBothSides(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := base.Add(35 * time.Second)
	h := NewHistoryWithClock(func() time.Time { return now })

	h.Record(eventAt(base, 0, domain.EmotionSad))
	h.Record(eventAt(base, 10*time.Second, domain.EmotionFrustrated))
	h.Record(eventAt(base, 40*time.Second, domain.EmotionPositive))
	h.Record(eventAt(base, 50*time.Second, domain.EmotionPositive))

	// 30s window at t=35 spans [5, 35]: the event at t=0 is too old and
	// the future-stamped events at t=40 and t=50 are ignored, so the lone
	// in-window event decides the trend.
	assert.Equal(t, domain.EmotionFrustrated, h.Trend(30*time.Second))
}

func TestTrendEmptyWindowFallsBackToMostRecent(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := base.Add(10 * time.Minute)
	h := NewHistoryWithClock(func() time.Time { return now })

	h.Record(eventAt(base, 0, domain.EmotionSad))
	h.Record(eventAt(base, 5*time.Second, domain.EmotionPositive))

	assert.Equal(t, domain.EmotionPositive, h.Trend(30*time.Second))
}

func TestTrendZeroWindowUsesLastEvent(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	h := NewHistoryWithClock(func() time.Time { return base })

	h.Record(eventAt(base, 0, domain.EmotionSad))
	h.Record(eventAt(base, time.Second, domain.EmotionAnxious))

	assert.Equal(t, domain.EmotionAnxious, h.Trend(0))
}

func TestIsImproving(t *testing.T) {
	tests := []struct {
		name     string
		emotions []domain.Emotion
		want     bool
	}{
		{"empty", nil, false},
		{"single event is not enough evidence", []domain.Emotion{domain.EmotionPositive}, false},
		{"half negative is not improving", []domain.Emotion{domain.EmotionDefensive, domain.EmotionPositive}, false},
		{
			"mostly positive tail",
			[]domain.Emotion{domain.EmotionDefensive, domain.EmotionDefensive, domain.EmotionPositive, domain.EmotionPositive, domain.EmotionPositive},
			true,
		},
		{
			"only last five count",
			[]domain.Emotion{
				domain.EmotionDefensive, domain.EmotionDefensive, domain.EmotionDefensive,
				domain.EmotionNeutral, domain.EmotionNeutral, domain.EmotionNeutral,
				domain.EmotionPositive, domain.EmotionPositive,
			},
			true,
		},
		{
			"negative tail",
			[]domain.Emotion{domain.EmotionPositive, domain.EmotionDefensive, domain.EmotionFrustrated, domain.EmotionSad},
			false,
		},
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHistoryWithClock(func() time.Time { return base })
			for i, e := range tt.emotions {
				h.Record(eventAt(base, time.Duration(i)*time.Second, e))
			}

			assert.Equal(t, tt.want, h.IsImproving())
		})
	}
}

func TestJourney(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	h := NewHistoryWithClock(func() time.Time { return base })

	h.Record(eventAt(base, 0, domain.EmotionDefensive))
	h.Record(eventAt(base, 10*time.Second, domain.EmotionDefensive))
	h.Record(eventAt(base, 20*time.Second, domain.EmotionNeutral))
	h.Record(eventAt(base, 30*time.Second, domain.EmotionPositive))

	j := h.Journey()

	assert.Equal(t, domain.EmotionDefensive, j.StartEmotion)
	assert.Equal(t, domain.EmotionPositive, j.EndEmotion)
	assert.Equal(t, domain.EmotionDefensive, j.PredominantEmotion)
	assert.Equal(t, 2, j.EmotionChanges)
	assert.Equal(t, 2, j.Distribution[domain.EmotionDefensive])
}

func TestJourneyEmpty(t *testing.T) {
	h := NewHistory()

	j := h.Journey()

	assert.Equal(t, domain.EmotionNeutral, j.StartEmotion)
	assert.Equal(t, domain.EmotionNeutral, j.EndEmotion)
	assert.Zero(t, j.EmotionChanges)
}
