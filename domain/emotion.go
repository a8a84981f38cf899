package domain

import "time"

// Emotion is one of the six voice-derived emotion labels
type Emotion string

const (
	EmotionNeutral    Emotion = "neutral"
	EmotionDefensive  Emotion = "defensive"
	EmotionFrustrated Emotion = "frustrated"
	EmotionSad        Emotion = "sad"
	EmotionAnxious    Emotion = "anxious"
	EmotionPositive   Emotion = "positive"
)

// Emotions lists every recognized label
var Emotions = []Emotion{
	EmotionNeutral,
	EmotionDefensive,
	EmotionFrustrated,
	EmotionSad,
	EmotionAnxious,
	EmotionPositive,
}

// Valid reports whether e is a recognized emotion label
func (e Emotion) Valid() bool {
	for _, known := range Emotions {
		if known == e {
			return true
		}
	}
	return false
}

// Negative reports whether the emotion belongs to the negative set used by
// trend analysis and phase readiness checks.
func (e Emotion) Negative() bool {
	switch e {
	case EmotionDefensive, EmotionFrustrated, EmotionSad, EmotionAnxious:
		return true
	}
	return false
}

// Defensive reports whether the emotion counts toward the session's
// cumulative defensive reaction count.
func (e Emotion) Defensive() bool {
	return e == EmotionDefensive || e == EmotionFrustrated
}

// AudioFeatures are the acoustic proxies extracted from one utterance
// window by the external media pipeline.
type AudioFeatures struct {
	Pitch         float64 `json:"pitch"`          // Hz
	PitchVariance float64 `json:"pitch_variance"` // Hz
	Energy        float64 `json:"energy"`         // normalized 0-1
	Tempo         float64 `json:"tempo"`          // relative to baseline, 1.0 = typical
}

// EmotionEvent records one classified utterance window. Events are
// append-only and never mutated.
type EmotionEvent struct {
	Timestamp  time.Time
	Emotion    Emotion
	Confidence float64 // 0.0-1.0
	Phase      Phase   // phase active at detection time
}
