// Package emotion classifies utterance windows into a closed six-label
// taxonomy and tracks per-session emotion history for trend analysis.
//
// Classification is heuristic: acoustic proxies (pitch variance, energy,
// tempo) scored against tunable thresholds, nudged by simple lexical cues
// from the transcribed text. The thresholds are configuration, not domain
// truth; a stronger classifier can replace this one behind the same
// (emotion, confidence) contract.
package emotion

import (
	"strings"

	"github.com/openefficiency/empathaicoach/domain"
)

// Thresholds are the acoustic decision boundaries for classification
type Thresholds struct {
	PitchVarianceHigh float64 // Hz
	PitchVarianceLow  float64
	EnergyHigh        float64 // normalized 0-1
	EnergyLow         float64
	TempoFast         float64 // relative to baseline
	TempoSlow         float64
	MinConfidence     float64
}

// DefaultThresholds returns the tuning that ships with the coach
func DefaultThresholds() Thresholds {
	return Thresholds{
		PitchVarianceHigh: 50.0,
		PitchVarianceLow:  15.0,
		EnergyHigh:        0.7,
		EnergyLow:         0.3,
		TempoFast:         1.3,
		TempoSlow:         0.7,
		MinConfidence:     0.3,
	}
}

// Window is one utterance's worth of signal: the acoustic features the
// media pipeline extracted, and/or the transcribed text.
type Window struct {
	Features *domain.AudioFeatures
	Text     string
}

// Classifier maps a window to exactly one emotion label plus a confidence
// score. It holds no per-session state; classification is a pure function
// of the window.
type Classifier struct {
	t Thresholds
}

// NewClassifier builds a classifier with the given thresholds
func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{t: t}
}

// lexical cue words, matched as lowercase substrings of the utterance
var lexicalCues = map[domain.Emotion][]string{
	domain.EmotionDefensive:  {"unfair", "wrong about", "that's not true", "ridiculous", "they don't understand", "not my fault"},
	domain.EmotionFrustrated: {"frustrat", "fed up", "sick of", "annoying", "stuck"},
	domain.EmotionSad:        {"sad", "hurt", "disappoint", "painful", "upset"},
	domain.EmotionAnxious:    {"worri", "nervous", "anxious", "scared", "overwhelm"},
	domain.EmotionPositive:   {"makes sense", "that's helpful", "i see", "thank", "excited", "good point"},
}

// Classify returns exactly one of the six labels with a confidence in
// [0,1]. Insufficient signal never fails: it yields neutral with low
// confidence (<= 0.3).
func (c *Classifier) Classify(w Window) (domain.Emotion, float64) {
	if (w.Features == nil || *w.Features == (domain.AudioFeatures{})) && strings.TrimSpace(w.Text) == "" {
		return domain.EmotionNeutral, 0.25
	}

	scores := make(map[domain.Emotion]float64, len(domain.Emotions))
	if w.Features != nil && *w.Features != (domain.AudioFeatures{}) {
		c.scoreAcoustic(*w.Features, scores)
	}
	c.scoreLexical(w.Text, scores)

	best := domain.EmotionNeutral
	bestScore := 0.0
	for _, e := range domain.Emotions {
		if scores[e] > bestScore {
			best, bestScore = e, scores[e]
		}
	}

	if bestScore < c.t.MinConfidence {
		return domain.EmotionNeutral, c.t.MinConfidence
	}
	if bestScore > 1.0 {
		bestScore = 1.0
	}
	return best, bestScore
}

func (c *Classifier) scoreAcoustic(f domain.AudioFeatures, scores map[domain.Emotion]float64) {
	t := c.t

	// Defensive: agitated pitch, faster speech, raised energy
	if f.PitchVariance > t.PitchVarianceHigh {
		scores[domain.EmotionDefensive] += 0.4
	}
	if f.Tempo > t.TempoFast {
		scores[domain.EmotionDefensive] += 0.3
	}
	if f.Energy > t.EnergyHigh {
		scores[domain.EmotionDefensive] += 0.3
	}

	// Frustrated: elevated energy, irregular tempo
	if f.Energy > t.EnergyHigh {
		scores[domain.EmotionFrustrated] += 0.4
	}
	if f.PitchVariance > t.PitchVarianceHigh*0.7 {
		scores[domain.EmotionFrustrated] += 0.3
	}
	if f.Tempo > t.TempoFast*0.9 || f.Tempo < t.TempoSlow*1.1 {
		scores[domain.EmotionFrustrated] += 0.3
	}

	// Sad: flat, quiet, slow
	if f.Energy < t.EnergyLow {
		scores[domain.EmotionSad] += 0.4
	}
	if f.Tempo < t.TempoSlow {
		scores[domain.EmotionSad] += 0.3
	}
	if f.PitchVariance < t.PitchVarianceLow {
		scores[domain.EmotionSad] += 0.3
	}

	// Anxious: high pitch variance, fast, moderately loud
	if f.PitchVariance > t.PitchVarianceHigh {
		scores[domain.EmotionAnxious] += 0.4
	}
	if f.Tempo > t.TempoFast {
		scores[domain.EmotionAnxious] += 0.3
	}
	if f.Energy > t.EnergyHigh*0.8 {
		scores[domain.EmotionAnxious] += 0.3
	}

	// Positive: steady mid-range everything
	if f.Energy > t.EnergyLow && f.Energy < t.EnergyHigh {
		scores[domain.EmotionPositive] += 0.3
	}
	if f.Tempo > t.TempoSlow*1.2 && f.Tempo < t.TempoFast*0.9 {
		scores[domain.EmotionPositive] += 0.4
	}
	if f.PitchVariance > t.PitchVarianceLow && f.PitchVariance < t.PitchVarianceHigh*0.8 {
		scores[domain.EmotionPositive] += 0.3
	}

	// Neutral: everything near baseline
	if f.Energy > t.EnergyLow*1.2 && f.Energy < t.EnergyHigh*0.8 &&
		f.Tempo > t.TempoSlow*1.1 && f.Tempo < t.TempoFast*0.9 &&
		f.PitchVariance < t.PitchVarianceHigh*0.6 {
		scores[domain.EmotionNeutral] += 0.5
	}
}

func (c *Classifier) scoreLexical(text string, scores map[domain.Emotion]float64) {
	lower := strings.ToLower(text)
	if lower == "" {
		return
	}
	for emotion, cues := range lexicalCues {
		for _, cue := range cues {
			if strings.Contains(lower, cue) {
				scores[emotion] += 0.3
				break
			}
		}
	}
}
