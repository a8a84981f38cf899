// Package dialogue selects phase-specific model instructions and screens
// model replies against phase rules.
package dialogue

import (
	"fmt"
	"strings"

	"github.com/openefficiency/empathaicoach/domain"
)

const basePrompt = `You are an emotionally intelligent coach guiding an employee through their 360° feedback using the R2C2 framework (Relationship, Reaction, Content, Coaching).

Core principles:
- Validate feelings without reinforcing defensiveness ("It makes sense you'd feel that way", not "You're right to be upset").
- Speak naturally and conversationally; keep replies concise and focused.
- Use open-ended questions and "I" statements ("I'm noticing...", "I'm hearing...").
- Focus on behaviors and impact, not character or identity.
- Adapt your pacing to the speaker's emotional state; never rush someone processing difficult feelings.`

const relationshipPrompt = `You are in the RELATIONSHIP phase. Build rapport and psychological safety before any feedback content.

- Introduce yourself warmly and acknowledge that receiving feedback is hard.
- Ask how they're feeling about the feedback they received, and listen.
- Explain the four-phase process briefly and emphasize they control the pace.
- Do NOT discuss any specific feedback content yet.`

const reactionPrompt = `You are in the REACTION phase. Help the speaker explore and process their emotional reactions. Defensiveness is the biggest barrier to learning from feedback; this phase reduces it by making room for emotions.

- Ask open-ended questions about their first reactions and what surprised them.
- Reflect emotions back ("It sounds like...", "I'm hearing that...").
- Normalize defensiveness as a natural protective response.
- Do NOT quote or reveal specific feedback comments in this phase, and do not problem-solve yet.`

const contentPrompt = `You are in the CONTENT phase. Now that emotions have been processed, help the speaker look at the feedback objectively, as data rather than attack.

- Walk through the themes below, asking what patterns they notice.
- Separate behavior from identity and intent from impact.
- Explore others' perspectives and possible blind spots.
- Close by asking which two or three themes matter most to address.`

const coachingPrompt = `You are in the COACHING phase. Turn insight into a concrete development plan with one to three commitments.

- Help them frame each commitment as start, stop, or continue.
- Push for SMART goals: a specific behavior, a measurable sign of progress, and a time to begin.
- Plan for obstacles and support ("What might get in the way?", "Who can help?").
- Recap the plan clearly and acknowledge their commitment to growth.`

// adaptation guidance per predominant emotion, appended below the phase prompt
var emotionalGuidance = map[domain.Emotion]string{
	domain.EmotionDefensive: `The speaker currently sounds DEFENSIVE. Slow down, validate more ("That makes complete sense..."), normalize the reaction, and reflect feelings instead of advising. Avoid anything that could read as disagreement or correction.`,
	domain.EmotionFrustrated: `The speaker currently sounds FRUSTRATED. Name it gently ("I'm sensing some frustration..."), simplify, offer a pause, and ask what would help right now. Do not add complexity or push forward.`,
	domain.EmotionSad: `The speaker currently sounds SAD. Slow way down, be gentle, validate the pain, and resist the urge to fix or cheer them up. Check their capacity to continue.`,
	domain.EmotionAnxious: `The speaker currently sounds ANXIOUS. Reassure, ground them in the present, take one thing at a time, and offer choices so they feel in control. Avoid future-focused questions that feed worry.`,
	domain.EmotionPositive: `The speaker sounds POSITIVE and open. Keep the momentum with curious questions, celebrate insights specifically, and use the openness to go deeper.`,
	domain.EmotionNeutral: `The speaker sounds calm and NEUTRAL. Maintain your normal pace, stay curious, and watch for emotional shifts as sensitive topics come up.`,
}

// PacingRecommendation tells downstream consumers how to pace delivery
type PacingRecommendation struct {
	Pace            string `json:"pace"`             // slow | normal
	PauseDuration   string `json:"pause_duration"`   // extended | standard
	ValidationLevel string `json:"validation_level"` // high | normal
	Complexity      string `json:"complexity"`       // low | normal
	Note            string `json:"note"`
}

// PromptInput is the session context a prompt is parameterized with
type PromptInput struct {
	Phase                  domain.Phase
	Themes                 []domain.FeedbackTheme
	Trend                  domain.Emotion
	DefensiveReactionCount int
}

// PromptSelector builds the per-phase system instruction block. Pure
// selection and formatting; no side effects.
type PromptSelector struct{}

// NewPromptSelector returns a selector
func NewPromptSelector() *PromptSelector {
	return &PromptSelector{}
}

// Build assembles the system prompt for the current phase. The reaction
// template deliberately carries theme labels only, never verbatim
// feedback comments: revealing critical detail before emotions are
// processed defeats the framework.
func (s *PromptSelector) Build(in PromptInput) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\n")

	switch in.Phase {
	case domain.PhaseReaction:
		b.WriteString(reactionPrompt)
		if labels := themeLabels(in.Themes); labels != "" {
			b.WriteString("\n\nFeedback areas, by topic only (do not reveal specifics yet): ")
			b.WriteString(labels)
		}
	case domain.PhaseContent:
		b.WriteString(contentPrompt)
		b.WriteString("\n\nFeedback themes:\n")
		b.WriteString(themeSummary(in.Themes, true))
	case domain.PhaseCoaching:
		b.WriteString(coachingPrompt)
		b.WriteString("\n\nFeedback themes:\n")
		b.WriteString(themeSummary(in.Themes, false))
	default:
		b.WriteString(relationshipPrompt)
	}

	if g, ok := emotionalGuidance[in.Trend]; ok {
		b.WriteString("\n\nEmotional adaptation: ")
		b.WriteString(g)
	}
	if in.DefensiveReactionCount >= 3 {
		b.WriteString("\n\nThis session has seen repeated defensive reactions. Be especially patient and validating.")
	}
	return b.String()
}

// Pacing maps the current trend to delivery pacing hints
func (s *PromptSelector) Pacing(trend domain.Emotion) PacingRecommendation {
	if trend.Negative() {
		return PacingRecommendation{
			Pace:            "slow",
			PauseDuration:   "extended",
			ValidationLevel: "high",
			Complexity:      "low",
			Note:            fmt.Sprintf("speaker is showing %s emotions; slow down, validate more, simplify", trend),
		}
	}
	note := "speaker is in a neutral state; continue with standard pacing"
	if trend == domain.EmotionPositive {
		note = "speaker is in a positive state; maintain momentum and depth"
	}
	return PacingRecommendation{
		Pace:            "normal",
		PauseDuration:   "standard",
		ValidationLevel: "normal",
		Complexity:      "normal",
		Note:            note,
	}
}

// themeLabels joins theme names only, safe for the reaction phase
func themeLabels(themes []domain.FeedbackTheme) string {
	var labels []string
	for _, t := range themes {
		labels = append(labels, t.Theme)
	}
	return strings.Join(labels, ", ")
}

// themeSummary renders themes one per line; withExamples adds the verbatim
// comments and is only used from the content phase onward.
func themeSummary(themes []domain.FeedbackTheme, withExamples bool) string {
	if len(themes) == 0 {
		return "General 360° feedback; no structured themes provided."
	}
	var b strings.Builder
	for i, t := range themes {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "- [%s] %s (mentioned %d times)\n", strings.ToUpper(t.Category), t.Theme, t.Frequency)
		if withExamples {
			for _, ex := range t.Examples {
				fmt.Fprintf(&b, "    %q\n", ex)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
