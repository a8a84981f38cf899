package dialogue

import "github.com/openefficiency/empathaicoach/domain"

// PhaseGuidance is the structured per-phase coaching guidance surfaced to
// UI collaborators alongside the phase indicator.
type PhaseGuidance struct {
	Phase        domain.Phase `json:"phase"`
	Goals        []string     `json:"goals"`
	KeyQuestions []string     `json:"key_questions"`
	Tips         []string     `json:"tips"`
}

var phaseGuidance = map[domain.Phase]PhaseGuidance{
	domain.PhaseRelationship: {
		Phase: domain.PhaseRelationship,
		Goals: []string{
			"Build rapport and trust",
			"Create psychological safety",
			"Set expectations for the conversation",
		},
		KeyQuestions: []string{
			"How are you feeling about the feedback you received?",
			"What was it like to read through your 360° feedback?",
		},
		Tips: []string{"Be warm and empathetic", "Validate their feelings", "Keep it brief"},
	},
	domain.PhaseReaction: {
		Phase: domain.PhaseReaction,
		Goals: []string{
			"Explore emotional reactions",
			"Normalize defensiveness",
			"Reduce emotional barriers to learning",
		},
		KeyQuestions: []string{
			"What was your first reaction when you read the feedback?",
			"Which pieces surprised you or felt unfair?",
		},
		Tips: []string{"Don't rush this phase", "Reflect emotions back", "Avoid problem-solving yet"},
	},
	domain.PhaseContent: {
		Phase: domain.PhaseContent,
		Goals: []string{
			"Understand feedback objectively",
			"Identify patterns and themes",
			"Distinguish behavior from identity",
		},
		KeyQuestions: []string{
			"What patterns do you notice across the feedback?",
			"Which themes feel most important to address?",
		},
		Tips: []string{"Help them see others' perspectives", "Focus on behaviors, not character"},
	},
	domain.PhaseCoaching: {
		Phase: domain.PhaseCoaching,
		Goals: []string{
			"Create an actionable development plan",
			"Set SMART goals",
			"Identify specific behavior changes",
		},
		KeyQuestions: []string{
			"What one to three areas do you want to focus on?",
			"What will you start, stop, or continue?",
			"What obstacles might you face?",
		},
		Tips: []string{"Keep it focused", "Make goals specific and measurable", "Ensure commitments are realistic"},
	},
}

// GuidanceFor returns the guidance block for a phase
func GuidanceFor(phase domain.Phase) PhaseGuidance {
	if g, ok := phaseGuidance[phase]; ok {
		return g
	}
	return phaseGuidance[domain.PhaseRelationship]
}
