package dialogue

import (
	"strings"

	"github.com/openefficiency/empathaicoach/domain"
)

// RejectReason classifies why a proposed reply was rejected
type RejectReason string

const (
	// ReasonPrematureContentDisclosure flags a reaction-phase reply that
	// contains a raw feedback quote.
	ReasonPrematureContentDisclosure RejectReason = "premature-content-disclosure"
	// ReasonMissingEmotionalValidation flags a reaction-phase reply that
	// ignores a negative emotional state.
	ReasonMissingEmotionalValidation RejectReason = "missing-emotional-validation"
	// ReasonInsufficientActionOrientation flags coaching-phase replies
	// that never steer toward concrete goals.
	ReasonInsufficientActionOrientation RejectReason = "insufficient-action-orientation"
)

// validationPhrases are the markers of emotional validation language
var validationPhrases = []string{
	"makes sense",
	"i hear",
	"i understand",
	"understandable",
	"it sounds like",
	"sounds like",
	"that's completely natural",
	"it's okay to feel",
	"it's natural",
	"i can see why",
	"i'm hearing",
}

// actionLanguage marks goal- and action-oriented coaching content
var actionLanguage = []string{
	"start",
	"stop",
	"continue",
	"goal",
	"step",
	"plan",
	"commit",
	"action",
	"specifically",
	"by when",
	"this week",
}

// defaultActionGraceTurns is how many coaching turns may pass before a
// reply must reference concrete action or goal language.
const defaultActionGraceTurns = 3

// quote markers shorter than this are too generic to flag
const minQuoteMarkerLen = 12

// Validator screens proposed model replies against phase rules. Rejection
// is recoverable: the orchestrator regenerates or falls back to a canned
// line, and the user never sees a rejected reply.
type Validator struct {
	quoteMarkers     []string
	actionGraceTurns int
}

// ValidatorOption configures a Validator
type ValidatorOption func(*Validator)

// WithActionGraceTurns overrides how many coaching turns may pass before
// action orientation is required.
func WithActionGraceTurns(n int) ValidatorOption {
	return func(v *Validator) { v.actionGraceTurns = n }
}

// NewValidator builds a validator whose content-phase-only markers are the
// verbatim comments of the session's feedback themes.
func NewValidator(feedback domain.FeedbackData, opts ...ValidatorOption) *Validator {
	v := &Validator{actionGraceTurns: defaultActionGraceTurns}
	seen := make(map[string]bool)
	add := func(text string) {
		marker := normalize(text)
		if len(marker) < minQuoteMarkerLen || seen[marker] {
			return
		}
		seen[marker] = true
		v.quoteMarkers = append(v.quoteMarkers, marker)
	}
	for _, theme := range feedback.Themes {
		for _, ex := range theme.Examples {
			add(ex)
		}
	}
	for _, c := range feedback.RawComments {
		add(c.Comment)
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// CheckInput carries the turn context a reply is screened against
type CheckInput struct {
	Reply        string
	Phase        domain.Phase
	LastEmotion  domain.Emotion
	CoachingTurn int // turns since entering the coaching phase
}

// Check screens a proposed reply. It returns true to accept, or false with
// the rejection reason.
func (v *Validator) Check(in CheckInput) (bool, RejectReason) {
	reply := normalize(in.Reply)

	if in.Phase == domain.PhaseReaction {
		for _, marker := range v.quoteMarkers {
			if strings.Contains(reply, marker) {
				return false, ReasonPrematureContentDisclosure
			}
		}
		if in.LastEmotion.Negative() && !containsAny(reply, validationPhrases) {
			return false, ReasonMissingEmotionalValidation
		}
	}

	if in.Phase == domain.PhaseCoaching && in.CoachingTurn > v.actionGraceTurns {
		if !containsAny(reply, actionLanguage) {
			return false, ReasonInsufficientActionOrientation
		}
	}

	return true, ""
}

// canned phase-appropriate lines used when regeneration keeps failing
var fallbackReplies = map[domain.Phase]string{
	domain.PhaseRelationship: "I'm glad you're here. There's no rush — how are you feeling about this conversation so far?",
	domain.PhaseReaction:     "It makes sense that this brings up strong feelings. Take your time — what's coming up for you right now?",
	domain.PhaseContent:      "Let's stay with the feedback itself for a moment. What patterns stand out to you when you look at it all together?",
	domain.PhaseCoaching:     "Let's make this concrete. What is one small step you could commit to starting this week?",
}

// Fallback returns the safe canned reply for a phase
func Fallback(phase domain.Phase) string {
	if line, ok := fallbackReplies[phase]; ok {
		return line
	}
	return fallbackReplies[domain.PhaseRelationship]
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
