package domain

import "time"

// FeedbackTheme is one recurring topic extracted from 360° feedback
type FeedbackTheme struct {
	Category  string   `json:"category"` // strength | improvement | neutral
	Theme     string   `json:"theme"`
	Frequency int      `json:"frequency"`
	Examples  []string `json:"examples"` // verbatim comments, content-phase only
}

// FeedbackComment is a single parsed reviewer comment
type FeedbackComment struct {
	Source    string   `json:"source"`
	Category  string   `json:"category"`
	Comment   string   `json:"comment"`
	Sentiment string   `json:"sentiment"` // positive | negative | neutral
	Themes    []string `json:"themes"`
}

// FeedbackData is the parsed 360° feedback a session works through. It is
// supplied at session start and read-only for the session's lifetime.
type FeedbackData struct {
	FeedbackID     string            `json:"feedback_id"`
	UserID         string            `json:"user_id"`
	CollectionDate time.Time         `json:"collection_date"`
	Themes         []FeedbackTheme   `json:"themes"`
	RawComments    []FeedbackComment `json:"raw_comments"`
}
