// Package feedback parses 360° feedback supplied as raw text, CSV, or
// JSON into the themed structure a coaching session starts from.
//
// Theme and sentiment detection are keyword heuristics, good enough to
// group reviewer comments into strength and improvement areas.
package feedback

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/openefficiency/empathaicoach/domain"
)

// Parsed is the result of parsing one feedback payload
type Parsed struct {
	Themes        []domain.FeedbackTheme
	RawComments   []domain.FeedbackComment
	TotalComments int
}

// maxThemeExamples caps the verbatim comments kept per theme
const maxThemeExamples = 3

var themeKeywords = map[string][]string{
	"communication":   {"communication", "communicate", "clarity", "clear", "explain", "articulate"},
	"leadership":      {"leadership", "lead", "direction", "vision", "inspire", "motivate"},
	"technical":       {"technical", "technology", "code", "engineering", "expertise", "skill"},
	"collaboration":   {"collaboration", "teamwork", "team", "cooperate", "work together"},
	"delegation":      {"delegation", "delegate", "empower", "trust", "distribute"},
	"feedback":        {"feedback", "input", "suggestions", "advice"},
	"time management": {"time", "deadline", "schedule", "prioritize", "organize"},
	"problem solving": {"problem", "solution", "solve", "resolve", "fix"},
}

var positiveKeywords = []string{"great", "excellent", "strong", "good", "impressive", "outstanding", "helpful"}
var negativeKeywords = []string{"could improve", "needs work", "lacking", "weak", "should", "needs to"}

// comments are separated by blank lines, newlines, or semicolons; RE2 has
// no lookahead, so sentence-boundary splitting stays out of scope
var commentSplitter = regexp.MustCompile(`\n+|;`)

// Parse dispatches on the file type: "csv", "json", or "text" (the default
// when fileType is empty).
func Parse(content, fileType string) (*Parsed, error) {
	switch strings.ToLower(fileType) {
	case "csv":
		return ParseCSV(content)
	case "json":
		return ParseJSON(content)
	case "", "text":
		return ParseText(content)
	}
	return nil, fmt.Errorf("unsupported feedback file type %q", fileType)
}

// ParseText splits free-form feedback into comments and buckets them into
// themes via keyword matching.
func ParseText(text string) (*Parsed, error) {
	var comments []string
	for _, c := range splitComments(text) {
		if c = strings.TrimSpace(c); c != "" {
			comments = append(comments, c)
		}
	}
	if len(comments) == 0 {
		return nil, fmt.Errorf("no feedback comments found")
	}

	var parsed []domain.FeedbackComment
	for _, comment := range comments {
		lower := strings.ToLower(comment)
		var themes []string
		for theme, keywords := range themeKeywords {
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					themes = append(themes, theme)
					break
				}
			}
		}
		sort.Strings(themes)

		sentiment := "neutral"
		if containsKeyword(lower, positiveKeywords) {
			sentiment = "positive"
		} else if containsKeyword(lower, negativeKeywords) {
			sentiment = "negative"
		}

		category := "general"
		if len(themes) > 0 {
			category = themes[0]
		}
		parsed = append(parsed, domain.FeedbackComment{
			Source:    "unknown",
			Category:  category,
			Comment:   comment,
			Sentiment: sentiment,
			Themes:    themes,
		})
	}

	return &Parsed{
		Themes:        summarizeByTheme(parsed),
		RawComments:   parsed,
		TotalComments: len(parsed),
	}, nil
}

// ParseCSV parses "source,category,comment[,sentiment]" rows. Header names
// are case-insensitive; rows without a comment are skipped.
func ParseCSV(content string) (*Parsed, error) {
	reader := csv.NewReader(strings.NewReader(content))
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("invalid CSV: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}

	field := func(record []string, name string) string {
		if i, ok := col[name]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	var parsed []domain.FeedbackComment
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid CSV: %w", err)
		}
		comment := field(record, "comment")
		if comment == "" {
			continue
		}
		c := domain.FeedbackComment{
			Source:    orDefault(field(record, "source"), "unknown"),
			Category:  orDefault(field(record, "category"), "general"),
			Comment:   comment,
			Sentiment: orDefault(field(record, "sentiment"), "neutral"),
		}
		c.Themes = []string{c.Category}
		parsed = append(parsed, c)
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("no feedback comments found in CSV")
	}

	return &Parsed{
		Themes:        summarizeByCategory(parsed),
		RawComments:   parsed,
		TotalComments: len(parsed),
	}, nil
}

// jsonFeedback covers the accepted JSON shapes: a comment list, or the
// 360° export with strengths and areas_for_improvement.
type jsonFeedback struct {
	Comments []jsonComment   `json:"comments"`
	Feedback []jsonComment   `json:"feedback"`
	Strength []jsonThemeList `json:"strengths"`
	Improve  []jsonThemeList `json:"areas_for_improvement"`
}

type jsonComment struct {
	Source    string `json:"source"`
	Category  string `json:"category"`
	Comment   string `json:"comment"`
	Text      string `json:"text"`
	Sentiment string `json:"sentiment"`
}

type jsonThemeList struct {
	Theme     string   `json:"theme"`
	Frequency int      `json:"frequency"`
	Comments  []string `json:"comments"`
}

// ParseJSON parses structured feedback exports
func ParseJSON(content string) (*Parsed, error) {
	var data jsonFeedback
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if len(data.Strength) > 0 || len(data.Improve) > 0 {
		return parse360Format(data), nil
	}

	raw := data.Comments
	if len(raw) == 0 {
		raw = data.Feedback
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no comments found in JSON feedback")
	}

	var parsed []domain.FeedbackComment
	for _, c := range raw {
		text := c.Comment
		if text == "" {
			text = c.Text
		}
		if text == "" {
			continue
		}
		parsed = append(parsed, domain.FeedbackComment{
			Source:    orDefault(c.Source, "unknown"),
			Category:  orDefault(c.Category, "general"),
			Comment:   text,
			Sentiment: orDefault(c.Sentiment, "neutral"),
			Themes:    []string{orDefault(c.Category, "general")},
		})
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("no comments found in JSON feedback")
	}

	return &Parsed{
		Themes:        summarizeByCategory(parsed),
		RawComments:   parsed,
		TotalComments: len(parsed),
	}, nil
}

func parse360Format(data jsonFeedback) *Parsed {
	out := &Parsed{}
	appendThemes := func(lists []jsonThemeList, category, sentiment string) {
		for _, t := range lists {
			examples := t.Comments
			if len(examples) > maxThemeExamples {
				examples = examples[:maxThemeExamples]
			}
			out.Themes = append(out.Themes, domain.FeedbackTheme{
				Category:  category,
				Theme:     t.Theme,
				Frequency: t.Frequency,
				Examples:  examples,
			})
			for _, comment := range t.Comments {
				out.RawComments = append(out.RawComments, domain.FeedbackComment{
					Source:    "unknown",
					Category:  t.Theme,
					Comment:   comment,
					Sentiment: sentiment,
					Themes:    []string{t.Theme},
				})
				out.TotalComments++
			}
		}
	}
	appendThemes(data.Strength, "strength", "positive")
	appendThemes(data.Improve, "improvement", "negative")
	return out
}

// summarizeByTheme builds theme summaries from keyword-detected themes
func summarizeByTheme(comments []domain.FeedbackComment) []domain.FeedbackTheme {
	counts := make(map[string]int)
	for _, c := range comments {
		for _, t := range c.Themes {
			counts[t]++
		}
	}
	var themes []domain.FeedbackTheme
	for theme, count := range counts {
		var examples []string
		positive, negative := 0, 0
		for _, c := range comments {
			if !containsString(c.Themes, theme) {
				continue
			}
			if len(examples) < maxThemeExamples {
				examples = append(examples, c.Comment)
			}
			switch c.Sentiment {
			case "positive":
				positive++
			case "negative":
				negative++
			}
		}
		themes = append(themes, domain.FeedbackTheme{
			Category:  categoryFor(positive, negative),
			Theme:     titleCase(theme),
			Frequency: count,
			Examples:  examples,
		})
	}
	sortThemes(themes)
	return themes
}

// summarizeByCategory builds theme summaries from explicit categories
func summarizeByCategory(comments []domain.FeedbackComment) []domain.FeedbackTheme {
	counts := make(map[string]int)
	for _, c := range comments {
		counts[c.Category]++
	}
	var themes []domain.FeedbackTheme
	for category, count := range counts {
		var examples []string
		positive, negative := 0, 0
		for _, c := range comments {
			if c.Category != category {
				continue
			}
			if len(examples) < maxThemeExamples {
				examples = append(examples, c.Comment)
			}
			switch c.Sentiment {
			case "positive":
				positive++
			case "negative":
				negative++
			}
		}
		themes = append(themes, domain.FeedbackTheme{
			Category:  categoryFor(positive, negative),
			Theme:     titleCase(category),
			Frequency: count,
			Examples:  examples,
		})
	}
	sortThemes(themes)
	return themes
}

func sortThemes(themes []domain.FeedbackTheme) {
	sort.SliceStable(themes, func(i, j int) bool {
		if themes[i].Frequency != themes[j].Frequency {
			return themes[i].Frequency > themes[j].Frequency
		}
		return themes[i].Theme < themes[j].Theme
	})
}

func categoryFor(positive, negative int) string {
	switch {
	case positive > negative:
		return "strength"
	case negative > positive:
		return "improvement"
	}
	return "neutral"
}

func splitComments(text string) []string {
	return commentSplitter.Split(text, -1)
}

func containsKeyword(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
