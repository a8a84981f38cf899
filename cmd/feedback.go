package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openefficiency/empathaicoach/feedback"
)

// FeedbackCmd groups feedback subcommands
type FeedbackCmd struct {
	Parse FeedbackParseCmd `cmd:"parse" help:"Parse a 360° feedback file into themes"`
}

// FeedbackParseCmd parses a feedback file and prints the themes
type FeedbackParseCmd struct {
	Path string `arg:"" help:"Path to the feedback file" type:"existingfile"`
	Type string `help:"File type: text, csv, or json (default: inferred from extension)"`
}

// Run parses the file and prints the result as JSON
func (f *FeedbackParseCmd) Run(cli *CLI) error {
	content, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("failed to read feedback file: %w", err)
	}

	fileType := f.Type
	if fileType == "" {
		switch strings.ToLower(filepath.Ext(f.Path)) {
		case ".csv":
			fileType = "csv"
		case ".json":
			fileType = "json"
		default:
			fileType = "text"
		}
	}

	parsed, err := feedback.Parse(string(content), fileType)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
