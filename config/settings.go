// Package config loads optional user settings from ~/.empathai/settings.json.
// Precedence is flag > environment > settings file > default; cmd/root.go
// applies it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Settings represents the structure of ~/.empathai/settings.json
type Settings struct {
	DBPath      string `json:"db_path,omitempty"`
	Debug       *bool  `json:"debug,omitempty"`
	MaxLogFiles *int   `json:"max_log_files,omitempty"`
	Listen      string `json:"listen,omitempty"`
	Model       string `json:"model,omitempty"`

	// Phase pacing overrides, in seconds. Zero means default.
	RelationshipMinS int `json:"relationship_min_s,omitempty"`
	ReactionMinS     int `json:"reaction_min_s,omitempty"`
	ContentMinS      int `json:"content_min_s,omitempty"`
	CoachingMinS     int `json:"coaching_min_s,omitempty"`

	EmotionWindowS int `json:"emotion_window_s,omitempty"`
	MaxSessionS    int `json:"max_session_s,omitempty"`
}

// LoadSettings loads settings from ~/.empathai/settings.json.
// Returns empty Settings if the file doesn't exist (not an error).
func LoadSettings() (*Settings, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	path := filepath.Join(homeDir, ".empathai", "settings.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Settings{}, nil // Not an error, use defaults
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("invalid settings.json: %w", err)
	}

	if settings.DBPath != "" {
		settings.DBPath = expandPath(settings.DBPath)
	}

	return &settings, nil
}

// expandPath expands ~ to home directory in paths
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path // Return as-is if we can't get home dir
		}
		if len(path) == 1 {
			return homeDir
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
