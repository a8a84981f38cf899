// Package cmd defines the CLI surface of the coach.
package cmd

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/openefficiency/empathaicoach/config"
	"github.com/openefficiency/empathaicoach/logging"
)

// CLI represents the command-line interface structure
type CLI struct {
	Version     kong.VersionFlag `help:"Show version information"`
	Debug       bool             `help:"Enable debug logging to file" short:"d"`
	DebugFile   string           `help:"Custom path for debug log file (disables automatic cleanup)"`
	MaxLogFiles int              `help:"Maximum number of log files to keep (0 = unlimited)" default:"1000"`
	DBPath      string           `help:"Path to SQLite database" type:"path" default:"~/.empathai/coach.db" env:"EMPATHAI_DB_PATH"`

	Serve    ServeCmd    `cmd:"" help:"Start the coaching API server (default)" default:"1"`
	InitDB   InitDBCmd   `cmd:"init-db" help:"Create the database and run migrations"`
	Sessions SessionsCmd `cmd:"sessions" help:"Inspect stored coaching sessions"`
	Feedback FeedbackCmd `cmd:"feedback" help:"Work with 360° feedback files"`

	// Internal field for settings (not a flag)
	settings *config.Settings `kong:"-"`
}

// SetSettings sets the settings on the CLI struct
func (c *CLI) SetSettings(settings *config.Settings) {
	c.settings = settings
}

// AfterApply initializes logging after CLI parsing and applies settings
func (c *CLI) AfterApply() error {
	// Apply settings with proper precedence: CLI flags > env vars > settings.json > defaults.
	// Only apply if flag is at default value and env var is not set.

	if c.settings != nil {
		if c.DBPath == defaultDBPath() {
			if _, hasEnv := os.LookupEnv("EMPATHAI_DB_PATH"); !hasEnv {
				if c.settings.DBPath != "" {
					c.DBPath = c.settings.DBPath
				}
			}
		}

		if c.MaxLogFiles == 1000 {
			if _, hasEnv := os.LookupEnv("EMPATHAI_MAX_LOG_FILES"); !hasEnv {
				if c.settings.MaxLogFiles != nil {
					c.MaxLogFiles = *c.settings.MaxLogFiles
				}
			}
		}

		if !c.Debug {
			if _, hasEnv := os.LookupEnv("EMPATHAI_DEBUG"); !hasEnv {
				if c.settings.Debug != nil && *c.settings.Debug {
					c.Debug = true
				}
			}
		}
	}

	logFilePath, err := logging.Initialize(c.Debug, c.DebugFile, c.MaxLogFiles)
	if err != nil {
		return err
	}

	// Export debug settings AFTER initialization so child processes inherit
	// them and append to the same log file.
	if c.Debug || c.DebugFile != "" {
		os.Setenv("EMPATHAI_DEBUG", "1")
		if logFilePath != "" {
			os.Setenv("EMPATHAI_DEBUG_FILE", logFilePath)
		}
	}
	if c.MaxLogFiles != 1000 {
		os.Setenv("EMPATHAI_MAX_LOG_FILES", fmt.Sprintf("%d", c.MaxLogFiles))
	}

	return nil
}

// defaultDBPath is the kong default after type:"path" expansion
func defaultDBPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "~/.empathai/coach.db"
	}
	return homeDir + "/.empathai/coach.db"
}
