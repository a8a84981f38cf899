package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/openefficiency/empathaicoach/cmd"
	"github.com/openefficiency/empathaicoach/config"
	"github.com/openefficiency/empathaicoach/version"
)

func main() {
	// Load settings from ~/.empathai/settings.json
	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load settings: %v\n", err)
		settings = &config.Settings{}
	}

	// Parse CLI arguments with Kong
	var cli cmd.CLI
	cli.SetSettings(settings) // Set settings before parsing
	ctx := kong.Parse(&cli,
		kong.Name("empathai"),
		kong.Description(version.Tagline),
		kong.Vars{
			"version": version.Info(),
		},
		kong.UsageOnError(),
		kong.Bind(&cli),
	)

	// Execute the selected command
	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
