package cmd

import (
	"fmt"

	"github.com/openefficiency/empathaicoach/storage"
)

// InitDBCmd creates the database and runs migrations
type InitDBCmd struct{}

// Run initializes the database
func (i *InitDBCmd) Run(cli *CLI) error {
	store, err := storage.NewStore(cli.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	fmt.Printf("Database initialized at %s\n", cli.DBPath)
	return nil
}
