package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/openefficiency/empathaicoach/storage"
)

// SessionsCmd groups session inspection subcommands
type SessionsCmd struct {
	List SessionsListCmd `cmd:"list" help:"List sessions for a user"`
	Show SessionsShowCmd `cmd:"show" help:"Show one session in full"`
}

// SessionsListCmd lists a user's sessions
type SessionsListCmd struct {
	UserID string `arg:"" help:"User ID to list sessions for"`
	Limit  int    `help:"Maximum sessions to show (0 = all)" default:"20"`
}

// Run lists sessions newest-first
func (l *SessionsListCmd) Run(cli *CLI) error {
	store, err := storage.NewStore(cli.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	sessions, err := store.ListSessionsByUser(context.Background(), l.UserID, l.Limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Printf("No sessions found for user %s\n", l.UserID)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION ID\tSTATUS\tPHASE\tSTARTED\tDEFENSIVE")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			s.SessionID,
			s.Status,
			s.CurrentPhase,
			s.StartTime.Format("2006-01-02 15:04:05"),
			s.DefensiveReactionCount,
		)
	}
	return w.Flush()
}

// SessionsShowCmd prints one full session as JSON
type SessionsShowCmd struct {
	SessionID string `arg:"" help:"Session ID to show"`
}

// Run prints the session aggregate
func (s *SessionsShowCmd) Run(cli *CLI) error {
	store, err := storage.NewStore(cli.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	state, err := store.LoadSession(context.Background(), s.SessionID)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
