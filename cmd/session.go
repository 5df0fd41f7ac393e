package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/brokkworkbench/core/pkg/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage session archives under .brokk/sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List session archives, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := session.New(projectDir(cmd))
		if err != nil {
			return err
		}
		defer mgr.Close()

		sessions, err := mgr.ListSessions()
		if err != nil {
			return err
		}
		sort.Slice(sessions, func(i, j int) bool { return sessions[i].ModifiedMs > sessions[j].ModifiedMs })
		for _, s := range sessions {
			fmt.Printf("%s  %-30s  modified %s  ai_responses=%d\n",
				s.ID, s.Name, time.UnixMilli(s.ModifiedMs).Format(time.RFC3339), s.AIResponseCount)
		}
		return nil
	},
}

var sessionNewCmd = &cobra.Command{
	Use:   "new [name]",
	Short: "Create a new empty session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := session.New(projectDir(cmd))
		if err != nil {
			return err
		}
		defer mgr.Close()

		name := "Untitled session"
		if len(args) == 1 {
			name = args[0]
		}
		info, err := mgr.NewSession(name)
		if err != nil {
			return err
		}
		fmt.Println(info.ID)
		return nil
	},
}

var sessionRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", args[0], err)
		}
		mgr, err := session.New(projectDir(cmd))
		if err != nil {
			return err
		}
		defer mgr.Close()
		return mgr.RenameSession(id, args[1])
	},
}

var sessionCopyCmd = &cobra.Command{
	Use:   "copy <id> <new-name>",
	Short: "Copy a session under a new name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", args[0], err)
		}
		mgr, err := session.New(projectDir(cmd))
		if err != nil {
			return err
		}
		defer mgr.Close()
		info, err := mgr.CopySession(id, args[1])
		if err != nil {
			return err
		}
		fmt.Println(info.ID)
		return nil
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session and leave a tombstone for remote sync",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", args[0], err)
		}
		mgr, err := session.New(projectDir(cmd))
		if err != nil {
			return err
		}
		defer mgr.Close()
		return mgr.DeleteSession(id)
	},
}

func init() {
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionNewCmd)
	sessionCmd.AddCommand(sessionRenameCmd)
	sessionCmd.AddCommand(sessionCopyCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	rootCmd.AddCommand(sessionCmd)
}
