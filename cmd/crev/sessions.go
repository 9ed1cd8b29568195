package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"crev/internal/session"
)

var (
	pruneMaxAge time.Duration
	listFilter  string
	listSortBy  string
	listLimit   int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage review sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list [project-dir]",
	Short: "List sessions for a project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, root, err := sessionStore(args)
		if err != nil {
			return err
		}
		infos, err := store.List(root, session.ListOptions{
			Name:   listFilter,
			SortBy: listSortBy,
			Limit:  listLimit,
		})
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("no sessions")
			return nil
		}
		for _, info := range infos {
			fmt.Printf("%-20s  iteration %-3d  last active %s\n",
				info.Name, info.Iteration, info.LastActive.Format(time.RFC3339))
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <name> [project-dir]",
	Short: "Show a session",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, root, err := sessionStore(args[1:])
		if err != nil {
			return err
		}
		sess, err := store.Load(root, args[0])
		if err != nil {
			return err
		}
		info := sess.Info()
		fmt.Printf("Session:     %s (%s)\n", info.Name, info.ID)
		fmt.Printf("Project:     %s\n", info.ProjectRoot)
		fmt.Printf("Iterations:  %d\n", info.Iteration)
		fmt.Printf("Messages:    %d\n", info.MessageCount)
		fmt.Printf("Created:     %s\n", info.CreatedAt.Format(time.RFC3339))
		fmt.Printf("Last active: %s\n", info.LastActive.Format(time.RFC3339))
		fmt.Printf("Tokens:      %d in / %d out\n", sess.InputTokens, sess.OutputTokens)
		if sess.LastReview != "" {
			fmt.Printf("\n%s\n", sess.LastReview)
		}
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <name> [project-dir]",
	Short: "Delete a session",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, root, err := sessionStore(args[1:])
		if err != nil {
			return err
		}
		if err := store.Delete(root, args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted session %q\n", args[0])
		return nil
	},
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove sessions older than --max-age",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := sessionStore(nil)
		if err != nil {
			return err
		}
		removed, err := store.Prune(pruneMaxAge)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d session(s)\n", removed)
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().StringVar(&listFilter, "name", "", "only sessions whose name contains this substring")
	sessionsListCmd.Flags().StringVar(&listSortBy, "sort-by", "last_active", "sort order: last_active, name or created")
	sessionsListCmd.Flags().IntVar(&listLimit, "limit", 0, "show at most this many sessions (0 for all)")
	sessionsPruneCmd.Flags().DurationVar(&pruneMaxAge, "max-age", 30*24*time.Hour, "age beyond which sessions are removed")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsPruneCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func sessionStore(args []string) (*session.Store, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	root, err := resolveRoot(args)
	if err != nil {
		return nil, "", err
	}
	return session.NewStore(cfg.SessionDir()), root, nil
}
