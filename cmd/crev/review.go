package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"crev/internal/review"
)

var (
	reviewDiff    string
	reviewSession string
	reviewFocus   string
)

var reviewCmd = &cobra.Command{
	Use:   "review [project-dir]",
	Short: "Review a change against the project",
	Long: `Review a change against the project in the given directory
(default: the current directory).

The diff is read from --diff FILE, or from stdin when FILE is "-" or
when stdin is piped. Without a diff the model reviews whatever the
instructions point it at.

Examples:
  git diff | crev review
  crev review --diff change.patch --session payments
  crev review --focus "concurrency of the new cache" .`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().StringVarP(&reviewDiff, "diff", "d", "", `diff file to review ("-" for stdin)`)
	reviewCmd.Flags().StringVarP(&reviewSession, "session", "s", "default", "session name for iterative reviews")
	reviewCmd.Flags().StringVarP(&reviewFocus, "focus", "f", "", "extra instructions narrowing the review")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}
	diff, err := readDiff(reviewDiff)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	_, idx, err := buildIndex(ctx, cfg, root)
	if err != nil {
		return err
	}
	runner, _, cl, err := newRunner(ctx, cfg)
	if err != nil {
		return err
	}
	defer cl.Close()

	result, err := runner.Run(ctx, &review.Request{
		ProjectRoot:  root,
		SessionName:  reviewSession,
		Diff:         diff,
		Instructions: reviewFocus,
	}, idx)
	if err != nil {
		return err
	}

	fmt.Println(result.Review)

	fmt.Fprintf(os.Stderr, "\n--\nsession %s iteration %d | %s | %d tool calls, %d files | %s",
		reviewSession, result.Iteration, result.Model,
		result.Navigation.TotalCalls, result.Navigation.FilesExplored,
		result.Duration.Round(100*time.Millisecond),
	)
	if result.Termination == review.TerminatedBound {
		fmt.Fprintf(os.Stderr, " | bound hit: %s", result.BoundHit)
	}
	fmt.Fprintln(os.Stderr)
	return nil
}

// readDiff reads the change under review from a file, stdin, or a pipe.
func readDiff(path string) (string, error) {
	switch path {
	case "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading diff from stdin: %w", err)
		}
		return string(data), nil
	case "":
		// Piped stdin counts as a diff even without --diff.
		info, err := os.Stdin.Stat()
		if err == nil && info.Mode()&os.ModeCharDevice == 0 {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return "", fmt.Errorf("reading diff from stdin: %w", err)
			}
			return strings.TrimSpace(string(data)), nil
		}
		return "", nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading diff file: %w", err)
		}
		return string(data), nil
	}
}
