package review

import (
	"fmt"
	"strings"
	"time"

	"crev/internal/index"
	"crev/internal/session"
)

// maxCarriedReview caps how much of the previous review is repeated in a
// follow-up seed.
const maxCarriedReview = 4000

// maxSeedTree caps the rendered file tree in the seed; larger trees are cut
// and the model can call get_file_tree for the full listing.
const maxSeedTree = 8000

// seedMessage builds the opening user message of a review turn: codebase
// orientation, the change under review, and continuation context when the
// session has run before.
func seedMessage(req *Request, idx *index.Index, sess *session.Session) string {
	var b strings.Builder

	b.WriteString("# Codebase\n")
	b.WriteString(idx.Summary())
	b.WriteString("\n")

	tree := idx.RenderTree()
	if len(tree) > maxSeedTree {
		tree = tree[:maxSeedTree] + "\n... [tree truncated]"
	}
	b.WriteString("# File tree\n")
	b.WriteString(strings.TrimRight(tree, "\n"))
	b.WriteString("\n\n")

	if sess.Iteration > 0 {
		fmt.Fprintf(&b, "# Continuation\nThis is review iteration %d of session %q.", sess.Iteration+1, sess.Name)
		if !sess.LastActive.IsZero() {
			fmt.Fprintf(&b, " The previous review finished %s.", timeAgo(sess.LastActive))
		}
		b.WriteString("\n")
		if sess.LastReview != "" {
			carried := sess.LastReview
			if len(carried) > maxCarriedReview {
				carried = carried[:maxCarriedReview] + "\n... [earlier review truncated]"
			}
			b.WriteString("Previous review:\n")
			b.WriteString(carried)
			b.WriteString("\n")
		}
		b.WriteString("Focus on what changed since then; do not repeat findings that still stand unchanged.\n\n")
	}

	if req.Diff != "" {
		b.WriteString("# Change under review\n```diff\n")
		b.WriteString(strings.TrimRight(req.Diff, "\n"))
		b.WriteString("\n```\n\n")
	}

	if req.Instructions != "" {
		b.WriteString("# Reviewer instructions\n")
		b.WriteString(req.Instructions)
		b.WriteString("\n\n")
	}

	b.WriteString("Explore the codebase as needed, then write the review.")
	return b.String()
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "moments ago"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	}
}
