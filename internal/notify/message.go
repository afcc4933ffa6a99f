package notify

import (
	"fmt"
	"strings"

	"github.com/dgnsrekt/outingsync/internal/sync"
)

// FormatNotice creates the title and body of a toast.
func FormatNotice(n sync.Notice) (title, body string) {
	switch n.Kind {
	case "activity":
		title = "Activity updated"
		if n.Author != "" {
			body = fmt.Sprintf("%s moved the activity to %s", n.Author, n.Detail)
		} else {
			body = fmt.Sprintf("The activity is now %s", n.Detail)
		}
		return title, body
	}

	noun := n.Kind
	if noun == "" {
		noun = "item"
	}

	var sb strings.Builder
	if n.Count <= 1 {
		sb.WriteString(fmt.Sprintf("New %s", noun))
	} else {
		sb.WriteString(fmt.Sprintf("%d new %ss", n.Count, noun))
	}
	if n.Author != "" {
		sb.WriteString(fmt.Sprintf(" from %s", n.Author))
	}

	return "New " + noun, sb.String()
}
