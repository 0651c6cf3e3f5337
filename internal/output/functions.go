package output

import (
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// statusKind classifies a status line by the marker the pipeline puts in
// front of terminal outcomes.
func statusKind(text string) string {
	switch {
	case strings.HasPrefix(text, "✅"):
		return "success"
	case strings.HasPrefix(text, "❌"), strings.HasPrefix(text, "🛑"):
		return "error"
	default:
		return "pending"
	}
}

func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

func getTerminalHeight() int {
	_, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || height <= 0 {
		return 24
	}
	return height
}

// truncate cuts text to fit the terminal after indent columns.
func truncate(text string, indent int) string {
	maxWidth := getTerminalWidth() - indent - 2
	if maxWidth <= 10 {
		maxWidth = 80
	}
	if utf8.RuneCountInString(text) <= maxWidth {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxWidth-1]) + "…"
}

// splitStatus turns a multi-line status message into a headline and the
// detail lines shown below it.
func splitStatus(text string) (string, []string) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	var detail []string
	for _, l := range lines[1:] {
		if l = strings.TrimSpace(l); l != "" {
			detail = append(detail, l)
		}
	}
	return lines[0], detail
}
