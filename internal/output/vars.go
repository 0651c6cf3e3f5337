package output

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("37"))
	success2Style = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	debugStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	streamStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
)

// StyleSymbols marks board lines and delivered files.
var StyleSymbols = map[string]string{
	"pass":    "✓",
	"fail":    "✗",
	"pending": "◉",
	"arrow":   "→",
	"video":   "▶",
	"file":    "▤",
}

func PrintSuccess(text string) { fmt.Println(successStyle.Render(text)) }
func PrintError(text string)   { fmt.Println(errorStyle.Render(text)) }
func PrintWarning(text string) { fmt.Println(warningStyle.Render(text)) }

// PrintHeader opens a run, before the live board takes over the terminal.
func PrintHeader(text string) { fmt.Println(headerStyle.Render(text)) }
