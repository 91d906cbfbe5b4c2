package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme of terminal output.
type Theme struct {
	Primary lipgloss.Color // Main accent color
	Dim     lipgloss.Color // Dimmed/help text color
	Warn    lipgloss.Color
}

// DefaultTheme is the savanna theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#f4a261"),
	Dim:     lipgloss.Color("#6e7681"),
	Warn:    lipgloss.Color("#e76f51"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
	Warn   lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Primary).Padding(0, 1),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
		Warn:   lipgloss.NewStyle().Bold(true).Foreground(t.Warn),
	}
}

// Section is a labeled block of a card. Sections without lines are not
// rendered.
type Section struct {
	Label string
	Lines []string
}

// Card renders an answer as a bordered block: a title line with a dim
// status, then one block per section.
type Card struct {
	Styles   Styles
	Title    string
	Status   string
	Sections []Section
}

// Render renders the card at most width columns wide, wrapping long lines.
func (c Card) Render(width int) string {
	inner := max(width-4, 10) // border and padding

	var blocks []string
	title := c.Styles.Title.Render(c.Title)
	if c.Status != "" {
		title += " " + c.Styles.Help.Render("["+c.Status+"]")
	}
	blocks = append(blocks, title)

	wrap := lipgloss.NewStyle().Width(inner)
	for _, sec := range c.Sections {
		if len(sec.Lines) == 0 {
			continue
		}
		body := wrap.Render(strings.Join(sec.Lines, "\n"))
		if sec.Label == "" {
			blocks = append(blocks, body)
			continue
		}
		blocks = append(blocks, c.Styles.Label.Render(sec.Label)+"\n"+body)
	}
	return c.Styles.Border.Render(strings.Join(blocks, "\n\n"))
}
