package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for terminal output.
type Theme struct {
	Primary lipgloss.Color
	Warn    lipgloss.Color
	Dim     lipgloss.Color
}

// DefaultTheme is the default green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Warn:    lipgloss.Color("#ffb86c"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Border lipgloss.Style
	Warn   lipgloss.Style
	Help   lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Warn:   lipgloss.NewStyle().Bold(true).Foreground(t.Warn),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// Section is a labeled block of lines. A Height of zero shares the
// remaining rows with the other flexible sections.
type Section struct {
	Label  string
	Lines  []string
	Height int
}

// Frame is a bordered full-screen layout with a title, stacked sections and
// a help line.
type Frame struct {
	Styles   Styles
	Title    string
	Status   string
	Sections []Section
	Help     string
}

// Render renders the frame to a width x height string.
func (f Frame) Render(width, height int) string {
	if width < 8 || height < 6 {
		return "Loading..."
	}
	bc := f.Styles.Border
	inner := width - 4

	lines := []string{bc.Render("╭" + strings.Repeat("─", width-2) + "╮")}
	title := f.Styles.Title.Render(f.Title)
	status := f.Styles.Help.Render("[" + f.Status + "]")
	pad := max(0, width-5-lipgloss.Width(title)-lipgloss.Width(status))
	lines = append(lines, bc.Render("│")+" "+title+" "+status+strings.Repeat(" ", pad)+" "+bc.Render("│"))

	for i, h := range f.heights(height) {
		lines = append(lines, f.renderSection(f.Sections[i], h, width, inner)...)
	}
	lines = append(lines, bc.Render("╰"+strings.Repeat("─", width-2)+"╯"))
	lines = append(lines, f.Styles.Help.Render(f.Help))
	return strings.Join(lines, "\n")
}

// heights assigns content rows to sections. Fixed sections get what they
// ask for and flexible ones split the rest, at least one row each.
func (f Frame) heights(total int) []int {
	// top border, title, bottom border, help, one label per section
	avail := total - 4 - len(f.Sections)
	out := make([]int, len(f.Sections))
	flex := 0
	for i, s := range f.Sections {
		if s.Height > 0 {
			out[i] = s.Height
			avail -= s.Height
		} else {
			flex++
		}
	}
	if flex == 0 {
		return out
	}
	share := max(avail/flex, 1)
	for i, s := range f.Sections {
		if s.Height == 0 {
			out[i] = share
		}
	}
	return out
}

func (f Frame) renderSection(sec Section, height, width, inner int) []string {
	bc := f.Styles.Border
	label := f.Styles.Label.Render(sec.Label)
	pad := max(0, width-3-lipgloss.Width(label))
	lines := []string{bc.Render("├─") + label + bc.Render(strings.Repeat("─", pad)+"┤")}

	start := max(0, len(sec.Lines)-height)
	for i := range height {
		text := ""
		if idx := start + i; idx < len(sec.Lines) {
			text = sec.Lines[idx]
		}
		if inner > 1 && lipgloss.Width(text) > inner {
			text = truncate(text, inner-1) + "…"
		}
		lines = append(lines, bc.Render("│")+" "+text+
			strings.Repeat(" ", max(0, inner-lipgloss.Width(text)))+" "+bc.Render("│"))
	}
	return lines
}

// truncate cuts s to at most width display cells.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	w := 0
	for i, r := range s {
		rw := lipgloss.Width(string(r))
		if w+rw > width {
			return s[:i]
		}
		w += rw
	}
	return s
}
