package ui

import "github.com/charmbracelet/lipgloss"

// Terminal colors shared by messages and tables.
const (
	Accent  = lipgloss.Color("#7D56F4")
	Success = lipgloss.Color("#04B575")
	Failure = lipgloss.Color("#FF0000")
	Warning = lipgloss.Color("#FFA500")
	Muted   = lipgloss.Color("#626262")
)

// Styles renders CLI status lines.
var Styles = NewPalette(Accent, Success, Failure, Warning, Muted)

// Palette prefixes status lines with a symbol and colors them by severity.
type Palette struct {
	title, ok, err, warn, help lipgloss.Style
}

func NewPalette(accent, success, failure, warning, muted lipgloss.Color) *Palette {
	return &Palette{
		title: fg(accent).Bold(true).MarginBottom(1),
		ok:    fg(success).Bold(true),
		err:   fg(failure).Bold(true),
		warn:  fg(warning),
		help:  fg(muted).Italic(true),
	}
}

func (p *Palette) Title(s string) string { return p.title.Render(s) }
func (p *Palette) OK(s string) string    { return p.ok.Render("✓ " + s) }
func (p *Palette) Err(s string) string   { return p.err.Render("✗ " + s) }
func (p *Palette) Warn(s string) string  { return p.warn.Render("⚠ " + s) }
func (p *Palette) Help(s string) string  { return p.help.Render(s) }

func fg(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}
