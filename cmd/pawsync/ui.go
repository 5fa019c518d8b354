package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/pawsitive/pawsync/internal/schema"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// dogColors maps the session palette to terminal colors.
var dogColors = map[schema.DogColor]lipgloss.Color{
	schema.ColorBlue:   lipgloss.Color("33"),
	schema.ColorPink:   lipgloss.Color("205"),
	schema.ColorPurple: lipgloss.Color("135"),
	schema.ColorOrange: lipgloss.Color("208"),
	schema.ColorTeal:   lipgloss.Color("37"),
	schema.ColorIndigo: lipgloss.Color("62"),
}

func init() {
	if !isTTY(os.Stdout) || termenv.EnvNoColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

func isTTY(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }

// RenderDog draws a dog name in its session color.
func RenderDog(d schema.Dog) string {
	c, ok := dogColors[d.Color]
	if !ok {
		return lipgloss.NewStyle().Bold(true).Render(d.Name)
	}
	return lipgloss.NewStyle().Foreground(c).Bold(true).Render(d.Name)
}
