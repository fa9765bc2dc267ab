package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Terminal palette. Numbers are ANSI 256 colors.
var (
	colorCyan   = lipgloss.Color("36")
	colorGreen  = lipgloss.Color("35")
	colorYellow = lipgloss.Color("220")
	colorRed    = lipgloss.Color("167")
	colorBlue   = lipgloss.Color("75")
	colorWhite  = lipgloss.Color("255")
	colorGray   = lipgloss.Color("245")
	colorDim    = lipgloss.Color("240")
)

var (
	StyleTitle     = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	StyleHighlight = lipgloss.NewStyle().Foreground(colorCyan)
	StyleNumber    = lipgloss.NewStyle().Foreground(colorCyan)
	StyleLink      = lipgloss.NewStyle().Foreground(colorBlue).Underline(true)
	StyleDim       = lipgloss.NewStyle().Foreground(colorDim)

	styleValue       = lipgloss.NewStyle().Foreground(colorWhite)
	styleKey         = lipgloss.NewStyle().Foreground(colorGray).Width(12)
	styleCommand     = lipgloss.NewStyle().Foreground(colorBlue)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)
)

// A status line starts with a colored marker followed by the message.
type marker struct {
	icon  string
	style lipgloss.Style
	// tint also colors the message itself.
	tint bool
}

var (
	markSuccess = marker{"✓", lipgloss.NewStyle().Foreground(colorGreen), false}
	markError   = marker{"✗", lipgloss.NewStyle().Foreground(colorRed), false}
	markWarning = marker{"!", lipgloss.NewStyle().Foreground(colorYellow), true}
	markInfo    = marker{"›", lipgloss.NewStyle().Foreground(colorGray), false}
)

func (m marker) print(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if m.tint {
		msg = m.style.Render(msg)
	}
	fmt.Println(m.style.Render(m.icon) + " " + msg)
}

func printSuccess(format string, args ...any) { markSuccess.print(format, args...) }
func printError(format string, args ...any)   { markError.print(format, args...) }
func printWarning(format string, args ...any) { markWarning.print(format, args...) }
func printInfo(format string, args ...any)    { markInfo.print(format, args...) }

// printDetail prints an indented, dimmed line under a status line.
func printDetail(format string, args ...any) {
	fmt.Println("  " + StyleDim.Render(fmt.Sprintf(format, args...)))
}

func printFile(path string) {
	fmt.Println("  " + StyleDim.Render("→") + " " + styleValue.Render(path))
}

func printKeyValue(key, value string) {
	fmt.Println(styleKey.Render(key) + " " + styleValue.Render(value))
}

// printExportStats prints "  W x H px · size · cached|fresh" for an export.
func printExportStats(width, height, size int, cached bool) {
	status := lipgloss.NewStyle().Foreground(colorGray).Render("fresh")
	if cached {
		status = lipgloss.NewStyle().Foreground(colorGreen).Render("cached")
	}
	sep := StyleDim.Render(" · ")
	fmt.Println("  " + strings.Join([]string{
		StyleDim.Render(fmt.Sprintf("%dx%d px", width, height)),
		StyleDim.Render(formatBytes(int64(size))),
		status,
	}, sep))
}

// formatBytes renders a byte count with a binary unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func printNextStep(description, cmd string) {
	fmt.Println(StyleDim.Render(description+":") + " " + styleCommand.Render(cmd))
}

func printNewline() { fmt.Println() }
