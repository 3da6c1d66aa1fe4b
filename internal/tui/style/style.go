// Package style defines lipgloss styles for the monitor.
package style

import "github.com/charmbracelet/lipgloss"

// Styles are package-level values; lipgloss styles are immutable and safe
// for concurrent use.
var (
	// Title is used for the device name header.
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	// Subtitle is used for secondary text such as UIDs and formats.
	Subtitle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	// Running marks a running stream.
	Running = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("42"))

	// Stopped marks a stopped stream.
	Stopped = lipgloss.NewStyle().
		Foreground(lipgloss.Color("245"))

	Error = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	// Warning highlights non-zero overrun and underrun counters.
	Warning = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	Help = lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	Key = lipgloss.NewStyle().
		Foreground(lipgloss.Color("205")).
		Bold(true)

	// Progress is used for the waveform bars.
	Progress = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63"))

	// Label is used for inline labels (e.g., "Ring:", "Output:").
	Label = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("255"))

	Muted = lipgloss.NewStyle().
		Foreground(lipgloss.Color("245"))
)
