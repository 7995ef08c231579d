package output

import "github.com/charmbracelet/lipgloss"

// ColorRed colors text red
func ColorRed(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("1")).
		Render(text)
}

// ColorGreen colors text green
func ColorGreen(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("2")).
		Render(text)
}

// ColorYellow colors text yellow
func ColorYellow(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("3")).
		Render(text)
}

// ColorCyan colors text cyan
func ColorCyan(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("6")).
		Render(text)
}

// ColorDim renders text faint
func ColorDim(text string) string {
	return lipgloss.NewStyle().Faint(true).Render(text)
}

// ColorStatus colors a change status by how far along it is
func ColorStatus(status string) string {
	switch status {
	case "MERGED":
		return ColorGreen(status)
	case "STAGED", "INTEGRATING":
		return ColorCyan(status)
	case "ABANDONED":
		return ColorRed(status)
	case "DEFERRED":
		return ColorDim(status)
	default:
		return ColorYellow(status)
	}
}
