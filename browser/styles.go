package browser

import "github.com/charmbracelet/lipgloss"

// CursorMarker is the prefix shown on the selected row
const CursorMarker = "▸ "

// ArchiveTag marks rows that cannot be launched directly
const ArchiveTag = "(archive)"

var (
	accentColor = lipgloss.AdaptiveColor{Light: "4", Dark: "12"}
	dimColor    = lipgloss.AdaptiveColor{Light: "240", Dark: "245"}
	errorColor  = lipgloss.AdaptiveColor{Light: "1", Dark: "9"}
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	captionStyle  = lipgloss.NewStyle().Foreground(dimColor)
	statusStyle   = lipgloss.NewStyle().Foreground(dimColor)
	errorStyle    = lipgloss.NewStyle().Foreground(errorColor)
	searchStyle   = lipgloss.NewStyle().Foreground(accentColor)

	// Entries packed in archives are listed but greyed out
	archivedStyle = lipgloss.NewStyle().Foreground(dimColor).Faint(true)
)

// rowStyle returns the style for a row's title
func rowStyle(selected, launchable bool) lipgloss.Style {
	switch {
	case !launchable && selected:
		return archivedStyle.Bold(true)
	case !launchable:
		return archivedStyle
	case selected:
		return selectedStyle
	default:
		return lipgloss.NewStyle()
	}
}
