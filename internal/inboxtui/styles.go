package inboxtui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// BaseColors defines global UI colors.
type BaseColors struct {
	Foreground string
	Muted      string
	Accent     string
}

// MessageColors defines colors for message authors.
type MessageColors struct {
	Own   string
	Other string
}

// ChromeColors defines non-content UI colors.
type ChromeColors struct {
	Header       string
	Footer       string
	SelectedItem string
}

// BorderColors defines border colors for pane state.
type BorderColors struct {
	ActivePane   string
	InactivePane string
	Divider      string
}

// NoticeColors defines colors for the status line.
type NoticeColors struct {
	Warning string
	Error   string
	Unread  string
}

// Theme defines the inbox TUI style tokens.
type Theme struct {
	Name        string
	BorderStyle string // "rounded", "sharp", "double", "hidden"

	Base    BaseColors
	Message MessageColors
	Chrome  ChromeColors
	Borders BorderColors
	Notice  NoticeColors
}

// DefaultTheme is the baseline dark palette.
var DefaultTheme = Theme{
	Name:        "default",
	BorderStyle: "rounded",
	Base: BaseColors{
		Foreground: "252",
		Muted:      "245",
		Accent:     "75",
	},
	Message: MessageColors{
		Own:   "81",
		Other: "147",
	},
	Chrome: ChromeColors{
		Header:       "111",
		Footer:       "110",
		SelectedItem: "75",
	},
	Borders: BorderColors{
		ActivePane:   "75",
		InactivePane: "240",
		Divider:      "238",
	},
	Notice: NoticeColors{
		Warning: "220",
		Error:   "203",
		Unread:  "214",
	},
}

// HighContrastTheme favors legibility on low-quality terminals.
var HighContrastTheme = Theme{
	Name:        "high-contrast",
	BorderStyle: "sharp",
	Base: BaseColors{
		Foreground: "231",
		Muted:      "250",
		Accent:     "51",
	},
	Message: MessageColors{
		Own:   "87",
		Other: "225",
	},
	Chrome: ChromeColors{
		Header:       "117",
		Footer:       "159",
		SelectedItem: "51",
	},
	Borders: BorderColors{
		ActivePane:   "231",
		InactivePane: "250",
		Divider:      "248",
	},
	Notice: NoticeColors{
		Warning: "226",
		Error:   "196",
		Unread:  "226",
	},
}

// Themes lists available palettes by name.
var Themes = map[string]Theme{
	"default":       DefaultTheme,
	"high-contrast": HighContrastTheme,
}

// ThemeByName returns the named theme, or the default one.
func ThemeByName(name string) Theme {
	if theme, ok := Themes[strings.ToLower(strings.TrimSpace(name))]; ok {
		return theme
	}
	return DefaultTheme
}

type styles struct {
	header   lipgloss.Style
	footer   lipgloss.Style
	muted    lipgloss.Style
	accent   lipgloss.Style
	own      lipgloss.Style
	other    lipgloss.Style
	selected lipgloss.Style
	unread   lipgloss.Style
	warning  lipgloss.Style
	errText  lipgloss.Style
	divider  lipgloss.Style
}

func newStyles(t Theme) styles {
	fg := func(code string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(code))
	}
	return styles{
		header:   fg(t.Chrome.Header).Bold(true),
		footer:   fg(t.Chrome.Footer),
		muted:    fg(t.Base.Muted),
		accent:   fg(t.Base.Accent),
		own:      fg(t.Message.Own).Bold(true),
		other:    fg(t.Message.Other).Bold(true),
		selected: fg(t.Chrome.SelectedItem).Bold(true).Reverse(true),
		unread:   fg(t.Notice.Unread).Bold(true),
		warning:  fg(t.Notice.Warning),
		errText:  fg(t.Notice.Error).Bold(true),
		divider:  fg(t.Borders.Divider),
	}
}

// panelStyle returns a focused/unfocused border style for panes.
func panelStyle(t Theme, focused bool) lipgloss.Style {
	color := t.Borders.InactivePane
	if focused {
		color = t.Borders.ActivePane
	}
	return lipgloss.NewStyle().
		BorderStyle(panelBorder(t)).
		BorderForeground(lipgloss.Color(color))
}

func panelBorder(t Theme) lipgloss.Border {
	switch t.BorderStyle {
	case "double":
		return lipgloss.DoubleBorder()
	case "sharp":
		return lipgloss.NormalBorder()
	case "hidden":
		return lipgloss.HiddenBorder()
	default:
		return lipgloss.RoundedBorder()
	}
}

const (
	minListWidth = 22
	maxListWidth = 36
	// Below this the conversation list is hidden while a thread is open.
	narrowWidth = 70
)

// listWidth returns the conversation column width for a terminal width.
func listWidth(total int, threadOpen bool) int {
	if total <= 0 {
		return 0
	}
	if total < narrowWidth {
		if threadOpen {
			return 0
		}
		return total
	}
	return clampInt(total/3, minListWidth, maxListWidth)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
