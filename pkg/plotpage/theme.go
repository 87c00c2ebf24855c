package plotpage

// Theme is a page and chart color theme.
type Theme string

const (
	// ThemeLight is the light color theme.
	ThemeLight Theme = "light"
	// ThemeDark is the dark color theme.
	ThemeDark Theme = "dark"
)

// ParseTheme maps a configuration value to a Theme, falling back to dark.
func ParseTheme(name string) Theme {
	if Theme(name) == ThemeLight {
		return ThemeLight
	}

	return ThemeDark
}

// ThemeConfig holds the styling values the templates and charts use.
type ThemeConfig struct {
	Background    string
	Surface       string
	Border        string
	TextPrimary   string
	TextSecondary string
	TextMuted     string
	Accent        string

	// DropIdle and DropActive color the drop zone prompt.
	DropIdle   string
	DropActive string

	ChartBackground string
	ChartGrid       string
	ChartAxis       string
	ChartText       string
	ChartTextMuted  string

	// EChartsTheme is the echarts built-in theme name, empty for the default.
	EChartsTheme string
}

// SeriesPalette holds the line colors for the two charts.
type SeriesPalette struct {
	SeriesA  string
	SeriesB  string
	Absolute string
	Relative string
}

// GetThemeConfig returns the configuration for a given theme.
func GetThemeConfig(theme Theme) ThemeConfig {
	if theme == ThemeLight {
		return lightTheme
	}

	return darkTheme
}

// GetSeriesPalette returns the line colors for a given theme.
func GetSeriesPalette(theme Theme) SeriesPalette {
	if theme == ThemeLight {
		return lightPalette
	}

	return darkPalette
}

var lightTheme = ThemeConfig{
	Background:    "#fafaf9", // stone-50.
	Surface:       "#ffffff",
	Border:        "#e7e5e4", // stone-200.
	TextPrimary:   "#1c1917", // stone-900.
	TextSecondary: "#44403c", // stone-700.
	TextMuted:     "#78716c", // stone-500.
	Accent:        "#a16207", // amber-700.

	DropIdle:   "#e66956",
	DropActive: "#21a675",

	ChartBackground: "transparent",
	ChartGrid:       "#e7e5e4",
	ChartAxis:       "#a8a29e",
	ChartText:       "#44403c",
	ChartTextMuted:  "#78716c",
}

var darkTheme = ThemeConfig{
	Background:    "#0c0a09", // stone-950.
	Surface:       "#1c1917", // stone-900.
	Border:        "#44403c", // stone-700.
	TextPrimary:   "#fafaf9",
	TextSecondary: "#d6d3d1",
	TextMuted:     "#a8a29e",
	Accent:        "#d97706", // amber-600.

	DropIdle:   "#e66956",
	DropActive: "#21a675",

	ChartBackground: "transparent",
	ChartGrid:       "#44403c",
	ChartAxis:       "#57534e",
	ChartText:       "#d6d3d1",
	ChartTextMuted:  "#a8a29e",
}

var lightPalette = SeriesPalette{
	SeriesA:  "#a16207", // amber-700.
	SeriesB:  "#0369a1", // sky-700.
	Absolute: "#7c3aed", // violet-600.
	Relative: "#15803d", // green-700.
}

var darkPalette = SeriesPalette{
	SeriesA:  "#fbbf24", // amber-400.
	SeriesB:  "#38bdf8", // sky-400.
	Absolute: "#a78bfa", // violet-400.
	Relative: "#4ade80", // green-400.
}
