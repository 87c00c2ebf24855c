package config

import "time"

// Engine defaults.
const (
	DefaultEpsilon = 1e-8
	DefaultSeriesA = "XPU"
	DefaultSeriesB = "GPU"
)

// Server defaults.
const (
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 8080
	DefaultReadTimeout   = 30 * time.Second
	DefaultWriteTimeout  = 60 * time.Second
	DefaultIdleTimeout   = 120 * time.Second
	DefaultMaxUploadSize = "32MB"
)

// Plot defaults.
const (
	DefaultTheme  = ThemeDark
	DefaultHeight = "500px"
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = LogFormatText
)

// DefaultSampleRatio samples every trace.
const DefaultSampleRatio = 1.0

// Accepted values for plot.theme.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Accepted values for logging.format.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)
