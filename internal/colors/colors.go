// Package colors provides terminal color support for vers output.
//
// Colors are applied only when stdout is a terminal that supports them;
// NO_COLOR disables and FORCE_COLOR enables them regardless.
package colors

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// ANSI color codes
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorDim   = "\033[2m"

	ColorGray = "\033[90m"

	BrightRed    = "\033[91m"
	BrightGreen  = "\033[92m"
	BrightYellow = "\033[93m"
	BrightCyan   = "\033[96m"
)

// colorEnabled determines if color output should be used
var colorEnabled = shouldUseColor()

// shouldUseColor determines if the terminal supports colors
func shouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}

	term := strings.ToLower(os.Getenv("TERM"))
	if runtime.GOOS == "windows" {
		// Windows Terminal, VS Code terminal, etc.
		return os.Getenv("WT_SESSION") != "" || os.Getenv("VSCODE_PID") != "" ||
			strings.Contains(term, "color") || strings.Contains(term, "xterm")
	}
	if term == "dumb" || term == "" {
		return false
	}

	if fileInfo, err := os.Stdout.Stat(); err == nil {
		return (fileInfo.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// SetColorEnabled allows manual control of color output
func SetColorEnabled(enabled bool) {
	colorEnabled = enabled
}

// IsColorEnabled returns whether colors are currently enabled
func IsColorEnabled() bool {
	return colorEnabled
}

// colorize applies color to text if colors are enabled
func colorize(text, color string) string {
	if !colorEnabled {
		return text
	}
	return color + text + ColorReset
}

func Red(text string) string    { return colorize(text, BrightRed) }
func Green(text string) string  { return colorize(text, BrightGreen) }
func Yellow(text string) string { return colorize(text, BrightYellow) }
func Cyan(text string) string   { return colorize(text, BrightCyan) }
func Gray(text string) string   { return colorize(text, ColorGray) }
func Bold(text string) string   { return colorize(text, ColorBold) }
func Dim(text string) string    { return colorize(text, ColorDim) }

// Version formats a version number column.
func Version(n int) string {
	return Bold(fmt.Sprintf("%d", n))
}

// Hash formats a hex digest, shortened to n characters when n > 0.
func Hash(hex string, n int) string {
	if n > 0 && len(hex) > n {
		hex = hex[:n]
	}
	return Yellow(hex)
}

// Filename formats a tracked file path.
func Filename(path string) string {
	return Cyan(path)
}

func ErrorText(text string) string   { return Red(text) }
func SuccessText(text string) string { return Green(text) }
func WarningText(text string) string { return Yellow(text) }
func InfoText(text string) string    { return Gray(text) }
