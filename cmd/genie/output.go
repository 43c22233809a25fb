package main

import (
	"fmt"
	"os"
)

// ANSI escape codes for terminal output. All status output goes to stderr
// so piped stdout stays clean JSON/tables.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func statusLine(color, prefix, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, prefix+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) {
	statusLine(colorGreen, "✓ ", format, args...)
}

func printError(format string, args ...any) {
	statusLine(colorRed, "✗ ", format, args...)
}

func printWarning(format string, args ...any) {
	statusLine(colorYellow, "⚠ ", format, args...)
}

func printStep(format string, args ...any) {
	statusLine(colorCyan, "→ ", format, args...)
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}
