package client

import (
	"fmt"
	"time"
)

// Placeholder is shown when a value is unknown.
const Placeholder = "—"

// FormatBytes renders n as B, KB or MB with one decimal.
func FormatBytes(n int64) string {
	if n < 0 {
		return Placeholder
	}
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	kb := float64(n) / 1024
	if kb < 1024 {
		return fmt.Sprintf("%.1f KB", kb)
	}
	return fmt.Sprintf("%.1f MB", kb/1024)
}

// CreatedLabel describes the era a file was last modified in.
func CreatedLabel(modified time.Time) string {
	if modified.IsZero() {
		return Placeholder
	}
	year := modified.Year()
	switch {
	case year <= 1999:
		return "Created in the late 1990s"
	case year <= 2009:
		return "Created in the 2000s"
	case year <= 2019:
		return "Created in the 2010s"
	default:
		return fmt.Sprintf("Created in %d", year)
	}
}
