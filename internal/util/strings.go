// Package util provides small helpers shared by the storage and CLI layers.
package util

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// TruncateANSI truncates s to maxWidth visual columns, adding "..." if
// truncated. Escape sequences and wide characters are measured correctly,
// so styled table cells keep their colors.
func TruncateANSI(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, "...")
}

// ShortenPath fits a file path into maxWidth columns by dropping leading
// directories, so the file name stays readable: "/a/b/auth/standard.json"
// becomes ".../auth/standard.json". A base name wider than maxWidth is
// truncated from the right.
func ShortenPath(path string, maxWidth int) string {
	if lipgloss.Width(path) <= maxWidth {
		return path
	}

	sep := string(filepath.Separator)
	parts := strings.Split(filepath.Clean(path), sep)
	kept := parts[len(parts)-1]
	if lipgloss.Width("..."+sep+kept) > maxWidth {
		return TruncateANSI(kept, maxWidth)
	}
	for i := len(parts) - 2; i >= 0; i-- {
		next := parts[i] + sep + kept
		if lipgloss.Width("..."+sep+next) > maxWidth {
			break
		}
		kept = next
	}
	return "..." + sep + kept
}

// FormatAge renders d with the two most significant units, e.g. "45s",
// "3m12s", "2h5m", "3d4h".
func FormatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		days := int(d.Hours()) / 24
		return fmt.Sprintf("%dd%dh", days, int(d.Hours())%24)
	}
}
