package util

import (
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func TestTruncateANSI(t *testing.T) {
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	tests := []struct {
		name     string
		input    string
		maxWidth int
		exact    string
	}{
		{name: "fits", input: "held", maxWidth: 10, exact: "held"},
		{name: "plain truncated", input: "lock unavailable", maxWidth: 8, exact: "lock ..."},
		{name: "tiny width", input: "stale", maxWidth: 2, exact: "..."},
		{name: "styled fits", input: red.Render("stale"), maxWidth: 10, exact: red.Render("stale")},
		{name: "styled truncated", input: red.Render("held by pid 4242 on ci-runner-7"), maxWidth: 12},
		{name: "wide characters", input: "日本語テスト", maxWidth: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateANSI(tt.input, tt.maxWidth)
			if w := lipgloss.Width(got); w > max(tt.maxWidth, 3) {
				t.Errorf("width %d exceeds %d: %q", w, tt.maxWidth, got)
			}
			if tt.exact != "" && got != tt.exact {
				t.Errorf("TruncateANSI() = %q, want %q", got, tt.exact)
			}
		})
	}
}

func TestShortenPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		maxWidth int
		expected string
	}{
		{"fits", "auth/standard.json", 40, "auth/standard.json"},
		{"drops leading dirs", "/home/ci/project/auth/standard.json", 24, ".../auth/standard.json"},
		{"base name only", "/home/ci/project/auth/standard.json", 18, ".../standard.json"},
		{"base name too long", "/var/auth/performance_glitch.json", 12, "performan..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShortenPath(tt.path, tt.maxWidth); got != tt.expected {
				t.Errorf("ShortenPath(%q, %d) = %q, want %q", tt.path, tt.maxWidth, got, tt.expected)
			}
		})
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{-time.Second, "0ms"},
		{250 * time.Millisecond, "250ms"},
		{45 * time.Second, "45s"},
		{3*time.Minute + 12*time.Second, "3m12s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
		{76 * time.Hour, "3d4h"},
	}

	for _, tt := range tests {
		if got := FormatAge(tt.d); got != tt.expected {
			t.Errorf("FormatAge(%v) = %q, want %q", tt.d, got, tt.expected)
		}
	}
}
