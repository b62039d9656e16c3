package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/iconidentify/dlab/internal/domain"
)

var (
	forbiddenChars  = regexp.MustCompile(`[<>:"/\\|?*]`)
	nonASCII        = regexp.MustCompile(`[^\x00-\x7F]`)
	whitespaceRuns  = regexp.MustCompile(`\s+`)
	underscoreRuns  = regexp.MustCompile(`_{2,}`)
	maxFilenameLen  = 100
	defaultFilename = "download"
)

// SanitizeFilename makes a video title safe for use as a file name.
func SanitizeFilename(name string) string {
	s := forbiddenChars.ReplaceAllString(name, "")
	s = nonASCII.ReplaceAllString(s, "")
	s = whitespaceRuns.ReplaceAllString(s, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	s = strings.TrimSpace(s)
	if len(s) > maxFilenameLen {
		s = s[:maxFilenameLen]
	}
	if s == "" {
		return defaultFilename
	}
	return s
}

// BuildFilename derives the artifact file name from the video title and the
// selected plan. A fallback plan gets a "_with_audio" marker so the name
// reflects the substituted resolution.
func BuildFilename(title string, plan domain.Plan, format string) string {
	base := SanitizeFilename(title)
	if format == "mp3" {
		return base + ".mp3"
	}
	if plan.Fallback {
		return fmt.Sprintf("%s_%dp_with_audio.mp4", base, plan.Height)
	}
	return fmt.Sprintf("%s_%dp.mp4", base, plan.Height)
}

// FormatDuration renders a duration in seconds as M:SS, or H:MM:SS when an
// hour or longer.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "0:00"
	}

	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}
