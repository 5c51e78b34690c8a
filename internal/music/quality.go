package music

import "strings"

// DefaultQuality is requested when the caller does not pick one.
const DefaultQuality = "128k"

// Extension returns the container extension implied by a quality label.
func Extension(quality string) string {
	q := strings.ToLower(quality)
	if strings.HasPrefix(q, "flac") || q == "hires" || q == "master" {
		return "flac"
	}

	return "mp3"
}
