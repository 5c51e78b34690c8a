package task

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/NamanBalaji/tunedl/internal/music"
)

const maxFilenameLength = 200

var (
	illegalChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Sanitize strips characters illegal on common file systems, collapses whitespace and caps the length.
func Sanitize(name string) string {
	name = illegalChars.ReplaceAllString(name, "")
	name = whitespace.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)

	return truncate(name, maxFilenameLength)
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}

	return strings.TrimSpace(s[:cut])
}

// FilenameFor builds the deterministic destination name for a song.
func FilenameFor(song music.Song, quality string) string {
	ext := music.Extension(quality)
	base := fmt.Sprintf("%s - %s", song.Singer, song.Name)
	if song.Singer == "" {
		base = song.Name
	}

	if strings.TrimSpace(base) == "" {
		base = song.ID
	}

	name := Sanitize(base)
	if len(name)+len(ext)+1 > maxFilenameLength {
		name = truncate(name, maxFilenameLength-len(ext)-1)
	}

	return name + "." + ext
}

// PathFor joins dir and filename.
func PathFor(dir, filename string) string {
	return filepath.Join(dir, filename)
}
