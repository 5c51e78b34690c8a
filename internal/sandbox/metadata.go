package sandbox

import (
	"regexp"
	"strings"
)

const metadataLines = 20

var metadataTag = regexp.MustCompile(`@(\w+)\s+(.+)`)

// Metadata describes a loaded script. The descriptive fields come from doc comment
// tags at the top of the script; Actions and Sources are what it registered.
type Metadata struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Author      string            `json:"author"`
	Description string            `json:"description"`
	Homepage    string            `json:"homepage"`
	Actions     []string          `json:"actions,omitempty"`
	Sources     []string          `json:"sources,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// ParseMetadata reads @tag lines from the first lines of script, filling defaults for
// anything missing.
func ParseMetadata(script string) Metadata {
	meta := Metadata{
		Name:    "Unknown Source",
		Version: "1.0.0",
		Author:  "Unknown",
	}

	lines := strings.SplitN(script, "\n", metadataLines+1)
	if len(lines) > metadataLines {
		lines = lines[:metadataLines]
	}

	for _, line := range lines {
		m := metadataTag.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		value := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(m[2]), "*/"))

		switch m[1] {
		case "name":
			meta.Name = value
		case "version":
			meta.Version = value
		case "author":
			meta.Author = value
		case "description":
			meta.Description = value
		case "homepage":
			meta.Homepage = value
		default:
			if meta.Extra == nil {
				meta.Extra = make(map[string]string)
			}
			meta.Extra[m[1]] = value
		}
	}

	return meta
}

func (m Metadata) info() map[string]any {
	return map[string]any{
		"name":        m.Name,
		"version":     m.Version,
		"author":      m.Author,
		"description": m.Description,
		"homepage":    m.Homepage,
	}
}
