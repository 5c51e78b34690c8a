package plugin

import (
	"strconv"
	"strings"

	"github.com/NamanBalaji/tunedl/internal/music"
)

// Handlers return loosely shaped results. Each parser below tries the key names seen in
// the wild, in order, and gives up quietly when nothing matches.

var (
	listKeys  = []string{"list", "data", "songs", "result", "results"}
	urlKeys   = []string{"url", "playUrl", "play_url", "musicUrl", "src"}
	chartKeys = []string{"list", "data", "boards", "charts"}
)

// songList extracts the song descriptors from a search result.
func songList(v any, source string) []music.Song {
	items := listOf(v, listKeys)

	out := make([]music.Song, 0, len(items))
	for _, item := range items {
		s, ok := music.FromValue(item)
		if !ok || (s.ID == "" && s.Name == "") {
			continue
		}
		if s.Source == "" {
			s.Source = source
		}
		out = append(out, s)
	}

	return out
}

// listOf finds the first array in v: v itself, v[key], or v[key][key] one level down.
func listOf(v any, keys []string) []any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		for _, k := range keys {
			switch inner := t[k].(type) {
			case []any:
				return inner
			case map[string]any:
				if l := listOf(inner, keys); l != nil {
					return l
				}
			}
		}
	}

	return nil
}

// playableURL accepts a bare string, a map with one of urlKeys, or such a map under data.
func playableURL(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		for _, k := range urlKeys {
			if s, ok := t[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
		if data, ok := t["data"]; ok {
			return playableURL(data)
		}
	}

	return ""
}

// Lyric is a lyric document with optional translated and romanized tracks.
type Lyric struct {
	Lyric       string `json:"lyric"`
	Translation string `json:"tlyric,omitempty"`
	Romanized   string `json:"rlyric,omitempty"`
	Word        string `json:"lxlyric,omitempty"`
}

func lyricOf(v any) Lyric {
	switch t := v.(type) {
	case string:
		return Lyric{Lyric: t}
	case map[string]any:
		if data, ok := t["data"]; ok && str(t, "lyric", "lrc") == "" {
			return lyricOf(data)
		}
		return Lyric{
			Lyric:       str(t, "lyric", "lrc"),
			Translation: str(t, "tlyric", "translation", "tlrc"),
			Romanized:   str(t, "rlyric", "romalrc"),
			Word:        str(t, "lxlyric", "klyric"),
		}
	}

	return Lyric{}
}

// Chart is one leaderboard a plugin exposes.
type Chart struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Raw  map[string]any `json:"raw,omitempty"`
}

func chartList(v any) []Chart {
	items := listOf(v, chartKeys)

	out := make([]Chart, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		c := Chart{ID: str(m, "id", "bangid", "topId"), Name: str(m, "name", "title"), Raw: m}
		if c.ID == "" && c.Name == "" {
			continue
		}
		out = append(out, c)
	}

	return out
}

func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case int64:
			return strconv.FormatInt(v, 10)
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}

	return ""
}

// Playlist is one songlist a plugin exposes under a tag.
type Playlist struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Author string         `json:"author,omitempty"`
	Count  string         `json:"count,omitempty"`
	Raw    map[string]any `json:"raw,omitempty"`
}

func playlistList(v any) []Playlist {
	items := listOf(v, listKeys)

	out := make([]Playlist, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		p := Playlist{
			ID:     str(m, "id", "listid", "dissid"),
			Name:   str(m, "name", "title"),
			Author: str(m, "author", "creator", "nickname"),
			Count:  str(m, "total", "song_count", "trackCount"),
			Raw:    m,
		}
		if p.ID == "" && p.Name == "" {
			continue
		}
		out = append(out, p)
	}

	return out
}
