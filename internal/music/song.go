// Package music holds the song descriptor shared by plugins and the download scheduler.
//
// Plugins return descriptors in whatever shape the remote catalog uses, so parsing is
// tolerant: each canonical field is looked up under a list of known key names and the
// original map is kept verbatim in Raw so it can be handed back to the plugin unchanged.
package music

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Accepted key names per canonical field, tried in order.
var (
	idKeys     = []string{"id", "songmid", "songId", "songID", "musicId", "hash", "rid", "copyrightId", "mid"}
	nameKeys   = []string{"name", "songname", "songName", "title"}
	singerKeys = []string{"singer", "singername", "singerName", "artist", "artists", "singers"}
	albumKeys  = []string{"album", "albumName", "albumname"}
	sourceKeys = []string{"source", "platform"}
)

// Song is a catalog entry as returned by a plugin's search handler.
type Song struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Singer string         `json:"singer"`
	Album  string         `json:"album,omitempty"`
	Source string         `json:"source,omitempty"`
	Raw    map[string]any `json:"raw,omitempty"`
}

// FromMap builds a Song from a loosely shaped descriptor.
func FromMap(m map[string]any) Song {
	s := Song{
		ID:     firstString(m, idKeys),
		Name:   firstString(m, nameKeys),
		Singer: firstString(m, singerKeys),
		Album:  firstString(m, albumKeys),
		Source: firstString(m, sourceKeys),
		Raw:    m,
	}

	return s
}

// FromValue accepts anything a handler might hand back for a single song.
func FromValue(v any) (Song, bool) {
	switch t := v.(type) {
	case map[string]any:
		return FromMap(t), true
	case Song:
		return t, true
	case *Song:
		if t == nil {
			return Song{}, false
		}
		return *t, true
	default:
		return Song{}, false
	}
}

// Map returns the descriptor handed to plugins: the raw fields overlaid with the canonical ones.
func (s Song) Map() map[string]any {
	out := make(map[string]any, len(s.Raw)+5)
	for k, v := range s.Raw {
		out[k] = v
	}

	setIfEmpty(out, "id", s.ID)
	setIfEmpty(out, "name", s.Name)
	setIfEmpty(out, "singer", s.Singer)
	setIfEmpty(out, "album", s.Album)
	setIfEmpty(out, "source", s.Source)

	return out
}

// UnmarshalJSON accepts both the canonical form and a raw plugin descriptor.
func (s *Song) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}

	if raw, ok := m["raw"].(map[string]any); ok {
		parsed := FromMap(raw)
		overlay := FromMap(m)
		overlay.Raw = parsed.Raw
		*s = overlay

		return nil
	}

	*s = FromMap(m)

	return nil
}

func (s Song) String() string {
	if s.Singer == "" {
		return s.Name
	}

	return fmt.Sprintf("%s - %s", s.Singer, s.Name)
}

func setIfEmpty(m map[string]any, key, value string) {
	if value == "" {
		return
	}

	if cur, ok := m[key]; ok && stringify(cur) != "" {
		return
	}

	m[key] = value
}

func firstString(m map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}

		if s := stringify(v); s != "" {
			return s
		}
	}

	return ""
}

// stringify flattens scalars, {name: ...} objects and lists of either.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case json.Number:
		return t.String()
	case map[string]any:
		return firstString(t, []string{"name", "title"})
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "、")
	default:
		return fmt.Sprint(t)
	}
}
