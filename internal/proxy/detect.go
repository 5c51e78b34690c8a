package proxy

import (
	"bytes"
	"strings"
)

const fragmentThreshold = 1 << 20

var audioMagic = [][]byte{
	{0x49, 0x44, 0x33}, // ID3 tagged MP3
	{0xff, 0xfb},       // MPEG-1 layer III frame sync
}

// IsBlocked reports whether a decoded body is the catalog's IP or rate block notice.
func IsBlocked(body any) bool {
	m, ok := body.(map[string]any)
	if !ok {
		return false
	}

	for _, key := range []string{"message", "msg", "error"} {
		if s, ok := m[key].(string); ok && strings.Contains(strings.ToLower(s), "block") {
			return true
		}
	}

	return false
}

// IsSuspectedFragment flags small payloads that start like an audio stream. Some catalogs
// answer with a short preview clip instead of the full track.
func IsSuspectedFragment(data []byte) bool {
	if len(data) == 0 || len(data) >= fragmentThreshold {
		return false
	}

	for _, magic := range audioMagic {
		if bytes.HasPrefix(data, magic) {
			return true
		}
	}

	return false
}
