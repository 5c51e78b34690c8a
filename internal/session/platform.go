package session

import (
	"net/url"
	"strings"
)

// Platform tags for the catalogs with known request conventions.
const (
	PlatformTX      = "tx"
	PlatformWY      = "wy"
	PlatformKW      = "kw"
	PlatformKG      = "kg"
	PlatformMG      = "mg"
	PlatformDefault = "default"
)

var hostPlatforms = []struct {
	fragment string
	tag      string
}{
	{"qq.com", PlatformTX},
	{"163.com", PlatformWY},
	{"126.net", PlatformWY},
	{"kuwo.cn", PlatformKW},
	{"kugou.com", PlatformKG},
	{"migu.cn", PlatformMG},
}

var referers = map[string]string{
	PlatformTX:      "https://y.qq.com/",
	PlatformWY:      "https://music.163.com/",
	PlatformKW:      "https://www.kuwo.cn/",
	PlatformKG:      "https://www.kugou.com/",
	PlatformMG:      "https://music.migu.cn/",
	PlatformDefault: "https://music.example.com/",
}

// PlatformFor derives a platform tag from the host of rawURL.
func PlatformFor(rawURL string) string {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Hostname()
	}

	host = strings.ToLower(host)
	for _, hp := range hostPlatforms {
		if strings.Contains(host, hp.fragment) {
			return hp.tag
		}
	}

	return PlatformDefault
}

// Referer returns the Referer conventionally sent to the platform.
func Referer(tag string) string {
	if r, ok := referers[tag]; ok {
		return r
	}

	return referers[PlatformDefault]
}

// IPSensitive reports whether the platform rate limits by client address.
func IPSensitive(tag string) bool {
	return tag == PlatformWY
}

// AJAXPlatform reports whether the platform expects X-Requested-With.
func AJAXPlatform(tag string) bool {
	switch tag {
	case PlatformTX, PlatformKW, PlatformKG, PlatformMG:
		return true
	default:
		return false
	}
}

// DownloadHeaders returns the headers used when fetching audio from rawURL directly.
// The Referer follows the URL's host, or source when the host is a CDN no platform claims.
// No Accept-Encoding is sent so the body is written to disk exactly as served.
func DownloadHeaders(rawURL, source string) map[string]string {
	tag := PlatformFor(rawURL)
	if tag == PlatformDefault {
		tag = source
	}

	return map[string]string{
		"User-Agent": userAgent,
		"Referer":    Referer(tag),
	}
}
