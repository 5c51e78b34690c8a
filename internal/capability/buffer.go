package capability

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Decode converts s in the named encoding to bytes.
func Decode(s, encoding string) ([]byte, error) {
	switch normalizeEncoding(encoding) {
	case "utf8":
		return []byte(s), nil
	case "hex":
		return hex.DecodeString(s)
	case "base64":
		return decodeBase64(s)
	case "latin1":
		out := make([]byte, 0, len(s))
		for _, r := range s {
			out = append(out, byte(r))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// Encode renders b in the named encoding.
func Encode(b []byte, encoding string) (string, error) {
	switch normalizeEncoding(encoding) {
	case "utf8":
		return string(b), nil
	case "hex":
		return hex.EncodeToString(b), nil
	case "base64":
		return base64.StdEncoding.EncodeToString(b), nil
	case "latin1":
		var sb strings.Builder
		for _, c := range b {
			sb.WriteRune(rune(c))
		}
		return sb.String(), nil
	default:
		return "", fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

func normalizeEncoding(encoding string) string {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf8", "utf-8":
		return "utf8"
	case "hex":
		return "hex"
	case "base64":
		return "base64"
	case "binary", "latin1", "ascii":
		return "latin1"
	default:
		return encoding
	}
}

// Base64Encode is Encode(b, "base64").
func Base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Base64Decode accepts padded, unpadded and URL-safe input.
func Base64Decode(s string) ([]byte, error) {
	return decodeBase64(s)
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, "-_") {
		s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	}

	s = strings.TrimRight(s, "=")

	return base64.RawStdEncoding.DecodeString(s)
}

// Concat joins buffers.
func Concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}

	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}

	return out
}

// Slice mirrors Buffer#slice: negative indexes count from the end and bounds are clamped.
func Slice(b []byte, start, end int) []byte {
	n := len(b)
	clamp := func(i int) int {
		if i < 0 {
			i += n
		}
		return min(max(i, 0), n)
	}

	start, end = clamp(start), clamp(end)
	if start >= end {
		return []byte{}
	}

	return append([]byte(nil), b[start:end]...)
}

// URLEncode behaves like encodeURIComponent.
func URLEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// URLDecode behaves like decodeURIComponent.
func URLDecode(s string) (string, error) {
	return url.PathUnescape(s)
}
