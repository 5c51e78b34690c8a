package capability

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// maxInflatedSize bounds decompression output so a hostile payload cannot exhaust memory.
const maxInflatedSize = 64 << 20

func readAllLimited(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxInflatedSize+1))
	if err != nil {
		return nil, err
	}

	if len(b) > maxInflatedSize {
		return nil, fmt.Errorf("decompressed payload exceeds %d bytes", maxInflatedSize)
	}

	return b, nil
}

func writeAll(w io.WriteCloser, buf *bytes.Buffer, data []byte) ([]byte, error) {
	if _, err := w.Write(data); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func Gzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	return writeAll(gzip.NewWriter(&buf), &buf, data)
}

func Gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return readAllLimited(r)
}

// Deflate produces zlib framed output, matching zlib.deflateSync.
func Deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	return writeAll(zlib.NewWriter(&buf), &buf, data)
}

// Inflate accepts zlib framed input and falls back to raw deflate.
func Inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return InflateRaw(data)
	}
	defer r.Close()

	return readAllLimited(r)
}

func InflateRaw(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	return readAllLimited(r)
}

func BrotliCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	return writeAll(brotli.NewWriter(&buf), &buf, data)
}

func BrotliDecompress(data []byte) ([]byte, error) {
	return readAllLimited(brotli.NewReader(bytes.NewReader(data)))
}

// DecodeContent undoes an HTTP Content-Encoding. Unknown or empty encodings pass through.
func DecodeContent(encoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		return Gunzip(body)
	case "deflate":
		return Inflate(body)
	case "br":
		return BrotliDecompress(body)
	default:
		return body, nil
	}
}
