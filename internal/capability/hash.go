package capability

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
)

func digest(h hash.Hash, data []byte) string {
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MD5 returns the hex encoded MD5 digest of data.
func MD5(data []byte) string {
	return digest(md5.New(), data)
}

// SHA1 returns the hex encoded SHA-1 digest of data.
func SHA1(data []byte) string {
	return digest(sha1.New(), data)
}

// SHA256 returns the hex encoded SHA-256 digest of data.
func SHA256(data []byte) string {
	return digest(sha256.New(), data)
}

const maxRandomBytes = 1 << 16

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	if n < 0 || n > maxRandomBytes {
		return nil, fmt.Errorf("random byte count out of range: %d", n)
	}

	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}

	return b, nil
}
