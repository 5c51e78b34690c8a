package capability

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	ErrUnsupportedMode = errors.New("unsupported cipher mode")
	ErrBadPadding      = errors.New("invalid PKCS#7 padding")
	ErrBadKey          = errors.New("invalid key")
)

// blockMode extracts the block mode from labels such as "aes-128-cbc", "AES-ECB" or "cbc".
func blockMode(mode string) string {
	m := strings.ToLower(mode)
	if i := strings.LastIndex(m, "-"); i >= 0 {
		m = m[i+1:]
	}

	if m == "" || m == "aes" {
		return "cbc"
	}

	return m
}

// AESEncrypt encrypts data with key in the given mode. CBC and ECB use PKCS#7 padding.
func AESEncrypt(data []byte, mode string, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadKey, err)
	}

	switch blockMode(mode) {
	case "cbc":
		if len(iv) != block.BlockSize() {
			return nil, fmt.Errorf("%w: iv must be %d bytes", ErrBadKey, block.BlockSize())
		}
		src := pad(data, block.BlockSize())
		out := make([]byte, len(src))
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, src)
		return out, nil
	case "ecb":
		src := pad(data, block.BlockSize())
		out := make([]byte, len(src))
		for i := 0; i < len(src); i += block.BlockSize() {
			block.Encrypt(out[i:], src[i:i+block.BlockSize()])
		}
		return out, nil
	case "ctr":
		if len(iv) != block.BlockSize() {
			return nil, fmt.Errorf("%w: iv must be %d bytes", ErrBadKey, block.BlockSize())
		}
		out := make([]byte, len(data))
		cipher.NewCTR(block, iv).XORKeyStream(out, data)
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMode, mode)
	}
}

// AESDecrypt reverses AESEncrypt.
func AESDecrypt(data []byte, mode string, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadKey, err)
	}

	bs := block.BlockSize()

	switch blockMode(mode) {
	case "cbc":
		if len(iv) != bs {
			return nil, fmt.Errorf("%w: iv must be %d bytes", ErrBadKey, bs)
		}
		if len(data)%bs != 0 || len(data) == 0 {
			return nil, ErrBadPadding
		}
		out := make([]byte, len(data))
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
		return unpad(out, bs)
	case "ecb":
		if len(data)%bs != 0 || len(data) == 0 {
			return nil, ErrBadPadding
		}
		out := make([]byte, len(data))
		for i := 0; i < len(data); i += bs {
			block.Decrypt(out[i:], data[i:i+bs])
		}
		return unpad(out, bs)
	case "ctr":
		return AESEncrypt(data, mode, key, iv)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMode, mode)
	}
}

func pad(data []byte, bs int) []byte {
	n := bs - len(data)%bs
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, bs int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > bs || n > len(data) {
		return nil, ErrBadPadding
	}

	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrBadPadding
		}
	}

	return data[:len(data)-n], nil
}

// RSAPadding selects the RSA padding scheme.
type RSAPadding string

const (
	PaddingPKCS1 RSAPadding = "pkcs1"
	PaddingNone  RSAPadding = "none"
)

// ParsePadding maps the labels scripts commonly pass, defaulting to PKCS#1 v1.5.
func ParsePadding(s string) RSAPadding {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "no", "nopadding", "rsa_no_padding", "3":
		return PaddingNone
	default:
		return PaddingPKCS1
	}
}

// RSAEncrypt encrypts data with a PEM encoded public key.
func RSAEncrypt(data []byte, pemKey string, padding RSAPadding) ([]byte, error) {
	pub, err := parsePublicKey(pemKey)
	if err != nil {
		return nil, err
	}

	if padding == PaddingNone {
		return rawRSA(data, pub)
	}

	return rsa.EncryptPKCS1v15(rand.Reader, pub, data)
}

// RSADecrypt decrypts PKCS#1 v1.5 data with a PEM encoded private key.
func RSADecrypt(data []byte, pemKey string) ([]byte, error) {
	priv, err := parsePrivateKey(pemKey)
	if err != nil {
		return nil, err
	}

	return rsa.DecryptPKCS1v15(rand.Reader, priv, data)
}

// rawRSA computes m^e mod n, left padded to the modulus size.
func rawRSA(data []byte, pub *rsa.PublicKey) ([]byte, error) {
	size := pub.Size()
	if len(data) > size {
		return nil, fmt.Errorf("%w: message longer than modulus", ErrBadKey)
	}

	m := new(big.Int).SetBytes(data)
	if m.Cmp(pub.N) >= 0 {
		return nil, fmt.Errorf("%w: message out of range", ErrBadKey)
	}

	c := new(big.Int).Exp(m, big.NewInt(int64(pub.E)), pub.N)

	return c.FillBytes(make([]byte, size)), nil
}

func parsePublicKey(pemKey string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrBadKey)
	}

	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if pub, ok := key.(*rsa.PublicKey); ok {
			return pub, nil
		}
		return nil, fmt.Errorf("%w: not an RSA public key", ErrBadKey)
	}

	pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadKey, err)
	}

	return pub, nil
}

func parsePrivateKey(pemKey string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrBadKey)
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if priv, ok := key.(*rsa.PrivateKey); ok {
			return priv, nil
		}
		return nil, fmt.Errorf("%w: not an RSA private key", ErrBadKey)
	}

	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadKey, err)
	}

	return priv, nil
}
