// Package cryptox holds the small cryptographic helpers used by the server:
// one-time code generation, code fingerprints and share-link password hashes.
package cryptox

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"unicode/utf16"

	"golang.org/x/crypto/bcrypt"
)

const (
	codeMin = 100000
	codeMax = 999999
)

var codeSpan = big.NewInt(codeMax - codeMin + 1)

// GenerateCode returns a 6-digit decimal code uniform over [100000, 999999].
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

// Hasher turns a short code into the fingerprint stored next to an OTP.
type Hasher interface {
	Fingerprint(code string) string
}

// LegacyHasher reproduces the rolling 32-bit string hash
// h = ((h << 5) - h) + unit over UTF-16 code units, wrapped to int32 and
// printed in signed base 16. It is not collision resistant and the 6-digit
// input space can be enumerated offline.
type LegacyHasher struct{}

func (LegacyHasher) Fingerprint(code string) string {
	var h int32
	for _, unit := range utf16.Encode([]rune(code)) {
		h = (h << 5) - h + int32(unit)
	}
	return strconv.FormatInt(int64(h), 16)
}

// HMACHasher keys HMAC-SHA256 with a server-side pepper, so fingerprints are
// useless without the server secret.
type HMACHasher struct {
	pepper []byte
}

func NewHMACHasher(pepper []byte) *HMACHasher {
	return &HMACHasher{pepper: pepper}
}

func (h *HMACHasher) Fingerprint(code string) string {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// NewHasher picks a Hasher by name: "legacy" or "hmac".
func NewHasher(name string, pepper []byte) (Hasher, error) {
	switch name {
	case "legacy":
		return LegacyHasher{}, nil
	case "hmac":
		if len(pepper) == 0 {
			return nil, fmt.Errorf("hmac hasher requires a pepper")
		}
		return NewHMACHasher(pepper), nil
	default:
		return nil, fmt.Errorf("unknown hasher %q", name)
	}
}

// HashPassword returns a bcrypt hash of a share-link password.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether password matches a hash from HashPassword.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Checksum returns the hex SHA-256 of b.
func Checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
