package integrity

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrInvalidAlgorithm is returned when a hash algorithm is not recognized.
var ErrInvalidAlgorithm = errors.New("unsupported hash algorithm")

// Hash computes the hex digest of content using the named algorithm.
// Supported: sha256, sha512, and md5 (legacy, kept for compatibility with
// older evidence records).
func Hash(content []byte, algorithm string) (string, error) {
	switch algorithm {
	case "sha256":
		sum := sha256.Sum256(content)
		return hex.EncodeToString(sum[:]), nil
	case "sha512":
		sum := sha512.Sum512(content)
		return hex.EncodeToString(sum[:]), nil
	case "md5":
		sum := md5.Sum(content)
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidAlgorithm, algorithm)
	}
}

func SHA256Hex(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func SHA512Hex(content []byte) string {
	sum := sha512.Sum512(content)
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the digest of content and compares it to expected.
func Verify(content []byte, expected, algorithm string) (bool, error) {
	calculated, err := Hash(content, algorithm)
	if err != nil {
		return false, err
	}
	return calculated == expected, nil
}
