package migration

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ChecksumAlgorithm names the hash used for migration checksums.
type ChecksumAlgorithm string

const (
	// SHA256 is the default checksum algorithm.
	SHA256 ChecksumAlgorithm = "sha256"

	// BLAKE2b selects BLAKE2b-256.
	BLAKE2b ChecksumAlgorithm = "blake2b"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseChecksumAlgorithm validates an algorithm name. Empty selects SHA256.
func ParseChecksumAlgorithm(name string) (ChecksumAlgorithm, error) {
	switch ChecksumAlgorithm(strings.ToLower(strings.TrimSpace(name))) {
	case "", SHA256:
		return SHA256, nil
	case BLAKE2b:
		return BLAKE2b, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedChecksum, name)
}

// Checksum returns "<algorithm>:<hex>" for body. A leading UTF-8 BOM is
// dropped and CRLF line endings are folded to LF first, so a checkout on a
// different platform yields the same value.
func Checksum(algo ChecksumAlgorithm, body []byte) (string, error) {
	normalized := normalizeBody(body)

	var sum []byte
	switch algo {
	case "", SHA256:
		algo = SHA256
		h := sha256.Sum256(normalized)
		sum = h[:]
	case BLAKE2b:
		h := blake2b.Sum256(normalized)
		sum = h[:]
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedChecksum, algo)
	}
	return string(algo) + ":" + hex.EncodeToString(sum), nil
}

// VerifyChecksum recomputes the checksum of body with the algorithm recorded
// in recorded and reports whether they match. A recorded value without an
// algorithm prefix is treated as sha256.
func VerifyChecksum(recorded string, body []byte) (resolved string, ok bool, err error) {
	algo := SHA256
	if i := strings.IndexByte(recorded, ':'); i >= 0 {
		algo = ChecksumAlgorithm(recorded[:i])
	}
	resolved, err = Checksum(algo, body)
	if err != nil {
		return "", false, err
	}
	if !strings.Contains(recorded, ":") {
		return resolved, strings.EqualFold(strings.TrimPrefix(resolved, string(SHA256)+":"), recorded), nil
	}
	return resolved, strings.EqualFold(resolved, recorded), nil
}

func normalizeBody(body []byte) []byte {
	body = bytes.TrimPrefix(body, utf8BOM)
	return bytes.ReplaceAll(body, []byte("\r\n"), []byte("\n"))
}
