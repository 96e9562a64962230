package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Hex returns the hex-encoded SHA256 hash of the input string.
func SHA256Hex(input string) string {
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:])
}

// Prefix returns the first n hex characters of SHA256(input). Used to
// correlate client addresses in logs and rate-limit keys without storing them.
func Prefix(input string, n int) string {
	full := SHA256Hex(input)
	if n <= 0 || n > len(full) {
		return full
	}
	return full[:n]
}
