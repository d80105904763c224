// Package base62 provides utilities for working with base62 strings.
package base62

import (
	"crypto/rand"
	"fmt"
	"io"
)

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Random generates a random base62 string of the given length using a
// cryptographically secure source of entropy.
func Random(length int) (string, error) {
	return RandomWithReader(length, rand.Reader)
}

// RandomWithReader generates a random base62 string of the given length,
// reading entropy from the provided reader.
func RandomWithReader(length int, reader io.Reader) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be greater than zero")
	}
	if reader == nil {
		return "", fmt.Errorf("reader is nil")
	}

	output := make([]byte, 0, length)

	// Request a bit more than length to reduce the chance of needing
	// more than one batch of random bytes.
	batchSize := length + length/4

	for {
		buf := make([]byte, batchSize)
		if _, err := io.ReadFull(reader, buf); err != nil {
			return "", err
		}

		for _, b := range buf {
			// Avoid modulo bias by discarding bytes outside the
			// largest multiple of len(charset).
			if b >= 248 {
				continue
			}
			output = append(output, charset[b%62])
			if len(output) == length {
				return string(output), nil
			}
		}
	}
}
