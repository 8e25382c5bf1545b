package server

import (
	"crypto/rand"
	"errors"
	"fmt"
)

// Room codes are human-shareable: 8 characters, uppercase letters and
// digits, generated from crypto/rand.
const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 8

	// maxCodeAttempts bounds uniqueness retries. Collisions are
	// negligible for realistic room counts, so hitting the bound means
	// the code space is exhausted or the generator is broken.
	maxCodeAttempts = 10
)

var ErrCodeSpaceExhausted = errors.New("room code space exhausted")

func randomCode() (string, error) {
	// bytes at or above the largest multiple of the alphabet size are
	// rejected, otherwise the modulo would favor the first characters
	limit := byte(256 - 256%len(codeAlphabet))

	code := make([]byte, 0, codeLength)
	buf := make([]byte, 2*codeLength)
	for len(code) < codeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}

		for _, b := range buf {
			if b >= limit {
				continue
			}
			code = append(code, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(code) == codeLength {
				break
			}
		}
	}

	return string(code), nil
}

// GenerateRoomCode produces a code for which taken returns false,
// retrying up to maxCodeAttempts before failing with
// ErrCodeSpaceExhausted.
func GenerateRoomCode(taken func(string) bool) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}

		if taken == nil || !taken(code) {
			return code, nil
		}
	}

	return "", ErrCodeSpaceExhausted
}
