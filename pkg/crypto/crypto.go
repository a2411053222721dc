// Package crypto provides password hashing and random credential generation.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/argon2"
)

const (
	// SaltSize is the byte length of a password salt.
	SaltSize = 16

	// HashSize is the byte length of an Argon2id password hash.
	HashSize = 32
)

// GenerateSalt returns a fresh random password salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("crypto: generate salt: %w", err)
	}
	return salt, nil
}

// HashPassword hashes a password using Argon2id.
func HashPassword(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, HashSize)
}

// VerifyPassword reports whether password hashes to hash under salt.
// The comparison runs in constant time.
func VerifyPassword(password string, salt, hash []byte) bool {
	if len(salt) == 0 || len(hash) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(HashPassword(password, salt), hash) == 1
}

// GenerateVoiceToken returns a random non-zero 64-bit token that binds voice
// datagrams to a control session.
func GenerateVoiceToken() (uint64, error) {
	b := make([]byte, 8)
	for {
		if _, err := io.ReadFull(rand.Reader, b); err != nil {
			return 0, fmt.Errorf("crypto: generate voice token: %w", err)
		}
		if tok := binary.BigEndian.Uint64(b); tok != 0 {
			return tok, nil
		}
	}
}

// FormatVoiceToken renders a voice token as 16 lowercase hex characters.
func FormatVoiceToken(tok uint64) string {
	return fmt.Sprintf("%016x", tok)
}

// ParseVoiceToken parses the hex form produced by FormatVoiceToken.
func ParseVoiceToken(s string) (uint64, error) {
	if len(s) != 16 {
		return 0, fmt.Errorf("crypto: voice token must be 16 hex characters, got %d", len(s))
	}
	tok, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("crypto: parse voice token: %w", err)
	}
	return tok, nil
}
