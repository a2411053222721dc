package model

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultRoomName is the room every session lands in after login.
	// It exists for the whole server lifetime.
	DefaultRoomName = "general"

	MaxRoomNameLength = 64
)

var ErrRoomNameEmpty = errors.New("room name must not be empty")
var ErrRoomNameTooLong = errors.New("room name too long")
var ErrRoomNameInvalidChars = errors.New("room name must not contain control characters")

// ValidateRoomName checks that a room name is 1-64 characters with no control
// characters and no surrounding whitespace.
func ValidateRoomName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrRoomNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLength {
		return ErrRoomNameTooLong
	}
	if strings.TrimSpace(name) != name {
		return ErrRoomNameInvalidChars
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return ErrRoomNameInvalidChars
		}
	}
	return nil
}
