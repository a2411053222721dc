package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const MessageMaxBodyLength = 2000

var ErrMessageBodyTooLong = fmt.Errorf("message body exceeds %d characters", MessageMaxBodyLength)
var ErrMessageBodyEmpty = errors.New("message body cannot be empty")

// SanitizeText strips control characters (except newline) from user-supplied text
// to prevent UI spoofing, terminal escape injection, and null-byte attacks.
func SanitizeText(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' ' // collapse newlines to spaces
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// NormalizeChatText sanitizes and trims a chat body, then checks its length.
func NormalizeChatText(body string) (string, error) {
	text := strings.TrimSpace(SanitizeText(body))
	if text == "" {
		return "", ErrMessageBodyEmpty
	}
	if utf8.RuneCountInString(text) > MessageMaxBodyLength {
		return "", ErrMessageBodyTooLong
	}
	return text, nil
}
