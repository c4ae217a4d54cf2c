package player

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 16
)

var (
	ErrUsernameTooShort = errors.New("username is too short")
	ErrUsernameTooLong  = errors.New("username is too long")
	ErrUsernameInvalid  = errors.New("username contains invalid characters")
)

// ValidateUsername trims and NFC-normalises raw and checks its length in
// runes. The normalised name is returned on success.
func ValidateUsername(raw string) (string, error) {
	name := norm.NFC.String(strings.TrimSpace(raw))
	length := utf8.RuneCountInString(name)
	switch {
	case length < MinUsernameLength:
		return "", ErrUsernameTooShort
	case length > MaxUsernameLength:
		return "", ErrUsernameTooLong
	}
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return "", ErrUsernameInvalid
		}
	}
	return name, nil
}
