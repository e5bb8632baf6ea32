// Package validation checks request input before it reaches the pipeline.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/home-maintenance-service/internal/climate"
)

// ErrCityInvalidChars is returned when a city contains disallowed characters.
var ErrCityInvalidChars = errors.New("city contains invalid characters")

// ErrCityTooLong is returned when a city exceeds MaxCityLen runes.
var ErrCityTooLong = errors.New("city too long")

// ErrStateInvalid is returned when a state is neither a code nor a plausible name.
var ErrStateInvalid = errors.New("state must be a two-letter code or state name")

// ErrZipInvalid is returned when a ZIP is not 5 digits or ZIP+4.
var ErrZipInvalid = errors.New("zip code must be 5 digits or ZIP+4")

// ErrRequestInvalid wraps struct validation failures.
var ErrRequestInvalid = errors.New("invalid request")

const (
	MaxCityLen  = 100
	MaxStateLen = 32
)

var validate = validator.New()

// Struct validates v against its `validate` tags. Failures wrap ErrRequestInvalid and name
// the offending fields.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrRequestInvalid, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", ErrRequestInvalid, err)
}

// ValidateCity trims the input and restricts it to letters, digits, space, comma, hyphen,
// period, and apostrophe. An empty city is allowed: the pipeline treats it as missing.
func ValidateCity(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) > MaxCityLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

// ValidateState accepts a two-letter code or a full state name and returns the uppercase
// code. Empty is allowed.
func ValidateState(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", nil
	}
	if len([]rune(s)) > MaxStateLen {
		return "", ErrStateInvalid
	}
	for _, c := range s {
		if !unicode.IsLetter(c) && c != ' ' {
			return "", ErrStateInvalid
		}
	}
	code, ok := climate.StateCode(s)
	if !ok {
		return "", ErrStateInvalid
	}
	return code, nil
}

// ValidateZip accepts "12345" or "12345-6789" with surrounding whitespace. Empty is
// allowed.
func ValidateZip(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", nil
	}
	base, ext, hasExt := strings.Cut(s, "-")
	if !allDigits(base, 5) || (hasExt && !allDigits(ext, 4)) {
		return "", ErrZipInvalid
	}
	return s, nil
}

func allDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
