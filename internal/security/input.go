// Package security screens chat messages before they reach the pipeline
package security

import (
	"strings"
	"unicode/utf8"

	apperrors "github.com/gmsas95/moneychat/internal/errors"
)

const defaultMaxBytes = 2 * 1024 * 1024

// InputValidator rejects messages the pipeline should never see
type InputValidator struct {
	MaxSize       int
	MaxRepetition int
}

// NewInputValidator creates a validator. maxSize <= 0 uses 2 MiB.
func NewInputValidator(maxSize int) *InputValidator {
	if maxSize <= 0 {
		maxSize = defaultMaxBytes
	}
	return &InputValidator{
		MaxSize:       maxSize,
		MaxRepetition: 4096,
	}
}

// Validate returns ErrMessageRequired for blank input and ErrMessageInvalid
// for oversized, binary or degenerate input
func (v *InputValidator) Validate(input string) error {
	if strings.TrimSpace(input) == "" {
		return apperrors.ErrMessageRequired
	}

	if len(input) > v.MaxSize {
		return apperrors.New(apperrors.ErrMessageInvalid.Code, "message exceeds maximum size")
	}

	if strings.IndexByte(input, 0) >= 0 {
		return apperrors.New(apperrors.ErrMessageInvalid.Code, "message contains a null byte")
	}

	if !utf8.ValidString(input) {
		return apperrors.New(apperrors.ErrMessageInvalid.Code, "message is not valid UTF-8")
	}

	if v.MaxRepetition > 0 && hasExcessiveRepetition(input, v.MaxRepetition) {
		return apperrors.New(apperrors.ErrMessageInvalid.Code, "message contains excessive repetition")
	}

	return nil
}

func hasExcessiveRepetition(input string, maxLen int) bool {
	if len(input) <= maxLen {
		return false
	}

	var prev rune
	count := 0
	for _, r := range input {
		if r == prev {
			count++
			if count > maxLen {
				return true
			}
			continue
		}
		prev = r
		count = 1
	}
	return false
}
