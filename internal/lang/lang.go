// Package lang guesses the language of a message
package lang

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Fallback is used when detection is not reliable
const Fallback = "en"

// Result is a detected language as an ISO 639-1 code
type Result struct {
	Code       string
	Confidence float64
	Reliable   bool
}

// Detector wraps whatlanggo
type Detector struct {
	minConfidence float64
}

// NewDetector creates a detector. Detections below minConfidence fall back to English.
func NewDetector(minConfidence float64) *Detector {
	return &Detector{minConfidence: minConfidence}
}

// Detect returns the language of text, or Fallback
func (d *Detector) Detect(text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Code: Fallback}
	}

	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" || info.Confidence < d.minConfidence {
		return Result{Code: Fallback, Confidence: info.Confidence}
	}

	return Result{
		Code:       code,
		Confidence: info.Confidence,
		Reliable:   info.IsReliable(),
	}
}
