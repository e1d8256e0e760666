package security

import (
	"regexp"
	"strings"
)

// InjectionDetector flags messages that try to override the assistant's
// instructions. Flagged messages are still processed; the extraction
// prompts validate every model answer regardless.
type InjectionDetector struct {
	literals []string
	patterns []*regexp.Regexp
}

var injectionLiterals = []string{
	"ignore previous instructions",
	"ignore all previous",
	"disregard all previous",
	"forget all previous",
	"ignore the above",
	"disregard the above",
	"your new instructions",
	"your new task",
	"new directive",
	"system override",
	"jailbreak",
	"pretend you are",
	"developer mode",
}

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|above)\s+(instructions?|prompts?|rules?|directives?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|above)\s+(instructions?|context)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an)\s+\w+`),
	regexp.MustCompile(`(?i)(override|bypass)\s+(all\s+)?(rules?|restrictions?|filters?)`),
	regexp.MustCompile(`(?i)respond\s+with\s+"?\{?\s*"?transaction`),
	regexp.MustCompile(`(?i)<\|.*\|>`),
	regexp.MustCompile(`(?i)\[system\].*\[/system\]`),
	regexp.MustCompile(`(?i)###\s*(instruction|system)`),
}

func NewInjectionDetector() *InjectionDetector {
	d := &InjectionDetector{
		literals: make([]string, len(injectionLiterals)),
		patterns: injectionPatterns,
	}
	for i, lit := range injectionLiterals {
		d.literals[i] = strings.ToLower(lit)
	}
	return d
}

// Detect returns the first matching pattern, or "" when input looks benign
func (d *InjectionDetector) Detect(input string) string {
	lower := strings.ToLower(input)

	for _, lit := range d.literals {
		if strings.Contains(lower, lit) {
			return lit
		}
	}

	for _, re := range d.patterns {
		if re.MatchString(input) {
			return re.String()
		}
	}

	return ""
}
