// Package bounce maps SMTP failure text to a bounce category.
package bounce

import (
	"regexp"
	"strings"

	"github.com/beaconblast/campaign-delivery/internal/model"
)

var hardIndicators = []string{
	"user unknown",
	"no such user",
	"invalid recipient",
	"recipient address rejected",
	"user not found",
	"does not exist",
	"invalid mailbox",
	"unknown user",
}

var softIndicators = []string{
	"mailbox full",
	"quota exceeded",
	"temporarily unavailable",
	"try again later",
	"temporary failure",
	"deferred",
}

// Classify returns the bounce type for an error text and the reason to
// store with it. Hard indicators are checked first; text matching neither
// list is soft.
func Classify(errText string) (model.BounceType, string) {
	lower := strings.ToLower(errText)
	for _, indicator := range hardIndicators {
		if strings.Contains(lower, indicator) {
			return model.BounceTypeHard, errText
		}
	}
	for _, indicator := range softIndicators {
		if strings.Contains(lower, indicator) {
			return model.BounceTypeSoft, errText
		}
	}
	return model.BounceTypeSoft, errText
}

var replyCode = regexp.MustCompile(`(?:^|[:\s])([245]\d\d)(?:[ -]+(\d\.\d{1,3}\.\d{1,3}))?(?:\s|$)`)

// Diagnostic extracts "550 5.1.1" style reply and enhanced status codes from
// an error text. It returns "" when none is present.
func Diagnostic(errText string) string {
	m := replyCode.FindStringSubmatch(errText)
	if m == nil {
		return ""
	}
	if m[2] != "" {
		return m[1] + " " + m[2]
	}
	return m[1]
}
