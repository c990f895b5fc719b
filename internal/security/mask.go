// Package security masks credentials before they reach logs, error messages
// or command output.
package security

import (
	"errors"
	"regexp"
	"strings"
)

// sensitivePatterns match credentials embedded in free text. The first
// capture group is kept, the second is masked.
var sensitivePatterns = []*regexp.Regexp{
	// Telegram Bot API URLs carry the token in the path.
	regexp.MustCompile(`(/bot)([0-9]+:[A-Za-z0-9_-]+)`),
	regexp.MustCompile(`(?i)((?:password|passwd|token|secret|api[_-]?key)["']?\s*[=:]\s*["']?)([^\s"'&,;]+)`),
}

// MaskCredential masks a credential value, keeping a few characters at the
// edges of long values.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// MaskSecrets masks credentials found in s, plus every exact occurrence of
// the given known secrets.
func MaskSecrets(s string, known ...string) string {
	for _, secret := range known {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, MaskCredential(secret))
		}
	}
	for _, pattern := range sensitivePatterns {
		s = pattern.ReplaceAllStringFunc(s, func(match string) string {
			sub := pattern.FindStringSubmatch(match)
			return sub[1] + MaskCredential(sub[2])
		})
	}
	return s
}

// maskedError keeps the chain of the original error for errors.Is while
// printing the masked message.
type maskedError struct {
	msg string
	err error
}

func (e *maskedError) Error() string { return e.msg }
func (e *maskedError) Unwrap() error { return e.err }

// MaskError returns err with credentials masked in its message. Errors
// without credentials are returned unchanged.
func MaskError(err error, known ...string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	masked := MaskSecrets(msg, known...)
	if masked == msg {
		return err
	}
	var already *maskedError
	if errors.As(err, &already) && already.msg == masked {
		return err
	}
	return &maskedError{msg: masked, err: err}
}
