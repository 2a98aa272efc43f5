// Package redact removes credentials, tokens, presigned upload signatures and
// other sensitive fragments from strings before they are logged, persisted to
// a mirror log, or returned in an error response.
package redact

import (
	"regexp"
	"sort"
	"strings"
)

// Redaction placeholders.
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedSealedPlaceholder     = "[REDACTED_SEALED]"
	RedactedSecretPlaceholder     = "[REDACTED_SECRET]"
)

// minSecretLength keeps very short values (initials, "me") from blanking
// unrelated text in Values.
const minSecretLength = 3

type rule struct {
	re   *regexp.Regexp
	repl string
}

// Rules run in order; later rules see the output of earlier ones.
var rules = []rule{
	{regexp.MustCompile(`ENC\[age:[^\]]*\]`), RedactedSealedPlaceholder},
	{
		regexp.MustCompile(`(?i)([?&](?:X-Amz-Signature|X-Amz-Credential|X-Amz-Security-Token|Signature|Policy|AWSAccessKeyId|sig)=)[^&\s"']+`),
		"${1}" + RedactionPlaceholder,
	},
	{regexp.MustCompile(`(?i)(postgres|postgresql|mysql|db|database|connection)://[^@\s]+@`), RedactedCredentialPlaceholder},
	{regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`), "[REDACTED_JWT]"},
	{regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9_\-.~+/=]{8,}`), "${1}" + RedactedKeyPlaceholder},
	{regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]?['"]?)[^'"&\s,}]{3,}`), RedactedCredentialPlaceholder},
	{
		regexp.MustCompile(`(?i)(api[_-]?key|x-api-key|token|secret)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`),
		RedactedKeyPlaceholder,
	},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`(^|[\s'"=(])((?:/[\w.-]+){2,})`), "${1}" + RedactedPathPlaceholder},
	{regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`), "[STACK_TRACE_REDACTED]"},
}

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, r := range rules {
		result = r.re.ReplaceAllString(result, r.repl)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// Values replaces every occurrence of the given secret values in input.
// Longer values are replaced first so a value containing another is removed
// whole.
func Values(input string, secrets []string) string {
	if input == "" || len(secrets) == 0 {
		return input
	}
	ordered := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if len(strings.TrimSpace(s)) >= minSecretLength {
			ordered = append(ordered, s)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	result := input
	for _, s := range ordered {
		result = strings.ReplaceAll(result, s, RedactedSecretPlaceholder)
	}
	return result
}
