// Package redact scrubs secrets and personal data from text before it reaches
// logs, error responses, audit messages or admin notifications.
//
// Secrets removes credentials only and keeps the text readable for operators.
// String additionally masks email addresses, file paths, host names and stack
// traces, for text that leaves the service.
package redact

import (
	"regexp"
	"strings"
)

// Placeholders substituted for redacted values.
const (
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedTokenPlaceholder      = "[REDACTED_TOKEN]"
	RedactedHashPlaceholder       = "[REDACTED_HASH]"
	RedactedJWTPlaceholder        = "[REDACTED_JWT]"
	RedactedEmailPlaceholder      = "[REDACTED_EMAIL]"
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedHostPlaceholder       = "[REDACTED_HOST]"
	RedactedStackPlaceholder      = "[STACK_TRACE_REDACTED]"
)

// rule replaces matches of re with a regexp template.
type rule struct {
	re   *regexp.Regexp
	with string
}

func (r rule) apply(s string) string {
	return r.re.ReplaceAllString(s, r.with)
}

// Credential rules run in order; URL userinfo goes before key=value pairs so
// the host of a connection string survives.
var secretRules = []rule{
	{
		re:   regexp.MustCompile(`(?i)\b(?:postgres(?:ql)?|rediss?|smtps?|mysql)://[^@\s/]+@`),
		with: RedactedCredentialPlaceholder,
	},
	{
		re:   regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]+`),
		with: "Bearer " + RedactedTokenPlaceholder,
	},
	{
		re:   regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
		with: RedactedJWTPlaceholder,
	},
	{
		// Google API keys, as used for Gemini.
		re:   regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
		with: RedactedKeyPlaceholder,
	},
	{
		re:   regexp.MustCompile(`\$2[abxy]?\$\d{2}\$[./A-Za-z0-9]{53}`),
		with: RedactedHashPlaceholder,
	},
	{
		re:   regexp.MustCompile(`(?i)(temp_password|password|passwd|pwd)(["']?\s*[=:]\s*["']?)[^"'&\s,}]{3,}`),
		with: "${1}${2}" + RedactedCredentialPlaceholder,
	},
	{
		re:   regexp.MustCompile(`(?i)(api[_-]?key|x-service-secret|service[_-]?secret|secret|token)(["']?\s*[=:]\s*["']?)[A-Za-z0-9_\-.~+/]{8,}`),
		with: "${1}${2}" + RedactedKeyPlaceholder,
	},
}

// Rules for text leaving the service. The stack trace rule runs first so
// frames are dropped whole.
var (
	stackRule = rule{
		re:   regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`),
		with: RedactedStackPlaceholder,
	}
	exposureRules = []rule{
		{
			re:   regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
			with: RedactedEmailPlaceholder,
		},
		{
			re:   regexp.MustCompile(`(/[\w.-]+){2,}`),
			with: RedactedPathPlaceholder,
		},
		{
			re:   regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}(?::\d{1,5})?\b`),
			with: RedactedHostPlaceholder,
		},
	}
)

// Secrets removes credentials, keys, tokens and password hashes.
func Secrets(input string) string {
	for _, r := range secretRules {
		input = r.apply(input)
	}
	return input
}

// String removes credentials and masks personal and infrastructure details.
func String(input string) string {
	if input == "" {
		return input
	}
	input = stackRule.apply(input)
	input = Secrets(input)
	for _, r := range exposureRules {
		input = r.apply(input)
	}
	return input
}

// Error returns err's message passed through String.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// Values replaces known secret values, such as a candidate's temporary
// password, and then applies Secrets. Email addresses and hosts are kept so
// the result stays useful in an admin notification.
func Values(input string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		input = strings.ReplaceAll(input, secret, RedactedCredentialPlaceholder)
	}
	return Secrets(input)
}
