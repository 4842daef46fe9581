package logging

import (
	"log/slog"
	"strings"
)

// sensitiveKeys are attribute names whose values are never logged in full.
// Principal-supplied request content is never attached to ERROR records at
// the call sites; this is the backstop for credential material.
var sensitiveKeys = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"authorization": true,
	"token":         true,
	"secret":        true,
	"password":      true,
	"access_key":    true,
	"secret_key":    true,
	"session_token": true,
}

// credentialPrefixes flag values that look like pasted credentials
// regardless of the attribute name.
var credentialPrefixes = []string{
	"sk-",
	"Bearer ",
	"AKIA",
}

// redactAttr is the slog ReplaceAttr hook scrubbing sensitive values.
func redactAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		return a
	}

	if sensitiveKeys[strings.ToLower(a.Key)] {
		a.Value = slog.StringValue(redact(a.Value.String()))
		return a
	}

	v := a.Value.String()
	for _, prefix := range credentialPrefixes {
		if strings.HasPrefix(v, prefix) {
			a.Value = slog.StringValue(redact(v))
			return a
		}
	}

	return a
}

// redact keeps a short identifying prefix and masks the rest.
func redact(s string) string {
	if len(s) <= 8 {
		return "[redacted]"
	}
	return s[:4] + "…[redacted]"
}
