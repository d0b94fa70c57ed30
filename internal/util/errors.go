// Package util provides small shared helpers for errors, timing, and backoff.
package util

import (
	"fmt"
	"strings"
)

// maxErrorBodyLength is the maximum length for extracted service error messages.
const maxErrorBodyLength = 200

// WrapError wraps an error with a descriptive operation context.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}

// TruncateErrorBody trims a remote service error body to a single bounded line.
func TruncateErrorBody(body string) string {
	line := strings.TrimSpace(body)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if len(line) > maxErrorBodyLength {
		return line[:maxErrorBodyLength] + "..."
	}
	return line
}
