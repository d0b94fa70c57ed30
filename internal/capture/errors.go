package capture

import (
	"errors"
	"fmt"
	"strings"
)

// FailureReason classifies why microphone acquisition failed.
type FailureReason string

// Capture failure reasons. Each maps to a fixed advisory message; none of
// them propagate as panics past the caller.
const (
	ReasonPermissionDenied  FailureReason = "permission_denied"
	ReasonNoDevice          FailureReason = "no_device"
	ReasonDeviceBusy        FailureReason = "device_busy"
	ReasonUnsupportedFormat FailureReason = "unsupported_format"
	ReasonInsecureContext   FailureReason = "insecure_context"
	ReasonUnavailable       FailureReason = "capture_unavailable"
	ReasonUnknown           FailureReason = "unknown"
)

// adviceByReason holds the fixed user-facing remediation strings.
var adviceByReason = map[FailureReason]string{
	ReasonPermissionDenied:  "Microphone access was denied. Allow microphone access and try again.",
	ReasonNoDevice:          "No microphone was found. Connect an input device and try again.",
	ReasonDeviceBusy:        "The microphone is in use by another application. Close it and try again.",
	ReasonUnsupportedFormat: "The microphone does not support the required capture format.",
	ReasonInsecureContext:   "Audio capture requires a secure connection to the audio server.",
	ReasonUnavailable:       "Audio capture is not available on this system.",
	ReasonUnknown:           "Could not start the microphone. Check your audio settings and try again.",
}

// Error is a classified capture failure with a user-facing remediation string.
type Error struct {
	Reason FailureReason
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Advice returns the fixed remediation message for this failure.
func (e *Error) Advice() string {
	if msg, ok := adviceByReason[e.Reason]; ok {
		return msg
	}
	return adviceByReason[ReasonUnknown]
}

// Classify wraps err as a capture Error, sniffing well-known failure modes
// from the audio backend. Already-classified errors pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access denied") || strings.Contains(msg, "permission"):
		return &Error{Reason: ReasonPermissionDenied, Err: err}
	case strings.Contains(msg, "no such entity") || strings.Contains(msg, "no device") || strings.Contains(msg, "no such source"):
		return &Error{Reason: ReasonNoDevice, Err: err}
	case strings.Contains(msg, "busy") || strings.Contains(msg, "in use"):
		return &Error{Reason: ReasonDeviceBusy, Err: err}
	case strings.Contains(msg, "sample spec") || strings.Contains(msg, "invalid format") || strings.Contains(msg, "not supported"):
		return &Error{Reason: ReasonUnsupportedFormat, Err: err}
	case strings.Contains(msg, "authentication") || strings.Contains(msg, "auth cookie"):
		return &Error{Reason: ReasonInsecureContext, Err: err}
	case strings.Contains(msg, "connect") || strings.Contains(msg, "connection refused") || strings.Contains(msg, "no pulse"):
		return &Error{Reason: ReasonUnavailable, Err: err}
	default:
		return &Error{Reason: ReasonUnknown, Err: err}
	}
}
