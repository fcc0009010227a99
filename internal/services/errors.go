package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput marks caller errors; never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTransient marks provider failures worth retrying.
	ErrTransient = errors.New("transient failure")
	// ErrFatal marks provider failures that must not be retried.
	ErrFatal = errors.New("fatal provider error")
	// ErrMediaTool marks media tool failures; always fatal.
	ErrMediaTool = errors.New("media tool error")
	// ErrTimeout marks deadline expiry; retried once, then fatal.
	ErrTimeout = errors.New("timeout")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether err is worth retrying under the stage retry
// policy.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsTimeout reports whether err represents deadline expiry, either tagged
// explicitly or surfaced by the context package.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsFatal reports whether err must never be retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal) || errors.Is(err, ErrMediaTool) || errors.Is(err, ErrInvalidInput)
}

// Message extracts the human-readable portion of a stage error for storage on
// the failed task.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
