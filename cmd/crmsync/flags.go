package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func parseID(flag, value string) (uuid.UUID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return uuid.Nil, withCode(exitUsage, fmt.Errorf("--%s is required", flag))
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, withCode(exitValidation, fmt.Errorf("--%s: invalid uuid %q", flag, value))
	}
	return id, nil
}

// parseOptionalID returns nil for an empty value.
func parseOptionalID(flag, value string) (*uuid.UUID, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	id, err := parseID(flag, value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
