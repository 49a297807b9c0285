package rest

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotExecuted is returned for a batch key the provider never ran,
// which only happens after a halt
var ErrNotExecuted = errors.New("command not executed")

// ErrUnknownKey is returned for a key that was not part of the batch input
var ErrUnknownKey = errors.New("unknown batch key")

// CapacityError is returned when a batch exceeds the allowed size
type CapacityError struct {
	Size int
	Max  int
}

// Error implements the error interface
func (e *CapacityError) Error() string {
	return fmt.Sprintf("batch of %d commands exceeds the limit of %d", e.Size, e.Max)
}

// MalformedEnvelopeError is returned when a reply lacks a required field
type MalformedEnvelopeError struct {
	Method string
	Field  string
	Err    error // decode failure, if any
}

// Error implements the error interface
func (e *MalformedEnvelopeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s reply: field %q: %v", e.Method, e.Field, e.Err)
	}
	return fmt.Sprintf("malformed %s reply: missing %q", e.Method, e.Field)
}

// Unwrap returns the underlying decode error
func (e *MalformedEnvelopeError) Unwrap() error {
	return e.Err
}

// CommandError is a failure reported by the provider for one batch sub-command
type CommandError struct {
	Key         string
	Code        string          `json:"error"`
	Description string          `json:"error_description"`
	Raw         json.RawMessage `json:"-"`
}

// Error implements the error interface
func (e *CommandError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("command %s: %s: %s", e.Key, e.Code, e.Description)
	}
	return fmt.Sprintf("command %s: %s", e.Key, e.Code)
}

// parseCommandError decodes a result_error entry, which the provider sends
// either as an {error, error_description} object or as a bare string
func parseCommandError(key string, raw json.RawMessage) *CommandError {
	cmdErr := &CommandError{Key: key, Raw: raw}

	var obj struct {
		Code        string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Code != "" {
		cmdErr.Code = obj.Code
		cmdErr.Description = obj.Description
		return cmdErr
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		cmdErr.Code = s
		return cmdErr
	}

	cmdErr.Code = string(raw)
	return cmdErr
}
