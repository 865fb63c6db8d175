package tools

import "errors"

// Sentinel errors for the tool registry. ErrBadArguments covers argument
// payloads that cannot be decoded into the tool's expected form; handlers
// wrap it when their own decode fails.
var (
	ErrNotFound      = errors.New("tool not found")
	ErrAlreadyExists = errors.New("tool already registered")
	ErrEmptyName     = errors.New("tool name is empty")
	ErrBadArguments  = errors.New("invalid tool arguments")
)
