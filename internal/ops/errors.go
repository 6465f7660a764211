package ops

import "errors"

// Registry errors.
var (
	// ErrOpNotFound is returned when an operation kind is not registered.
	ErrOpNotFound = errors.New("operation not found")

	// ErrOpNameEmpty is returned when a spec has no name.
	ErrOpNameEmpty = errors.New("operation name cannot be empty")

	// ErrBuildNil is returned when a spec has no build function.
	ErrBuildNil = errors.New("operation build function cannot be nil")

	// ErrOpAlreadyRegistered is returned when registering a duplicate.
	ErrOpAlreadyRegistered = errors.New("operation already registered")

	// ErrMissingRequiredArg is returned when a required argument is missing.
	ErrMissingRequiredArg = errors.New("missing required argument")

	// ErrInvalidArgType is returned when an argument has the wrong type.
	ErrInvalidArgType = errors.New("invalid argument type")
)
