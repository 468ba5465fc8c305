package controlplane

import "errors"

// Sentinel errors for control plane operations.
var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrMissingIdentity  = errors.New("task name and instance are required")
	ErrFilterNotAllowed = errors.New("filter not allowed for this listing")
	ErrInvalidPage      = errors.New("invalid page parameters")
)
