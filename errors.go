package evnet

import "errors"

// Sentinel errors surfaced to user callbacks as described in spec.md §7.
var (
	ErrClosed          = errors.New("evnet: channel closed")
	ErrTimeout         = errors.New("evnet: operation timed out")
	ErrChannelOverflow = errors.New("evnet: every worker is at its channel limit")
	ErrNotRegistered   = errors.New("evnet: socket not registered with this controller")
	ErrCancelled       = errors.New("evnet: operation cancelled")
	ErrNoEndpoints     = errors.New("evnet: no candidate endpoints left to try")
	ErrLoopStopped     = errors.New("evnet: event loop is not running")
)
