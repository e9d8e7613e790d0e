package transport

import "errors"

var (
	// ErrPermissionDenied means the user declined microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrTransportUnavailable means no audio engine binding exists on
	// this build.
	ErrTransportUnavailable = errors.New("audio transport engine unavailable")

	// ErrInvalidChannel means a start was requested without a resolved
	// PIN. This is an ordering error in the caller.
	ErrInvalidChannel = errors.New("missing audio channel")

	// ErrBusy means a start was requested while the transport is already
	// broadcasting or listening; the caller must stop first.
	ErrBusy = errors.New("transport already active")
)
