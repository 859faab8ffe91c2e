package core

import "errors"

// MinIntervalSeconds is the floor for the capture interval; anything shorter
// risks overlapping a slow exposure search with the next cycle.
const MinIntervalSeconds = 30

var (
	ErrAlreadyRunning    = errors.New("capture loop already running")
	ErrNotRunning        = errors.New("capture loop not running")
	ErrCaptureInProgress = errors.New("a capture is already in progress")
	ErrInvalidInterval   = errors.New("interval below minimum")
	ErrNoSettings        = errors.New("settings not found")
)
