// Package playback hides the difference between a locally loaded audio
// file and a remotely embedded video player behind one Backend.
package playback

import (
	"errors"
	"time"
)

// ErrBackendNotReady is returned by commands issued before a remote player
// has finished loading. Callers treat it as a no-op.
var ErrBackendNotReady = errors.New("playback backend not ready")

// DefaultProgressInterval caps progress notifications at 10 Hz.
const DefaultProgressInterval = 100 * time.Millisecond

// Backend is a playable audio source.
//
// Callbacks run on the backend's own goroutines and are never invoked
// synchronously from inside a command.
type Backend interface {
	Play() error
	Pause() error
	Stop() error
	Seek(seconds float64) error
	CurrentTime() float64
	Duration() float64
	OnEnded(func())
	OnProgress(func(current, duration float64))
	Label() string
	Close() error
}

// Source kinds, stored with saved sessions.
const (
	KindLocal  = "local"
	KindRemote = "remote"
	// KindClient is a local file played by the presentation's audio element.
	KindClient = "client"
)

// progressInterval 通知间隔不短于 DefaultProgressInterval
func progressInterval(d time.Duration) time.Duration {
	return max(d, DefaultProgressInterval)
}
