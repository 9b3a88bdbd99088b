package playback

import (
	"sync"
	"time"
)

// MediaElement is a synchronous audio element that pushes native
// timeupdate and ended notifications.
type MediaElement interface {
	Play() error
	Pause() error
	SetCurrentTime(seconds float64) error
	CurrentTime() float64
	Duration() float64
	Paused() bool
	// Subscribe registers notification handlers. They must fire on the
	// element's own goroutine.
	Subscribe(onTimeUpdate, onEnded func())
	Close() error
}

// LocalMedia adapts a MediaElement to Backend, throttling timeupdate
// notifications to the progress interval.
type LocalMedia struct {
	el       MediaElement
	label    string
	interval time.Duration
	now      func() time.Time

	mu         sync.Mutex
	onEnded    func()
	onProgress func(current, duration float64)
	lastEmit   time.Time
	closed     bool
}

var _ Backend = (*LocalMedia)(nil)

func NewLocalMedia(el MediaElement, label string, interval time.Duration) *LocalMedia {
	interval = progressInterval(interval)
	l := &LocalMedia{
		el:       el,
		label:    label,
		interval: interval,
		now:      time.Now,
	}
	el.Subscribe(l.handleTimeUpdate, l.handleEnded)
	return l
}

func (l *LocalMedia) Play() error  { return l.el.Play() }
func (l *LocalMedia) Pause() error { return l.el.Pause() }

// Stop pauses and rewinds to the beginning.
func (l *LocalMedia) Stop() error {
	if err := l.el.Pause(); err != nil {
		return err
	}
	return l.el.SetCurrentTime(0)
}

func (l *LocalMedia) Seek(seconds float64) error {
	if seconds < 0 {
		seconds = 0
	}
	if d := l.el.Duration(); d > 0 && seconds > d {
		seconds = d
	}
	return l.el.SetCurrentTime(seconds)
}

func (l *LocalMedia) CurrentTime() float64 { return l.el.CurrentTime() }
func (l *LocalMedia) Duration() float64    { return l.el.Duration() }
func (l *LocalMedia) Label() string        { return l.label }

func (l *LocalMedia) OnEnded(f func()) {
	l.mu.Lock()
	l.onEnded = f
	l.mu.Unlock()
}

func (l *LocalMedia) OnProgress(f func(current, duration float64)) {
	l.mu.Lock()
	l.onProgress = f
	l.mu.Unlock()
}

func (l *LocalMedia) Close() error {
	l.mu.Lock()
	l.closed = true
	l.onEnded = nil
	l.onProgress = nil
	l.mu.Unlock()
	return l.el.Close()
}

func (l *LocalMedia) handleTimeUpdate() {
	l.mu.Lock()
	cb := l.onProgress
	if l.closed || cb == nil {
		l.mu.Unlock()
		return
	}
	now := l.now()
	if !l.lastEmit.IsZero() && now.Sub(l.lastEmit) < l.interval {
		l.mu.Unlock()
		return
	}
	l.lastEmit = now
	l.mu.Unlock()

	cb(l.el.CurrentTime(), l.el.Duration())
}

func (l *LocalMedia) handleEnded() {
	l.mu.Lock()
	cb := l.onEnded
	closed := l.closed
	l.mu.Unlock()

	if !closed && cb != nil {
		cb()
	}
}
