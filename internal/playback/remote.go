package playback

import (
	"context"
	"sync"
	"time"
)

// EmbedState mirrors the player states reported by embedded video players.
type EmbedState int

const (
	EmbedUnstarted EmbedState = iota
	EmbedPlaying
	EmbedPaused
	EmbedBuffering
	EmbedEnded
	EmbedCued
)

// EmbedPlayer is the command surface of an embedded remote player.
type EmbedPlayer interface {
	PlayVideo() error
	PauseVideo() error
	StopVideo() error
	SeekTo(seconds float64) error
	CurrentTime() float64
	Duration() float64
	State() EmbedState
}

// Ready is a one-shot future resolved with the embed player once it has
// loaded.
type Ready struct {
	once   sync.Once
	done   chan struct{}
	player EmbedPlayer
}

func NewReady() *Ready {
	return &Ready{done: make(chan struct{})}
}

// Resolve reports whether this call resolved the future.
func (r *Ready) Resolve(p EmbedPlayer) bool {
	resolved := false
	r.once.Do(func() {
		r.player = p
		close(r.done)
		resolved = true
	})
	return resolved
}

func (r *Ready) Done() <-chan struct{} { return r.done }

func (r *Ready) Player() (EmbedPlayer, bool) {
	select {
	case <-r.done:
		return r.player, true
	default:
		return nil, false
	}
}

// RemoteEmbed adapts an EmbedPlayer to Backend. The embed has no push
// notifications, so a polling goroutine derives progress and ended.
type RemoteEmbed struct {
	ref      string
	label    string
	ready    *Ready
	interval time.Duration

	mu         sync.Mutex
	onEnded    func()
	onProgress func(current, duration float64)
	closed     bool

	cancel  context.CancelFunc
	stopped chan struct{}
}

var _ Backend = (*RemoteEmbed)(nil)

func NewRemoteEmbed(ref, label string, ready *Ready, interval time.Duration) *RemoteEmbed {
	interval = progressInterval(interval)
	if label == "" {
		label = ref
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &RemoteEmbed{
		ref:      ref,
		label:    label,
		ready:    ready,
		interval: interval,
		cancel:   cancel,
		stopped:  make(chan struct{}),
	}
	go r.poll(ctx)
	return r
}

// Ref 远端媒体标识（如视频 ID）
func (r *RemoteEmbed) Ref() string { return r.ref }

func (r *RemoteEmbed) player() (EmbedPlayer, error) {
	p, ok := r.ready.Player()
	if !ok {
		return nil, ErrBackendNotReady
	}
	return p, nil
}

func (r *RemoteEmbed) Play() error {
	p, err := r.player()
	if err != nil {
		return err
	}
	return p.PlayVideo()
}

func (r *RemoteEmbed) Pause() error {
	p, err := r.player()
	if err != nil {
		return err
	}
	return p.PauseVideo()
}

func (r *RemoteEmbed) Stop() error {
	p, err := r.player()
	if err != nil {
		return err
	}
	return p.StopVideo()
}

func (r *RemoteEmbed) Seek(seconds float64) error {
	p, err := r.player()
	if err != nil {
		return err
	}
	return p.SeekTo(max(seconds, 0))
}

func (r *RemoteEmbed) CurrentTime() float64 {
	p, err := r.player()
	if err != nil {
		return 0
	}
	return p.CurrentTime()
}

func (r *RemoteEmbed) Duration() float64 {
	p, err := r.player()
	if err != nil {
		return 0
	}
	return p.Duration()
}

func (r *RemoteEmbed) Label() string { return r.label }

func (r *RemoteEmbed) OnEnded(f func()) {
	r.mu.Lock()
	r.onEnded = f
	r.mu.Unlock()
}

func (r *RemoteEmbed) OnProgress(f func(current, duration float64)) {
	r.mu.Lock()
	r.onProgress = f
	r.mu.Unlock()
}

// Close stops the polling loop and drops registered callbacks.
func (r *RemoteEmbed) Close() error {
	r.mu.Lock()
	r.closed = true
	r.onEnded = nil
	r.onProgress = nil
	r.mu.Unlock()
	r.cancel()
	return nil
}

func (r *RemoteEmbed) poll(ctx context.Context) {
	defer close(r.stopped)

	select {
	case <-ctx.Done():
		return
	case <-r.ready.Done():
	}
	p, _ := r.ready.Player()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	last := EmbedUnstarted
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state := p.State()
			switch {
			case state == EmbedPlaying:
				r.emitProgress(p.CurrentTime(), p.Duration())
			case state == EmbedEnded && last != EmbedEnded:
				r.emitEnded()
			}
			last = state
		}
	}
}

func (r *RemoteEmbed) emitProgress(current, duration float64) {
	r.mu.Lock()
	cb := r.onProgress
	closed := r.closed
	r.mu.Unlock()
	if !closed && cb != nil {
		cb(current, duration)
	}
}

func (r *RemoteEmbed) emitEnded() {
	r.mu.Lock()
	cb := r.onEnded
	closed := r.closed
	r.mu.Unlock()
	if !closed && cb != nil {
		cb()
	}
}
