package playback

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeElement struct {
	mu       sync.Mutex
	current  float64
	duration float64
	paused   bool
	onTime   func()
	onEnded  func()
	closed   bool
}

func (f *fakeElement) Play() error  { f.mu.Lock(); f.paused = false; f.mu.Unlock(); return nil }
func (f *fakeElement) Pause() error { f.mu.Lock(); f.paused = true; f.mu.Unlock(); return nil }
func (f *fakeElement) SetCurrentTime(s float64) error {
	f.mu.Lock()
	f.current = s
	f.mu.Unlock()
	return nil
}
func (f *fakeElement) CurrentTime() float64 { f.mu.Lock(); defer f.mu.Unlock(); return f.current }
func (f *fakeElement) Duration() float64    { return f.duration }
func (f *fakeElement) Paused() bool         { f.mu.Lock(); defer f.mu.Unlock(); return f.paused }
func (f *fakeElement) Subscribe(onTime, onEnded func()) {
	f.onTime = onTime
	f.onEnded = onEnded
}
func (f *fakeElement) Close() error { f.closed = true; return nil }

func TestLocalMediaThrottlesProgress(t *testing.T) {
	el := &fakeElement{duration: 30}
	lm := NewLocalMedia(el, "song", 100*time.Millisecond)

	now := time.Unix(1000, 0)
	lm.now = func() time.Time { return now }

	var calls int
	lm.OnProgress(func(current, duration float64) { calls++ })

	el.onTime()
	now = now.Add(40 * time.Millisecond)
	el.onTime()
	now = now.Add(40 * time.Millisecond)
	el.onTime()
	now = now.Add(30 * time.Millisecond)
	el.onTime()

	if calls != 2 {
		t.Errorf("expected 2 progress callbacks within 110ms at 10Hz, got %d", calls)
	}
}

func TestLocalMediaProgressNeverExceeds10Hz(t *testing.T) {
	el := &fakeElement{duration: 30}
	lm := NewLocalMedia(el, "song", 10*time.Millisecond)

	now := time.Unix(1000, 0)
	lm.now = func() time.Time { return now }

	var calls int
	lm.OnProgress(func(current, duration float64) { calls++ })

	// 100 timeupdates over one second
	for i := 0; i < 100; i++ {
		el.onTime()
		now = now.Add(10 * time.Millisecond)
	}
	if calls > 10 {
		t.Errorf("expected at most 10 progress callbacks in 1s, got %d", calls)
	}

	if r := NewRemoteEmbed("abc123", "", NewReady(), time.Millisecond); r.interval != DefaultProgressInterval {
		t.Errorf("remote poll interval = %v, want %v", r.interval, DefaultProgressInterval)
	} else {
		r.Close()
	}
}

func TestLocalMediaSeekClampsAndStopRewinds(t *testing.T) {
	el := &fakeElement{duration: 30}
	lm := NewLocalMedia(el, "song", 0)

	if err := lm.Seek(45); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if got := lm.CurrentTime(); got != 30 {
		t.Errorf("expected seek clamped to 30, got %v", got)
	}
	if err := lm.Seek(-3); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if got := lm.CurrentTime(); got != 0 {
		t.Errorf("expected seek clamped to 0, got %v", got)
	}

	_ = lm.Play()
	_ = lm.Seek(12)
	if err := lm.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !el.Paused() || el.CurrentTime() != 0 {
		t.Errorf("expected paused at 0 after Stop, got paused=%v at %v", el.Paused(), el.CurrentTime())
	}
}

func TestLocalMediaCloseDropsCallbacks(t *testing.T) {
	el := &fakeElement{duration: 30}
	lm := NewLocalMedia(el, "song", 0)

	ended := 0
	lm.OnEnded(func() { ended++ })
	el.onEnded()
	if err := lm.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	el.onEnded()

	if ended != 1 {
		t.Errorf("expected ended once before Close, got %d", ended)
	}
	if !el.closed {
		t.Error("expected element closed")
	}
}

type fakeEmbed struct {
	mu      sync.Mutex
	state   EmbedState
	current float64
	plays   int
}

func (f *fakeEmbed) PlayVideo() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays++
	f.state = EmbedPlaying
	return nil
}
func (f *fakeEmbed) PauseVideo() error { f.set(EmbedPaused); return nil }
func (f *fakeEmbed) StopVideo() error  { f.set(EmbedCued); return nil }
func (f *fakeEmbed) SeekTo(s float64) error {
	f.mu.Lock()
	f.current = s
	f.mu.Unlock()
	return nil
}
func (f *fakeEmbed) CurrentTime() float64 { f.mu.Lock(); defer f.mu.Unlock(); return f.current }
func (f *fakeEmbed) Duration() float64    { return 200 }
func (f *fakeEmbed) State() EmbedState    { f.mu.Lock(); defer f.mu.Unlock(); return f.state }
func (f *fakeEmbed) set(s EmbedState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func TestRemoteEmbedNotReady(t *testing.T) {
	ready := NewReady()
	r := NewRemoteEmbed("abc123", "", ready, 5*time.Millisecond)
	defer r.Close()

	for name, cmd := range map[string]func() error{
		"play":  r.Play,
		"pause": r.Pause,
		"stop":  r.Stop,
		"seek":  func() error { return r.Seek(10) },
	} {
		if err := cmd(); !errors.Is(err, ErrBackendNotReady) {
			t.Errorf("%s before ready: expected ErrBackendNotReady, got %v", name, err)
		}
	}
	if r.CurrentTime() != 0 || r.Duration() != 0 {
		t.Error("expected zero time and duration before ready")
	}
	if r.Label() != "abc123" {
		t.Errorf("expected label to fall back to ref, got %q", r.Label())
	}

	embed := &fakeEmbed{}
	if !ready.Resolve(embed) {
		t.Fatal("expected first Resolve to succeed")
	}
	if ready.Resolve(&fakeEmbed{}) {
		t.Error("expected second Resolve to be ignored")
	}
	if err := r.Play(); err != nil {
		t.Fatalf("Play after ready: %v", err)
	}
	if embed.plays != 1 {
		t.Errorf("expected one play on the resolved player, got %d", embed.plays)
	}
}

func TestRemoteEmbedPollsProgressAndEnded(t *testing.T) {
	ready := NewReady()
	embed := &fakeEmbed{}
	ready.Resolve(embed)

	r := NewRemoteEmbed("abc123", "Song", ready, 2*time.Millisecond)

	progress := make(chan float64, 64)
	ended := make(chan struct{}, 4)
	r.OnProgress(func(current, duration float64) {
		select {
		case progress <- current:
		default:
		}
	})
	r.OnEnded(func() { ended <- struct{}{} })

	_ = r.Seek(3)
	_ = r.Play()

	select {
	case got := <-progress:
		if got != 3 {
			t.Errorf("expected progress at 3, got %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no progress while playing")
	}

	embed.set(EmbedEnded)
	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("ended not detected")
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-r.stopped:
	case <-time.After(time.Second):
		t.Fatal("polling loop still running after Close")
	}
	select {
	case <-ended:
		t.Error("ended fired twice for a single end")
	default:
	}
}

func TestRemoteEmbedCloseBeforeReady(t *testing.T) {
	r := NewRemoteEmbed("abc123", "", NewReady(), time.Millisecond)
	r.Close()

	select {
	case <-r.stopped:
	case <-time.After(time.Second):
		t.Fatal("polling loop did not exit while waiting for readiness")
	}
}
