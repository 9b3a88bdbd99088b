package app

import (
	"sync"

	"karaoke-backend/internal/playback"
)

// mediaCommand 发给展示端的播放指令
type mediaCommand struct {
	Type    string  `json:"type"`
	Target  string  `json:"target"` // audio, embed
	Command string  `json:"command"`
	Seconds float64 `json:"seconds,omitempty"`
	Ref     string  `json:"ref,omitempty"`
}

// mediaStatus 展示端回报的播放状态
type mediaStatus struct {
	Current  float64 `json:"current"`
	Duration float64 `json:"duration"`
	Paused   bool    `json:"paused"`
	State    int     `json:"state"`
}

// ipcElement 展示端的 <audio> 元素，命令通过 IPC 下发，状态通过 media_status 回传
type ipcElement struct {
	send func(mediaCommand)

	mu       sync.Mutex
	current  float64
	duration float64
	paused   bool
	onTime   func()
	onEnded  func()
	closed   bool
}

var _ playback.MediaElement = (*ipcElement)(nil)

func newIPCElement(send func(mediaCommand)) *ipcElement {
	return &ipcElement{send: send, paused: true}
}

func (e *ipcElement) command(name string, seconds float64) error {
	e.send(mediaCommand{Type: "media_command", Target: "audio", Command: name, Seconds: seconds})
	return nil
}

func (e *ipcElement) Play() error {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	return e.command("play", 0)
}

func (e *ipcElement) Pause() error {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	return e.command("pause", 0)
}

func (e *ipcElement) SetCurrentTime(seconds float64) error {
	e.mu.Lock()
	e.current = seconds
	e.mu.Unlock()
	return e.command("seek", seconds)
}

func (e *ipcElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *ipcElement) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *ipcElement) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *ipcElement) Subscribe(onTimeUpdate, onEnded func()) {
	e.mu.Lock()
	e.onTime = onTimeUpdate
	e.onEnded = onEnded
	e.mu.Unlock()
}

func (e *ipcElement) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return e.command("unload", 0)
}

// update runs on the IPC connection goroutine.
func (e *ipcElement) update(st mediaStatus) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.current = st.Current
	e.duration = st.Duration
	e.paused = st.Paused
	cb := e.onTime
	e.mu.Unlock()

	if cb != nil && !st.Paused {
		cb()
	}
}

func (e *ipcElement) ended() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.paused = true
	cb := e.onEnded
	e.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// ipcEmbedPlayer 展示端的嵌入式视频播放器
type ipcEmbedPlayer struct {
	ref  string
	send func(mediaCommand)

	mu       sync.Mutex
	current  float64
	duration float64
	state    playback.EmbedState
}

var _ playback.EmbedPlayer = (*ipcEmbedPlayer)(nil)

func newIPCEmbedPlayer(ref string, send func(mediaCommand)) *ipcEmbedPlayer {
	return &ipcEmbedPlayer{ref: ref, send: send, state: playback.EmbedUnstarted}
}

func (p *ipcEmbedPlayer) command(name string, seconds float64) error {
	p.send(mediaCommand{Type: "media_command", Target: "embed", Command: name, Seconds: seconds, Ref: p.ref})
	return nil
}

func (p *ipcEmbedPlayer) PlayVideo() error  { return p.command("play", 0) }
func (p *ipcEmbedPlayer) PauseVideo() error { return p.command("pause", 0) }
func (p *ipcEmbedPlayer) StopVideo() error  { return p.command("stop", 0) }

func (p *ipcEmbedPlayer) SeekTo(seconds float64) error {
	p.mu.Lock()
	p.current = seconds
	p.mu.Unlock()
	return p.command("seek", seconds)
}

func (p *ipcEmbedPlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *ipcEmbedPlayer) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

func (p *ipcEmbedPlayer) State() playback.EmbedState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *ipcEmbedPlayer) update(st mediaStatus) {
	p.mu.Lock()
	p.current = st.Current
	p.duration = st.Duration
	p.state = playback.EmbedState(st.State)
	p.mu.Unlock()
}
