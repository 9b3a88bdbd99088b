// Package practice drives the line-by-line "listen, then sing" loop over a
// playback backend, the lyric timeline and the recorder.
//
// Every transition runs under one mutex. Timer, backend and recorder
// callbacks arrive on their own goroutines and re-enter through guarded
// handlers that check the run id and phase before acting, so late
// callbacks from a stopped run or a replaced source have no effect.
package practice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"karaoke-backend/internal/lyrics"
	"karaoke-backend/internal/playback"
	"karaoke-backend/internal/recorder"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoLyrics       = errors.New("no lyrics loaded")
	ErrNoSource       = errors.New("no playback source loaded")
	ErrPracticeActive = errors.New("practice already running")
)

const (
	DefaultLineWindow   = 5 * time.Second
	DefaultAdvancePause = 2 * time.Second
)

// logger 按需创建，跟随 log.Logger 的当前输出
func logger() *zerolog.Logger {
	l := log.With().Str("component", "practice").Logger()
	return &l
}

// Recorder is the capture side used by the machine.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (*recorder.Artifact, error)
	Cancel()
	Available() bool
}

// ArtifactPlayer plays a recorded take without blocking. onEnded fires on
// natural end only; the returned func stops playback.
type ArtifactPlayer interface {
	Play(ctx context.Context, mimeType string, data []byte, onEnded func()) (func(), error)
}

type Config struct {
	LineWindow   time.Duration
	AdvancePause time.Duration
}

type timerKind int

const (
	lineTimer timerKind = iota
	advanceTimer
)

type runState struct {
	id        uint64
	line      int
	phase     Phase
	lineStart float64

	timer    Timer
	timerSeq uint64

	artifact   *recorder.Artifact
	stopReview func()

	starting  bool
	finishing bool
	reviewing bool
	advancing bool
}

type Machine struct {
	timeline *lyrics.Timeline
	rec      Recorder
	player   ArtifactPlayer
	clock    Clock
	cfg      Config

	mu        sync.Mutex
	source    playback.Backend
	sourceGen uint64
	run       *runState
	runSeq    uint64
	highlight int
	status    string
	observers []func(Event)
	pending   []Event
	after     []func()

	deliverMu sync.Mutex
}

// New 创建状态机。rec 或 player 为 nil 时只能听不能录。
func New(timeline *lyrics.Timeline, rec Recorder, player ArtifactPlayer, clock Clock, cfg Config) *Machine {
	if clock == nil {
		clock = RealClock
	}
	if cfg.LineWindow <= 0 {
		cfg.LineWindow = DefaultLineWindow
	}
	if cfg.AdvancePause <= 0 {
		cfg.AdvancePause = DefaultAdvancePause
	}
	return &Machine{
		timeline:  timeline,
		rec:       rec,
		player:    player,
		clock:     clock,
		cfg:       cfg,
		highlight: -1,
	}
}

// Subscribe registers an observer. Observers run outside the machine lock
// but must not call back into the machine synchronously.
func (m *Machine) Subscribe(f func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obs := make([]func(Event), len(m.observers), len(m.observers)+1)
	copy(obs, m.observers)
	m.observers = append(obs, f)
}

// Timeline 状态机使用的歌词时间轴
func (m *Machine) Timeline() *lyrics.Timeline { return m.timeline }

// do runs fn under the lock, delivers the queued events in transition
// order, then runs deferred cleanups outside both locks.
func (m *Machine) do(fn func() error) error {
	m.mu.Lock()
	err := fn()
	events := m.pending
	after := m.after
	observers := m.observers
	m.pending = nil
	m.after = nil
	m.deliverMu.Lock()
	m.mu.Unlock()

	for _, ev := range events {
		for _, o := range observers {
			o(ev)
		}
	}
	m.deliverMu.Unlock()

	for _, f := range after {
		f()
	}
	return err
}

func (m *Machine) deferLocked(f func()) {
	m.after = append(m.after, f)
}

func (m *Machine) phaseLocked() Phase {
	if m.run == nil {
		return Idle
	}
	return m.run.phase
}

func (m *Machine) emitLocked(ev Event) {
	ev.Phase = m.phaseLocked()
	ev.Line = m.highlight
	ev.Lines = m.timeline.Len()
	m.pending = append(m.pending, ev)
}

func (m *Machine) statusLocked(format string, args ...any) {
	m.status = fmt.Sprintf(format, args...)
	m.emitLocked(Event{Kind: Status, Status: m.status})
}

func (m *Machine) setPhaseLocked(run *runState, p Phase) {
	if run.phase == p {
		return
	}
	logger().Debug().Stringer("from", run.phase).Stringer("to", p).Int("line", run.line).Msg("Phase change")
	run.phase = p
	m.emitLocked(Event{Kind: PhaseChanged})
}

func (m *Machine) setHighlightLocked(line int) {
	if m.highlight == line {
		return
	}
	m.highlight = line
	m.emitLocked(Event{Kind: LineChanged})
}

// backend commands are best-effort; failures never change state
func (m *Machine) sourceCmd(name string, f func() error) {
	if err := f(); err != nil {
		logger().Debug().Err(err).Str("command", name).Msg("Playback command dropped")
	}
}

// ---- source ----

// SetSource 切换播放源：正在练习时先停止，旧的播放源关闭后再挂接新播放源
func (m *Machine) SetSource(b playback.Backend) {
	var old playback.Backend
	m.do(func() error {
		old = m.source
		m.stopLocked("Practice stopped: new song loaded.")
		m.source = nil
		m.sourceGen++
		m.setHighlightLocked(-1)
		return nil
	})

	if old != nil && old != b {
		if err := old.Close(); err != nil {
			logger().Debug().Err(err).Msg("Failed to close previous source")
		}
	}
	if b == nil {
		return
	}

	m.do(func() error {
		m.sourceGen++
		gen := m.sourceGen
		m.source = b
		b.OnEnded(func() { m.handleEnded(gen) })
		b.OnProgress(func(current, duration float64) { m.handleProgress(gen, current, duration) })
		m.statusLocked("Loaded: %s", b.Label())
		return nil
	})
}

// Source 当前播放源
func (m *Machine) Source() playback.Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source
}

// Play 练习之外的自由播放；练习中只有进入 LinePlaying 时才会播放
func (m *Machine) Play() {
	m.do(func() error {
		if m.source == nil {
			m.statusLocked("Load a song first.")
			return nil
		}
		if m.run != nil {
			return nil
		}
		m.sourceCmd("play", m.source.Play)
		return nil
	})
}

func (m *Machine) Pause() {
	m.do(func() error {
		if m.source != nil {
			m.sourceCmd("pause", m.source.Pause)
		}
		return nil
	})
}

// StopAudio 停止播放并回到开头，同时结束练习
func (m *Machine) StopAudio() {
	m.do(func() error {
		m.stopLocked("Practice stopped.")
		if m.source != nil {
			m.sourceCmd("stop", m.source.Stop)
		}
		return nil
	})
}

func (m *Machine) Seek(seconds float64) {
	m.do(func() error {
		if m.source != nil && m.run == nil {
			m.sourceCmd("seek", func() error { return m.source.Seek(seconds) })
		}
		return nil
	})
}

// ---- lyrics ----

// EditLines 替换歌词文本，清空全部时间；正在练习时先停止
func (m *Machine) EditLines(texts []string) {
	m.do(func() error {
		m.stopLocked("Practice stopped: lyrics changed.")
		m.timeline.SetLines(texts)
		m.setHighlightLocked(-1)
		m.statusLocked("Lyrics set: %d lines.", m.timeline.Len())
		return nil
	})
}

// LoadLines 载入带时间的歌词（会话恢复或歌词查询结果）
func (m *Machine) LoadLines(lines []lyrics.Line) {
	m.do(func() error {
		m.stopLocked("Practice stopped: lyrics changed.")
		m.timeline.Replace(lines)
		m.setHighlightLocked(-1)
		m.statusLocked("Lyrics loaded: %d lines.", m.timeline.Len())
		return nil
	})
}

// SyncLine 把当前播放时间记为某行的开始时间
func (m *Machine) SyncLine(index int) error {
	return m.do(func() error {
		if m.source == nil {
			m.statusLocked("Load a song before syncing.")
			return ErrNoSource
		}
		at := m.source.CurrentTime()
		if err := m.timeline.RecordTiming(index, at); err != nil {
			m.statusLocked("Cannot sync line %d.", index+1)
			return err
		}
		m.statusLocked("Line %d synced at %.2fs.", index+1, at)
		return nil
	})
}

func (m *Machine) ClearTimings() {
	m.do(func() error {
		m.timeline.ClearTimings()
		m.statusLocked("Timings cleared.")
		return nil
	})
}

// ---- practice ----

// Start 从第 0 行开始练习
func (m *Machine) Start() error {
	return m.do(func() error {
		if m.run != nil {
			m.statusLocked("Practice is already running.")
			return ErrPracticeActive
		}
		if m.timeline.Len() == 0 {
			m.statusLocked("Add lyrics before practicing.")
			return ErrNoLyrics
		}
		if m.source == nil {
			m.statusLocked("Load a song before practicing.")
			return ErrNoSource
		}

		m.runSeq++
		run := &runState{id: m.runSeq}
		m.run = run
		logger().Info().Uint64("run", run.id).Int("lines", m.timeline.Len()).Msg("Practice started")

		m.sourceCmd("seek", func() error { return m.source.Seek(0) })
		m.playLineLocked(run, false)
		return nil
	})
}

// Stop 任意状态下都可调用，幂等
func (m *Machine) Stop() {
	m.do(func() error {
		m.stopLocked("Practice stopped.")
		return nil
	})
}

func (m *Machine) stopLocked(reason string) {
	run := m.run
	if run == nil {
		return
	}
	m.cancelTimerLocked(run)
	if stop := run.stopReview; stop != nil {
		run.stopReview = nil
		m.deferLocked(stop)
	}
	if m.rec != nil && (run.phase == Recording || run.starting || run.finishing) {
		m.deferLocked(m.rec.Cancel)
	}
	if m.source != nil {
		m.sourceCmd("pause", m.source.Pause)
	}

	run.artifact = nil
	m.run = nil
	m.setHighlightLocked(-1)
	m.emitLocked(Event{Kind: PhaseChanged})
	if reason != "" {
		m.statusLocked("%s", reason)
	}
	logger().Info().Uint64("run", run.id).Msg("Practice ended")
}

func (m *Machine) playLineLocked(run *runState, replay bool) {
	run.advancing = false
	run.artifact = nil

	if start, ok := m.timeline.StartOf(run.line); ok {
		m.sourceCmd("seek", func() error { return m.source.Seek(start) })
	} else if replay {
		m.sourceCmd("seek", func() error { return m.source.Seek(run.lineStart) })
	}
	run.lineStart = m.source.CurrentTime()

	m.setPhaseLocked(run, LinePlaying)
	m.setHighlightLocked(run.line)
	m.sourceCmd("play", m.source.Play)
	m.armTimerLocked(run, m.cfg.LineWindow, lineTimer)
	m.statusLocked("Listen: line %d of %d.", run.line+1, m.timeline.Len())
}

// lineEndedLocked is the single guarded exit of LinePlaying, shared by
// the ended signal and the line timer.
func (m *Machine) lineEndedLocked(run *runState) {
	if run.phase != LinePlaying || run.advancing {
		return
	}
	m.cancelTimerLocked(run)
	m.sourceCmd("pause", m.source.Pause)
	m.setPhaseLocked(run, AwaitingRecording)

	if m.rec == nil || !m.rec.Available() {
		m.statusLocked("Line %d done. Recording is unavailable; skip to continue.", run.line+1)
		return
	}
	m.statusLocked("Line %d done. Press record and sing it.", run.line+1)
}

func (m *Machine) armTimerLocked(run *runState, d time.Duration, kind timerKind) {
	m.cancelTimerLocked(run)
	id, seq := run.id, run.timerSeq
	run.timer = m.clock.AfterFunc(d, func() { m.handleTimer(id, seq, kind) })
}

func (m *Machine) cancelTimerLocked(run *runState) {
	if run.timer != nil {
		run.timer.Stop()
		run.timer = nil
	}
	run.timerSeq++
}

func (m *Machine) handleTimer(id, seq uint64, kind timerKind) {
	m.do(func() error {
		run := m.run
		if run == nil || run.id != id || run.timerSeq != seq {
			return nil
		}
		run.timer = nil

		switch kind {
		case lineTimer:
			m.lineEndedLocked(run)
		case advanceTimer:
			if run.advancing {
				m.playLineLocked(run, false)
			}
		}
		return nil
	})
}

func (m *Machine) handleEnded(gen uint64) {
	m.do(func() error {
		if gen != m.sourceGen || m.run == nil {
			return nil
		}
		m.lineEndedLocked(m.run)
		return nil
	})
}

func (m *Machine) handleProgress(gen uint64, current, duration float64) {
	m.do(func() error {
		if gen != m.sourceGen {
			return nil
		}
		if m.run == nil {
			if idx, ok := m.timeline.ActiveLineAt(current); ok {
				m.setHighlightLocked(idx)
			}
		}
		m.emitLocked(Event{Kind: Progress, Current: current, Duration: duration})
		return nil
	})
}

// BeginRecording 只在 AwaitingRecording 中有效，其他状态静默忽略。
// 录音器启动在锁外进行，返回后按 run id 重新校验。
func (m *Machine) BeginRecording(ctx context.Context) error {
	var id uint64
	err := m.do(func() error {
		run := m.run
		if run == nil || run.phase != AwaitingRecording || run.advancing || run.starting {
			return nil
		}
		if m.rec == nil {
			m.statusLocked("Recording is unavailable; listen-only mode.")
			return recorder.ErrPermissionDenied
		}
		run.starting = true
		id = run.id
		m.statusLocked("Starting microphone...")
		return nil
	})
	if err != nil || id == 0 {
		return err
	}

	startErr := m.rec.Start(ctx)

	return m.do(func() error {
		run := m.run
		if run == nil || run.id != id || !run.starting {
			if startErr == nil {
				m.deferLocked(m.rec.Cancel)
			}
			return nil
		}
		run.starting = false

		if run.phase != AwaitingRecording || run.advancing {
			if startErr == nil {
				m.deferLocked(m.rec.Cancel)
			}
			return nil
		}
		if startErr != nil {
			m.emitLocked(Event{Kind: RecorderAvailability, Available: m.rec.Available()})
			switch {
			case errors.Is(startErr, recorder.ErrPermissionDenied):
				m.statusLocked("Microphone permission denied; listen-only mode.")
			case errors.Is(startErr, recorder.ErrUnsupportedFormat):
				m.statusLocked("No supported recording format.")
			default:
				m.statusLocked("Recording failed: %v", startErr)
			}
			return startErr
		}

		m.setPhaseLocked(run, Recording)
		m.emitLocked(Event{Kind: RecorderAvailability, Available: true})
		m.statusLocked("Recording line %d... stop when done.", run.line+1)
		return nil
	})
}

// EndRecording 结束录音并进入回放审听
func (m *Machine) EndRecording() error {
	var id uint64
	m.do(func() error {
		run := m.run
		if run == nil || run.phase != Recording || run.finishing {
			return nil
		}
		run.finishing = true
		id = run.id
		return nil
	})
	if id == 0 {
		return nil
	}

	art, stopErr := m.rec.Stop()

	return m.do(func() error {
		run := m.run
		if run == nil || run.id != id || !run.finishing {
			return nil
		}
		run.finishing = false
		if run.phase != Recording {
			return nil
		}
		if stopErr != nil {
			m.setPhaseLocked(run, AwaitingRecording)
			m.statusLocked("Recording failed: %v", stopErr)
			return stopErr
		}

		art.Line = run.line
		run.artifact = art
		m.setPhaseLocked(run, Reviewing)
		m.emitLocked(Event{Kind: ArtifactReady, Artifact: art})
		m.statusLocked("Recorded line %d. Review your take.", run.line+1)
		return nil
	})
}

// ReviewPlayback 播放本行录音，自然结束后自动进入下一行
func (m *Machine) ReviewPlayback(ctx context.Context) error {
	var (
		id  uint64
		art *recorder.Artifact
	)
	err := m.do(func() error {
		run := m.run
		if run == nil || run.phase != Reviewing || run.advancing || run.reviewing || run.artifact == nil {
			return nil
		}
		if m.player == nil {
			m.statusLocked("No player for recorded takes.")
			return errors.New("no artifact player configured")
		}
		run.reviewing = true
		id, art = run.id, run.artifact
		return nil
	})
	if err != nil || art == nil {
		return err
	}

	stop, playErr := m.player.Play(ctx, art.MimeType, art.Data, func() { m.handleReviewEnded(id, art) })

	return m.do(func() error {
		run := m.run
		if run == nil || run.id != id || !run.reviewing || run.artifact != art {
			if playErr == nil {
				m.deferLocked(stop)
			}
			return nil
		}
		if playErr != nil {
			run.reviewing = false
			m.statusLocked("Cannot play recording: %v", playErr)
			return playErr
		}
		run.stopReview = stop
		m.statusLocked("Playing back line %d...", run.line+1)
		return nil
	})
}

func (m *Machine) handleReviewEnded(id uint64, art *recorder.Artifact) {
	m.do(func() error {
		run := m.run
		if run == nil || run.id != id || run.phase != Reviewing || !run.reviewing || run.artifact != art {
			return nil
		}
		run.reviewing = false
		run.stopReview = nil
		m.advanceLocked(run)
		return nil
	})
}

// advanceLocked moves to the next line after the pause window, or
// completes the run.
func (m *Machine) advanceLocked(run *runState) {
	m.cancelTimerLocked(run)
	if stop := run.stopReview; stop != nil {
		run.stopReview = nil
		m.deferLocked(stop)
	}
	run.reviewing = false
	run.artifact = nil

	next, ok := m.timeline.LineAfter(run.line)
	if !ok {
		m.setPhaseLocked(run, Complete)
		m.statusLocked("Practice complete!")
		m.stopLocked("")
		return
	}

	run.line = next
	run.advancing = true
	m.armTimerLocked(run, m.cfg.AdvancePause, advanceTimer)
	m.statusLocked("Next: line %d of %d.", next+1, m.timeline.Len())
}

// Skip 不录音直接进入下一行
func (m *Machine) Skip() {
	m.do(func() error {
		run := m.run
		if run == nil || run.advancing || run.starting || run.finishing {
			return nil
		}
		switch run.phase {
		case LinePlaying:
			m.sourceCmd("pause", m.source.Pause)
		case Recording:
			m.deferLocked(m.rec.Cancel)
		case AwaitingRecording, Reviewing:
		default:
			return nil
		}
		m.advanceLocked(run)
		return nil
	})
}

// Retry 丢弃本行录音重新录
func (m *Machine) Retry() {
	m.do(func() error {
		run := m.run
		if run == nil || run.phase != Reviewing || run.advancing {
			return nil
		}
		if stop := run.stopReview; stop != nil {
			run.stopReview = nil
			m.deferLocked(stop)
		}
		run.reviewing = false
		run.artifact = nil
		m.setPhaseLocked(run, AwaitingRecording)
		m.statusLocked("Take discarded. Press record to try line %d again.", run.line+1)
		return nil
	})
}

// ReplayLine 录音前再听一遍本行
func (m *Machine) ReplayLine() {
	m.do(func() error {
		run := m.run
		if run == nil || run.phase != AwaitingRecording || run.advancing || run.starting {
			return nil
		}
		m.playLineLocked(run, true)
		return nil
	})
}

// HandleRecorderLost 录音中设备丢失，回到等待录音
func (m *Machine) HandleRecorderLost() {
	m.do(func() error {
		if run := m.run; run != nil && run.phase == Recording && !run.finishing {
			m.setPhaseLocked(run, AwaitingRecording)
			m.statusLocked("Microphone lost. Press record to try again.")
		}
		avail := m.rec != nil && m.rec.Available()
		m.emitLocked(Event{Kind: RecorderAvailability, Available: avail})
		return nil
	})
}

// RecorderChanged 录音器可用性变化后通知观察者
func (m *Machine) RecorderChanged() {
	m.do(func() error {
		m.emitLocked(Event{Kind: RecorderAvailability, Available: m.rec != nil && m.rec.Available()})
		return nil
	})
}

// Snapshot 当前状态
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Phase:     m.phaseLocked(),
		Line:      m.highlight,
		Lines:     m.timeline.Len(),
		CanRecord: m.rec != nil && m.rec.Available(),
		Status:    m.status,
	}
	if m.run != nil {
		s.Line = m.run.line
		s.Advancing = m.run.advancing
		s.HasArtifact = m.run.artifact != nil
	}
	if m.source != nil {
		s.Source = m.source.Label()
		s.Current = m.source.CurrentTime()
		s.Duration = m.source.Duration()
	}
	return s
}
