package playback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"karaoke-backend/internal/player"

	"github.com/dhowden/tag"
	"github.com/rs/zerolog/log"
)

var errElementClosed = errors.New("media element closed")

// ExecElement plays a local file through an external player process.
// Position is tracked by wall clock from the last start offset; seeking
// restarts the process at the new offset.
type ExecElement struct {
	path     string
	player   string
	duration float64
	interval time.Duration

	mu        sync.Mutex
	cmd       *exec.Cmd
	gen       int
	playing   bool
	offset    float64
	startedAt time.Time
	stopTick  chan struct{}
	onTime    func()
	onEnded   func()
	closed    bool
}

var _ MediaElement = (*ExecElement)(nil)

// NewExecElement 检查文件和播放器，时长取自 ffprobe（失败时为 0）
func NewExecElement(ctx context.Context, path string, players []string, interval time.Duration) (*ExecElement, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}
	name, err := player.Find(players)
	if err != nil {
		return nil, err
	}
	duration, err := player.ProbeDuration(ctx, path)
	if err != nil {
		log.Debug().Err(err).Str("file", path).Msg("Unknown media duration")
	}
	interval = progressInterval(interval)

	return &ExecElement{
		path:     path,
		player:   name,
		duration: duration,
		interval: interval,
	}, nil
}

func (e *ExecElement) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return errElementClosed
	}
	if e.playing {
		return nil
	}
	if e.duration > 0 && e.offset >= e.duration {
		e.offset = 0
	}
	return e.startLocked()
}

func (e *ExecElement) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	return nil
}

func (e *ExecElement) SetCurrentTime(seconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return errElementClosed
	}
	seconds = max(seconds, 0)
	if e.duration > 0 {
		seconds = min(seconds, e.duration)
	}

	wasPlaying := e.playing
	e.stopLocked()
	e.offset = seconds
	if wasPlaying {
		return e.startLocked()
	}
	return nil
}

func (e *ExecElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked()
}

func (e *ExecElement) Duration() float64 { return e.duration }

func (e *ExecElement) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.playing
}

func (e *ExecElement) Subscribe(onTimeUpdate, onEnded func()) {
	e.mu.Lock()
	e.onTime = onTimeUpdate
	e.onEnded = onEnded
	e.mu.Unlock()
}

func (e *ExecElement) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	e.closed = true
	return nil
}

func (e *ExecElement) positionLocked() float64 {
	if !e.playing {
		return e.offset
	}
	pos := e.offset + time.Since(e.startedAt).Seconds()
	if e.duration > 0 {
		pos = min(pos, e.duration)
	}
	return pos
}

func (e *ExecElement) startLocked() error {
	cmd, err := player.Command(context.Background(), e.player, e.path, e.offset)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("playback failed with %s: %w", e.player, err)
	}

	e.gen++
	e.cmd = cmd
	e.playing = true
	e.startedAt = time.Now()
	e.stopTick = make(chan struct{})

	go e.tick(e.stopTick)
	go e.wait(cmd, e.gen)
	return nil
}

func (e *ExecElement) stopLocked() {
	if !e.playing {
		return
	}
	e.offset = e.positionLocked()
	e.playing = false
	e.gen++
	close(e.stopTick)
	if e.cmd != nil && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
	e.cmd = nil
}

func (e *ExecElement) wait(cmd *exec.Cmd, gen int) {
	err := cmd.Wait()

	e.mu.Lock()
	if gen != e.gen {
		// 被 Pause/Seek 主动终止
		e.mu.Unlock()
		return
	}
	e.playing = false
	e.gen++
	close(e.stopTick)
	e.cmd = nil
	if e.duration > 0 {
		e.offset = e.duration
	} else {
		e.offset += time.Since(e.startedAt).Seconds()
	}
	cb := e.onEnded
	e.mu.Unlock()

	if err != nil {
		log.Debug().Err(err).Str("player", e.player).Msg("Player exited with error")
	}
	if cb != nil {
		cb()
	}
}

func (e *ExecElement) tick(stop <-chan struct{}) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			cb := e.onTime
			e.mu.Unlock()
			if cb != nil {
				cb()
			}
		}
	}
}

// LabelFor 读取音频文件标签生成 "Artist - Title"，没有标签时使用文件名
func LabelFor(path string) string {
	fallback := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	f, err := os.Open(path)
	if err != nil {
		return fallback
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return fallback
	}
	title := strings.TrimSpace(m.Title())
	artist := strings.TrimSpace(m.Artist())
	switch {
	case title != "" && artist != "":
		return artist + " - " + title
	case title != "":
		return title
	default:
		return fallback
	}
}

// OpenLocal 用外部播放器打开本地文件
func OpenLocal(ctx context.Context, path string, players []string, interval time.Duration) (*LocalMedia, error) {
	el, err := NewExecElement(ctx, path, players, interval)
	if err != nil {
		return nil, err
	}
	return NewLocalMedia(el, LabelFor(path), interval), nil
}
