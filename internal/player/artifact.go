package player

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"karaoke-backend/pkg/fileutil"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// logger 按需创建，跟随 log.Logger 的当前输出
func logger() *zerolog.Logger {
	l := log.With().Str("component", "artifact-player").Logger()
	return &l
}

// ArtifactPlayer 把录音写入临时文件并交给外部播放器播放
type ArtifactPlayer struct {
	players []string
	tmpDir  string
}

// NewArtifactPlayer tmpDir 为空时使用系统临时目录
func NewArtifactPlayer(players []string, tmpDir string) *ArtifactPlayer {
	return &ArtifactPlayer{players: players, tmpDir: tmpDir}
}

// Play 非阻塞播放，返回停止函数。自然播放结束时在独立 goroutine 中调用 onEnded，
// 调用 stop 之后不会再触发 onEnded。
func (p *ArtifactPlayer) Play(ctx context.Context, mimeType string, data []byte, onEnded func()) (func(), error) {
	name, err := Find(p.players)
	if err != nil {
		return nil, err
	}

	if p.tmpDir != "" {
		if err := os.MkdirAll(p.tmpDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create take directory: %w", err)
		}
	}
	f, err := os.CreateTemp(p.tmpDir, "karaoke-take-*"+Extension(mimeType))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	f.Close()

	if err := fileutil.WriteFileOverwrite(path, data, 0600); err != nil {
		os.Remove(path)
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd, err := Command(ctx, name, path, 0)
	if err != nil {
		cancel()
		os.Remove(path)
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		os.Remove(path)
		return nil, fmt.Errorf("playback failed with %s: %w", name, err)
	}
	logger().Debug().Str("player", name).Str("file", path).Msg("Playing recorded take")

	var (
		mu      sync.Mutex
		stopped bool
	)
	go func() {
		err := cmd.Wait()
		os.Remove(path)
		cancel()

		mu.Lock()
		wasStopped := stopped
		stopped = true
		mu.Unlock()
		if wasStopped {
			return
		}
		if err != nil {
			logger().Debug().Err(err).Str("player", name).Msg("Player exited with error")
		}
		if onEnded != nil {
			onEnded()
		}
	}()

	stop := func() {
		mu.Lock()
		if stopped {
			mu.Unlock()
			return
		}
		stopped = true
		mu.Unlock()
		cancel()
	}
	return stop, nil
}

// Extension 根据录音 MIME 类型返回文件扩展名
func Extension(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	switch strings.TrimSpace(base) {
	case "audio/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "audio/mp4":
		return ".m4a"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	default:
		return ".bin"
	}
}
