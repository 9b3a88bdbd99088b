package player

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoPlayer 没有可用的外部播放器
var ErrNoPlayer = errors.New("no suitable audio player found")

// DefaultPlayers 外部播放器偏好顺序
var DefaultPlayers = []string{"mpv", "ffplay", "vlc"}

// Find 返回第一个在 PATH 中可用的播放器
func Find(players []string) (string, error) {
	if len(players) == 0 {
		players = DefaultPlayers
	}
	for _, p := range players {
		if _, err := exec.LookPath(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w (tried: %s)", ErrNoPlayer, strings.Join(players, ", "))
}

// Command 构造从 offset 秒处开始播放音频文件的命令
func Command(ctx context.Context, name, path string, offset float64) (*exec.Cmd, error) {
	start := strconv.FormatFloat(max(offset, 0), 'f', 3, 64)

	switch name {
	case "mpv":
		return exec.CommandContext(ctx, "mpv", "--no-video", "--really-quiet", "--start="+start, path), nil
	case "ffplay":
		return exec.CommandContext(ctx, "ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-ss", start, path), nil
	case "vlc":
		return exec.CommandContext(ctx, "vlc", "-I", "dummy", "--play-and-exit", "--start-time="+start, path), nil
	default:
		return nil, fmt.Errorf("unsupported player: %s", name)
	}
}

// ProbeDuration 用 ffprobe 读取媒体时长（秒）
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	s := strings.TrimSpace(string(out))
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return seconds, nil
}
