package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	probeTimeout = 5 * time.Second
	stopTimeout  = 3 * time.Second
	chunkSize    = 32 * 1024
)

// ffmpeg 输出参数，按录音 MIME 类型
var ffmpegOutputs = map[string][]string{
	"audio/webm;codecs=opus": {"-c:a", "libopus", "-f", "webm"},
	"audio/webm":             {"-c:a", "libopus", "-f", "webm"},
	"audio/ogg;codecs=opus":  {"-c:a", "libopus", "-f", "ogg"},
	"audio/mp4":              {"-c:a", "aac", "-movflags", "frag_keyframe+empty_moov", "-f", "mp4"},
	"audio/wav":              {"-c:a", "pcm_s16le", "-f", "wav"},
}

// FFmpegDevice 通过 ffmpeg 从系统音频输入采集，编码结果从 stdout 读取
type FFmpegDevice struct {
	path        string
	inputFormat string
	input       string
}

var _ Device = (*FFmpegDevice)(nil)

func NewFFmpegDevice(path, inputFormat, input string) *FFmpegDevice {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegDevice{path: path, inputFormat: inputFormat, input: input}
}

func (d *FFmpegDevice) inputArgs() []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if d.inputFormat != "" {
		args = append(args, "-f", d.inputFormat)
	}
	return append(args, "-i", d.input)
}

// Acquire 检查 ffmpeg 是否可用并尝试短暂打开输入设备
func (d *FFmpegDevice) Acquire(ctx context.Context) (Stream, error) {
	if _, err := exec.LookPath(d.path); err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrPermissionDenied, d.path)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	args := append(d.inputArgs(), "-t", "0.1", "-f", "null", "-")
	out, err := exec.CommandContext(ctx, d.path, args...).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open input %s: %s", ErrPermissionDenied, d.input, strings.TrimSpace(string(out)))
	}
	return &ffmpegStream{device: d}, nil
}

func (d *FFmpegDevice) Supports(mimeType string) bool {
	_, ok := ffmpegOutputs[mimeType]
	return ok
}

type ffmpegStream struct {
	device *FFmpegDevice
}

func (s *ffmpegStream) Capture(mimeType string, onChunk func([]byte), onLost func(error)) (Capture, error) {
	output, ok := ffmpegOutputs[mimeType]
	if !ok {
		return nil, ErrUnsupportedFormat
	}

	args := append(s.device.inputArgs(), output...)
	args = append(args, "pipe:1")
	cmd := exec.Command(s.device.path, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start FFmpeg: %w", err)
	}

	c := &ffmpegCapture{cmd: cmd, done: make(chan struct{})}
	go c.read(stdout, onChunk, onLost)
	return c, nil
}

// Close 输入流没有常驻句柄，每次采集单独启动进程
func (s *ffmpegStream) Close() error { return nil }

type ffmpegCapture struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	stopped bool
}

func (c *ffmpegCapture) read(stdout io.Reader, onChunk func([]byte), onLost func(error)) {
	defer close(c.done)

	buf := make([]byte, chunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onChunk(chunk)
		}
		if err != nil {
			break
		}
	}
	waitErr := c.cmd.Wait()

	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return
	}
	if waitErr == nil {
		waitErr = errors.New("ffmpeg exited unexpectedly")
	}
	onLost(waitErr)
}

// Stop 发送 SIGINT 让 ffmpeg 写完容器尾部，超时后强制结束
func (c *ffmpegCapture) Stop() error {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	if c.cmd.Process != nil {
		if err := c.cmd.Process.Signal(os.Interrupt); err != nil {
			c.cmd.Process.Kill()
		}
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(stopTimeout):
		c.cmd.Process.Kill()
		<-c.done
		return errors.New("ffmpeg did not exit within timeout")
	}
}

func (c *ffmpegCapture) Abort() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	if c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
	<-c.done
}
