package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrAlreadyCapturing  = errors.New("recorder already capturing")
	ErrNotCapturing      = errors.New("recorder not capturing")
	ErrUnsupportedFormat = errors.New("no supported recording format")
)

// logger 按需创建，跟随 log.Logger 的当前输出
func logger() *zerolog.Logger {
	l := log.With().Str("component", "recorder").Logger()
	return &l
}

// Device 音频输入设备
type Device interface {
	// Acquire 请求权限并打开输入流，拒绝时返回 ErrPermissionDenied
	Acquire(ctx context.Context) (Stream, error)
	Supports(mimeType string) bool
}

// Stream 已授权的输入流，可以反复开始、结束采集
type Stream interface {
	// Capture 以指定格式开始采集。onChunk 和 onLost 在流自己的 goroutine 上调用，
	// 设备中途丢失时调用 onLost。
	Capture(mimeType string, onChunk func([]byte), onLost func(error)) (Capture, error)
	Close() error
}

// Capture 一次进行中的采集
type Capture interface {
	// Stop 结束采集，返回前所有数据块都已交付
	Stop() error
	// Abort 丢弃采集
	Abort()
}

// Artifact 一次录音的结果
type Artifact struct {
	ID        uuid.UUID `json:"id"`
	Line      int       `json:"line"`
	MimeType  string    `json:"mime_type"`
	Data      []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Recorder 把麦克风采集包装为一次次独立的开始/结束周期。
// 输入流在周期之间复用，只有 Release 会关闭它。
type Recorder struct {
	device  Device
	formats []string
	group   singleflight.Group

	mu          sync.Mutex
	stream      Stream
	unavailable bool
	capture     Capture
	seq         uint64
	mimeType    string
	chunks      [][]byte
	onLost      func()
}

func New(device Device, formats []string) *Recorder {
	return &Recorder{device: device, formats: formats}
}

// AcquirePermission 打开输入流。并发调用共享同一次请求；被拒绝后标记为不可用，
// 不会自动重试。
func (r *Recorder) AcquirePermission(ctx context.Context) error {
	r.mu.Lock()
	granted := r.stream != nil
	r.mu.Unlock()
	if granted {
		return nil
	}

	_, err, _ := r.group.Do("acquire", func() (any, error) {
		r.mu.Lock()
		if r.stream != nil {
			r.mu.Unlock()
			return nil, nil
		}
		r.mu.Unlock()

		stream, err := r.device.Acquire(ctx)

		r.mu.Lock()
		defer r.mu.Unlock()
		if err != nil {
			r.unavailable = true
			if !errors.Is(err, ErrPermissionDenied) {
				err = fmt.Errorf("%w: %v", ErrPermissionDenied, err)
			}
			logger().Warn().Err(err).Msg("Microphone unavailable")
			return nil, err
		}
		r.stream = stream
		r.unavailable = false
		logger().Info().Msg("Microphone access granted")
		return nil, nil
	})
	return err
}

// Available 最近一次请求权限是否成功（尚未请求时为 true）
func (r *Recorder) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.unavailable
}

// Capturing 是否正在采集
func (r *Recorder) Capturing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capture != nil
}

// OnLost 设备在采集中丢失时调用
func (r *Recorder) OnLost(f func()) {
	r.mu.Lock()
	r.onLost = f
	r.mu.Unlock()
}

// SelectFormat 返回偏好列表中第一个设备支持的格式
func (r *Recorder) SelectFormat() (string, bool) {
	for _, f := range r.formats {
		if r.device.Supports(f) {
			return f, true
		}
	}
	return "", false
}

// Start 开始一次采集。没有输入流时重新请求权限。
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.capture != nil {
		r.mu.Unlock()
		return ErrAlreadyCapturing
	}
	needsStream := r.stream == nil
	r.mu.Unlock()

	if needsStream {
		if err := r.AcquirePermission(ctx); err != nil {
			return err
		}
	}

	mimeType, ok := r.SelectFormat()
	if !ok {
		return ErrUnsupportedFormat
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capture != nil {
		return ErrAlreadyCapturing
	}
	if r.stream == nil {
		return ErrPermissionDenied
	}

	r.seq++
	seq := r.seq
	r.chunks = nil
	c, err := r.stream.Capture(mimeType,
		func(b []byte) { r.appendChunk(seq, b) },
		func(err error) { r.handleLost(seq, err) },
	)
	if err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}
	r.capture = c
	r.mimeType = mimeType
	logger().Debug().Str("format", mimeType).Msg("Capture started")
	return nil
}

// Stop 结束采集并把所有数据块拼成一个录音
func (r *Recorder) Stop() (*Artifact, error) {
	r.mu.Lock()
	c := r.capture
	seq := r.seq
	r.mu.Unlock()
	if c == nil {
		return nil, ErrNotCapturing
	}

	stopErr := c.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seq != seq || r.capture != c {
		return nil, ErrNotCapturing
	}
	r.capture = nil
	data := bytes.Join(r.chunks, nil)
	r.chunks = nil

	if stopErr != nil {
		logger().Warn().Err(stopErr).Msg("Capture did not stop cleanly")
		if len(data) == 0 {
			return nil, fmt.Errorf("failed to stop capture: %w", stopErr)
		}
	}

	return &Artifact{
		ID:        uuid.New(),
		Line:      -1,
		MimeType:  r.mimeType,
		Data:      data,
		CreatedAt: time.Now(),
	}, nil
}

// Cancel 丢弃进行中的采集，空闲时无操作
func (r *Recorder) Cancel() {
	r.mu.Lock()
	c := r.capture
	r.capture = nil
	r.chunks = nil
	r.seq++
	r.mu.Unlock()

	if c != nil {
		c.Abort()
	}
}

// Release 取消采集并关闭输入流
func (r *Recorder) Release() {
	r.Cancel()

	r.mu.Lock()
	s := r.stream
	r.stream = nil
	r.mu.Unlock()

	if s != nil {
		if err := s.Close(); err != nil {
			logger().Debug().Err(err).Msg("Failed to close input stream")
		}
	}
}

func (r *Recorder) appendChunk(seq uint64, b []byte) {
	if len(b) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if seq != r.seq || r.capture == nil {
		return
	}
	r.chunks = append(r.chunks, b)
}

func (r *Recorder) handleLost(seq uint64, err error) {
	r.mu.Lock()
	if seq != r.seq || r.capture == nil {
		r.mu.Unlock()
		return
	}
	r.capture = nil
	r.chunks = nil
	r.seq++
	s := r.stream
	r.stream = nil
	cb := r.onLost
	r.mu.Unlock()

	logger().Warn().Err(err).Msg("Input device lost during capture")
	if s != nil {
		if err := s.Close(); err != nil {
			logger().Debug().Err(err).Msg("Failed to close lost input stream")
		}
	}
	if cb != nil {
		cb()
	}
}
