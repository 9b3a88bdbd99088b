package lyrics

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrIndexOutOfRange 行号越界
var ErrIndexOutOfRange = errors.New("line index out of range")

// Line 一行歌词，Start 为空表示尚未同步时间
type Line struct {
	Index int      `json:"index"`
	Text  string   `json:"text"`
	Start *float64 `json:"start_time,omitempty"`
}

// Timed 是否已记录开始时间
func (l Line) Timed() bool {
	return l.Start != nil
}

// Timeline 有序歌词行，行号始终为 0..N-1。
// 回调来自多个 goroutine，所有方法并发安全。
type Timeline struct {
	mu    sync.RWMutex
	lines []Line
}

// NewTimeline 创建时间轴
func NewTimeline(texts ...string) *Timeline {
	t := &Timeline{}
	t.SetLines(texts)
	return t
}

// SetLines 替换全部歌词并清空所有时间，空行会被丢弃
func (t *Timeline) SetLines(texts []string) {
	lines := make([]Line, 0, len(texts))
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		lines = append(lines, Line{Index: len(lines), Text: text})
	}

	t.mu.Lock()
	t.lines = lines
	t.mu.Unlock()
}

// Replace 整体替换为给定行（可带时间），并重新编号
func (t *Timeline) Replace(lines []Line) {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		text := strings.TrimSpace(l.Text)
		if text == "" {
			continue
		}
		nl := Line{Index: len(out), Text: text}
		if l.Start != nil {
			start := *l.Start
			nl.Start = &start
		}
		out = append(out, nl)
	}

	t.mu.Lock()
	t.lines = out
	t.mu.Unlock()
}

// RecordTiming 记录或覆盖某行的开始时间，不检查单调性
func (t *Timeline) RecordTiming(index int, seconds float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index < 0 || index >= len(t.lines) {
		return fmt.Errorf("%w: %d (lines: %d)", ErrIndexOutOfRange, index, len(t.lines))
	}
	t.lines[index].Start = &seconds
	return nil
}

// ClearTimings 清空所有时间
func (t *Timeline) ClearTimings() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.lines {
		t.lines[i].Start = nil
	}
}

// ActiveLineAt 返回开始时间 <= at 的最大行号。
// 时间可能乱序，因此扫描全部已记录的时间，不能二分。
func (t *Timeline) ActiveLineAt(at float64) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := len(t.lines) - 1; i >= 0; i-- {
		if s := t.lines[i].Start; s != nil && *s <= at {
			return i, true
		}
	}
	return -1, false
}

// LineAfter 返回下一行行号
func (t *Timeline) LineAfter(index int) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	next := index + 1
	if index < 0 || next >= len(t.lines) {
		return -1, false
	}
	return next, true
}

// Len 行数
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.lines)
}

// Text 某行文本，越界返回空字符串
func (t *Timeline) Text(index int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index < 0 || index >= len(t.lines) {
		return ""
	}
	return t.lines[index].Text
}

// StartOf 某行开始时间
func (t *Timeline) StartOf(index int) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index < 0 || index >= len(t.lines) || t.lines[index].Start == nil {
		return 0, false
	}
	return *t.lines[index].Start, true
}

// Timed 是否至少有一行带时间
func (t *Timeline) Timed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, l := range t.lines {
		if l.Start != nil {
			return true
		}
	}
	return false
}

// Lines 返回副本
func (t *Timeline) Lines() []Line {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Line, len(t.lines))
	for i, l := range t.lines {
		out[i] = Line{Index: l.Index, Text: l.Text}
		if l.Start != nil {
			start := *l.Start
			out[i].Start = &start
		}
	}
	return out
}

// Texts 返回全部文本
func (t *Timeline) Texts() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, len(t.lines))
	for i, l := range t.lines {
		out[i] = l.Text
	}
	return out
}
