package playback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// installStubPlayer puts shell-script stand-ins for mpv and ffprobe first on
// PATH. The mpv stub logs its arguments and sleeps for the given seconds.
func installStubPlayer(t *testing.T, seconds string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub players are shell scripts")
	}
	dir := t.TempDir()
	scripts := map[string]string{
		"mpv":     "#!/bin/sh\necho \"$@\" >> \"$STUB_PLAYER_LOG\"\nexec sleep \"$STUB_PLAYER_SECONDS\"\n",
		"ffprobe": "#!/bin/sh\necho 12.5\n",
	}
	for name, body := range scripts {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0755); err != nil {
			t.Fatal(err)
		}
	}
	logPath := filepath.Join(dir, "calls.log")
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	t.Setenv("STUB_PLAYER_LOG", logPath)
	t.Setenv("STUB_PLAYER_SECONDS", seconds)
	return logPath
}

func newExecElement(t *testing.T) *ExecElement {
	t.Helper()
	song := filepath.Join(t.TempDir(), "song.mp3")
	if err := os.WriteFile(song, []byte("ID3"), 0644); err != nil {
		t.Fatal(err)
	}
	el, err := NewExecElement(context.Background(), song, []string{"mpv"}, 0)
	if err != nil {
		t.Fatalf("NewExecElement: %v", err)
	}
	t.Cleanup(func() { el.Close() })
	return el
}

func TestExecElementMissingFile(t *testing.T) {
	installStubPlayer(t, "0")
	if _, err := NewExecElement(context.Background(), "/no/such/song.mp3", []string{"mpv"}, 0); err == nil {
		t.Error("expected error for a missing audio file")
	}
}

func TestExecElementTracksOffsetAcrossPauseAndSeek(t *testing.T) {
	installStubPlayer(t, "30")
	el := newExecElement(t)

	ended := make(chan struct{}, 1)
	el.Subscribe(func() {}, func() { ended <- struct{}{} })

	if el.Duration() != 12.5 || el.interval != DefaultProgressInterval {
		t.Fatalf("unexpected duration %v or interval %v", el.Duration(), el.interval)
	}

	if err := el.SetCurrentTime(4); err != nil {
		t.Fatalf("SetCurrentTime: %v", err)
	}
	if !el.Paused() || el.CurrentTime() != 4 {
		t.Errorf("seek while paused: paused=%v at %v", el.Paused(), el.CurrentTime())
	}

	if err := el.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if el.Paused() {
		t.Error("expected playing after Play")
	}
	if err := el.SetCurrentTime(6); err != nil {
		t.Fatalf("SetCurrentTime while playing: %v", err)
	}
	if el.Paused() {
		t.Error("seek while playing should keep playing")
	}
	if err := el.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if got := el.CurrentTime(); got < 6 || got > 7 {
		t.Errorf("position after pause = %v, want about 6", got)
	}

	if err := el.SetCurrentTime(99); err != nil {
		t.Fatalf("SetCurrentTime: %v", err)
	}
	if got := el.CurrentTime(); got != 12.5 {
		t.Errorf("seek past the end should clamp to 12.5, got %v", got)
	}

	select {
	case <-ended:
		t.Error("a killed player must not report ended")
	case <-time.After(200 * time.Millisecond):
	}

	el.Close()
	if err := el.Play(); !errors.Is(err, errElementClosed) {
		t.Errorf("expected errElementClosed, got %v", err)
	}
}

func TestExecElementNaturalEnd(t *testing.T) {
	logPath := installStubPlayer(t, "0")
	el := newExecElement(t)

	ended := make(chan struct{}, 1)
	el.Subscribe(func() {}, func() { ended <- struct{}{} })

	if err := el.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	select {
	case <-ended:
	case <-time.After(5 * time.Second):
		t.Fatal("ended not reported after the player exited")
	}

	if !el.Paused() || el.CurrentTime() != 12.5 {
		t.Errorf("after end: paused=%v at %v", el.Paused(), el.CurrentTime())
	}
	calls, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("player was not run: %v", err)
	}
	if !strings.Contains(string(calls), "--start=0.000") {
		t.Errorf("unexpected player arguments %q", calls)
	}
}
