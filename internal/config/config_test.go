package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("TENCENTCLOUD_SECRET_ID", "")
	t.Setenv("TENCENTCLOUD_SECRET_KEY", "")

	cfg := LoadFrom(filepath.Join(t.TempDir(), "missing.toml"))
	if cfg.Practice.LineWindow != DefaultLineWindow || cfg.Practice.AdvancePause != DefaultAdvancePause {
		t.Errorf("unexpected practice defaults %+v", cfg.Practice)
	}
	if cfg.Search.MaxResults != DefaultMaxResults {
		t.Errorf("expected max results %d, got %d", DefaultMaxResults, cfg.Search.MaxResults)
	}
	if cfg.Store.Backend != DefaultStoreBackend || cfg.Store.Path != filepath.Join(cfg.App.CacheDir, "sessions") {
		t.Errorf("unexpected store defaults %+v", cfg.Store)
	}
	if cfg.Translate.Region != "ap-guangzhou" || cfg.Translate.SecretID != "" {
		t.Errorf("unexpected translate defaults %+v", cfg.Translate)
	}
	if len(cfg.Recorder.Formats) != len(DefaultFormats) || cfg.Recorder.Formats[0] != "audio/webm;codecs=opus" {
		t.Errorf("unexpected recorder formats %v", cfg.Recorder.Formats)
	}
}

func TestLoadFromOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[app]
cache_dir = "` + filepath.ToSlash(filepath.Join(dir, "cache")) + `"
log_level = "debug"

[practice]
line_window = "3s"
advance_pause = "bogus"

[search]
providers = ["itunes", "sample"]
max_results = 4

[translate]
secret_id = "from-file"
target = "en"

[store]
backend = "sqlite"

[[sample_songs]]
title = "Test Song"
artist = "Tester"
lyrics = ["la", "la la"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TENCENTCLOUD_SECRET_KEY", "from-env")
	t.Setenv("TENCENTCLOUD_SECRET_ID", "")

	cfg := LoadFrom(path)

	if cfg.App.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.App.LogLevel)
	}
	if cfg.Practice.LineWindow != 3*time.Second {
		t.Errorf("line window = %v", cfg.Practice.LineWindow)
	}
	if cfg.Practice.AdvancePause != DefaultAdvancePause {
		t.Errorf("invalid duration should keep default, got %v", cfg.Practice.AdvancePause)
	}
	if len(cfg.Search.Providers) != 2 || cfg.Search.MaxResults != 4 {
		t.Errorf("unexpected search config %+v", cfg.Search)
	}
	if cfg.Store.Path != filepath.Join(dir, "cache", "sessions") || cfg.Store.Backend != "sqlite" {
		t.Errorf("unexpected store config %+v", cfg.Store)
	}
	if cfg.Translate.SecretID != "from-file" || cfg.Translate.SecretKey != "from-env" || cfg.Translate.Target != "en" {
		t.Errorf("unexpected translate config %+v", cfg.Translate)
	}
	if len(cfg.SampleSongs) != 1 || len(cfg.SampleSongs[0].Lyrics) != 2 {
		t.Errorf("unexpected sample songs %+v", cfg.SampleSongs)
	}
}

func TestLoadFromInvalidFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[app\nbroken"), 0644)

	cfg := LoadFrom(path)
	if cfg.App.SocketPath != DefaultSocketPath {
		t.Errorf("expected default socket path, got %q", cfg.App.SocketPath)
	}
}

func TestProgressIntervalIsCappedAt10Hz(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	write := func(v string) *Config {
		t.Helper()
		content := "[practice]\nprogress_interval = \"" + v + "\"\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return LoadFrom(path)
	}

	if got := write("10ms").Practice.ProgressInterval; got != DefaultProgressInterval {
		t.Errorf("10ms should be raised to %v, got %v", DefaultProgressInterval, got)
	}
	if got := write("250ms").Practice.ProgressInterval; got != 250*time.Millisecond {
		t.Errorf("slower interval should be kept, got %v", got)
	}
}
