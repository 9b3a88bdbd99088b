package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"karaoke-backend/internal/config"
	"karaoke-backend/internal/ipc"
	"karaoke-backend/internal/playback"
	"karaoke-backend/internal/practice"
	"karaoke-backend/internal/store"
	"karaoke-backend/pkg/translate"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.App.CacheDir = filepath.Join(dir, "cache")
	cfg.App.SocketPath = filepath.Join(dir, "k.sock")
	cfg.Store.Path = filepath.Join(dir, "sessions")
	cfg.Search.Providers = []string{"sample"}
	cfg.Lyrics.Providers = []string{"sample"}
	cfg.AI.APIKey = ""
	return cfg
}

func newTestApp(t *testing.T, serve bool) *App {
	t.Helper()
	a, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)

	if serve {
		a.ipcServer = ipc.NewServer(a.cfg.App.SocketPath, a.handleIntent)
		if err := a.ipcServer.Start(); err != nil {
			t.Fatalf("Start: %v", err)
		}
		t.Cleanup(a.ipcServer.Close)
	}
	return a
}

func send(t *testing.T, a *App, typ string, fields map[string]any) (any, error) {
	t.Helper()
	if fields == nil {
		fields = map[string]any{}
	}
	fields["type"] = typ
	raw, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	return a.handleIntent(context.Background(), ipc.Intent{Type: typ, Payload: raw})
}

func mustSend(t *testing.T, a *App, typ string, fields map[string]any) any {
	t.Helper()
	reply, err := send(t, a, typ, fields)
	if err != nil {
		t.Fatalf("%s: %v", typ, err)
	}
	return reply
}

func TestLyricsSyncAndSessionIntents(t *testing.T) {
	a := newTestApp(t, true)

	reply := mustSend(t, a, "fetch_lyrics", map[string]any{"title": "First Love"})
	lr, ok := reply.(lyricsReply)
	if !ok || lr.Lines != 8 || lr.Synced {
		t.Fatalf("unexpected lyrics reply: %#v", reply)
	}

	mustSend(t, a, "load_local", map[string]any{"path": "/music/first-love.mp3", "via": "client", "label": "First Love"})
	if src := a.machine.Source(); src == nil || src.Label() != "First Love" {
		t.Fatalf("expected client audio source, got %v", src)
	}

	mustSend(t, a, "media_status", map[string]any{"current": 12.5, "duration": 250.0, "paused": false})
	mustSend(t, a, "sync_line", map[string]any{"index": 0})
	if at, ok := a.timeline.StartOf(0); !ok || at != 12.5 {
		t.Fatalf("expected line 0 synced at 12.5, got %v %v", at, ok)
	}

	if _, err := send(t, a, "sync_line", map[string]any{"index": 42}); err == nil {
		t.Error("expected error syncing a missing line")
	}

	reply = mustSend(t, a, "save_session", map[string]any{"name": "evening"})
	sr := reply.(sessionsReply)
	if kind := a.source.Kind; kind != playback.KindClient {
		t.Errorf("expected client source kind, got %q", kind)
	}
	if len(sr.Sessions) != 1 || !sr.Sessions[0].Timed || sr.Sessions[0].SongLabel != "First Love" {
		t.Fatalf("unexpected sessions after save: %+v", sr.Sessions)
	}

	mustSend(t, a, "set_lyrics", map[string]any{"text": "one\n\ntwo\n"})
	if a.timeline.Len() != 2 || a.timeline.Timed() {
		t.Fatalf("expected two untimed lines, got %d timed=%v", a.timeline.Len(), a.timeline.Timed())
	}

	reply = mustSend(t, a, "load_session", map[string]any{"name": "evening"})
	if loaded := reply.(sessionReply); loaded.Lines != 8 {
		t.Errorf("expected 8 restored lines, got %d", loaded.Lines)
	}
	if at, ok := a.timeline.StartOf(0); !ok || at != 12.5 {
		t.Errorf("expected restored timing 12.5, got %v %v", at, ok)
	}
	if a.currentMedia() == nil {
		t.Error("client audio session should be restored through the presentation")
	}
	if src := a.machine.Source(); src == nil || src.Label() != "First Love" {
		t.Errorf("expected restored client source, got %v", src)
	}

	reply = mustSend(t, a, "delete_session", map[string]any{"name": "evening"})
	if left := reply.(sessionsReply); len(left.Sessions) != 0 {
		t.Errorf("expected no sessions after delete, got %+v", left.Sessions)
	}

	_, err := send(t, a, "load_session", map[string]any{"name": "evening"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchIntentUsesCatalog(t *testing.T) {
	a := newTestApp(t, false)

	reply := mustSend(t, a, "search", map[string]any{"query": "乾杯"})
	sr := reply.(searchReply)
	if len(sr.Results) != 1 || sr.Results[0].Artist != "恵比寿マスカッツ" {
		t.Fatalf("unexpected search results: %+v", sr.Results)
	}

	reply = mustSend(t, a, "search", map[string]any{"query": "   "})
	if sr := reply.(searchReply); len(sr.Results) != 0 {
		t.Errorf("expected no results for blank query, got %+v", sr.Results)
	}
}

func TestPracticePreconditionsAreReported(t *testing.T) {
	a := newTestApp(t, false)

	if _, err := send(t, a, "start_practice", nil); !errors.Is(err, practice.ErrNoLyrics) {
		t.Errorf("expected ErrNoLyrics, got %v", err)
	}
	mustSend(t, a, "set_lyrics", map[string]any{"lines": []string{"a", "b"}})
	if _, err := send(t, a, "start_practice", nil); !errors.Is(err, practice.ErrNoSource) {
		t.Errorf("expected ErrNoSource, got %v", err)
	}
	if snap := a.machine.Snapshot(); snap.Phase != practice.Idle {
		t.Errorf("expected idle, got %v", snap.Phase)
	}

	// 没有展示端时无法使用客户端音频和嵌入式播放器
	if _, err := send(t, a, "load_remote", map[string]any{"ref": "abc"}); !errors.Is(err, ErrNoPresentation) {
		t.Errorf("expected ErrNoPresentation, got %v", err)
	}
	if err := a.LoadClientAudio("/music/a.mp3", ""); !errors.Is(err, ErrNoPresentation) {
		t.Errorf("expected ErrNoPresentation, got %v", err)
	}

	if _, err := send(t, a, "bogus", nil); err == nil {
		t.Error("expected error for unknown intent")
	}
}

func TestSaveSessionNeedsLyrics(t *testing.T) {
	a := newTestApp(t, false)
	if err := a.SaveSession(context.Background(), "empty"); !errors.Is(err, practice.ErrNoLyrics) {
		t.Errorf("expected ErrNoLyrics, got %v", err)
	}
}

func TestEmbedReadyResolvesRemoteSource(t *testing.T) {
	a := newTestApp(t, true)

	mustSend(t, a, "load_remote", map[string]any{"ref": "dQw4w9WgXcQ", "label": "Video"})
	src := a.machine.Source()
	if src == nil || src.Label() != "Video" {
		t.Fatalf("expected remote source, got %v", src)
	}

	mustSend(t, a, "embed_ready", map[string]any{"ref": "other"})
	if a.currentEmbed("") != nil {
		t.Fatal("ready for another ref must be ignored")
	}

	mustSend(t, a, "embed_ready", map[string]any{"ref": "dQw4w9WgXcQ"})
	if a.currentEmbed("dQw4w9WgXcQ") == nil {
		t.Fatal("expected embed player after ready")
	}

	mustSend(t, a, "embed_status", map[string]any{"ref": "dQw4w9WgXcQ", "state": 1, "current": 3.0, "duration": 200.0})
	if got := src.CurrentTime(); got != 3.0 {
		t.Errorf("expected current time 3.0, got %v", got)
	}
	if got := src.Duration(); got != 200.0 {
		t.Errorf("expected duration 200, got %v", got)
	}
}

func TestLoadLyricsFile(t *testing.T) {
	a := newTestApp(t, false)

	path := filepath.Join(t.TempDir(), "song.lrc")
	if err := os.WriteFile(path, []byte("[00:01.00]first\n[00:02.50]second\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := a.LoadLyricsFile(path); err != nil {
		t.Fatalf("LoadLyricsFile: %v", err)
	}
	if a.timeline.Len() != 2 {
		t.Fatalf("expected 2 lines, got %d", a.timeline.Len())
	}
	if at, ok := a.timeline.StartOf(1); !ok || at != 2.5 {
		t.Errorf("expected line 1 at 2.5, got %v %v", at, ok)
	}

	empty := filepath.Join(t.TempDir(), "empty.txt")
	os.WriteFile(empty, []byte("\n\n"), 0644)
	if err := a.LoadLyricsFile(empty); !errors.Is(err, ErrNoLyricsFound) {
		t.Errorf("expected ErrNoLyricsFound, got %v", err)
	}
}

func TestOpenStoreBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "sqlite"
	s, closer, err := openStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openStore sqlite: %v", err)
	}
	defer closer.Close()
	if _, err := os.Stat(filepath.Join(cfg.Store.Path, "sessions.db")); err != nil {
		t.Errorf("expected database file: %v", err)
	}
	if list, err := s.List(context.Background()); err != nil || len(list) != 0 {
		t.Errorf("expected empty list, got %v %v", list, err)
	}

	cfg.Store.Backend = "etcd"
	if _, _, err := openStore(context.Background(), cfg); err == nil {
		t.Error("expected error for unsupported backend")
	}
}

func TestTranslateLyricsIntent(t *testing.T) {
	a := newTestApp(t, false)
	mustSend(t, a, "set_lyrics", map[string]any{"lines": []string{"君に乾杯", "ありがとう"}})

	if _, err := send(t, a, "translate_lyrics", nil); !errors.Is(err, translate.ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Target         string
			SourceTextList []string
		}
		json.NewDecoder(r.Body).Decode(&req)
		out := make([]string, len(req.SourceTextList))
		for i, s := range req.SourceTextList {
			out[i] = req.Target + ":" + s
		}
		json.NewEncoder(w).Encode(map[string]any{
			"Response": map[string]any{"TargetTextList": out, "RequestId": "test"},
		})
	}))
	defer srv.Close()

	tr, err := NewTranslator(config.TranslateConfig{SecretID: "id", SecretKey: "key", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewTranslator: %v", err)
	}
	a.translate = tr

	reply := mustSend(t, a, "translate_lyrics", map[string]any{"target": "en"})
	tr2 := reply.(translationReply)
	if tr2.Target != "en" || len(tr2.Lines) != 2 || tr2.Lines[1] != "en:ありがとう" {
		t.Errorf("unexpected translation reply: %+v", tr2)
	}
}
