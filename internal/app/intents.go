package app

import (
	"context"
	"fmt"

	"karaoke-backend/internal/ipc"
	"karaoke-backend/internal/practice"
	"karaoke-backend/internal/store"
	"karaoke-backend/pkg/music"

	"github.com/rs/zerolog/log"
)

// intentPayload 所有请求共用的字段，按 type 取用
type intentPayload struct {
	Path    string   `json:"path"`
	Via     string   `json:"via"` // local, client
	Ref     string   `json:"ref"`
	Label   string   `json:"label"`
	Lines   []string `json:"lines"`
	Text    string   `json:"text"`
	Index   int      `json:"index"`
	Seconds float64  `json:"seconds"`
	Query   string   `json:"query"`
	Title   string   `json:"title"`
	Artist  string   `json:"artist"`
	Name    string   `json:"name"`
	Target  string   `json:"target"`

	mediaStatus
}

type searchReply struct {
	Type    string               `json:"type"`
	Query   string               `json:"query"`
	Results []music.SearchResult `json:"results"`
}

type lyricsReply struct {
	Type   string `json:"type"`
	Source string `json:"source"`
	Lines  int    `json:"lines"`
	Synced bool   `json:"synced"`
}

type translationReply struct {
	Type   string   `json:"type"`
	Target string   `json:"target"`
	Lines  []string `json:"lines"`
}

type sessionsReply struct {
	Type     string          `json:"type"`
	Sessions []store.Summary `json:"sessions"`
}

type sessionReply struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	SongLabel string `json:"song_label"`
	Lines     int    `json:"lines"`
}

type snapshotMessage struct {
	Type string `json:"type"`
	practice.Snapshot
}

func snapshotReply(s practice.Snapshot) snapshotMessage {
	return snapshotMessage{Type: "snapshot", Snapshot: s}
}

func (a *App) handleIntent(ctx context.Context, in ipc.Intent) (any, error) {
	var p intentPayload
	if err := in.Decode(&p); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", in.Type, err)
	}
	log.Debug().Str("intent", in.Type).Str("client", in.Client.String()).Msg("Intent received")

	m := a.machine
	switch in.Type {
	// 播放源
	case "load_local":
		if p.Via == "client" {
			return nil, a.LoadClientAudio(p.Path, p.Label)
		}
		return nil, a.LoadLocal(ctx, p.Path)
	case "load_remote":
		return nil, a.LoadRemote(p.Ref, p.Label)
	case "play":
		m.Play()
	case "pause":
		m.Pause()
	case "stop_audio":
		m.StopAudio()
	case "seek":
		m.Seek(p.Seconds)

	// 展示端回报的播放器状态
	case "media_status":
		if el := a.currentMedia(); el != nil {
			el.update(p.mediaStatus)
		}
	case "media_ended":
		if el := a.currentMedia(); el != nil {
			el.ended()
		}
	case "embed_ready":
		a.embedReady(p.Ref)
	case "embed_status":
		if e := a.currentEmbed(p.Ref); e != nil {
			e.update(p.mediaStatus)
		}

	// 歌词
	case "set_lyrics":
		lines := p.Lines
		if len(lines) == 0 {
			lines = music.SplitPlain(p.Text)
		}
		m.EditLines(lines)
	case "sync_line":
		return nil, m.SyncLine(p.Index)
	case "clear_timings":
		m.ClearTimings()
	case "translate_lyrics":
		lines, err := a.TranslateLyrics(ctx, p.Target)
		if err != nil {
			return nil, err
		}
		target := p.Target
		if target == "" {
			target = a.cfg.Translate.Target
		}
		return translationReply{Type: "translation", Target: target, Lines: lines}, nil

	// 练习
	case "start_practice":
		return nil, m.Start()
	case "stop_practice":
		m.Stop()
	case "begin_recording":
		return nil, m.BeginRecording(ctx)
	case "end_recording":
		return nil, m.EndRecording()
	case "review":
		return nil, m.ReviewPlayback(ctx)
	case "retry":
		m.Retry()
	case "skip":
		m.Skip()
	case "replay":
		m.ReplayLine()
	case "snapshot":
		return snapshotReply(m.Snapshot()), nil

	// 曲库
	case "search":
		return searchReply{Type: "search_results", Query: p.Query, Results: a.music.Search(ctx, p.Query)}, nil
	case "fetch_lyrics":
		l, err := a.FetchLyrics(ctx, p.Title, p.Artist)
		if err != nil {
			return nil, err
		}
		return lyricsReply{Type: "lyrics", Source: l.Source, Lines: a.timeline.Len(), Synced: l.Synced()}, nil

	// 会话
	case "save_session":
		if err := a.SaveSession(ctx, p.Name); err != nil {
			return nil, err
		}
		return a.sessionsReply(ctx)
	case "list_sessions":
		return a.sessionsReply(ctx)
	case "load_session":
		sess, err := a.LoadSession(ctx, p.Name)
		if err != nil {
			return nil, err
		}
		return sessionReply{Type: "session_loaded", Name: sess.Name, SongLabel: sess.SongLabel, Lines: len(sess.Lines)}, nil
	case "delete_session":
		if err := a.DeleteSession(ctx, p.Name); err != nil {
			return nil, err
		}
		return a.sessionsReply(ctx)

	default:
		return nil, fmt.Errorf("unknown intent: %s", in.Type)
	}
	return nil, nil
}

func (a *App) sessionsReply(ctx context.Context) (any, error) {
	list, err := a.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	return sessionsReply{Type: "sessions", Sessions: list}, nil
}

func (a *App) currentMedia() *ipcElement {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.media
}

func (a *App) currentEmbed(ref string) *ipcEmbedPlayer {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.embed == nil || (ref != "" && ref != a.embed.ref) {
		return nil
	}
	return a.embed
}

// embedReady 展示端的播放器初始化完成，ref 不是当前播放源时忽略
func (a *App) embedReady(ref string) {
	a.mutex.Lock()
	ready := a.ready
	current := a.source.Ref
	if ready == nil || a.embed != nil || (ref != "" && ref != current) {
		a.mutex.Unlock()
		log.Debug().Str("ref", ref).Msg("Ignoring stale embed ready")
		return
	}
	p := newIPCEmbedPlayer(current, a.notify)
	a.embed = p
	a.mutex.Unlock()

	if ready.Resolve(p) {
		log.Info().Str("ref", current).Msg("Remote player ready")
	}
}
