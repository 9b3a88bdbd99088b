package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"karaoke-backend/internal/config"
	"karaoke-backend/internal/ipc"
	"karaoke-backend/internal/lyrics"
	"karaoke-backend/internal/playback"
	"karaoke-backend/internal/player"
	"karaoke-backend/internal/practice"
	"karaoke-backend/internal/recorder"
	"karaoke-backend/internal/store"
	"karaoke-backend/pkg/music"
	"karaoke-backend/pkg/redis"
	"karaoke-backend/pkg/translate"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoPresentation = errors.New("no presentation client: remote media needs the IPC server")
	ErrNoLyricsFound  = errors.New("no lyrics found")
)

type App struct {
	cfg       *config.Config
	music     *music.Manager
	timeline  *lyrics.Timeline
	recorder  *recorder.Recorder
	machine   *practice.Machine
	store     *store.Store
	translate translate.Translator
	closers   []io.Closer
	ipcServer *ipc.Server

	mutex  sync.Mutex
	source store.Source
	media  *ipcElement
	embed  *ipcEmbedPlayer
	ready  *playback.Ready
}

// SetupLogging 设置 zerolog 的全局配置
func SetupLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// LogToFile 把日志改写到文件，TUI 占用终端时使用
func LogToFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: f, NoColor: true})
	return f, nil
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	SetupLogging(cfg.App.LogLevel)

	if err := os.MkdirAll(cfg.App.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	log.Info().Str("cache_dir", cfg.App.CacheDir).Msg("Cache directory")

	sessions, closer, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		music:    NewMusicManager(ctx, cfg),
		timeline: lyrics.NewTimeline(),
		store:    sessions,
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	if tr, err := NewTranslator(cfg.Translate); err == nil {
		a.translate = tr
	} else if !errors.Is(err, translate.ErrNoCredentials) {
		log.Warn().Err(err).Msg("Lyrics translation disabled")
	}

	device := recorder.NewFFmpegDevice(cfg.Recorder.FFmpegPath, cfg.Recorder.InputFormat, cfg.Recorder.InputDevice)
	a.recorder = recorder.New(device, cfg.Recorder.Formats)
	takes := player.NewArtifactPlayer(cfg.Player.Players, filepath.Join(cfg.App.CacheDir, "takes"))

	a.machine = practice.New(a.timeline, a.recorder, takes, practice.RealClock, practice.Config{
		LineWindow:   cfg.Practice.LineWindow,
		AdvancePause: cfg.Practice.AdvancePause,
	})
	a.recorder.OnLost(a.machine.HandleRecorderLost)

	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, io.Closer, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "", "file":
		log.Info().Str("dir", cfg.Store.Path).Msg("Using file session store")
		return store.New(store.NewFileKV(cfg.Store.Path), cfg.Store.Key), nil, nil
	case "redis":
		client, err := redis.NewClient(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect session store: %w", err)
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Using redis session store")
		kv := store.NewRedisKV(client)
		return store.New(kv, cfg.Store.Key), kv, nil
	case "sqlite":
		path := cfg.Store.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "sessions.db")
		}
		kv, err := store.OpenSQLite(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open session store: %w", err)
		}
		log.Info().Str("path", path).Msg("Using sqlite session store")
		return store.New(kv, cfg.Store.Key), kv, nil
	default:
		return nil, nil, fmt.Errorf("unsupported session store backend: %s", cfg.Store.Backend)
	}
}

// NewTranslator 未配置密钥时返回 translate.ErrNoCredentials
func NewTranslator(cfg config.TranslateConfig) (*translate.Tencent, error) {
	return translate.NewTencent(cfg.SecretID, cfg.SecretKey, cfg.Region, cfg.Endpoint)
}

func (a *App) Machine() *practice.Machine { return a.machine }
func (a *App) Music() *music.Manager      { return a.music }

// AcquireMicrophone 申请一次麦克风，结果通知给状态机；失败后不会自动重试
func (a *App) AcquireMicrophone(ctx context.Context) {
	if err := a.recorder.AcquirePermission(ctx); err != nil {
		log.Warn().Err(err).Msg("Microphone unavailable, practice is listen-only")
	} else {
		log.Info().Msg("Microphone ready")
	}
	a.machine.RecorderChanged()
}

// Serve 启动 IPC 服务，直到 ctx 取消
func (a *App) Serve(ctx context.Context) error {
	a.ipcServer = ipc.NewServer(a.cfg.App.SocketPath, a.handleIntent)
	if err := a.ipcServer.Start(); err != nil {
		return fmt.Errorf("failed to start IPC server: %w", err)
	}
	defer a.ipcServer.Close()

	a.machine.Subscribe(func(ev practice.Event) {
		a.ipcServer.Broadcast(string(ev.Kind), ev)
	})
	a.ipcServer.Broadcast("snapshot", snapshotReply(a.machine.Snapshot()))

	go a.AcquireMicrophone(ctx)

	log.Info().Msg("Karaoke backend ready")
	<-ctx.Done()
	log.Info().Msg("Shutting down")
	return nil
}

func (a *App) notify(cmd mediaCommand) {
	if a.ipcServer != nil {
		a.ipcServer.Notify(cmd)
	}
}

func (a *App) setSource(b playback.Backend, src store.Source, media *ipcElement, ready *playback.Ready) {
	a.mutex.Lock()
	a.source = src
	a.media = media
	a.embed = nil
	a.ready = ready
	a.mutex.Unlock()

	a.machine.SetSource(b)
}

// LoadLocal 用本机的外部播放器打开音频文件
func (a *App) LoadLocal(ctx context.Context, path string) error {
	lm, err := playback.OpenLocal(ctx, path, a.cfg.Player.Players, a.cfg.Practice.ProgressInterval)
	if err != nil {
		return err
	}
	a.setSource(lm, store.Source{Kind: playback.KindLocal, Ref: path}, nil, nil)
	log.Info().Str("file", path).Str("label", lm.Label()).Msg("Local audio loaded")
	return nil
}

// LoadClientAudio 由展示端的 audio 元素播放文件
func (a *App) LoadClientAudio(path, label string) error {
	if a.ipcServer == nil {
		return ErrNoPresentation
	}
	if label == "" {
		label = playback.LabelFor(path)
	}
	el := newIPCElement(a.notify)
	lm := playback.NewLocalMedia(el, label, a.cfg.Practice.ProgressInterval)
	a.setSource(lm, store.Source{Kind: playback.KindClient, Ref: path}, el, nil)
	a.notify(mediaCommand{Type: "media_command", Target: "audio", Command: "load", Ref: path})
	return nil
}

// LoadRemote 在展示端加载嵌入式视频，播放器就绪前的命令都会失败
func (a *App) LoadRemote(ref, label string) error {
	if a.ipcServer == nil {
		return ErrNoPresentation
	}
	if label == "" {
		label = ref
	}
	ready := playback.NewReady()
	embed := playback.NewRemoteEmbed(ref, label, ready, a.cfg.Practice.ProgressInterval)
	a.setSource(embed, store.Source{Kind: playback.KindRemote, Ref: ref}, nil, ready)
	a.notify(mediaCommand{Type: "media_command", Target: "embed", Command: "load", Ref: ref})
	log.Info().Str("ref", ref).Msg("Remote media loading")
	return nil
}

// FetchLyrics 查询歌词并载入状态机
func (a *App) FetchLyrics(ctx context.Context, title, artist string) (music.Lyrics, error) {
	l := a.music.GetLyrics(ctx, title, artist)
	if l.Empty() {
		return l, ErrNoLyricsFound
	}
	a.machine.LoadLines(lyrics.FromLyrics(l))
	return l, nil
}

// LoadLyricsFile 从本地文件载入歌词，.lrc 带时间戳
func (a *App) LoadLyricsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	l := music.ParseLyrics(filepath.Base(path), string(data))
	if l.Empty() {
		return ErrNoLyricsFound
	}
	a.machine.LoadLines(lyrics.FromLyrics(l))
	return nil
}

// TranslateLyrics 翻译当前歌词，结果与行号一一对应
func (a *App) TranslateLyrics(ctx context.Context, target string) ([]string, error) {
	if a.translate == nil {
		return nil, translate.ErrNoCredentials
	}
	if target == "" {
		target = a.cfg.Translate.Target
	}
	texts := a.timeline.Texts()
	if len(texts) == 0 {
		return nil, practice.ErrNoLyrics
	}
	return a.translate.Translate(ctx, texts, target)
}

func (a *App) Close() {
	a.machine.Stop()
	a.machine.SetSource(nil)
	a.recorder.Release()
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close resource")
		}
	}
}
