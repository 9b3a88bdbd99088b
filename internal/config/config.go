package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"karaoke-backend/pkg/sample"

	"github.com/BurntSushi/toml"
)

const (
	DefaultSocketPath       = "/tmp/karaoke_app.sock"
	DefaultLogLevel         = "info"
	DefaultLineWindow       = 5 * time.Second
	DefaultAdvancePause     = 2 * time.Second
	DefaultProgressInterval = 100 * time.Millisecond
	DefaultMaxResults       = 8
	DefaultProviderResults  = 5
	DefaultStoreBackend     = "file"
	DefaultStoreKey         = "karaoke_practice_sessions"
)

// DefaultFormats 录音格式偏好顺序
var DefaultFormats = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/ogg;codecs=opus",
	"audio/mp4",
	"audio/wav",
}

func getDefaultCacheDir() string {
	// 优先使用 XDG_CACHE_HOME 环境变量
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, "karaoke")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// 如果获取不到用户主目录，回退到当前目录
		return "karaoke_cache"
	}

	return filepath.Join(homeDir, ".cache", "karaoke")
}

// TomlConfig TOML配置文件结构
type TomlConfig struct {
	App struct {
		SocketPath string `toml:"socket_path"`
		CacheDir   string `toml:"cache_dir"`
		LogLevel   string `toml:"log_level"`
	} `toml:"app"`

	Practice struct {
		LineWindow       string `toml:"line_window"`
		AdvancePause     string `toml:"advance_pause"`
		ProgressInterval string `toml:"progress_interval"`
	} `toml:"practice"`

	Recorder struct {
		Formats     []string `toml:"formats"`
		FFmpegPath  string   `toml:"ffmpeg_path"`
		InputFormat string   `toml:"input_format"`
		InputDevice string   `toml:"input_device"`
	} `toml:"recorder"`

	Player struct {
		Players []string `toml:"players"`
	} `toml:"player"`

	Search struct {
		MaxResults        int      `toml:"max_results"`
		Providers         []string `toml:"providers"`
		YouTubeAPIKey     string   `toml:"youtube_api_key"`
		YouTubeEndpoint   string   `toml:"youtube_endpoint"`
		YouTubeResults    int      `toml:"youtube_results"`
		MusixmatchAPIKey  string   `toml:"musixmatch_api_key"`
		MusixmatchURL     string   `toml:"musixmatch_url"`
		MusixmatchResults int      `toml:"musixmatch_results"`
		ITunesURL         string   `toml:"itunes_url"`
		ITunesCountry     string   `toml:"itunes_country"`
		ITunesResults     int      `toml:"itunes_results"`
		LRCLibURL         string   `toml:"lrclib_url"`
		NetEaseURL        string   `toml:"netease_url"`
		NetEaseCookie     string   `toml:"netease_cookie"`
	} `toml:"search"`

	Lyrics struct {
		Providers []string `toml:"providers"`
	} `toml:"lyrics"`

	AI struct {
		ModuleName string `toml:"module_name"`
		APIKey     string `toml:"api_key"`
		BaseURL    string `toml:"base_url"` // for OpenAI
	} `toml:"ai"`

	Translate struct {
		SecretID  string `toml:"secret_id"`
		SecretKey string `toml:"secret_key"`
		Region    string `toml:"region"`
		Endpoint  string `toml:"endpoint"`
		Target    string `toml:"target"`
	} `toml:"translate"`

	Store struct {
		Backend string `toml:"backend"`
		Path    string `toml:"path"`
		Key     string `toml:"key"`
	} `toml:"store"`

	Redis struct {
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
		Prefix   string `toml:"prefix"`
	} `toml:"redis"`

	SampleSongs []sample.Song `toml:"sample_songs"`
}

// AppConfig 应用配置
type AppConfig struct {
	SocketPath string
	CacheDir   string
	LogLevel   string
}

// PracticeConfig 练习状态机配置
type PracticeConfig struct {
	LineWindow       time.Duration
	AdvancePause     time.Duration
	ProgressInterval time.Duration
}

// RecorderConfig 录音配置
type RecorderConfig struct {
	Formats     []string
	FFmpegPath  string
	InputFormat string
	InputDevice string
}

// PlayerConfig 外部播放器配置
type PlayerConfig struct {
	Players []string
}

// SearchConfig 曲库搜索配置
type SearchConfig struct {
	MaxResults        int
	Providers         []string
	YouTubeAPIKey     string
	YouTubeEndpoint   string
	YouTubeResults    int
	MusixmatchAPIKey  string
	MusixmatchURL     string
	MusixmatchResults int
	ITunesURL         string
	ITunesCountry     string
	ITunesResults     int
	LRCLibURL         string
	NetEaseURL        string
	NetEaseCookie     string
}

// LyricsConfig 歌词获取配置
type LyricsConfig struct {
	Providers []string
}

// AIConfig AI配置
type AIConfig struct {
	ModuleName string
	APIKey     string
	BaseURL    string
}

// TranslateConfig 腾讯云歌词翻译配置
type TranslateConfig struct {
	SecretID  string
	SecretKey string
	Region    string
	Endpoint  string
	Target    string
}

// StoreConfig 会话存储配置
type StoreConfig struct {
	Backend string // file, redis, sqlite
	Path    string
	Key     string
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Config 主配置结构
type Config struct {
	App         AppConfig
	Practice    PracticeConfig
	Recorder    RecorderConfig
	Player      PlayerConfig
	Search      SearchConfig
	Lyrics      LyricsConfig
	AI          AIConfig
	Translate   TranslateConfig
	Store       StoreConfig
	Redis       RedisConfig
	SampleSongs []sample.Song
}

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	// 优先使用 XDG_CONFIG_HOME 环境变量
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "karaoke", "config.toml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Printf("WARN: Cannot get user home directory: %v", err)
		return "config.toml" // 回退到当前目录
	}

	return filepath.Join(homeDir, ".config", "karaoke", "config.toml")
}

// loadTomlConfig 加载TOML配置文件，文件不存在时返回空配置
func loadTomlConfig(configPath string) (*TomlConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Printf("INFO: Config file not found at %s, using defaults", configPath)
		return &TomlConfig{}, nil
	}

	var config TomlConfig
	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		return nil, err
	}

	log.Printf("INFO: Loaded config from %s", configPath)
	return &config, nil
}

// Default 返回默认配置
func Default() *Config {
	cacheDir := getDefaultCacheDir()
	return &Config{
		App: AppConfig{
			SocketPath: DefaultSocketPath,
			CacheDir:   cacheDir,
			LogLevel:   DefaultLogLevel,
		},
		Practice: PracticeConfig{
			LineWindow:       DefaultLineWindow,
			AdvancePause:     DefaultAdvancePause,
			ProgressInterval: DefaultProgressInterval,
		},
		Recorder: RecorderConfig{
			Formats:     append([]string(nil), DefaultFormats...),
			FFmpegPath:  "ffmpeg",
			InputFormat: "pulse",
			InputDevice: "default",
		},
		Player: PlayerConfig{
			Players: []string{"mpv", "ffplay", "vlc"},
		},
		Search: SearchConfig{
			MaxResults:        DefaultMaxResults,
			Providers:         []string{"youtube", "itunes", "musixmatch", "lrclib", "sample"},
			YouTubeResults:    DefaultProviderResults,
			MusixmatchResults: DefaultProviderResults,
			ITunesResults:     DefaultProviderResults,
			ITunesCountry:     "JP",
		},
		Lyrics: LyricsConfig{
			Providers: []string{"lrclib", "netease", "musixmatch", "sample"},
		},
		AI: AIConfig{
			ModuleName: "gemini",
		},
		Translate: TranslateConfig{
			Region: "ap-guangzhou",
			Target: "zh",
		},
		Store: StoreConfig{
			Backend: DefaultStoreBackend,
			Path:    filepath.Join(cacheDir, "sessions"),
			Key:     DefaultStoreKey,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "karaoke:",
		},
	}
}

// Load 从默认路径加载配置
func Load() *Config {
	return LoadFrom(GetConfigPath())
}

// LoadFrom 从指定路径加载配置，读取失败时使用默认值
func LoadFrom(configPath string) *Config {
	tomlConfig, err := loadTomlConfig(configPath)
	if err != nil {
		log.Printf("ERROR: Failed to load config file: %v", err)
		log.Printf("INFO: Using default configuration")
		tomlConfig = &TomlConfig{}
	}

	config := Default()
	apply(config, tomlConfig)
	applyEnv(config)

	if config.Search.YouTubeAPIKey == "" {
		log.Printf("WARN: No YouTube API key configured; set search.youtube_api_key in %s or KARAOKE_YOUTUBE_API_KEY", configPath)
	}
	if config.Search.MusixmatchAPIKey == "" {
		log.Printf("WARN: No Musixmatch API key configured; set search.musixmatch_api_key in %s or KARAOKE_MUSIXMATCH_API_KEY", configPath)
	}

	return config
}

func apply(config *Config, t *TomlConfig) {
	// App
	setString(&config.App.SocketPath, t.App.SocketPath)
	if t.App.CacheDir != "" {
		config.App.CacheDir = t.App.CacheDir
		config.Store.Path = filepath.Join(t.App.CacheDir, "sessions")
	}
	setString(&config.App.LogLevel, t.App.LogLevel)

	// Practice
	setDuration(&config.Practice.LineWindow, t.Practice.LineWindow, "practice.line_window")
	setDuration(&config.Practice.AdvancePause, t.Practice.AdvancePause, "practice.advance_pause")
	setDuration(&config.Practice.ProgressInterval, t.Practice.ProgressInterval, "practice.progress_interval")
	if config.Practice.ProgressInterval < DefaultProgressInterval {
		log.Printf("WARN: practice.progress_interval '%s' exceeds 10Hz, using %s", t.Practice.ProgressInterval, DefaultProgressInterval)
		config.Practice.ProgressInterval = DefaultProgressInterval
	}

	// Recorder
	setStrings(&config.Recorder.Formats, t.Recorder.Formats)
	setString(&config.Recorder.FFmpegPath, t.Recorder.FFmpegPath)
	setString(&config.Recorder.InputFormat, t.Recorder.InputFormat)
	setString(&config.Recorder.InputDevice, t.Recorder.InputDevice)

	setStrings(&config.Player.Players, t.Player.Players)

	// Search
	setInt(&config.Search.MaxResults, t.Search.MaxResults)
	setStrings(&config.Search.Providers, t.Search.Providers)
	setString(&config.Search.YouTubeAPIKey, t.Search.YouTubeAPIKey)
	setString(&config.Search.YouTubeEndpoint, t.Search.YouTubeEndpoint)
	setInt(&config.Search.YouTubeResults, t.Search.YouTubeResults)
	setString(&config.Search.MusixmatchAPIKey, t.Search.MusixmatchAPIKey)
	setString(&config.Search.MusixmatchURL, t.Search.MusixmatchURL)
	setInt(&config.Search.MusixmatchResults, t.Search.MusixmatchResults)
	setString(&config.Search.ITunesURL, t.Search.ITunesURL)
	setString(&config.Search.ITunesCountry, t.Search.ITunesCountry)
	setInt(&config.Search.ITunesResults, t.Search.ITunesResults)
	setString(&config.Search.LRCLibURL, t.Search.LRCLibURL)
	setString(&config.Search.NetEaseURL, t.Search.NetEaseURL)
	setString(&config.Search.NetEaseCookie, t.Search.NetEaseCookie)

	setStrings(&config.Lyrics.Providers, t.Lyrics.Providers)

	// AI
	setString(&config.AI.ModuleName, t.AI.ModuleName)
	setString(&config.AI.BaseURL, t.AI.BaseURL)
	setString(&config.AI.APIKey, t.AI.APIKey)

	// Translate
	setString(&config.Translate.SecretID, t.Translate.SecretID)
	setString(&config.Translate.SecretKey, t.Translate.SecretKey)
	setString(&config.Translate.Region, t.Translate.Region)
	setString(&config.Translate.Endpoint, t.Translate.Endpoint)
	setString(&config.Translate.Target, t.Translate.Target)

	// Store
	setString(&config.Store.Backend, t.Store.Backend)
	setString(&config.Store.Path, t.Store.Path)
	setString(&config.Store.Key, t.Store.Key)

	// Redis
	setString(&config.Redis.Addr, t.Redis.Addr)
	setString(&config.Redis.Password, t.Redis.Password)
	setInt(&config.Redis.DB, t.Redis.DB)
	setString(&config.Redis.Prefix, t.Redis.Prefix)

	if len(t.SampleSongs) > 0 {
		config.SampleSongs = t.SampleSongs
	}
}

func applyEnv(config *Config) {
	if v := os.Getenv("KARAOKE_YOUTUBE_API_KEY"); v != "" {
		config.Search.YouTubeAPIKey = v
	}
	if v := os.Getenv("KARAOKE_MUSIXMATCH_API_KEY"); v != "" {
		config.Search.MusixmatchAPIKey = v
	}
	if v := os.Getenv("TENCENTCLOUD_SECRET_ID"); v != "" {
		config.Translate.SecretID = v
	}
	if v := os.Getenv("TENCENTCLOUD_SECRET_KEY"); v != "" {
		config.Translate.SecretKey = v
	}
	if v := os.Getenv("NETEASE_COOKIE"); v != "" && config.Search.NetEaseCookie == "" {
		config.Search.NetEaseCookie = v
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setStrings(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, name string) {
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		log.Printf("WARN: Invalid %s format '%s', using default", name, v)
		return
	}
	*dst = d
}
