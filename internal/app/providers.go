package app

import (
	"context"
	"fmt"
	"strings"

	"karaoke-backend/internal/config"
	"karaoke-backend/pkg/ai"
	"karaoke-backend/pkg/ai/gemini"
	"karaoke-backend/pkg/ai/openai"
	"karaoke-backend/pkg/itunes"
	"karaoke-backend/pkg/lrclib"
	"karaoke-backend/pkg/music"
	"karaoke-backend/pkg/musixmatch"
	"karaoke-backend/pkg/netease"
	"karaoke-backend/pkg/sample"
	"karaoke-backend/pkg/youtube"

	"github.com/rs/zerolog/log"
)

// providerSet 同名的搜索和歌词提供商共享同一个客户端
type providerSet struct {
	cfg     *config.Config
	catalog *sample.Catalog
	lrclib  *lrclib.Client
	netease *netease.Client
	mxm     *musixmatch.Client
}

func newProviderSet(cfg *config.Config) *providerSet {
	return &providerSet{cfg: cfg}
}

func (p *providerSet) sample() *sample.Catalog {
	if p.catalog == nil {
		p.catalog = sample.NewCatalog(p.cfg.SampleSongs)
	}
	return p.catalog
}

func (p *providerSet) lrclibClient() *lrclib.Client {
	if p.lrclib == nil {
		p.lrclib = lrclib.NewClient(p.cfg.Search.LRCLibURL)
	}
	return p.lrclib
}

func (p *providerSet) neteaseClient() *netease.Client {
	if p.netease == nil {
		p.netease = netease.NewClient(p.cfg.Search.NetEaseURL, p.cfg.Search.NetEaseCookie, p.cfg.Search.MaxResults)
	}
	return p.netease
}

func (p *providerSet) musixmatchClient() *musixmatch.Client {
	if p.mxm == nil {
		p.mxm = musixmatch.NewClient(p.cfg.Search.MusixmatchURL, p.cfg.Search.MusixmatchAPIKey, p.cfg.Search.MusixmatchResults)
	}
	return p.mxm
}

// CreateSearcher 根据名称创建搜索提供商
func (p *providerSet) CreateSearcher(name string) (music.SongSearcher, error) {
	switch strings.ToLower(name) {
	case "youtube":
		return youtube.NewClient(p.cfg.Search.YouTubeAPIKey, p.cfg.Search.YouTubeEndpoint, p.cfg.Search.YouTubeResults), nil
	case "itunes":
		return itunes.NewClient(p.cfg.Search.ITunesURL, p.cfg.Search.ITunesCountry, p.cfg.Search.ITunesResults), nil
	case "musixmatch":
		return p.musixmatchClient(), nil
	case "lrclib":
		return p.lrclibClient(), nil
	case "netease":
		return p.neteaseClient(), nil
	case "sample":
		return p.sample(), nil
	default:
		return nil, fmt.Errorf("unsupported search provider: %s", name)
	}
}

// CreateFetcher 根据名称创建歌词提供商
func (p *providerSet) CreateFetcher(name string) (music.LyricsFetcher, error) {
	switch strings.ToLower(name) {
	case "lrclib":
		return p.lrclibClient(), nil
	case "netease":
		return p.neteaseClient(), nil
	case "musixmatch":
		return p.musixmatchClient(), nil
	case "sample":
		return p.sample(), nil
	default:
		return nil, fmt.Errorf("unsupported lyrics provider: %s", name)
	}
}

// NewMusicManager 按配置顺序创建曲库与歌词管理器，未知的提供商跳过
func NewMusicManager(ctx context.Context, cfg *config.Config) *music.Manager {
	set := newProviderSet(cfg)

	var searchers []music.SongSearcher
	for _, name := range cfg.Search.Providers {
		s, err := set.CreateSearcher(name)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping search provider")
			continue
		}
		searchers = append(searchers, s)
	}

	var fetchers []music.LyricsFetcher
	for _, name := range cfg.Lyrics.Providers {
		f, err := set.CreateFetcher(name)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping lyrics provider")
			continue
		}
		fetchers = append(fetchers, f)
	}

	opts := []music.Option{
		music.WithMaxResults(cfg.Search.MaxResults),
		music.WithCacheDir(cfg.App.CacheDir),
	}
	if client := newAIClient(ctx, cfg.AI); client != nil {
		opts = append(opts, music.WithResolver(ai.NewResolver(client)))
	}

	m := music.NewManager(searchers, fetchers, opts...)
	log.Info().
		Strs("searchers", m.SearcherNames()).
		Strs("fetchers", m.FetcherNames()).
		Msg("Music manager ready")
	return m
}

func newAIClient(ctx context.Context, cfg config.AIConfig) ai.AiInterface {
	if cfg.APIKey == "" {
		return nil
	}

	if cfg.ModuleName == "" || strings.Contains(cfg.ModuleName, "gemini") {
		client, err := gemini.NewGemini(ctx, cfg.APIKey, cfg.ModuleName)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create gemini client, title resolving disabled")
			return nil
		}
		return client
	}
	return openai.NewOpenAi(cfg.APIKey, cfg.ModuleName, cfg.BaseURL)
}
