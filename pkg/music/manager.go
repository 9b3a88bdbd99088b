package music

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"karaoke-backend/pkg/fileutil"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxResults 合并后的搜索结果上限
const DefaultMaxResults = 8

// logger 按需创建，跟随 log.Logger 的当前输出
func logger() *zerolog.Logger {
	l := log.With().Str("component", "music-manager").Logger()
	return &l
}

// Manager 曲库与歌词管理器，聚合多个提供商
type Manager struct {
	searchers  []SongSearcher
	fetchers   []LyricsFetcher
	resolver   TitleResolver
	maxResults int
	cacheDir   string
}

// Option 管理器可选配置
type Option func(*Manager)

// WithMaxResults 设置合并结果上限
func WithMaxResults(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxResults = n
		}
	}
}

// WithCacheDir 设置歌词缓存目录，为空则不缓存
func WithCacheDir(dir string) Option {
	return func(m *Manager) { m.cacheDir = dir }
}

// WithResolver 设置媒体标题解析器
func WithResolver(r TitleResolver) Option {
	return func(m *Manager) { m.resolver = r }
}

// NewManager 创建新的管理器
func NewManager(searchers []SongSearcher, fetchers []LyricsFetcher, opts ...Option) *Manager {
	m := &Manager{
		searchers:  searchers,
		fetchers:   fetchers,
		maxResults: DefaultMaxResults,
	}
	for _, opt := range opts {
		opt(m)
	}

	if len(searchers) == 0 && len(fetchers) == 0 {
		logger().Warn().Msg("No music providers configured")
	} else {
		logger().Info().
			Strs("searchers", m.SearcherNames()).
			Strs("fetchers", m.FetcherNames()).
			Int("max_results", m.maxResults).
			Msg("Music manager initialized")
	}
	return m
}

// Search 并发查询所有搜索提供商，按提供商顺序合并、去重并截断。
// 单个提供商失败只会被记录，不会返回错误。
func (m *Manager) Search(ctx context.Context, query string) []SearchResult {
	query = strings.TrimSpace(query)
	if query == "" || len(m.searchers) == 0 {
		return nil
	}

	perProvider := make([][]SearchResult, len(m.searchers))
	g, gctx := errgroup.WithContext(ctx)
	for i, searcher := range m.searchers {
		g.Go(func() error {
			results, err := searcher.Search(gctx, query)
			if err != nil {
				logger().Warn().
					Str("provider", searcher.GetProviderName()).
					Str("query", query).
					Err(fmt.Errorf("%w: %w", ErrLookupFailed, err)).
					Msg("Provider search failed")
				return nil
			}
			for j := range results {
				if results[j].Source == "" {
					results[j].Source = searcher.GetProviderName()
				}
			}
			perProvider[i] = results
			return nil
		})
	}
	_ = g.Wait()

	var combined []SearchResult
	for _, results := range perProvider {
		combined = append(combined, results...)
	}
	merged := Dedupe(combined, m.maxResults)

	logger().Info().
		Str("query", query).
		Int("raw_count", len(combined)).
		Int("result_count", len(merged)).
		Msg("Search finished")
	return merged
}

// Dedupe 按小写 "title|artist" 去重，保留首次出现的结果，最多返回 limit 条
func Dedupe(results []SearchResult, limit int) []SearchResult {
	seen := make(map[string]bool, len(results))
	out := make([]SearchResult, 0, min(len(results), max(limit, 0)))
	for _, r := range results {
		if len(out) >= limit {
			break
		}
		key := dedupeKey(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

func dedupeKey(r SearchResult) string {
	return strings.ToLower(r.Title) + "|" + strings.ToLower(r.Artist)
}

// GetLyrics 依次尝试各歌词提供商，全部失败时返回空歌词。
// 艺术家为空且配置了解析器时，先把标题解析为歌曲信息。
func (m *Manager) GetLyrics(ctx context.Context, title, artist string) Lyrics {
	title, artist = strings.TrimSpace(title), strings.TrimSpace(artist)
	if artist == "" && m.resolver != nil {
		info, err := m.resolver.Resolve(ctx, title)
		switch {
		case err != nil:
			logger().Warn().Err(err).Str("media_title", title).Msg("Failed to resolve media title")
		case !info.IsSong:
			logger().Info().Str("media_title", title).Msg("Media title is not a song")
		default:
			title, artist = info.Title, info.Artist
		}
	}

	if cached, ok := m.readCache(title, artist); ok {
		logger().Info().Str("title", title).Str("artist", artist).Msg("Lyrics cache hit")
		return cached
	}

	for i, fetcher := range m.fetchers {
		logger().Info().
			Str("title", title).
			Str("artist", artist).
			Str("provider", fetcher.GetProviderName()).
			Int("attempt", i+1).
			Int("total_providers", len(m.fetchers)).
			Msg("Trying to get lyrics")

		lyrics, err := fetcher.FetchLyrics(ctx, title, artist)
		if err != nil {
			logger().Warn().
				Str("provider", fetcher.GetProviderName()).
				Err(fmt.Errorf("%w: %w", ErrLookupFailed, err)).
				Msg("Provider get lyrics failed")
			continue
		}
		if lyrics.Empty() {
			logger().Warn().Str("provider", fetcher.GetProviderName()).Msg("Provider returned empty lyrics")
			continue
		}
		if lyrics.Source == "" {
			lyrics.Source = fetcher.GetProviderName()
		}

		logger().Info().
			Str("provider", fetcher.GetProviderName()).
			Bool("synced", lyrics.Synced()).
			Msg("Successfully got lyrics")
		m.writeCache(title, artist, lyrics)
		return lyrics
	}

	logger().Warn().Str("title", title).Str("artist", artist).Msg("All lyrics providers failed")
	return Lyrics{}
}

func (m *Manager) cachePath(title, artist string) string {
	return filepath.Join(m.cacheDir, sanitizeFilename(title+"-"+artist)+".json")
}

func (m *Manager) readCache(title, artist string) (Lyrics, bool) {
	if m.cacheDir == "" {
		return Lyrics{}, false
	}
	data, err := os.ReadFile(m.cachePath(title, artist))
	if err != nil {
		return Lyrics{}, false
	}
	var lyrics Lyrics
	if err := json.Unmarshal(data, &lyrics); err != nil || lyrics.Empty() {
		return Lyrics{}, false
	}
	return lyrics, true
}

func (m *Manager) writeCache(title, artist string, lyrics Lyrics) {
	if m.cacheDir == "" {
		return
	}
	data, err := json.Marshal(lyrics)
	if err != nil {
		return
	}
	path := m.cachePath(title, artist)
	if err := fileutil.WriteFileOverwrite(path, data, 0644); err != nil {
		logger().Error().Err(err).Str("path", path).Msg("Failed to write lyrics cache")
	}
}

var unsafeFilenameRe = regexp.MustCompile(`[\\/:*?"<>|]`)

func sanitizeFilename(name string) string {
	return unsafeFilenameRe.ReplaceAllString(name, "-")
}

// SearcherNames 获取所有搜索提供商名称
func (m *Manager) SearcherNames() []string {
	names := make([]string, len(m.searchers))
	for i, s := range m.searchers {
		names[i] = s.GetProviderName()
	}
	return names
}

// FetcherNames 获取所有歌词提供商名称
func (m *Manager) FetcherNames() []string {
	names := make([]string, len(m.fetchers))
	for i, f := range m.fetchers {
		names[i] = f.GetProviderName()
	}
	return names
}
