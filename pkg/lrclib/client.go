package lrclib

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"karaoke-backend/pkg/music"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const providerName = "LRCLib"

// logger 按需创建，跟随 log.Logger 的当前输出
func logger() *zerolog.Logger {
	l := log.With().Str("component", "lrclib").Logger()
	return &l
}

// Client LRCLib客户端
type Client struct {
	httpClient     *http.Client
	baseURL        string
	requestTimeout time.Duration
	maxRetries     int
	retryBackoff   time.Duration
}

// LRCLibResponse LRCLib API响应结构
type LRCLibResponse struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

// LRCLibSearchResponse LRCLib API搜索响应（列表）
type LRCLibSearchResponse []LRCLibResponse

// NewClient 创建新的LRCLib客户端，baseURL 为空时使用官方地址
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://lrclib.net/api"
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		baseURL:        strings.TrimRight(baseURL, "/"),
		requestTimeout: 5 * time.Second,
		maxRetries:     3,
		retryBackoff:   500 * time.Millisecond,
	}
}

// GetProviderName 返回提供商名称
func (c *Client) GetProviderName() string {
	return providerName
}

// Search 按关键字搜索
func (c *Client) Search(ctx context.Context, query string) ([]music.SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)

	responses, err := c.search(ctx, params)
	if err != nil {
		return nil, err
	}

	results := make([]music.SearchResult, 0, len(responses))
	for _, r := range responses {
		results = append(results, music.SearchResult{
			Title:         r.TrackName,
			Artist:        r.ArtistName,
			DurationLabel: music.FormatDuration(r.Duration),
			Source:        providerName,
			MediaRef:      fmt.Sprintf("lrclib:%d", r.ID),
		})
	}
	return results, nil
}

// FetchLyrics 获取歌词，优先返回同步歌词
func (c *Client) FetchLyrics(ctx context.Context, title, artist string) (music.Lyrics, error) {
	params := url.Values{}
	params.Set("track_name", title)
	if artist != "" {
		params.Set("artist_name", artist)
	}

	responses, err := c.search(ctx, params)
	if err != nil {
		return music.Lyrics{}, err
	}
	if len(responses) == 0 {
		return music.Lyrics{}, fmt.Errorf("no lyrics found for '%s - %s'", title, artist)
	}

	// 使用智能匹配算法找到最佳匹配的歌词
	best := findBestMatch(responses, title, artist)

	if best.SyncedLyrics != "" {
		logger().Info().Str("track", best.TrackName).Str("artist", best.ArtistName).Msg("Selected synced lyrics")
		return music.Lyrics{Source: providerName, Timed: music.ParseLRC(best.SyncedLyrics)}, nil
	}
	if best.PlainLyrics != "" {
		logger().Info().Str("track", best.TrackName).Str("artist", best.ArtistName).Msg("Selected plain lyrics")
		return music.Lyrics{Source: providerName, Plain: music.SplitPlain(best.PlainLyrics)}, nil
	}

	return music.Lyrics{}, fmt.Errorf("selected result has no lyrics for '%s - %s'", title, artist)
}

func (c *Client) search(ctx context.Context, params url.Values) (LRCLibSearchResponse, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	searchURL := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())

	var resp *http.Response
	var err error

	// 重试机制
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			logger().Info().Int("attempt", attempt).Int("max_retries", c.maxRetries).Msg("Retrying request")
			select {
			case <-timeoutCtx.Done():
				return nil, timeoutCtx.Err()
			case <-time.After(time.Duration(attempt) * c.retryBackoff):
			}
		}

		req, reqErr := http.NewRequestWithContext(timeoutCtx, http.MethodGet, searchURL, nil)
		if reqErr != nil {
			return nil, fmt.Errorf("failed to create request: %w", reqErr)
		}
		req.Header.Set("User-Agent", "karaoke-backend/1.0")

		resp, err = c.httpClient.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			break
		}

		if err != nil {
			logger().Warn().Err(err).Int("attempt", attempt+1).Msg("Request failed")
		} else {
			logger().Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).Msg("Request returned non-OK status")
			resp.Body.Close()
		}

		if attempt == c.maxRetries {
			if err != nil {
				return nil, fmt.Errorf("request failed after %d attempts: %w", attempt+1, err)
			}
			return nil, fmt.Errorf("request failed after %d attempts with status %d", attempt+1, resp.StatusCode)
		}
	}
	defer resp.Body.Close()

	var responses LRCLibSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&responses); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return responses, nil
}

// findBestMatch 从搜索结果中找到最佳匹配：标题+艺术家 > 仅标题 > 第一条，
// 同一优先级中带同步歌词的优先
func findBestMatch(responses LRCLibSearchResponse, title, artist string) *LRCLibResponse {
	var exact, titleOnly []*LRCLibResponse
	for i := range responses {
		r := &responses[i]
		if !containsIgnoreCase(r.TrackName, title) {
			continue
		}
		if artist != "" && containsIgnoreCase(r.ArtistName, artist) {
			exact = append(exact, r)
		} else {
			titleOnly = append(titleOnly, r)
		}
	}

	for _, pool := range [][]*LRCLibResponse{exact, titleOnly} {
		for _, r := range pool {
			if r.SyncedLyrics != "" {
				return r
			}
		}
		if len(pool) > 0 {
			return pool[0]
		}
	}
	return &responses[0]
}

// containsIgnoreCase 忽略大小写检查包含关系
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
