package netease

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"karaoke-backend/pkg/music"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const providerName = "NetEase"

// logger 按需创建，跟随 log.Logger 的当前输出
func logger() *zerolog.Logger {
	l := log.With().Str("component", "netease").Logger()
	return &l
}

// NeteaseSearchResponse 网易云搜索API响应
type NeteaseSearchResponse struct {
	Result struct {
		Songs []struct {
			ID       int    `json:"id"`
			Name     string `json:"name"`
			Duration int    `json:"duration"` // 毫秒
			Artists  []struct {
				Name string `json:"name"`
			} `json:"artists"`
		} `json:"songs"`
	} `json:"result"`
}

// NeteaseLyricResponse 网易云歌词API响应
type NeteaseLyricResponse struct {
	Lrc struct {
		Lyric string `json:"lyric"`
	} `json:"lrc"`
}

// Client 网易云音乐客户端
type Client struct {
	httpClient     *http.Client
	baseURL        string
	cookie         string
	searchLimit    int
	maxRetries     int
	requestTimeout time.Duration
}

// NewClient 创建新的网易云音乐客户端，baseURL 为空时使用官方地址
func NewClient(baseURL, cookie string, searchLimit int) *Client {
	if baseURL == "" {
		baseURL = "https://music.163.com/api"
	}
	if cookie == "" {
		cookie = os.Getenv("NETEASE_COOKIE")
	}
	if searchLimit <= 0 {
		searchLimit = 5
	}
	return &Client{
		httpClient:     &http.Client{Timeout: 5 * time.Second},
		baseURL:        strings.TrimRight(baseURL, "/"),
		cookie:         cookie,
		searchLimit:    searchLimit,
		maxRetries:     2,
		requestTimeout: 10 * time.Second,
	}
}

// GetProviderName 获取提供商名称
func (c *Client) GetProviderName() string {
	return providerName
}

// Search 搜索歌曲
func (c *Client) Search(ctx context.Context, query string) ([]music.SearchResult, error) {
	resp, err := c.searchSongs(ctx, query, c.searchLimit)
	if err != nil {
		return nil, err
	}

	var results []music.SearchResult
	for _, song := range resp.Result.Songs {
		artist := ""
		if len(song.Artists) > 0 {
			artist = song.Artists[0].Name
		}
		results = append(results, music.SearchResult{
			Title:         song.Name,
			Artist:        artist,
			DurationLabel: music.FormatDuration(float64(song.Duration) / 1000),
			Source:        providerName,
			MediaRef:      "netease:" + strconv.Itoa(song.ID),
		})
	}
	return results, nil
}

// FetchLyrics 搜索并获取歌词
func (c *Client) FetchLyrics(ctx context.Context, title, artist string) (music.Lyrics, error) {
	resp, err := c.searchSongs(ctx, title, 100)
	if err != nil {
		return music.Lyrics{}, err
	}
	if len(resp.Result.Songs) == 0 {
		return music.Lyrics{}, fmt.Errorf("no songs found for '%s'", title)
	}

	songID := findBestMatch(resp, artist, title)
	if songID == 0 {
		return music.Lyrics{}, fmt.Errorf("no matching song found for '%s' by '%s'", title, artist)
	}

	lrc, err := c.getLyrics(ctx, strconv.Itoa(songID))
	if err != nil {
		return music.Lyrics{}, err
	}
	return music.ParseLyrics(providerName, lrc), nil
}

func (c *Client) searchSongs(ctx context.Context, query string, limit int) (*NeteaseSearchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("s", query)
	params.Set("type", "1")
	params.Set("limit", strconv.Itoa(limit))
	searchURL := fmt.Sprintf("%s/search/get/web?%s", c.baseURL, params.Encode())
	logger().Debug().Str("url", searchURL).Msg("Searching for song")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}

	resp, err := c.doRequestWithRetry(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send search request: %w", err)
	}
	defer resp.Body.Close()

	var searchResp NeteaseSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return &searchResp, nil
}

func (c *Client) getLyrics(ctx context.Context, songID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	lyricURL := fmt.Sprintf("%s/song/lyric?os=pc&id=%s&lv=-1&kv=-1&tv=-1", c.baseURL, songID)
	logger().Debug().Str("url", lyricURL).Msg("Fetching lyrics")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lyricURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create lyric request: %w", err)
	}

	resp, err := c.doRequestWithRetry(req)
	if err != nil {
		return "", fmt.Errorf("failed to send lyric request: %w", err)
	}
	defer resp.Body.Close()

	var lyricResp NeteaseLyricResponse
	if err := json.NewDecoder(resp.Body).Decode(&lyricResp); err != nil {
		return "", fmt.Errorf("failed to decode lyric response: %w", err)
	}
	return lyricResp.Lrc.Lyric, nil
}

// doRequestWithRetry 发送请求，非200响应与网络错误最多重试 maxRetries 次
func (c *Client) doRequestWithRetry(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			logger().Warn().Err(err).Int("attempt", attempt+1).Msg("Request failed")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("API request failed with status %d", resp.StatusCode)
			logger().Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).Msg("Request returned non-OK status")
			continue
		}
		return resp, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no attempts made")
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries, lastErr)
}

// findBestMatch 找到最佳匹配的歌曲
func findBestMatch(resp *NeteaseSearchResponse, targetArtist, targetTitle string) int {
	for _, song := range resp.Result.Songs {
		if !containsIgnoreCase(song.Name, targetTitle) {
			continue
		}

		// artists 可能有多个，只要一个满足就算
		for _, artist := range song.Artists {
			if containsIgnoreCase(artist.Name, targetArtist) {
				logger().Info().Str("song", song.Name).Int("id", song.ID).Msg("Found matching song")
				return song.ID
			}
		}
	}

	// 如果没有找到完全匹配的，返回第一个匹配标题的
	if len(resp.Result.Songs) > 0 && containsIgnoreCase(resp.Result.Songs[0].Name, targetTitle) {
		return resp.Result.Songs[0].ID
	}
	return 0
}

// normalizeString 标准化字符串（转小写，去空格）
func normalizeString(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "")
}

// containsIgnoreCase 忽略大小写和空格的包含关系检查
func containsIgnoreCase(s1, s2 string) bool {
	norm1, norm2 := normalizeString(s1), normalizeString(s2)
	return strings.Contains(norm1, norm2) || strings.Contains(norm2, norm1)
}
