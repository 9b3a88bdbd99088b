package youtube

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"karaoke-backend/pkg/music"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const providerName = "YouTube"

// ErrNoAPIKey 未配置 API key
var ErrNoAPIKey = errors.New("youtube api key not configured")

// Client YouTube Data API v3 搜索客户端
type Client struct {
	apiKey   string
	endpoint string
	limit    int64
}

// NewClient 创建 YouTube 客户端，endpoint 为空时使用官方地址
func NewClient(apiKey, endpoint string, limit int) *Client {
	if limit <= 0 {
		limit = 5
	}
	return &Client{apiKey: apiKey, endpoint: endpoint, limit: int64(limit)}
}

// GetProviderName 获取提供商名称
func (c *Client) GetProviderName() string {
	return providerName
}

// Search 搜索视频，MediaRef 为视频ID，可直接用于内嵌播放器
func (c *Client) Search(ctx context.Context, query string) ([]music.SearchResult, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	opts := []option.ClientOption{option.WithAPIKey(c.apiKey)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}

	resp, err := svc.Search.List([]string{"snippet"}).
		Q(query + " karaoke").
		Type("video").
		VideoEmbeddable("true").
		MaxResults(c.limit).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search failed: %w", err)
	}

	results := make([]music.SearchResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		title, artist := SplitMediaTitle(html.UnescapeString(item.Snippet.Title))
		if artist == "" {
			artist = item.Snippet.ChannelTitle
		}
		results = append(results, music.SearchResult{
			Title:    title,
			Artist:   artist,
			Source:   providerName,
			MediaRef: item.Id.VideoId,
		})
	}
	return results, nil
}

// SplitMediaTitle 按 "艺术家 - 标题" 拆分视频标题，拆不开时艺术家为空
func SplitMediaTitle(s string) (title, artist string) {
	for _, sep := range []string{" - ", " – ", " / "} {
		if before, after, ok := strings.Cut(s, sep); ok {
			return cleanTitle(after), strings.TrimSpace(before)
		}
	}
	return cleanTitle(s), ""
}

func cleanTitle(s string) string {
	for _, open := range []string{"(", "[", "【"} {
		if i := strings.Index(s, open); i > 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
