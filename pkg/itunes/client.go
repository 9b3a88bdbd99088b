package itunes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"karaoke-backend/pkg/music"
)

const providerName = "iTunes"

// searchResponse iTunes Search API 响应
type searchResponse struct {
	ResultCount int `json:"resultCount"`
	Results     []struct {
		TrackID        int    `json:"trackId"`
		TrackName      string `json:"trackName"`
		ArtistName     string `json:"artistName"`
		TrackTimeMilli int    `json:"trackTimeMillis"`
		PreviewURL     string `json:"previewUrl"`
	} `json:"results"`
}

// Client iTunes 搜索客户端
type Client struct {
	httpClient *http.Client
	baseURL    string
	country    string
	limit      int
}

// NewClient 创建 iTunes 客户端
func NewClient(baseURL, country string, limit int) *Client {
	if baseURL == "" {
		baseURL = "https://itunes.apple.com/search"
	}
	if limit <= 0 {
		limit = 5
	}
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		country:    country,
		limit:      limit,
	}
}

// GetProviderName 获取提供商名称
func (c *Client) GetProviderName() string {
	return providerName
}

// Search 搜索歌曲，试听地址作为 MediaRef
func (c *Client) Search(ctx context.Context, query string) ([]music.SearchResult, error) {
	params := url.Values{}
	params.Set("term", query)
	params.Set("media", "music")
	params.Set("entity", "song")
	params.Set("limit", strconv.Itoa(c.limit))
	if c.country != "" {
		params.Set("country", strings.ToUpper(c.country))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API request failed with status %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]music.SearchResult, 0, len(sr.Results))
	for _, r := range sr.Results {
		results = append(results, music.SearchResult{
			Title:         r.TrackName,
			Artist:        r.ArtistName,
			DurationLabel: music.FormatDuration(float64(r.TrackTimeMilli) / 1000),
			Source:        providerName,
			MediaRef:      r.PreviewURL,
		})
	}
	return results, nil
}
