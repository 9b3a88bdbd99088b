package musixmatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"karaoke-backend/pkg/music"
)

const providerName = "Musixmatch"

// ErrNoAPIKey 未配置 API key
var ErrNoAPIKey = errors.New("musixmatch api key not configured")

// 免费套餐歌词末尾附带的版权声明
const commercialNotice = "******* This Lyrics is NOT for Commercial use *******"

type header struct {
	StatusCode int `json:"status_code"`
}

type track struct {
	TrackID     int    `json:"track_id"`
	TrackName   string `json:"track_name"`
	ArtistName  string `json:"artist_name"`
	TrackLength int    `json:"track_length"`
	HasLyrics   int    `json:"has_lyrics"`
}

type searchResponse struct {
	Message struct {
		Header header `json:"header"`
		Body   struct {
			TrackList []struct {
				Track track `json:"track"`
			} `json:"track_list"`
		} `json:"body"`
	} `json:"message"`
}

type lyricsResponse struct {
	Message struct {
		Header header `json:"header"`
		Body   struct {
			Lyrics struct {
				LyricsBody string `json:"lyrics_body"`
			} `json:"lyrics"`
		} `json:"body"`
	} `json:"message"`
}

// Client Musixmatch 客户端
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limit      int
}

// NewClient 创建 Musixmatch 客户端
func NewClient(baseURL, apiKey string, limit int) *Client {
	if baseURL == "" {
		baseURL = "https://api.musixmatch.com/ws/1.1"
	}
	if limit <= 0 {
		limit = 5
	}
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		limit:      limit,
	}
}

// GetProviderName 获取提供商名称
func (c *Client) GetProviderName() string {
	return providerName
}

// Search 搜索歌曲
func (c *Client) Search(ctx context.Context, query string) ([]music.SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("page_size", strconv.Itoa(c.limit))
	params.Set("s_track_rating", "desc")

	tracks, err := c.searchTracks(ctx, params)
	if err != nil {
		return nil, err
	}

	results := make([]music.SearchResult, 0, len(tracks))
	for _, t := range tracks {
		results = append(results, music.SearchResult{
			Title:         t.TrackName,
			Artist:        t.ArtistName,
			DurationLabel: music.FormatDuration(float64(t.TrackLength)),
			Source:        providerName,
			MediaRef:      "musixmatch:" + strconv.Itoa(t.TrackID),
		})
	}
	return results, nil
}

// FetchLyrics 搜索曲目后获取纯文本歌词
func (c *Client) FetchLyrics(ctx context.Context, title, artist string) (music.Lyrics, error) {
	params := url.Values{}
	params.Set("q_track", title)
	if artist != "" {
		params.Set("q_artist", artist)
	}
	params.Set("f_has_lyrics", "1")
	params.Set("page_size", "1")

	tracks, err := c.searchTracks(ctx, params)
	if err != nil {
		return music.Lyrics{}, err
	}
	if len(tracks) == 0 {
		return music.Lyrics{}, fmt.Errorf("no tracks found for '%s - %s'", title, artist)
	}

	var lr lyricsResponse
	lp := url.Values{}
	lp.Set("track_id", strconv.Itoa(tracks[0].TrackID))
	if err := c.get(ctx, "track.lyrics.get", lp, &lr); err != nil {
		return music.Lyrics{}, err
	}
	if code := lr.Message.Header.StatusCode; code != http.StatusOK {
		return music.Lyrics{}, fmt.Errorf("lyrics request returned status %d", code)
	}

	body := lr.Message.Body.Lyrics.LyricsBody
	if i := strings.Index(body, commercialNotice); i >= 0 {
		body = body[:i]
	}
	return music.Lyrics{Source: providerName, Plain: music.SplitPlain(body)}, nil
}

func (c *Client) searchTracks(ctx context.Context, params url.Values) ([]track, error) {
	var sr searchResponse
	if err := c.get(ctx, "track.search", params, &sr); err != nil {
		return nil, err
	}
	if code := sr.Message.Header.StatusCode; code != http.StatusOK {
		return nil, fmt.Errorf("search request returned status %d", code)
	}
	tracks := make([]track, 0, len(sr.Message.Body.TrackList))
	for _, item := range sr.Message.Body.TrackList {
		tracks = append(tracks, item.Track)
	}
	return tracks, nil
}

func (c *Client) get(ctx context.Context, method string, params url.Values, out any) error {
	if c.apiKey == "" {
		return ErrNoAPIKey
	}
	params.Set("apikey", c.apiKey)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s?%s", c.baseURL, method, params.Encode()), nil)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s request failed with status %d", method, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	return nil
}
