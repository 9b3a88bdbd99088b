package music

import (
	"context"
	"errors"
)

// ErrLookupFailed 搜索或歌词获取失败（网络或解析错误），调用方应降级为空结果
var ErrLookupFailed = errors.New("lookup failed")

// SongSearcher 曲库搜索接口
type SongSearcher interface {
	// Search 按关键字搜索歌曲
	Search(ctx context.Context, query string) ([]SearchResult, error)

	// GetProviderName 获取提供商名称
	GetProviderName() string
}

// LyricsFetcher 歌词获取接口
type LyricsFetcher interface {
	// FetchLyrics 根据歌曲信息获取歌词
	FetchLyrics(ctx context.Context, title, artist string) (Lyrics, error)

	// GetProviderName 获取提供商名称
	GetProviderName() string
}

// TitleResolver 将媒体标题解析为歌曲信息
type TitleResolver interface {
	Resolve(ctx context.Context, mediaTitle string) (SongInfo, error)
}

// SearchResult 搜索结果
type SearchResult struct {
	Title         string `json:"title"`
	Artist        string `json:"artist"`
	DurationLabel string `json:"duration"`
	Source        string `json:"source"`
	MediaRef      string `json:"media_ref,omitempty"`
}

// LyricLine 歌词行结构
type LyricLine struct {
	Time float64 `json:"time"` // 时间戳（秒）
	Text string  `json:"text"` // 歌词文本
}

// Lyrics 歌词查询结果，纯文本与带时间戳两种形式至多一种非空
type Lyrics struct {
	Source string      `json:"source"`
	Plain  []string    `json:"plain,omitempty"`
	Timed  []LyricLine `json:"timed,omitempty"`
}

// Empty 是否没有任何歌词
func (l Lyrics) Empty() bool {
	return len(l.Plain) == 0 && len(l.Timed) == 0
}

// Synced 是否为带时间戳的歌词
func (l Lyrics) Synced() bool {
	return len(l.Timed) > 0
}

// SongInfo 歌曲信息结构
type SongInfo struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	IsSong bool   `json:"is_song"`
}
