// Package sample serves the built-in demo songs so search and practice work
// without any API key.
package sample

import (
	"context"
	"fmt"
	"strings"

	"karaoke-backend/pkg/music"
)

const providerName = "Sample"

// Song 演示歌曲
type Song struct {
	Title    string   `toml:"title"`
	Artist   string   `toml:"artist"`
	Duration string   `toml:"duration"`
	Lyrics   []string `toml:"lyrics"`
}

// Catalog 本地演示曲库
type Catalog struct {
	songs []Song
}

// NewCatalog 创建曲库，songs 为空时使用内置歌曲
func NewCatalog(songs []Song) *Catalog {
	if len(songs) == 0 {
		songs = DefaultSongs
	}
	return &Catalog{songs: songs}
}

// GetProviderName 获取提供商名称
func (c *Catalog) GetProviderName() string {
	return providerName
}

// Search 模糊匹配标题或艺术家
func (c *Catalog) Search(_ context.Context, query string) ([]music.SearchResult, error) {
	var results []music.SearchResult
	for _, s := range c.songs {
		if !fuzzyMatch(s.Title, query) && !fuzzyMatch(s.Artist, query) {
			continue
		}
		results = append(results, music.SearchResult{
			Title:         s.Title,
			Artist:        s.Artist,
			DurationLabel: s.Duration,
			Source:        providerName,
		})
	}
	return results, nil
}

// FetchLyrics 返回演示歌曲的纯文本歌词
func (c *Catalog) FetchLyrics(_ context.Context, title, artist string) (music.Lyrics, error) {
	for _, s := range c.songs {
		if !fuzzyMatch(s.Title, title) {
			continue
		}
		if artist != "" && !fuzzyMatch(s.Artist, artist) {
			continue
		}
		return music.Lyrics{Source: providerName, Plain: append([]string(nil), s.Lyrics...)}, nil
	}
	return music.Lyrics{}, fmt.Errorf("no sample song matches '%s - %s'", title, artist)
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "")
}

// fuzzyMatch 忽略大小写与空格，任一方包含另一方即视为匹配
func fuzzyMatch(candidate, query string) bool {
	c, q := normalize(candidate), normalize(query)
	if c == "" || q == "" {
		return false
	}
	return strings.Contains(c, q) || strings.Contains(q, c)
}

// DefaultSongs 内置演示歌曲
var DefaultSongs = []Song{
	{
		Title:    "津軽海峡冬景色",
		Artist:   "石川さゆり",
		Duration: "4:23",
		Lyrics: []string{
			"上野発の夜行列車降りた時から",
			"青森駅は雪の中",
			"北へ帰る人の群れは誰も無口で",
			"海鳴りだけを聞いている",
			"私もひとり連絡船に乗り",
			"故郷を離れる時が来た",
			"青森駅は雪の中",
			"青森駅は雪の中",
		},
	},
	{
		Title:    "贈る言葉",
		Artist:   "海援隊",
		Duration: "3:45",
		Lyrics: []string{
			"暮れない空に焦がれて",
			"空に歌えば",
			"懐かしい人の声がする",
			"振り返れば いつも",
			"君がいて",
			"励ましてくれた",
			"あの時代を",
			"忘れはしない",
		},
	},
	{
		Title:    "First Love",
		Artist:   "宇多田ヒカル",
		Duration: "4:18",
		Lyrics: []string{
			"最後のキスは",
			"タバコの flavor がした",
			"ニガくて sour な香り",
			"あれから僕は",
			"you've always been in my heart",
			"そして今でも",
			"you're the only one",
			"いつかは終わりが来る",
		},
	},
	{
		Title:    "乾杯",
		Artist:   "恵比寿マスカッツ",
		Duration: "3:21",
		Lyrics: []string{
			"君に乾杯",
			"ありがとう",
			"もう一度",
			"君に乾杯",
			"さようなら",
			"また会える日まで",
			"ここで乾杯",
			"みんなで乾杯",
		},
	},
}
