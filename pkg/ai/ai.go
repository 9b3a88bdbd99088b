package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"karaoke-backend/pkg/music"

	"github.com/rs/zerolog/log"
)

type AiInterface interface {
	Name() string
	HandleText(ctx context.Context, msg string) (string, error)
}

const maxRetries = 3

func formatQuerySong(title string) string {
	return fmt.Sprintf(`Extract song information from a media title and answer with exactly this JSON: {"is_song": true, "title": "song title", "artist": "performer"}. If the title does not name a song, answer {"is_song": false}. Title and artist must be exact; drop decorations such as "Official Video", "karaoke", "lyrics" or "MV". Never use markdown. Media title: %s`, title)
}

// Resolver 用大模型把媒体标题解析为歌曲信息
type Resolver struct {
	client     AiInterface
	retryDelay time.Duration
}

var _ music.TitleResolver = (*Resolver)(nil)

func NewResolver(client AiInterface) *Resolver {
	return &Resolver{client: client, retryDelay: time.Second}
}

func (r *Resolver) Resolve(ctx context.Context, mediaTitle string) (music.SongInfo, error) {
	var raw string
	var err error
	for i := range maxRetries {
		raw, err = r.client.HandleText(ctx, formatQuerySong(mediaTitle))
		if err == nil {
			break
		}
		log.Warn().Err(err).Str("model", r.client.Name()).Int("attempt", i+1).Msg("Failed to query model")
		select {
		case <-ctx.Done():
			return music.SongInfo{}, ctx.Err()
		case <-time.After(r.retryDelay):
		}
	}
	if err != nil {
		return music.SongInfo{}, fmt.Errorf("failed to query %s after %d attempts: %w", r.client.Name(), maxRetries, err)
	}

	var info music.SongInfo
	if err := json.Unmarshal([]byte(stripFence(raw)), &info); err != nil {
		return music.SongInfo{}, fmt.Errorf("failed to parse %s response: %w", r.client.Name(), err)
	}
	log.Info().Str("title", info.Title).Str("artist", info.Artist).Bool("is_song", info.IsSong).Msg("Resolved media title")
	return info, nil
}

// stripFence 去掉模型偶尔附带的 ```json 代码块标记
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
