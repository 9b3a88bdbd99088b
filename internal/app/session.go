package app

import (
	"context"
	"os"

	"karaoke-backend/internal/playback"
	"karaoke-backend/internal/practice"
	"karaoke-backend/internal/store"

	"github.com/rs/zerolog/log"
)

// SaveSession 保存当前歌词和时间，同名覆盖
func (a *App) SaveSession(ctx context.Context, name string) error {
	lines := a.timeline.Lines()
	if len(lines) == 0 {
		return practice.ErrNoLyrics
	}

	a.mutex.Lock()
	src := a.source
	a.mutex.Unlock()

	label := ""
	if b := a.machine.Source(); b != nil {
		label = b.Label()
	}

	return a.store.Save(ctx, store.PracticeSession{
		Name:      name,
		SongLabel: label,
		Source:    src,
		Lines:     lines,
	})
}

// LoadSession 恢复歌词和时间；播放源能打开时一并恢复
func (a *App) LoadSession(ctx context.Context, name string) (store.PracticeSession, error) {
	sess, err := a.store.Load(ctx, name)
	if err != nil {
		return sess, err
	}
	a.machine.LoadLines(sess.Lines)
	a.restoreSource(ctx, sess)
	return sess, nil
}

func (a *App) restoreSource(ctx context.Context, sess store.PracticeSession) {
	var err error
	switch sess.Source.Kind {
	case playback.KindLocal:
		if _, statErr := os.Stat(sess.Source.Ref); statErr != nil {
			log.Info().Str("file", sess.Source.Ref).Msg("Session audio not available, load it again")
			return
		}
		err = a.LoadLocal(ctx, sess.Source.Ref)
	case playback.KindClient:
		if a.ipcServer == nil {
			log.Info().Str("file", sess.Source.Ref).Msg("Session audio plays on the presentation client, load it again")
			return
		}
		err = a.LoadClientAudio(sess.Source.Ref, sess.SongLabel)
	case playback.KindRemote:
		if a.ipcServer == nil {
			return
		}
		err = a.LoadRemote(sess.Source.Ref, sess.SongLabel)
	default:
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("session", sess.Name).Msg("Failed to restore session source")
	}
}

func (a *App) ListSessions(ctx context.Context) ([]store.Summary, error) {
	return a.store.List(ctx)
}

func (a *App) DeleteSession(ctx context.Context, name string) error {
	return a.store.Delete(ctx, name)
}
