package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"karaoke-backend/internal/lyrics"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrEmptyName = errors.New("session name is empty")
)

// DefaultKey 所有会话以一个 JSON 数组保存在该键下
const DefaultKey = "karaoke_practice_sessions"

// logger 按需创建，跟随 log.Logger 的当前输出
func logger() *zerolog.Logger {
	l := log.With().Str("component", "session-store").Logger()
	return &l
}

// KV 持久化键值存储，键不存在时 Get 返回 nil, nil
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Source 会话对应的播放源
type Source struct {
	Kind string `json:"kind"` // local, client, remote
	Ref  string `json:"ref"`
}

// PracticeSession 保存的练习会话
type PracticeSession struct {
	Name      string        `json:"name"`
	SongLabel string        `json:"song_label"`
	Source    Source        `json:"source"`
	Lines     []lyrics.Line `json:"lines"`
	CreatedAt time.Time     `json:"created_at"`
}

// Summary 会话列表项
type Summary struct {
	Name      string    `json:"name"`
	SongLabel string    `json:"song_label"`
	LineCount int       `json:"line_count"`
	Timed     bool      `json:"timed"`
	CreatedAt time.Time `json:"created_at"`
}

func (s PracticeSession) Summary() Summary {
	sum := Summary{
		Name:      s.Name,
		SongLabel: s.SongLabel,
		LineCount: len(s.Lines),
		CreatedAt: s.CreatedAt,
	}
	for _, l := range s.Lines {
		if l.Timed() {
			sum.Timed = true
			break
		}
	}
	return sum
}

// Store 会话存储
type Store struct {
	kv  KV
	key string
	now func() time.Time

	// 读-改-写 需要串行
	mu sync.Mutex
}

func New(kv KV, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{kv: kv, key: key, now: time.Now}
}

func (s *Store) load(ctx context.Context) ([]PracticeSession, error) {
	data, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var sessions []PracticeSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return sessions, nil
}

func (s *Store) save(ctx context.Context, sessions []PracticeSession) error {
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to write sessions: %w", err)
	}
	return nil
}

// Save 保存会话，同名覆盖
func (s *Store) Save(ctx context.Context, session PracticeSession) error {
	session.Name = strings.TrimSpace(session.Name)
	if session.Name == "" {
		return ErrEmptyName
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for i := range sessions {
		if sessions[i].Name == session.Name {
			sessions[i] = session
			replaced = true
			break
		}
	}
	if !replaced {
		sessions = append(sessions, session)
	}

	if err := s.save(ctx, sessions); err != nil {
		return err
	}
	logger().Info().Str("name", session.Name).Int("lines", len(session.Lines)).Bool("replaced", replaced).Msg("Session saved")
	return nil
}

// List 返回会话摘要，最新的在前
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	s.mu.Lock()
	sessions, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Summary())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Load 按名称读取会话
func (s *Store) Load(ctx context.Context, name string) (PracticeSession, error) {
	s.mu.Lock()
	sessions, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return PracticeSession{}, err
	}

	name = strings.TrimSpace(name)
	for _, sess := range sessions {
		if sess.Name == name {
			return sess, nil
		}
	}
	return PracticeSession{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Delete 删除会话
func (s *Store) Delete(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load(ctx)
	if err != nil {
		return err
	}

	kept := sessions[:0]
	found := false
	for _, sess := range sessions {
		if sess.Name == name {
			found = true
			continue
		}
		kept = append(kept, sess)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if err := s.save(ctx, kept); err != nil {
		return err
	}
	logger().Info().Str("name", name).Msg("Session deleted")
	return nil
}
