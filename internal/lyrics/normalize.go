package lyrics

import "karaoke-backend/pkg/music"

// FromLyrics 把歌词查询结果统一转换为时间轴行。
// 带时间戳的结果保留时间，纯文本结果不带时间；空文本行（间奏标记）丢弃。
func FromLyrics(l music.Lyrics) []Line {
	if l.Synced() {
		lines := make([]Line, 0, len(l.Timed))
		for _, tl := range l.Timed {
			if tl.Text == "" {
				continue
			}
			start := tl.Time
			lines = append(lines, Line{Index: len(lines), Text: tl.Text, Start: &start})
		}
		return lines
	}

	lines := make([]Line, 0, len(l.Plain))
	for _, text := range l.Plain {
		if text == "" {
			continue
		}
		lines = append(lines, Line{Index: len(lines), Text: text})
	}
	return lines
}

// Load 用查询结果替换时间轴内容
func (t *Timeline) Load(l music.Lyrics) {
	t.Replace(FromLyrics(l))
}
