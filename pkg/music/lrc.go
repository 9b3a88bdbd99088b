package music

import (
	"bufio"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var lrcTagRe = regexp.MustCompile(`\[(\d{2,}):(\d{2})(?:[.:](\d{1,3}))?\]`)

// ParseLRC 解析LRC格式歌词，一行多个时间标签时展开为多行，结果按时间排序
func ParseLRC(lrc string) []LyricLine {
	scanner := bufio.NewScanner(strings.NewReader(lrc))
	var result []LyricLine

	for scanner.Scan() {
		line := scanner.Text()
		tags := lrcTagRe.FindAllStringSubmatchIndex(line, -1)
		if len(tags) == 0 || tags[0][0] != 0 {
			continue
		}

		// 文本位于最后一个连续时间标签之后
		end := tags[0][1]
		var stamps []float64
		for _, loc := range tags {
			if loc[0] != end && len(stamps) > 0 {
				break
			}
			stamps = append(stamps, lrcTimestamp(line, loc))
			end = loc[1]
		}
		text := strings.TrimSpace(line[end:])
		for _, ts := range stamps {
			result = append(result, LyricLine{Time: ts, Text: text})
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Time < result[j].Time })
	return result
}

func lrcTimestamp(line string, loc []int) float64 {
	min, _ := strconv.Atoi(line[loc[2]:loc[3]])
	sec, _ := strconv.Atoi(line[loc[4]:loc[5]])
	ms := 0
	if loc[6] >= 0 {
		msStr := line[loc[6]:loc[7]]
		ms, _ = strconv.Atoi(msStr)
		// 根据毫秒字符串的长度来正确处理毫秒值
		switch len(msStr) {
		case 1:
			ms *= 100 // 1位数时，如 .1 表示 100ms
		case 2:
			ms *= 10 // 2位数时，如 .49 表示 490ms
		}
	}
	return float64(min*60+sec) + float64(ms)/1000
}

// SplitPlain 将纯文本歌词按行拆分，去掉空行
func SplitPlain(text string) []string {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// ParseLyrics 根据内容自动识别LRC或纯文本
func ParseLyrics(source, text string) Lyrics {
	if timed := ParseLRC(text); len(timed) > 0 {
		return Lyrics{Source: source, Timed: timed}
	}
	return Lyrics{Source: source, Plain: SplitPlain(text)}
}
