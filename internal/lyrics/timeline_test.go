package lyrics

import (
	"errors"
	"testing"

	"karaoke-backend/pkg/music"
)

func TestSetLinesClearsTimings(t *testing.T) {
	tl := NewTimeline("a", "b")
	tl.RecordTiming(0, 1.5)

	tl.SetLines([]string{" first ", "", "second", "   "})
	if tl.Len() != 2 {
		t.Fatalf("expected 2 lines, got %d", tl.Len())
	}
	if tl.Timed() {
		t.Error("expected timings cleared on edit")
	}
	for i, l := range tl.Lines() {
		if l.Index != i {
			t.Errorf("expected index %d, got %d", i, l.Index)
		}
	}
	if tl.Text(0) != "first" {
		t.Errorf("expected trimmed text, got %q", tl.Text(0))
	}
}

func TestRecordTimingOutOfRange(t *testing.T) {
	tl := NewTimeline("a")
	for _, idx := range []int{-1, 1, 7} {
		if err := tl.RecordTiming(idx, 1); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("index %d: expected ErrIndexOutOfRange, got %v", idx, err)
		}
	}
}

func TestActiveLineAtOutOfOrder(t *testing.T) {
	tl := NewTimeline("a", "b")
	tl.RecordTiming(0, 12.0)
	tl.RecordTiming(1, 8.0)

	tests := []struct {
		at     float64
		want   int
		wantOK bool
	}{
		{at: 7.9, want: -1, wantOK: false},
		{at: 8.0, want: 1, wantOK: true},
		{at: 10.0, want: 1, wantOK: true},
		{at: 12.0, want: 1, wantOK: true},
		{at: 30.0, want: 1, wantOK: true},
	}
	for _, tt := range tests {
		got, ok := tl.ActiveLineAt(tt.at)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ActiveLineAt(%v) = %d, %v; want %d, %v", tt.at, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestActiveLineAtOnlyEarlierLineTimed(t *testing.T) {
	tl := NewTimeline("a", "b", "c")
	tl.RecordTiming(0, 12.0)
	tl.RecordTiming(2, 20.0)

	if got, ok := tl.ActiveLineAt(10.0); ok {
		t.Errorf("expected no line before 12s, got %d", got)
	}
	if got, _ := tl.ActiveLineAt(15.0); got != 0 {
		t.Errorf("expected line 0 at 15s, got %d", got)
	}
	if got, _ := tl.ActiveLineAt(25.0); got != 2 {
		t.Errorf("expected line 2 at 25s, got %d", got)
	}
}

// The result depends only on the set of (index, time) pairs.
func TestActiveLineAtOrderIndependent(t *testing.T) {
	pairs := []struct {
		idx int
		at  float64
	}{{0, 12}, {1, 8}, {2, 3}, {3, 15}}

	perms := [][]int{
		{0, 1, 2, 3}, {3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1},
	}

	probes := []float64{0, 3, 5, 8, 10, 12, 14, 15, 99}
	var reference []int
	for pi, perm := range perms {
		tl := NewTimeline("a", "b", "c", "d")
		for _, i := range perm {
			tl.RecordTiming(pairs[i].idx, pairs[i].at)
		}

		var got []int
		for _, p := range probes {
			idx, _ := tl.ActiveLineAt(p)
			got = append(got, idx)

			// 直接按定义计算：时间 <= p 的最大行号
			want := -1
			for _, pr := range pairs {
				if pr.at <= p && pr.idx > want {
					want = pr.idx
				}
			}
			if idx != want {
				t.Errorf("perm %v: ActiveLineAt(%v) = %d, want %d", perm, p, idx, want)
			}
		}
		if pi == 0 {
			reference = got
			continue
		}
		for i := range got {
			if got[i] != reference[i] {
				t.Errorf("perm %v differs at probe %v", perm, probes[i])
			}
		}
	}
}

func TestRecordTimingOverwrites(t *testing.T) {
	tl := NewTimeline("a", "b")
	tl.RecordTiming(1, 4)
	tl.RecordTiming(0, 2)
	tl.RecordTiming(1, 6)

	if at, _ := tl.StartOf(0); at != 2 {
		t.Errorf("expected line 0 untouched at 2, got %v", at)
	}
	if at, _ := tl.StartOf(1); at != 6 {
		t.Errorf("expected line 1 overwritten to 6, got %v", at)
	}
}

func TestLineAfter(t *testing.T) {
	tl := NewTimeline("a", "b", "c")

	if next, ok := tl.LineAfter(0); !ok || next != 1 {
		t.Errorf("LineAfter(0) = %d, %v", next, ok)
	}
	if _, ok := tl.LineAfter(2); ok {
		t.Error("expected no line after the last one")
	}
	if _, ok := tl.LineAfter(-1); ok {
		t.Error("expected no line after an invalid index")
	}
}

func TestLinesReturnsCopy(t *testing.T) {
	tl := NewTimeline("a")
	tl.RecordTiming(0, 1)

	lines := tl.Lines()
	*lines[0].Start = 99
	lines[0].Text = "changed"

	if at, _ := tl.StartOf(0); at != 1 {
		t.Errorf("timeline mutated through copy: %v", at)
	}
	if tl.Text(0) != "a" {
		t.Errorf("timeline text mutated through copy: %q", tl.Text(0))
	}
}

func TestFromLyrics(t *testing.T) {
	t.Run("timed", func(t *testing.T) {
		lines := FromLyrics(music.Lyrics{Timed: []music.LyricLine{
			{Time: 1, Text: "one"},
			{Time: 3, Text: ""},
			{Time: 5, Text: "two"},
		}})
		if len(lines) != 2 {
			t.Fatalf("expected instrumental gap dropped, got %d lines", len(lines))
		}
		if lines[1].Index != 1 || lines[1].Start == nil || *lines[1].Start != 5 {
			t.Errorf("unexpected second line %+v", lines[1])
		}
	})

	t.Run("plain", func(t *testing.T) {
		tl := NewTimeline()
		tl.Load(music.Lyrics{Plain: []string{"one", "two", "three"}})
		if tl.Len() != 3 || tl.Timed() {
			t.Errorf("expected 3 untimed lines, got %d timed=%v", tl.Len(), tl.Timed())
		}
	})
}
