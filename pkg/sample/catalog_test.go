package sample

import (
	"context"
	"testing"
)

func TestSearchMatchesTitleOrArtist(t *testing.T) {
	c := NewCatalog(nil)

	results, _ := c.Search(context.Background(), "first love")
	if len(results) != 1 || results[0].Artist != "宇多田ヒカル" || results[0].DurationLabel != "4:18" {
		t.Errorf("unexpected results %+v", results)
	}

	results, _ = c.Search(context.Background(), "海援隊")
	if len(results) != 1 || results[0].Title != "贈る言葉" {
		t.Errorf("artist search failed: %+v", results)
	}

	if results, _ := c.Search(context.Background(), ""); len(results) != 0 {
		t.Errorf("empty query should match nothing, got %+v", results)
	}
}

func TestFetchLyrics(t *testing.T) {
	c := NewCatalog(nil)

	l, err := c.FetchLyrics(context.Background(), "津軽海峡冬景色", "")
	if err != nil {
		t.Fatalf("FetchLyrics: %v", err)
	}
	if len(l.Plain) != 8 || l.Synced() || l.Source != providerName {
		t.Errorf("unexpected lyrics %+v", l)
	}

	// 返回副本，修改不影响曲库
	l.Plain[0] = "changed"
	again, _ := c.FetchLyrics(context.Background(), "津軽海峡冬景色", "石川さゆり")
	if again.Plain[0] == "changed" {
		t.Error("catalog lyrics were mutated")
	}

	if _, err := c.FetchLyrics(context.Background(), "乾杯", "長渕剛"); err == nil {
		t.Error("expected error when artist does not match")
	}
}

func TestCustomSongs(t *testing.T) {
	c := NewCatalog([]Song{{Title: "Only", Artist: "Me", Lyrics: []string{"x"}}})
	if results, _ := c.Search(context.Background(), "first love"); len(results) != 0 {
		t.Errorf("custom catalog should replace defaults, got %+v", results)
	}
}
