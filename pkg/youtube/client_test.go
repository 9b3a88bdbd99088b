package youtube

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSplitMediaTitle(t *testing.T) {
	cases := []struct {
		in, title, artist string
	}{
		{"宇多田ヒカル - First Love (Official Video)", "First Love", "宇多田ヒカル"},
		{"Kaientai – Okuru Kotoba [Karaoke]", "Okuru Kotoba", "Kaientai"},
		{"乾杯【カラオケ】", "乾杯", ""},
		{"Plain title", "Plain title", ""},
	}
	for _, c := range cases {
		title, artist := SplitMediaTitle(c.in)
		if title != c.title || artist != c.artist {
			t.Errorf("SplitMediaTitle(%q) = %q, %q; want %q, %q", c.in, title, artist, c.title, c.artist)
		}
	}
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !strings.HasSuffix(r.URL.Path, "/search") || q.Get("key") != "k" || q.Get("q") != "first love karaoke" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[
			{"id":{"videoId":"abc123"},"snippet":{"title":"宇多田ヒカル - First Love &amp; more","channelTitle":"Channel"}},
			{"id":{"videoId":"def456"},"snippet":{"title":"First Love (Karaoke)","channelTitle":"Sing Along"}},
			{"id":{"channelId":"xyz"},"snippet":{"title":"A channel"}}
		]}`))
	}))
	defer srv.Close()

	c := NewClient("k", srv.URL+"/", 3)
	results, err := c.Search(context.Background(), "first love")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 video results, got %d: %+v", len(results), results)
	}
	if results[0].Title != "First Love & more" || results[0].Artist != "宇多田ヒカル" || results[0].MediaRef != "abc123" {
		t.Errorf("unexpected first result %+v", results[0])
	}
	if results[1].Artist != "Sing Along" {
		t.Errorf("expected channel as artist, got %+v", results[1])
	}
}

func TestSearchNeedsAPIKey(t *testing.T) {
	if _, err := NewClient("", "", 0).Search(context.Background(), "x"); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}
