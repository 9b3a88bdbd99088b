package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type batchRequest struct {
	Source         string
	Target         string
	SourceTextList []string
}

func newServer(t *testing.T) (*httptest.Server, *[]batchRequest) {
	t.Helper()
	var mu sync.Mutex
	var got []batchRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if action := r.Header.Get("X-TC-Action"); action != "TextTranslateBatch" {
			http.Error(w, "unexpected action "+action, http.StatusBadRequest)
			return
		}
		var req batchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		got = append(got, req)
		mu.Unlock()

		out := make([]string, len(req.SourceTextList))
		for i, s := range req.SourceTextList {
			out[i] = fmt.Sprintf("%s:%s", req.Target, s)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"Response": map[string]any{
				"Source":         "ja",
				"Target":         req.Target,
				"TargetTextList": out,
				"RequestId":      "test",
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestTranslateBatchesAndKeepsBlankLines(t *testing.T) {
	srv, got := newServer(t)
	client, err := NewTencent("id", "key", "", srv.URL)
	if err != nil {
		t.Fatalf("NewTencent: %v", err)
	}

	lines := make([]string, 0, batchSize+3)
	for i := 0; i < batchSize+2; i++ {
		lines = append(lines, fmt.Sprintf("line%d", i))
	}
	lines = append(lines[:1], append([]string{"  "}, lines[1:]...)...)

	out, err := client.Translate(context.Background(), lines, "zh")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(out) != len(lines) {
		t.Fatalf("expected %d lines, got %d", len(lines), len(out))
	}
	if out[0] != "zh:line0" || out[1] != "" || out[2] != "zh:line1" {
		t.Errorf("unexpected translation head: %q", out[:3])
	}
	if last := out[len(out)-1]; last != fmt.Sprintf("zh:line%d", batchSize+1) {
		t.Errorf("unexpected last line %q", last)
	}

	if len(*got) != 2 {
		t.Fatalf("expected 2 batch requests, got %d", len(*got))
	}
	if (*got)[0].Source != "auto" || len((*got)[0].SourceTextList) != batchSize || len((*got)[1].SourceTextList) != 2 {
		t.Errorf("unexpected batches: %+v", *got)
	}
}

func TestTranslateServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Response":{"Error":{"Code":"AuthFailure.SignatureFailure","Message":"bad signature"},"RequestId":"x"}}`))
	}))
	defer srv.Close()

	client, err := NewTencent("id", "key", "", srv.URL)
	if err != nil {
		t.Fatalf("NewTencent: %v", err)
	}
	_, err = client.Translate(context.Background(), []string{"hello"}, "zh")
	if err == nil || !strings.Contains(err.Error(), "AuthFailure") {
		t.Errorf("expected auth failure, got %v", err)
	}
}

func TestNewTencentNeedsCredentials(t *testing.T) {
	if _, err := NewTencent("", "", "", ""); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
}
