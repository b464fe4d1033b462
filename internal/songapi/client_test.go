package songapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"melodyverse/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.Config{
		SongAPIBase:  server.URL,
		SongAPIKey:   "test-key",
		SongAPIModel: "V3_5",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, server
}

func TestClientSubmit(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]any{"taskId": "task-123"},
		})
	}))

	taskID, err := client.Submit(context.Background(), SubmitRequest{
		Prompt:      "a song about rivers",
		Style:       "afrobeat",
		CallbackURL: "https://app.example.com/callback",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if taskID != "task-123" {
		t.Fatalf("expected task-123, got %q", taskID)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("expected bearer auth header, got %q", gotAuth)
	}
	if gotBody["model"] != "V3_5" {
		t.Fatalf("expected default model applied, got %v", gotBody["model"])
	}
	if gotBody["callBackUrl"] != "https://app.example.com/callback" {
		t.Fatalf("callback url not forwarded: %v", gotBody["callBackUrl"])
	}
}

func TestClientSubmitRejected(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 429, "msg": "insufficient credits"})
	}))

	_, err := client.Submit(context.Background(), SubmitRequest{Prompt: "x"})
	if !errors.Is(err, ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", err)
	}
}

func TestClientSubmitUnavailable(t *testing.T) {
	client, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.Submit(context.Background(), SubmitRequest{Prompt: "x"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}

	// 连接层失败同样归为不可用
	server.Close()
	_, err = client.Submit(context.Background(), SubmitRequest{Prompt: "x"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable after close, got %v", err)
	}
}

func TestClientQueryTask(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("taskId"); got != "task-123" {
			t.Errorf("expected taskId query param, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]any{
				"taskId":    "task-123",
				"status":    "complete",
				"audio_url": "https://cdn.example.com/done.mp3",
			},
		})
	}))

	record, err := client.QueryTask(context.Background(), "task-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Stage != StageComplete {
		t.Fatalf("expected complete stage, got %q", record.Stage)
	}
	if record.PrimaryAudioURL() != "https://cdn.example.com/done.mp3" {
		t.Fatalf("unexpected audio url %q", record.PrimaryAudioURL())
	}
}
