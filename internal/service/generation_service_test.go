package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"melodyverse/internal/config"
	"melodyverse/internal/entity"
	"melodyverse/internal/entity/dto"
	"melodyverse/internal/model"
	"melodyverse/internal/songapi"
)

func newTestSongClient(t *testing.T, handler http.Handler) *songapi.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := songapi.NewClient(config.Config{
		SongAPIBase:  server.URL,
		SongAPIKey:   "test-key",
		SongAPIModel: "V3_5",
	})
	if err != nil {
		t.Fatalf("new song client: %v", err)
	}
	return client
}

func acceptingProvider(t *testing.T, taskID string, submitCount *int) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if submitCount != nil {
			*submitCount++
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]any{"taskId": taskID},
		})
	})
}

func newGenerationService(t *testing.T, repo model.Repository, handler http.Handler) *GenerationService {
	t.Helper()
	client := newTestSongClient(t, handler)
	return NewGenerationService(repo, nil, client, newTestSettings(repo), "https://app.example.com")
}

func completeCallback(taskID, audioURL string) []byte {
	return []byte(fmt.Sprintf(`{
		"code": 200,
		"data": {
			"callbackType": "complete",
			"task_id": %q,
			"data": [{"audio_url": %q, "title": "Riverside", "duration": 194.5}]
		}
	}`, taskID, audioURL))
}

func failedCallback(taskID, msg string) []byte {
	return []byte(fmt.Sprintf(`{
		"code": 200,
		"data": {"callbackType": "error", "task_id": %q, "msg": %q}
	}`, taskID, msg))
}

func TestSubmitGenerationChargesCredits(t *testing.T) {
	repo := newTestRepo(t)
	svc := newGenerationService(t, repo, acceptingProvider(t, "ext-100", nil))
	user := createTestUser(t, repo, "singer@example.com")
	grantCredits(t, repo, user.ID, 10)

	task, err := svc.SubmitGeneration(context.Background(), user.ID, dto.GenerateSongRequest{
		Prompt: "a song about rivers",
		Style:  "afrobeat",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if task.Status != entity.TaskStatusPending {
		t.Errorf("status = %q, want %q", task.Status, entity.TaskStatusPending)
	}
	if task.ExternalTaskCode != "ext-100" {
		t.Errorf("external task code = %q, want ext-100", task.ExternalTaskCode)
	}
	if task.CreditCost != 5 {
		t.Errorf("credit cost = %d, want 5", task.CreditCost)
	}
	if balance := mustBalance(t, repo, user.ID); balance != 5 {
		t.Errorf("balance after charge = %d, want 5", balance)
	}

	entries, _, err := repo.ListLedgerEntries(context.Background(), &dto.LedgerQuery{
		UserID: user.ID,
		Reason: entity.LedgerReasonGenerationCharge,
	})
	if err != nil {
		t.Fatalf("list ledger entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Delta != -5 {
		t.Fatalf("expected one charge entry of -5, got %+v", entries)
	}
}

func TestSubmitGenerationInsufficientCredits(t *testing.T) {
	repo := newTestRepo(t)
	var submitCount int
	svc := newGenerationService(t, repo, acceptingProvider(t, "ext-101", &submitCount))
	user := createTestUser(t, repo, "broke@example.com")
	grantCredits(t, repo, user.ID, 3)

	_, err := svc.SubmitGeneration(context.Background(), user.ID, dto.GenerateSongRequest{Prompt: "anything"})
	if !errors.Is(err, model.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if submitCount != 0 {
		t.Errorf("provider was called %d times, want 0", submitCount)
	}
	if balance := mustBalance(t, repo, user.ID); balance != 3 {
		t.Errorf("balance = %d, want 3 (untouched)", balance)
	}
}

func TestSubmitGenerationProviderRejectedNoCharge(t *testing.T) {
	repo := newTestRepo(t)
	svc := newGenerationService(t, repo, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 400, "msg": "bad prompt"})
	}))
	user := createTestUser(t, repo, "rejected@example.com")
	grantCredits(t, repo, user.ID, 10)

	_, err := svc.SubmitGeneration(context.Background(), user.ID, dto.GenerateSongRequest{Prompt: "anything"})
	if !errors.Is(err, songapi.ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", err)
	}
	if balance := mustBalance(t, repo, user.ID); balance != 10 {
		t.Errorf("balance = %d, want 10 (no charge on rejection)", balance)
	}
}

func TestSubmitGenerationValidation(t *testing.T) {
	repo := newTestRepo(t)
	svc := newGenerationService(t, repo, acceptingProvider(t, "ext-102", nil))
	user := createTestUser(t, repo, "validator@example.com")
	grantCredits(t, repo, user.ID, 100)

	cases := []struct {
		name string
		req  dto.GenerateSongRequest
	}{
		{"空提示词", dto.GenerateSongRequest{Prompt: "   "}},
		{"提示词超长", dto.GenerateSongRequest{Prompt: strings.Repeat("河", 401)}},
		{"歌词模式缺标题", dto.GenerateSongRequest{Prompt: "lyrics here", Mode: entity.GenerationModeLyrics}},
		{"低配模型歌词超长", dto.GenerateSongRequest{
			Prompt: strings.Repeat("词", 3001),
			Title:  "Song",
			Mode:   entity.GenerationModeLyrics,
			Model:  "V3_5",
		}},
		{"高配模型歌词超长", dto.GenerateSongRequest{
			Prompt: strings.Repeat("词", 5001),
			Title:  "Song",
			Mode:   entity.GenerationModeLyrics,
			Model:  "V4",
		}},
		{"未知模式", dto.GenerateSongRequest{Prompt: "ok", Mode: "remix"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.SubmitGeneration(context.Background(), user.ID, tc.req); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	// 高配模型允许 3000 到 5000 之间的歌词
	_, err := svc.SubmitGeneration(context.Background(), user.ID, dto.GenerateSongRequest{
		Prompt: strings.Repeat("词", 4000),
		Title:  "Song",
		Mode:   entity.GenerationModeLyrics,
		Model:  "V4",
	})
	if err != nil {
		t.Fatalf("4000-char lyrics on V4 should pass: %v", err)
	}
}

func TestReconcileCompletesTask(t *testing.T) {
	repo := newTestRepo(t)
	svc := newGenerationService(t, repo, acceptingProvider(t, "ext-200", nil))
	user := createTestUser(t, repo, "happy@example.com")
	grantCredits(t, repo, user.ID, 10)

	task, err := svc.SubmitGeneration(context.Background(), user.ID, dto.GenerateSongRequest{Prompt: "sunrise"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := svc.Reconcile(context.Background(), completeCallback("ext-200", "https://cdn.example.com/song.mp3")); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	got, err := repo.GetGenerationTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != entity.TaskStatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.AudioURL != "https://cdn.example.com/song.mp3" {
		t.Errorf("audio url = %q", got.AudioURL)
	}
	if got.Title != "Riverside" {
		t.Errorf("title = %q, want Riverside (filled from callback)", got.Title)
	}
	if got.Duration != 194.5 {
		t.Errorf("duration = %v, want 194.5", got.Duration)
	}
}

func TestReconcileFailureKeepsCharge(t *testing.T) {
	repo := newTestRepo(t)
	svc := newGenerationService(t, repo, acceptingProvider(t, "ext-201", nil))
	user := createTestUser(t, repo, "unlucky@example.com")
	grantCredits(t, repo, user.ID, 10)

	task, err := svc.SubmitGeneration(context.Background(), user.ID, dto.GenerateSongRequest{Prompt: "storm"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := svc.Reconcile(context.Background(), failedCallback("ext-201", "generation engine error")); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	got, err := repo.GetGenerationTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != entity.TaskStatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.ErrorMessage != "generation engine error" {
		t.Errorf("error message = %q", got.ErrorMessage)
	}
	// 失败不退款
	if balance := mustBalance(t, repo, user.ID); balance != 5 {
		t.Errorf("balance = %d, want 5 (charge kept on failure)", balance)
	}
}

func TestReconcileIsMonotonicAndIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	svc := newGenerationService(t, repo, acceptingProvider(t, "ext-202", nil))
	user := createTestUser(t, repo, "steady@example.com")
	grantCredits(t, repo, user.ID, 10)

	task, err := svc.SubmitGeneration(context.Background(), user.ID, dto.GenerateSongRequest{Prompt: "moonlight"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	payload := completeCallback("ext-202", "https://cdn.example.com/final.mp3")
	if err := svc.Reconcile(context.Background(), payload); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	// 重复投递与迟到的中间态/失败回调都不改变终态
	replays := [][]byte{
		payload,
		[]byte(`{"code": 200, "data": {"callbackType": "text", "task_id": "ext-202"}}`),
		failedCallback("ext-202", "late failure"),
	}
	for _, replay := range replays {
		if err := svc.Reconcile(context.Background(), replay); err != nil {
			t.Fatalf("replay reconcile: %v", err)
		}
	}

	got, err := repo.GetGenerationTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != entity.TaskStatusCompleted {
		t.Errorf("status = %q, want completed after replays", got.Status)
	}
	if got.AudioURL != "https://cdn.example.com/final.mp3" {
		t.Errorf("audio url = %q, want original result kept", got.AudioURL)
	}
	if got.ErrorMessage != "" {
		t.Errorf("error message = %q, want empty", got.ErrorMessage)
	}
}

func TestReconcileUnknownTaskIgnored(t *testing.T) {
	repo := newTestRepo(t)
	svc := newGenerationService(t, repo, acceptingProvider(t, "ext-203", nil))

	err := svc.Reconcile(context.Background(), completeCallback("never-submitted", "https://cdn.example.com/x.mp3"))
	if err != nil {
		t.Fatalf("unknown task callback should be a soft no-op, got %v", err)
	}
}

func TestReconcileUnparseablePayload(t *testing.T) {
	repo := newTestRepo(t)
	svc := newGenerationService(t, repo, acceptingProvider(t, "ext-204", nil))

	if err := svc.Reconcile(context.Background(), []byte(`[1, 2, 3]`)); err == nil {
		t.Fatal("expected error for non-object payload")
	}
}

func TestPollStatusOwnership(t *testing.T) {
	repo := newTestRepo(t)
	svc := newGenerationService(t, repo, acceptingProvider(t, "ext-300", nil))
	owner := createTestUser(t, repo, "owner@example.com")
	other := createTestUser(t, repo, "other@example.com")
	grantCredits(t, repo, owner.ID, 10)

	task, err := svc.SubmitGeneration(context.Background(), owner.ID, dto.GenerateSongRequest{Prompt: "mine"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := svc.PollStatus(context.Background(), other.ID, task.ID, false); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if _, err := svc.PollStatus(context.Background(), other.ID, task.ID, true); err != nil {
		t.Fatalf("admin poll should succeed: %v", err)
	}
	if _, err := svc.PollStatus(context.Background(), owner.ID, 9999, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPollStatusAppliesProviderResult(t *testing.T) {
	repo := newTestRepo(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]any{"taskId": "ext-301"},
		})
	})
	mux.HandleFunc("/api/v1/generate/record-info", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]any{
				"task_id": "ext-301",
				"status":  "SUCCESS",
				"data":    []map[string]any{{"audio_url": "https://cdn.example.com/polled.mp3", "duration": 120.0}},
			},
		})
	})
	svc := newGenerationService(t, repo, mux)
	user := createTestUser(t, repo, "poller@example.com")
	grantCredits(t, repo, user.ID, 10)

	task, err := svc.SubmitGeneration(context.Background(), user.ID, dto.GenerateSongRequest{Prompt: "poll me"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	got, err := svc.PollStatus(context.Background(), user.ID, task.ID, false)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got.Status != entity.TaskStatusCompleted {
		t.Errorf("status = %q, want completed after poll", got.Status)
	}
	if got.AudioURL != "https://cdn.example.com/polled.mp3" {
		t.Errorf("audio url = %q", got.AudioURL)
	}
}

func TestSweepStaleFailsTimedOutTasks(t *testing.T) {
	repo := newTestRepo(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]any{"taskId": "ext-400"},
		})
	})
	mux.HandleFunc("/api/v1/generate/record-info", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	svc := newGenerationService(t, repo, mux)
	user := createTestUser(t, repo, "stale@example.com")
	grantCredits(t, repo, user.ID, 10)

	task, err := svc.SubmitGeneration(context.Background(), user.ID, dto.GenerateSongRequest{Prompt: "lost"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// 负的 staleAfter 让刚创建的任务立即进入扫描窗口，
	// failAfter 为零意味着查询失败即判超时失败。
	svc.SweepStale(context.Background(), -time.Minute, 0, 10)

	got, err := repo.GetGenerationTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != entity.TaskStatusFailed {
		t.Errorf("status = %q, want failed after sweep timeout", got.Status)
	}
	if balance := mustBalance(t, repo, user.ID); balance != 5 {
		t.Errorf("balance = %d, want 5 (no refund on timeout)", balance)
	}
}

func TestSweepStaleRecoversLostCallback(t *testing.T) {
	repo := newTestRepo(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]any{"taskId": "ext-401"},
		})
	})
	mux.HandleFunc("/api/v1/generate/record-info", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]any{
				"task_id": "ext-401",
				"data":    []map[string]any{{"audio_url": "https://cdn.example.com/recovered.mp3"}},
			},
		})
	})
	svc := newGenerationService(t, repo, mux)
	user := createTestUser(t, repo, "recovered@example.com")
	grantCredits(t, repo, user.ID, 10)

	task, err := svc.SubmitGeneration(context.Background(), user.ID, dto.GenerateSongRequest{Prompt: "found"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	svc.SweepStale(context.Background(), -time.Minute, time.Hour, 10)

	got, err := repo.GetGenerationTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != entity.TaskStatusCompleted {
		t.Errorf("status = %q, want completed after sweep recovery", got.Status)
	}
}
