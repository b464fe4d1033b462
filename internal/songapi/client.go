package songapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"melodyverse/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

var (
	// ErrProviderUnavailable 表示供应商不可达或返回 5xx，调用方可提示用户稍后重试。
	ErrProviderUnavailable = errors.New("song provider unavailable")
	// ErrProviderRejected 表示供应商明确拒绝了请求（参数问题、额度不足等）。
	ErrProviderRejected = errors.New("song provider rejected request")
)

const defaultTimeout = 30 * time.Second

// SubmitRequest 是发给歌曲生成供应商的提交参数。
type SubmitRequest struct {
	Prompt       string
	Style        string
	Title        string
	Instrumental bool
	CustomMode   bool
	Model        string
	CallbackURL  string
}

// Client 封装歌曲生成供应商的 HTTP API。
type Client struct {
	baseURL      string
	apiKey       string
	defaultModel string
	httpClient   *http.Client
}

func NewClient(cfg config.Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.SongAPIBase), "/")
	if baseURL == "" {
		return nil, errors.New("song api base url is not configured")
	}

	timeout := defaultTimeout
	if cfg.SongAPITimeoutSeconds > 0 {
		timeout = time.Duration(cfg.SongAPITimeoutSeconds) * time.Second
	}

	return &Client{
		baseURL:      baseURL,
		apiKey:       strings.TrimSpace(cfg.SongAPIKey),
		defaultModel: strings.TrimSpace(cfg.SongAPIModel),
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

// Submit 提交一次生成请求，返回供应商的任务标识。
func (c *Client) Submit(ctx context.Context, request SubmitRequest) (string, error) {
	if c == nil {
		return "", errors.New("song api client not initialised")
	}

	model := strings.TrimSpace(request.Model)
	if model == "" {
		model = c.defaultModel
	}

	payload := map[string]any{
		"prompt":       request.Prompt,
		"style":        request.Style,
		"title":        request.Title,
		"instrumental": request.Instrumental,
		"customMode":   request.CustomMode,
		"model":        model,
		"callBackUrl":  request.CallbackURL,
	}

	logrus.WithFields(logrus.Fields{
		"model":       model,
		"custom_mode": request.CustomMode,
	}).Info("songapi_submit_start")

	body, status, err := c.doJSON(ctx, http.MethodPost, "/api/v1/generate", payload)
	if err != nil {
		return "", err
	}
	if status >= 500 {
		return "", fmt.Errorf("%w: http %d: %s", ErrProviderUnavailable, status, previewBody(body))
	}
	if status >= 400 {
		return "", fmt.Errorf("%w: http %d: %s", ErrProviderRejected, status, previewBody(body))
	}

	parsed := gjson.ParseBytes(body)
	if code := parsed.Get("code"); code.Exists() && code.Int() != 200 {
		return "", fmt.Errorf("%w: code %d: %s", ErrProviderRejected, code.Int(), parsed.Get("msg").String())
	}

	// 任务标识的位置随供应商版本浮动
	for _, path := range []string{"data.taskId", "data.task_id", "taskId", "task_id"} {
		if id := strings.TrimSpace(parsed.Get(path).String()); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: response did not include a task id", ErrProviderRejected)
}

// QueryTask 主动查询一个任务的当前状态，作为回调丢失时的兜底。
func (c *Client) QueryTask(ctx context.Context, externalTaskID string) (*CallbackRecord, error) {
	if c == nil {
		return nil, errors.New("song api client not initialised")
	}
	taskID := strings.TrimSpace(externalTaskID)
	if taskID == "" {
		return nil, errors.New("external task id is required")
	}

	body, status, err := c.doJSON(ctx, http.MethodGet, "/api/v1/generate/record-info?taskId="+taskID, nil)
	if err != nil {
		return nil, err
	}
	if status >= 500 {
		return nil, fmt.Errorf("%w: http %d: %s", ErrProviderUnavailable, status, previewBody(body))
	}
	if status >= 400 {
		return nil, fmt.Errorf("%w: http %d: %s", ErrProviderRejected, status, previewBody(body))
	}

	record, err := ParseCallback(body)
	if err != nil {
		return nil, err
	}
	if record.ExternalTaskID == "" {
		record.ExternalTaskID = taskID
	}
	return record, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		bs, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("songapi marshal request: %w", err)
		}
		reader = bytes.NewReader(bs)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("songapi create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("songapi read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func previewBody(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 200 {
		return trimmed[:200]
	}
	return trimmed
}
