package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"imagine/generation"
)

const (
	DefaultBaseURL = "https://queue.fal.run"
	DefaultModel   = "fal-ai/flux/dev"

	DefaultNegativePrompt = "blurry, bad quality, distorted, disfigured"
)

// 佇列狀態
const (
	StatusInQueue    = "IN_QUEUE"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
)

var ErrMissingKey = errors.New("fal key is required")

// APIError 是佇列 API 回傳的非 2xx 回應
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fal api responded %d: %s", e.StatusCode, e.Body)
}

type options struct {
	logger         *slog.Logger
	httpClient     *http.Client
	baseURL        string
	model          string
	negativePrompt string
	pollInterval   time.Duration
}

type Option func(*options)

// WithLogger 設置日誌記錄器
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHTTPClient 設置呼叫 API 用的 HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithBaseURL 設置佇列 API 的位址
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithModel 設置使用的模型
func WithModel(model string) Option {
	return func(o *options) {
		o.model = strings.Trim(model, "/")
	}
}

// WithNegativePrompt 設置反向提示詞，空字串表示不送出
func WithNegativePrompt(prompt string) Option {
	return func(o *options) {
		o.negativePrompt = prompt
	}
}

// WithPollInterval 設置輪詢工作狀態的間隔
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

type submitResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type statusResponse struct {
	Status        string `json:"status"`
	QueuePosition *int   `json:"queue_position,omitempty"`
	ResponseURL   string `json:"response_url"`
}

// Client 呼叫 fal 的佇列 API
// Generate 會送出工作並輪詢到完成，Enqueue 只送出工作並由 webhook 接收結果
type Client struct {
	key     string
	logger  *slog.Logger
	options options
}

func NewClient(key string, opts ...Option) (*Client, error) {
	if key == "" {
		return nil, ErrMissingKey
	}

	// 默認選項
	o := options{
		logger:         slog.Default(),
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		baseURL:        DefaultBaseURL,
		model:          DefaultModel,
		negativePrompt: DefaultNegativePrompt,
		pollInterval:   time.Second,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&o)
	}

	return &Client{
		key:     key,
		logger:  o.logger.With(slog.String("caller", "FalClient")),
		options: o,
	}, nil
}

// Arguments 回傳送往模型的參數
func (c *Client) Arguments(prompt string) map[string]any {
	arguments := map[string]any{"prompt": prompt}
	if c.options.negativePrompt != "" {
		arguments["negative_prompt"] = c.options.negativePrompt
	}
	return arguments
}

// Enqueue 送出工作，完成時由 fal 呼叫 webhookURL
func (c *Client) Enqueue(ctx context.Context, prompt, webhookURL string) (generation.Submission, error) {
	const op = "FalClient.Enqueue"
	arguments := c.Arguments(prompt)
	submitted, err := c.submit(ctx, arguments, webhookURL)
	if err != nil {
		return generation.Submission{}, fmt.Errorf("[%s] %w", op, err)
	}
	c.logger.Info("Job enqueued", slog.String("op", op), slog.String("requestID", submitted.RequestID))
	return generation.Submission{RequestID: submitted.RequestID, Arguments: arguments}, nil
}

// Generate 送出工作並等待結果，ctx 結束時停止輪詢但不取消遠端工作
func (c *Client) Generate(ctx context.Context, prompt string) (any, error) {
	const op = "FalClient.Generate"
	submitted, err := c.submit(ctx, c.Arguments(prompt), "")
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", op, err)
	}
	logger := c.logger.With(slog.String("op", op), slog.String("requestID", submitted.RequestID))
	logger.Debug("Job submitted, waiting for result")

	statusURL := submitted.StatusURL
	if statusURL == "" {
		statusURL = c.requestURL(submitted.RequestID, "/status")
	}
	responseURL := submitted.ResponseURL
	if responseURL == "" {
		responseURL = c.requestURL(submitted.RequestID, "")
	}

	ticker := time.NewTicker(c.options.pollInterval)
	defer ticker.Stop()
	for {
		var status statusResponse
		if err := c.do(ctx, http.MethodGet, statusURL, nil, &status); err != nil {
			return nil, fmt.Errorf("[%s] Fail to poll status, err=%w", op, err)
		}
		if status.Status == StatusCompleted {
			if status.ResponseURL != "" {
				responseURL = status.ResponseURL
			}
			break
		}
		logger.Debug("Job is not ready", slog.String("status", status.Status))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("[%s] Stop waiting for %s, err=%w", op, submitted.RequestID, ctx.Err())
		case <-ticker.C:
		}
	}

	var result Result
	if err := c.do(ctx, http.MethodGet, responseURL, nil, &result); err != nil {
		return nil, fmt.Errorf("[%s] Fail to fetch result, err=%w", op, err)
	}
	return &result, nil
}

func (c *Client) submit(ctx context.Context, arguments map[string]any, webhookURL string) (*submitResponse, error) {
	target := c.options.baseURL + "/" + c.options.model
	if webhookURL != "" {
		target += "?" + url.Values{"fal_webhook": {webhookURL}}.Encode()
	}
	body, err := json.Marshal(arguments)
	if err != nil {
		return nil, fmt.Errorf("fail to encode arguments, err=%w", err)
	}
	var submitted submitResponse
	if err := c.do(ctx, http.MethodPost, target, body, &submitted); err != nil {
		return nil, fmt.Errorf("fail to submit job, err=%w", err)
	}
	if submitted.RequestID == "" {
		return nil, errors.New("queue response has no request_id")
	}
	return &submitted, nil
}

func (c *Client) requestURL(requestID, suffix string) string {
	return c.options.baseURL + "/" + c.options.model + "/requests/" + requestID + suffix
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Key "+c.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.options.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// 錯誤訊息只保留前 1KB
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{StatusCode: resp.StatusCode, Body: string(msg)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("fail to decode response, err=%w", err)
	}
	return nil
}
