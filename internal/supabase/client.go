// Package supabase はSupabase（PostgREST）のREST APIクライアントを提供する。
// email_signupsテーブルへの挿入のみを扱う。
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/launchpage/internal/model"
)

const (
	// DefaultTable は登録先のテーブル名。
	DefaultTable = "email_signups"
	// maxErrorBodySize はエラーレスポンスボディの読み取り上限。
	maxErrorBodySize = 64 * 1024
)

// Config はクライアントの接続設定。
type Config struct {
	URL    string // プロジェクトURL（例: https://xyzcompany.supabase.co）
	APIKey string // anonキー
	Table  string
}

// Client はSupabase REST APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	apiKey     string
}

// restError はPostgRESTのエラーレスポンスボディ。
type restError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// NewClient はClientの新しいインスタンスを生成する。
// 挿入にはローカルのタイムアウトを設けないため、httpClientにもTimeoutを設定しないこと。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}

	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse supabase URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("supabase URL must be http or https: %s", cfg.URL)
	}

	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   base.String() + "/rest/v1/" + url.PathEscape(table),
		apiKey:     cfg.APIKey,
	}, nil
}

// Insert はテーブルに {email} を1件挿入する。
// 2xxは成功。PostgRESTのエラーボディはcodeを保持したStoreErrorに変換する。
func (c *Client) Insert(ctx context.Context, email string) error {
	payload, err := json.Marshal([]map[string]string{{"email": email}})
	if err != nil {
		return fmt.Errorf("failed to encode insert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase insert request failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("supabase insert request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	storeErr := decodeError(resp.StatusCode, body)

	c.logger.Warn("supabase insert rejected",
		slog.Int("http_status", resp.StatusCode),
		slog.String("code", storeErr.Code),
	)
	return storeErr
}

// decodeError はエラーレスポンスをStoreErrorに変換する。
// codeを読み取れない場合は HTTP_<status> をコードとする。
func decodeError(status int, body []byte) *model.StoreError {
	var re restError
	if err := json.Unmarshal(body, &re); err == nil && re.Code != "" {
		return &model.StoreError{Code: re.Code, Message: re.Message}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &model.StoreError{
		Code:    fmt.Sprintf("HTTP_%d", status),
		Message: msg,
	}
}

// PingContext はREST APIへの到達性を確認する。
// ヘルスチェックから使用する。
func (c *Client) PingContext(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.endpoint+"?limit=0", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("supabase unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("supabase returned status %d", resp.StatusCode)
	}
	return nil
}
