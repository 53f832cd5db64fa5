package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Relay はHTTP APIリレー経由の配送を行う。
type Relay struct {
	url    string
	token  string
	client *http.Client
}

// NewRelay は新しいHTTPリレートランスポートを生成する。
// タイムアウトは呼び出し側のコンテキストで制御する。
func NewRelay(url, token string) *Relay {
	return &Relay{
		url:    url,
		token:  token,
		client: &http.Client{},
	}
}

type relayRequest struct {
	From       string   `json:"from"`
	Recipients []string `json:"recipients"`
	Raw        string   `json:"raw"` // Base64エンコード済みメッセージ
}

// Send はメッセージをHTTPリレーへ引き渡す。
// リレーの応答コードは分類可能なエラー文字列へ変換する。
func (t *Relay) Send(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(relayRequest{
		From:       msg.From,
		Recipients: msg.Recipients,
		Raw:        base64.StdEncoding.EncodeToString(msg.Raw),
	})
	if err != nil {
		return fmt.Errorf("encoding relay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("relay rate limit exceeded: %s", detail)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("relay service unavailable: %s", detail)
	case http.StatusGatewayTimeout:
		return fmt.Errorf("relay gateway timeout: %s", detail)
	default:
		return fmt.Errorf("relay returned status %d: %s", resp.StatusCode, detail)
	}
}
