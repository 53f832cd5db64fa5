// Package transport は署名済みメッセージの配送経路を提供する。
// 具体的な経路（SMTPリレー / HTTP APIリレー）は起動時に設定から
// 一度だけ選択され、呼び出し毎の分岐は行わない。
package transport

import (
	"context"
	"fmt"

	"mail-delivery-service/config"
)

// Message は配送対象の署名済みメッセージを表す。
type Message struct {
	From       string
	Recipients []string
	Raw        []byte
}

// Transport は単一の配送能力インターフェース。
type Transport interface {
	Send(ctx context.Context, msg *Message) error
}

// New は設定に応じたTransport実装を生成する。
func New(cfg *config.Config) (Transport, error) {
	switch cfg.Transport {
	case "smtp":
		return NewSMTP(cfg.SMTPAddr), nil
	case "relay":
		return NewRelay(cfg.RelayURL, cfg.RelayToken), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
