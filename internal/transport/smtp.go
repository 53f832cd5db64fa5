package transport

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
)

// SMTP はSMTPリレー経由の配送を行う。
type SMTP struct {
	addr string
}

// NewSMTP は新しいSMTPトランスポートを生成する。
// addr は "host:port" 形式。
func NewSMTP(addr string) *SMTP {
	return &SMTP{addr: addr}
}

// Send はメッセージをSMTPリレーへ引き渡す。
// コンテキストの期限は接続の期限として適用される。
func (t *SMTP) Send(ctx context.Context, msg *Message) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("dialing smtp relay: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	host := t.addr
	if h, _, err := net.SplitHostPort(t.addr); err == nil {
		host = h
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	from := extractAddress(msg.From)
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range msg.Recipients {
		if err := c.Rcpt(extractAddress(rcpt)); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg.Raw); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data: %w", err)
	}

	return c.Quit()
}

// extractAddress は "Name <addr>" 形式からアドレス部を取り出す。
func extractAddress(s string) string {
	if i := strings.LastIndex(s, "<"); i >= 0 {
		if j := strings.LastIndex(s, ">"); j > i {
			return s[i+1 : j]
		}
	}
	return strings.TrimSpace(s)
}
