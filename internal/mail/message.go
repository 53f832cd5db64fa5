// Package mail はRFC 5322メッセージの構築を提供する。
package mail

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"strings"
	"time"
)

// Message は構築対象のメール内容を表す。
// HTMLBody / TextBody の少なくとも一方は必須。
type Message struct {
	MessageID  string
	Sender     string
	Recipients []string
	ReplyTo    string
	Subject    string
	HTMLBody   string
	TextBody   string
	Date       time.Time
}

// Build はメッセージをワイヤ形式（CRLF区切り）で構築する。
// 本文が両方ある場合は multipart/alternative とし、
// text/plain を先に、text/html を後に置く。
func Build(m *Message) ([]byte, error) {
	if m.HTMLBody == "" && m.TextBody == "" {
		return nil, fmt.Errorf("message has no body")
	}

	var buf bytes.Buffer
	writeHeader := func(name, value string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", name, value)
	}

	writeHeader("From", m.Sender)
	writeHeader("To", strings.Join(m.Recipients, ", "))
	if m.ReplyTo != "" {
		writeHeader("Reply-To", m.ReplyTo)
	}
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	writeHeader("Date", m.Date.UTC().Format(time.RFC1123Z))
	writeHeader("Message-ID", "<"+m.MessageID+">")
	writeHeader("MIME-Version", "1.0")

	switch {
	case m.HTMLBody != "" && m.TextBody != "":
		boundary := "b-" + m.MessageID
		writeHeader("Content-Type", `multipart/alternative; boundary="`+boundary+`"`)
		buf.WriteString("\r\n")

		if err := writePart(&buf, boundary, "text/plain", m.TextBody); err != nil {
			return nil, err
		}
		if err := writePart(&buf, boundary, "text/html", m.HTMLBody); err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	case m.HTMLBody != "":
		if err := writeSinglePart(&buf, "text/html", m.HTMLBody); err != nil {
			return nil, err
		}

	default:
		if err := writeSinglePart(&buf, "text/plain", m.TextBody); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func writeSinglePart(buf *bytes.Buffer, contentType, body string) error {
	fmt.Fprintf(buf, "Content-Type: %s; charset=utf-8\r\n", contentType)
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
	return writeQP(buf, body)
}

func writePart(buf *bytes.Buffer, boundary, contentType, body string) error {
	fmt.Fprintf(buf, "--%s\r\n", boundary)
	fmt.Fprintf(buf, "Content-Type: %s; charset=utf-8\r\n", contentType)
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
	if err := writeQP(buf, body); err != nil {
		return err
	}
	buf.WriteString("\r\n")
	return nil
}

func writeQP(buf *bytes.Buffer, body string) error {
	w := quotedprintable.NewWriter(buf)
	if _, err := w.Write([]byte(body)); err != nil {
		return fmt.Errorf("encoding body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("encoding body: %w", err)
	}
	buf.WriteString("\r\n")
	return nil
}
