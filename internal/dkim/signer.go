package dkim

import (
	"bytes"
	"fmt"

	msgauthdkim "github.com/emersion/go-msgauth/dkim"
)

// signedHeaders は署名対象のヘッダ。
var signedHeaders = []string{
	"From", "To", "Subject", "Date", "Message-ID", "Reply-To",
	"MIME-Version", "Content-Type",
}

// Sign は構築済みのRFC 5322メッセージにDKIM署名ヘッダを付与して返す。
// 署名はrelaxed/relaxed正規化で行う。
func Sign(message []byte, domainName, selector, privateKeyPEM string) ([]byte, error) {
	priv, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("loading signing key: %w", err)
	}

	opts := &msgauthdkim.SignOptions{
		Domain:                 domainName,
		Selector:               selector,
		Signer:                 priv,
		HeaderKeys:             signedHeaders,
		HeaderCanonicalization: msgauthdkim.CanonicalizationRelaxed,
		BodyCanonicalization:   msgauthdkim.CanonicalizationRelaxed,
	}

	var signed bytes.Buffer
	if err := msgauthdkim.Sign(&signed, bytes.NewReader(message), opts); err != nil {
		return nil, fmt.Errorf("signing message: %w", err)
	}
	return signed.Bytes(), nil
}
