// Package dkim はDKIM署名鍵の生成、DNSレコードの導出、
// およびメッセージ署名を提供する。
package dkim

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
)

// keyBits はRSA署名鍵のビット長。
const keyBits = 2048

// KeyPair は生成された署名鍵ペアを表す。
// PrivateKeyPEM は暗号化前の平文であり、呼び出し側が
// 速やかに暗号化して永続化する責務を負う。
type KeyPair struct {
	PrivateKeyPEM string
	PublicKey     string // DER公開鍵のBase64（DNSレコードの p= 値）
}

// GenerateKeyPair は新しいRSA-2048署名鍵ペアを生成する。
// 呼び出し毎に crypto/rand から新しい乱数を消費する。
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("generating rsa key: %w", err)
	}

	privDER := x509.MarshalPKCS1PrivateKey(priv)
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: privDER,
	})

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}

	return &KeyPair{
		PrivateKeyPEM: string(privPEM),
		PublicKey:     base64.StdEncoding.EncodeToString(pubDER),
	}, nil
}

// ParsePrivateKey はPEM形式のRSA秘密鍵を復元する。
func ParsePrivateKey(privPEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privPEM))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return priv, nil
}

// PublicKeyTXT は公開鍵からDNS TXT値を導出する。
// 形式: v=DKIM1; k=rsa; p=<base64 DER公開鍵>
func PublicKeyTXT(publicKey string) string {
	return "v=DKIM1; k=rsa; p=" + publicKey
}
