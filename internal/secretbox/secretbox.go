// Package secretbox はマスターシークレット由来の鍵による
// 秘密情報（署名用秘密鍵など）の対称暗号化・復号を提供する。
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"

	"mail-delivery-service/internal/domain"
)

const (
	// ivSize はGCMノンスのバイト長。
	ivSize = 16
	// tagSize はGCM認証タグのバイト長。
	tagSize = 16
	// keySize はAES-256鍵のバイト長。
	keySize = 32
)

// kdfSalt は鍵導出用の固定ソルト。秘密情報ではない。
// マスターシークレットをそのまま暗号鍵として使わないための導出であり、
// レコード毎のソルトは持たない（ブロブ形式の互換性を保つため固定）。
var kdfSalt = []byte("mail-delivery-service/secretbox/v1")

// scryptパラメータ
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// deriveKey はマスターシークレットからAES-256鍵を導出する。
func deriveKey(masterSecret string) ([]byte, error) {
	key, err := scrypt.Key([]byte(masterSecret), kdfSalt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}

func newAEAD(masterSecret string) (cipher.AEAD, error) {
	key, err := deriveKey(masterSecret)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return cipher.NewGCMWithNonceSize(block, ivSize)
}

// Encrypt は平文を暗号化し、自己記述的なブロブ文字列を返す。
// 形式はコロン区切りの16進3要素 `iv:tag:ciphertext`。
// IVは呼び出し毎にランダム生成するため、同一平文でも結果は毎回異なる。
func Encrypt(plaintext []byte, masterSecret string) (string, error) {
	aead, err := newAEAD(masterSecret)
	if err != nil {
		return "", err
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}

	// Sealの出力は ciphertext || tag
	sealed := aead.Seal(nil, iv, plaintext, nil)
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt はEncryptが生成したブロブを復号する。
// 形式不正は domain.ErrSecretMalformed、認証タグの不一致
// （改ざんまたは鍵違い）は domain.ErrSecretIntegrity を返す。
func Decrypt(blob string, masterSecret string) ([]byte, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return nil, domain.ErrSecretMalformed
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return nil, domain.ErrSecretMalformed
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return nil, domain.ErrSecretMalformed
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, domain.ErrSecretMalformed
	}

	aead, err := newAEAD(masterSecret)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return nil, domain.ErrSecretIntegrity
	}
	return plaintext, nil
}
