package secretbox

import "context"

// Cipher はマスターシークレットに紐づく暗号器。
// ローカル実行時のデフォルトの鍵暗号化バックエンド。
type Cipher struct {
	masterSecret string
}

// NewCipher はCipherを生成する。
func NewCipher(masterSecret string) *Cipher {
	return &Cipher{masterSecret: masterSecret}
}

// Encrypt は平文をブロブ形式に暗号化する。
func (c *Cipher) Encrypt(ctx context.Context, plaintext []byte) (string, error) {
	return Encrypt(plaintext, c.masterSecret)
}

// Decrypt はブロブを復号する。
func (c *Cipher) Decrypt(ctx context.Context, blob string) ([]byte, error) {
	return Decrypt(blob, c.masterSecret)
}
