package domain

import "errors"

var (
	// ErrDomainNotFound は指定されたドメインが存在しない場合のエラー。
	ErrDomainNotFound = errors.New("domain not found")

	// ErrDomainAlreadyExists は指定された名前のドメインが既に存在する場合のエラー。
	ErrDomainAlreadyExists = errors.New("domain already exists")

	// ErrDomainInactive はドメインが無効化されている場合のエラー。
	ErrDomainInactive = errors.New("domain is inactive")

	// ErrInvalidDomainName はドメイン名の形式が不正な場合のエラー。
	ErrInvalidDomainName = errors.New("invalid domain name")

	// ErrInvalidSelector はDKIMセレクタが鍵交換に使えない場合のエラー。
	ErrInvalidSelector = errors.New("invalid selector")

	// ErrInvalidCredential はAPIキーが存在しないか照合に失敗した場合のエラー。
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrCredentialExpired はAPIキーが期限切れの場合のエラー。
	ErrCredentialExpired = errors.New("credential expired")

	// ErrCredentialNotFound は指定されたAPIキーが存在しない場合のエラー。
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrSenderDomainMismatch は送信者アドレスのドメイン部が
	// 所有ドメインと一致しない場合のエラー（再試行不可）。
	ErrSenderDomainMismatch = errors.New("sender domain mismatch")

	// ErrKeyDecryption は秘密鍵の復号に失敗した場合のエラー（再試行不可）。
	ErrKeyDecryption = errors.New("signing key decryption failed")

	// ErrRetriesExhausted は再試行上限に達した場合のエラー。
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrSecretMalformed は暗号化ブロブの形式が不正な場合のエラー。
	ErrSecretMalformed = errors.New("malformed secret blob")

	// ErrSecretIntegrity は認証タグの検証に失敗した場合のエラー
	// （改ざんまたは鍵違い）。
	ErrSecretIntegrity = errors.New("secret integrity check failed")

	// ErrInvalidSendRequest は送信リクエストの形式が不正な場合のエラー。
	ErrInvalidSendRequest = errors.New("invalid send request")

	// ErrAttemptNotFound は指定された送信試行が存在しない場合のエラー。
	ErrAttemptNotFound = errors.New("send attempt not found")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrMigrationFileNotFound はマイグレーションファイルが見つからない場合のエラー。
	ErrMigrationFileNotFound = errors.New("migration file not found")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
