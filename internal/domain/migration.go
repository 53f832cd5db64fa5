package domain

import "time"

// MigrationStatus はスキーマ移行の適用状態を表す。
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
)

// Migration はスキーマ移行ファイル1件とその適用状況を表す。
// Versionはファイル名の先頭番号（例: "001"）、Nameは番号以降の部分。
type Migration struct {
	Version   string
	Name      string
	FilePath  string
	Status    MigrationStatus
	AppliedAt *time.Time // 未適用の場合はnil
}

// IsApplied は適用済みかどうかを返す。
func (m *Migration) IsApplied() bool {
	return m.Status == MigrationStatusApplied
}
