// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限ロールを表す。
type Role string

const (
	// RoleAdmin は管理者ロール。
	RoleAdmin Role = "admin"
	// RoleUser は一般ユーザーロール。ソーシャルサインインで作成されるユーザーは
	// 常にこのロールをサービス層で明示的に割り当てる（ストレージ層のデフォルトに依存しない）。
	RoleUser Role = "user"
)

// User はサービス利用ユーザーを表す。
// 外部IdPが発行したトークンの初回検証時に作成され、以後ハードデリートされることはない。
type User struct {
	ID          string
	SubjectID   string // 外部IdPのsubject。UNIQUE制約によりfind-or-createの競合を防ぐ
	Email       string
	DisplayName string
	PhotoURL    string
	Provider    string
	Role        Role
	LastLogin   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
