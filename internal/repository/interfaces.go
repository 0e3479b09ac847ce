// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/polisync/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindBySubjectID は外部IdPのsubjectでユーザーを検索する。見つからない場合はnilを返す。
	FindBySubjectID(ctx context.Context, subjectID string) (*model.User, error)

	// Create はユーザーを作成し、永続化された行を返す。
	// subject_idのUNIQUE制約と単一ラウンドトリップのUPSERTにより、
	// 同時初回ログインでもちょうど1行だけが作成されることを保証する。
	// 競合に敗れた場合は既存の行が返る（返り値のIDで判別できる）。
	Create(ctx context.Context, user *model.User) (*model.User, error)

	// UpdateProfile はプロフィールフィールドと最終ログイン日時を更新する。
	UpdateProfile(ctx context.Context, user *model.User) error
}

// PolicyRepository はポリシーデータの永続化インターフェース。
type PolicyRepository interface {
	// Create はポリシーを作成する。IDとタイムスタンプは呼び出し側が設定する。
	Create(ctx context.Context, policy *model.Policy) error

	// FindByID は指定IDのポリシーを取得する。見つからない場合はnilを返す。
	// 所有者スコープは適用しない（所有チェックは呼び出し側のOwnership Guardが行う）。
	FindByID(ctx context.Context, id string) (*model.Policy, error)

	// ListByOwner は所有者のポリシー一覧をupdated降順で返す。
	// includeDeletedがfalseの場合は論理削除済みレコードを除外する。
	ListByOwner(ctx context.Context, ownerRef string, includeDeleted bool) ([]*model.Policy, error)

	// Update はポリシーの全フィールドを上書き更新する。
	Update(ctx context.Context, policy *model.Policy) error

	// SoftDelete はdeleted_atとupdatedを設定して論理削除する。
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error

	// Restore はdeleted_atをクリアしupdatedを進めて復元する。
	Restore(ctx context.Context, id string, restoredAt time.Time) error

	// HardDelete はレコードを物理削除する。APIにはルーティングされない。
	HardDelete(ctx context.Context, id string) error
}
