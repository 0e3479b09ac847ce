// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// MessageはそのままAPIレスポンスに載るため、ワイヤ契約に合わせた文言を使う。
// Detailsはバリデーションエラーのフィールド別メッセージ一覧を保持する。
type APIError struct {
	Code     string   // エラーコード
	Message  string   // エラーメッセージ
	Category string   // カテゴリ: auth, validation, policy, system
	Details  []string // フィールド別エラーメッセージ（バリデーションエラーのみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeTokenRequired         = "TOKEN_REQUIRED"
	ErrCodeTokenInvalid          = "TOKEN_INVALID"
	ErrCodeForeignTenant         = "FOREIGN_TENANT"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
	ErrCodePolicyIDRequired      = "POLICY_ID_REQUIRED"
	ErrCodePolicyNotFound        = "POLICY_NOT_FOUND"
	ErrCodePolicyAlreadyDeleted  = "POLICY_ALREADY_DELETED"
	ErrCodePolicyNotDeleted      = "POLICY_NOT_DELETED"
	ErrCodeOwnerImmutable        = "OWNER_IMMUTABLE"
	ErrCodeDeletedFieldImmutable = "DELETED_FIELD_IMMUTABLE"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
)

// NewValidationError はバリデーション失敗エラーを生成する。
// detailsには検出されたフィールド別エラーメッセージをすべて含める（先頭だけではない）。
func NewValidationError(details []string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  "Validation failed",
		Category: "validation",
		Details:  details,
	}
}

// NewPolicyIDRequiredError はパスのポリシーID欠落エラーを生成する。
func NewPolicyIDRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodePolicyIDRequired,
		Message:  "Policy ID is required",
		Category: "validation",
	}
}

// NewPolicyNotFoundError はポリシー未検出エラーを生成する。
// 所有者不一致の場合も存在を漏らさないために同一のレスポンスを使う。
func NewPolicyNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodePolicyNotFound,
		Message:  "Policy not found",
		Category: "policy",
	}
}

// NewPolicyDeletedError は削除済みポリシーへのアクセスエラーを生成する。
// 未検出と同じ404にマッピングされる。
func NewPolicyDeletedError() *APIError {
	return &APIError{
		Code:     ErrCodePolicyNotFound,
		Message:  "Policy not found or has been deleted",
		Category: "policy",
	}
}

// NewPolicyAlreadyDeletedError は削除済みポリシーの再削除エラーを生成する。
func NewPolicyAlreadyDeletedError() *APIError {
	return &APIError{
		Code:     ErrCodePolicyAlreadyDeleted,
		Message:  "Policy is already deleted",
		Category: "policy",
	}
}

// NewPolicyNotDeletedError は未削除ポリシーのリストアエラーを生成する。
func NewPolicyNotDeletedError() *APIError {
	return &APIError{
		Code:     ErrCodePolicyNotDeleted,
		Message:  "Policy is not deleted",
		Category: "policy",
	}
}

// NewOwnerImmutableError は所有者変更の試行エラーを生成する。
func NewOwnerImmutableError() *APIError {
	return &APIError{
		Code:     ErrCodeOwnerImmutable,
		Message:  "You cannot change the owner of a policy",
		Category: "policy",
	}
}

// NewDeletedFieldImmutableError は更新操作によるdeletedAt直接変更の試行エラーを生成する。
func NewDeletedFieldImmutableError() *APIError {
	return &APIError{
		Code:     ErrCodeDeletedFieldImmutable,
		Message:  "Cannot modify deletion status through update operation",
		Category: "policy",
	}
}

// NewUnauthorizedError は認証必須エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required",
		Category: "auth",
	}
}
