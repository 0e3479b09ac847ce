// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"encoding/json"
	"net/http"
)

// envelopeBody はAPIレスポンスの統一エンベロープ。
// errorはメッセージ文字列またはバリデーション詳細の配列を取る。
type envelopeBody struct {
	Success bool `json:"success"`
	Error   any  `json:"error,omitempty"`
}

// WriteEnvelopeError は統一エンベロープ形式でエラーレスポンスを書き込む。
// errPayloadには文字列またはフィールド別メッセージのスライスを渡す。
func WriteEnvelopeError(w http.ResponseWriter, statusCode int, errPayload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(envelopeBody{
		Success: false,
		Error:   errPayload,
	})
}

// WriteAuthError は認証レイヤーのエラーレスポンスを書き込む。
// トークン検証の失敗はエンベロープではなく素の{"error": ...}を返す。
func WriteAuthError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteEnvelopeError(w, http.StatusInternalServerError, "Server Error")
}
