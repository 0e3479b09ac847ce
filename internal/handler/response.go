// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/polisync/internal/model"
)

// apiResponse はポリシーAPIの統一エンベロープ。
type apiResponse struct {
	Success bool `json:"success"`
	Count   *int `json:"count,omitempty"`
	Data    any  `json:"data,omitempty"`
	Error   any  `json:"error,omitempty"`
}

// policyResponse は保険証券のAPIレスポンス。フィールド名はcamelCase。
type policyResponse struct {
	ID                string     `json:"id"`
	PolicyType        string     `json:"policyType"`
	PolicyNumber      string     `json:"policyNumber"`
	InsuranceProvider string     `json:"insuranceProvider"`
	PolicyComment     string     `json:"policyComment"`
	StartDate         *time.Time `json:"startDate"`
	EndDate           time.Time  `json:"endDate"`
	AutomaticRenewal  bool       `json:"automaticRenewal"`
	CreatedBy         string     `json:"createdBy"`
	Premium           float64    `json:"premium"`
	PaymentFrequency  int        `json:"paymentFrequency"`
	Agent             string     `json:"agent"`
	Claims            []string   `json:"claims"`
	DeletedAt         *time.Time `json:"deletedAt"`
	Created           time.Time  `json:"created"`
	Updated           time.Time  `json:"updated"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName,omitempty"`
	PhotoURL    string     `json:"photoURL,omitempty"`
	Provider    string     `json:"provider,omitempty"`
	Role        string     `json:"role"`
	LastLogin   *time.Time `json:"lastLogin"`
}

// toPolicyResponse はドメインのPolicyをレスポンス型に変換する。
func toPolicyResponse(p *model.Policy) policyResponse {
	claims := p.Claims
	if claims == nil {
		claims = []string{}
	}
	return policyResponse{
		ID:                p.ID,
		PolicyType:        p.PolicyType,
		PolicyNumber:      p.PolicyNumber,
		InsuranceProvider: p.InsuranceProvider,
		PolicyComment:     p.PolicyComment,
		StartDate:         p.StartDate,
		EndDate:           p.EndDate,
		AutomaticRenewal:  p.AutomaticRenewal,
		CreatedBy:         p.CreatedBy,
		Premium:           p.Premium,
		PaymentFrequency:  p.PaymentFrequency,
		Agent:             p.Agent,
		Claims:            claims,
		DeletedAt:         p.DeletedAt,
		Created:           p.Created,
		Updated:           p.Updated,
	}
}

// toUserResponse はドメインのUserをレスポンス型に変換する。
func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		Provider:    u.Provider,
		Role:        string(u.Role),
		LastLogin:   u.LastLogin,
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeSuccess は成功エンベロープを書き込む。
func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, apiResponse{
		Success: true,
		Data:    data,
	})
}

// writeSuccessWithCount は件数付きの成功エンベロープを書き込む。一覧系で使用する。
func writeSuccessWithCount(w http.ResponseWriter, statusCode int, data any, count int) {
	writeJSON(w, statusCode, apiResponse{
		Success: true,
		Count:   &count,
		Data:    data,
	})
}

// writeEnvelopeError は失敗エンベロープを書き込む。
// errPayloadは文字列またはバリデーション詳細のスライス。
func writeEnvelopeError(w http.ResponseWriter, statusCode int, errPayload any) {
	writeJSON(w, statusCode, apiResponse{
		Success: false,
		Error:   errPayload,
	})
}

// handleServiceError はサービス層のエラーをHTTPレスポンスにマッピングする。
// ドメインエラー以外は詳細をログに記録し、一般的な500を返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		status := mapAPIErrorToHTTPStatus(apiErr)

		// バリデーションエラーはフィールド別メッセージの配列を返す
		if apiErr.Code == model.ErrCodeValidationFailed {
			writeEnvelopeError(w, status, apiErr.Details)
			return
		}

		writeEnvelopeError(w, status, apiErr.Message)
		return
	}

	slog.Error("unexpected service error", slog.String("error", err.Error()))
	writeEnvelopeError(w, http.StatusInternalServerError, "Server Error")
}

// mapAPIErrorToHTTPStatus はエラーコードをHTTPステータスコードに対応付ける。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidationFailed,
		model.ErrCodePolicyIDRequired,
		model.ErrCodePolicyAlreadyDeleted,
		model.ErrCodePolicyNotDeleted,
		model.ErrCodeDeletedFieldImmutable:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeTokenRequired, model.ErrCodeTokenInvalid:
		return http.StatusUnauthorized
	case model.ErrCodeOwnerImmutable, model.ErrCodeForeignTenant:
		return http.StatusForbidden
	case model.ErrCodePolicyNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
