// Package policy は保険証券のCRUD・ソフト削除・復元のドメインロジックを提供する。
package policy

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Input はcreate/update共通の保険証券リクエストボディ。
// 欠落フィールドとnull・空文字を区別するため、スカラー値はポインタで受ける。
type Input struct {
	ID                *string         `json:"id"`
	PolicyType        *string         `json:"policyType"`
	PolicyNumber      *string         `json:"policyNumber"`
	InsuranceProvider *string         `json:"insuranceProvider"`
	PolicyComment     *string         `json:"policyComment"`
	StartDate         json.RawMessage `json:"startDate"`
	EndDate           json.RawMessage `json:"endDate"`
	AutomaticRenewal  *bool           `json:"automaticRenewal"`
	CreatedBy         *string         `json:"createdBy"`
	Premium           *float64        `json:"premium"`
	PaymentFrequency  *float64        `json:"paymentFrequency"`
	Agent             *string         `json:"agent"`
	Claims            []string        `json:"claims"`
	DeletedAt         json.RawMessage `json:"deletedAt"`

	startDate *time.Time
	endDate   *time.Time
}

// dateLayouts は日付フィールドが受理するフォーマット。
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Validate は入力を検証し、不正項目のメッセージを全件返す。
// forCreateがtrueの場合は必須フィールドの欠落も報告する。
// 日付フィールドは検証の副作用としてパースされ、StartDateValue/EndDateValueで取得できる。
func (in *Input) Validate(forCreate bool) []string {
	var details []string

	details = append(details, checkRequiredString("policyType", in.PolicyType, forCreate)...)
	details = append(details, checkRequiredString("policyNumber", in.PolicyNumber, forCreate)...)
	details = append(details, checkRequiredString("insuranceProvider", in.InsuranceProvider, forCreate)...)

	start, err := parseDate(in.StartDate)
	if err != nil {
		details = append(details, `"startDate" must be a valid date`)
	} else {
		in.startDate = start
	}

	end, err := parseDate(in.EndDate)
	switch {
	case err != nil:
		details = append(details, `"endDate" must be a valid date`)
	case end == nil && forCreate:
		details = append(details, `"endDate" is required`)
	default:
		in.endDate = end
	}

	details = append(details, checkRequiredString("createdBy", in.CreatedBy, forCreate)...)

	switch {
	case in.Premium == nil:
		if forCreate {
			details = append(details, `"premium" is required`)
		}
	case *in.Premium < 0:
		details = append(details, `"premium" must be greater than or equal to 0`)
	}

	switch {
	case in.PaymentFrequency == nil:
		if forCreate {
			details = append(details, `"paymentFrequency" is required`)
		}
	case *in.PaymentFrequency != math.Trunc(*in.PaymentFrequency):
		details = append(details, `"paymentFrequency" must be an integer`)
	case *in.PaymentFrequency < 0:
		details = append(details, `"paymentFrequency" must be greater than or equal to 0`)
	}

	return details
}

// StartDateValue はValidate後のパース済み開始日を返す。
func (in *Input) StartDateValue() *time.Time { return in.startDate }

// EndDateValue はValidate後のパース済み終了日を返す。
func (in *Input) EndDateValue() *time.Time { return in.endDate }

// HasDeletedAt はリクエストボディにdeletedAtキーが含まれていたかを返す。
// 値がnullでもキーが存在すれば更新経由の削除状態変更とみなして拒否する。
func (in *Input) HasDeletedAt() bool {
	return len(in.DeletedAt) > 0
}

func checkRequiredString(field string, value *string, forCreate bool) []string {
	switch {
	case value == nil:
		if forCreate {
			return []string{fmt.Sprintf("%q is required", field)}
		}
	case *value == "":
		return []string{fmt.Sprintf("%q is not allowed to be empty", field)}
	}
	return nil
}

// parseDate はJSONの日付値をパースする。キー欠落とnullはnilを返す。
func parseDate(raw json.RawMessage) (*time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("date must be a string: %w", err)
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date format %q", s)
}
