// Package model はドメインモデルを定義する。
package model

import "time"

// Policy は個人の保険契約レコードを表す。
// 所有者（CreatedBy）は作成時にサーバー側で割り当てられ、以後変更不可。
type Policy struct {
	ID                string
	PolicyType        string
	PolicyNumber      string
	InsuranceProvider string
	PolicyComment     string
	StartDate         *time.Time
	EndDate           time.Time
	AutomaticRenewal  bool
	CreatedBy         string // 所有者参照（作成者の検証済みメールアドレス）
	Premium           float64
	PaymentFrequency  int
	Agent             string
	Claims            []string
	DeletedAt         *time.Time // 論理削除マーカー。非nilなら削除済み
	Created           time.Time
	Updated           time.Time
}

// IsDeleted はポリシーが論理削除済みかどうかを返す。
func (p *Policy) IsDeleted() bool {
	return p.DeletedAt != nil
}
