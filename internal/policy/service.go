package policy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/polisync/internal/model"
	"github.com/hitoshi/polisync/internal/repository"
)

// OpsRecorder はドメイン操作の計数インターフェース。メトリクス収集側が実装する。
type OpsRecorder interface {
	RecordPolicyOp(op string)
}

// Service は保険証券のドメイン操作を提供する。
// 対象IDの所有権検査は前段のミドルウェアで済んでいる前提で、
// IDを取るメソッドの代わりにロード済みのポリシーを受け取る。
type Service struct {
	policies repository.PolicyRepository
	ops      OpsRecorder
}

// NewService はServiceを生成する。opsはnil可。
func NewService(policies repository.PolicyRepository, ops OpsRecorder) *Service {
	return &Service{
		policies: policies,
		ops:      ops,
	}
}

// Create は認証ユーザーを所有者として新しい保険証券を作成する。
// クライアントが供給したid・createdByは無視され、サーバー側で採番・設定される。
func (s *Service) Create(ctx context.Context, ownerRef string, in *Input) (*model.Policy, error) {
	// 検証前に所有者を確定させる。クライアント供給値は上書きされる
	in.CreatedBy = &ownerRef

	if details := in.Validate(true); len(details) > 0 {
		return nil, model.NewValidationError(details)
	}

	now := time.Now()
	p := &model.Policy{
		ID:                uuid.New().String(),
		PolicyType:        *in.PolicyType,
		PolicyNumber:      *in.PolicyNumber,
		InsuranceProvider: *in.InsuranceProvider,
		StartDate:         in.StartDateValue(),
		EndDate:           *in.EndDateValue(),
		CreatedBy:         ownerRef,
		Premium:           *in.Premium,
		PaymentFrequency:  int(*in.PaymentFrequency),
		Claims:            []string{},
		Created:           now,
		Updated:           now,
	}
	if in.PolicyComment != nil {
		p.PolicyComment = *in.PolicyComment
	}
	if in.AutomaticRenewal != nil {
		p.AutomaticRenewal = *in.AutomaticRenewal
	}
	if in.Agent != nil {
		p.Agent = *in.Agent
	}
	if in.Claims != nil {
		p.Claims = in.Claims
	}

	if err := s.policies.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create policy: %w", err)
	}

	slog.Info("policy created",
		slog.String("policy_id", p.ID),
		slog.String("policy_type", p.PolicyType),
		slog.String("owner", ownerRef),
	)
	s.recordOp("create")

	return p, nil
}

// List は認証ユーザーが所有する保険証券を更新日時降順で返す。
// includeDeletedがtrueの場合はソフト削除済みも含める。
func (s *Service) List(ctx context.Context, ownerRef string, includeDeleted bool) ([]*model.Policy, error) {
	policies, err := s.policies.ListByOwner(ctx, ownerRef, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}

	s.recordOp("list")
	return policies, nil
}

// Get はロード済みのポリシーを返す。ソフト削除済みの場合はnot-foundエラーを返す。
func (s *Service) Get(p *model.Policy) (*model.Policy, error) {
	if p.IsDeleted() {
		return nil, model.NewPolicyDeletedError()
	}

	s.recordOp("get")
	return p, nil
}

// Update は入力に含まれるフィールドだけをポリシーに適用して保存する。
// PUTとPATCHで共通: 省略されたフィールドは現在値を維持する。
func (s *Service) Update(ctx context.Context, ownerRef string, p *model.Policy, in *Input) (*model.Policy, error) {
	if p.IsDeleted() {
		return nil, model.NewPolicyDeletedError()
	}

	if details := in.Validate(false); len(details) > 0 {
		return nil, model.NewValidationError(details)
	}

	// 所有者の変更は禁止。自分自身を指定した場合は変更なしとして許容する
	if in.CreatedBy != nil && *in.CreatedBy != "" && *in.CreatedBy != ownerRef {
		slog.Warn("attempt to change policy ownership prevented",
			slog.String("policy_id", p.ID),
			slog.String("owner", ownerRef),
			slog.String("attempted_owner", *in.CreatedBy),
		)
		return nil, model.NewOwnerImmutableError()
	}

	// 削除状態は更新経由で変更できない。nullでもキーが存在すれば拒否する
	if in.HasDeletedAt() {
		slog.Warn("attempt to modify deletion status through update prevented",
			slog.String("policy_id", p.ID),
			slog.String("owner", ownerRef),
		)
		return nil, model.NewDeletedFieldImmutableError()
	}

	if in.PolicyType != nil {
		p.PolicyType = *in.PolicyType
	}
	if in.PolicyNumber != nil {
		p.PolicyNumber = *in.PolicyNumber
	}
	if in.InsuranceProvider != nil {
		p.InsuranceProvider = *in.InsuranceProvider
	}
	if in.PolicyComment != nil {
		p.PolicyComment = *in.PolicyComment
	}
	if in.StartDateValue() != nil || isJSONNull(in.StartDate) {
		p.StartDate = in.StartDateValue()
	}
	if v := in.EndDateValue(); v != nil {
		p.EndDate = *v
	}
	if in.AutomaticRenewal != nil {
		p.AutomaticRenewal = *in.AutomaticRenewal
	}
	if in.Premium != nil {
		p.Premium = *in.Premium
	}
	if in.PaymentFrequency != nil {
		p.PaymentFrequency = int(*in.PaymentFrequency)
	}
	if in.Agent != nil {
		p.Agent = *in.Agent
	}
	if in.Claims != nil {
		p.Claims = in.Claims
	}
	p.Updated = time.Now()

	if err := s.policies.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update policy: %w", err)
	}

	slog.Info("policy updated",
		slog.String("policy_id", p.ID),
		slog.String("policy_type", p.PolicyType),
		slog.String("owner", ownerRef),
	)
	s.recordOp("update")

	return p, nil
}

// SoftDelete はdeleted_atを設定してポリシーを論理削除する。
func (s *Service) SoftDelete(ctx context.Context, p *model.Policy) error {
	if p.IsDeleted() {
		return model.NewPolicyAlreadyDeletedError()
	}

	now := time.Now()
	if err := s.policies.SoftDelete(ctx, p.ID, now); err != nil {
		return fmt.Errorf("failed to soft-delete policy: %w", err)
	}

	p.DeletedAt = &now
	p.Updated = now

	slog.Info("policy soft-deleted",
		slog.String("policy_id", p.ID),
		slog.String("policy_type", p.PolicyType),
		slog.String("policy_number", p.PolicyNumber),
	)
	s.recordOp("soft_delete")

	return nil
}

// Restore はdeleted_atをクリアして論理削除済みポリシーを復元する。
func (s *Service) Restore(ctx context.Context, p *model.Policy) (*model.Policy, error) {
	if !p.IsDeleted() {
		return nil, model.NewPolicyNotDeletedError()
	}

	now := time.Now()
	if err := s.policies.Restore(ctx, p.ID, now); err != nil {
		return nil, fmt.Errorf("failed to restore policy: %w", err)
	}

	p.DeletedAt = nil
	p.Updated = now

	slog.Info("policy restored",
		slog.String("policy_id", p.ID),
		slog.String("policy_type", p.PolicyType),
	)
	s.recordOp("restore")

	return p, nil
}

func (s *Service) recordOp(op string) {
	if s.ops != nil {
		s.ops.RecordPolicyOp(op)
	}
}

func isJSONNull(raw []byte) bool {
	return string(raw) == "null"
}
