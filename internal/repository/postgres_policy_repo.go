package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/polisync/internal/model"
)

// PostgresPolicyRepo はPostgreSQLを使用したポリシーリポジトリ。
// claimsはJSONB列にJSON配列としてエンコードして格納する。
type PostgresPolicyRepo struct {
	db *sql.DB
}

// NewPostgresPolicyRepo はPostgresPolicyRepoを生成する。
func NewPostgresPolicyRepo(db *sql.DB) *PostgresPolicyRepo {
	return &PostgresPolicyRepo{db: db}
}

const policyColumns = `id, policy_type, policy_number, insurance_provider, policy_comment,
	start_date, end_date, automatic_renewal, created_by, premium, payment_frequency,
	agent, claims, deleted_at, created, updated`

// encodeClaims はclaimsスライスをJSONB格納用にエンコードする。
// nilは空配列として扱う。
func encodeClaims(claims []string) ([]byte, error) {
	if claims == nil {
		claims = []string{}
	}
	data, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to encode claims: %w", err)
	}
	return data, nil
}

// decodeClaims はJSONB列の値をclaimsスライスにデコードする。
func decodeClaims(data []byte) ([]string, error) {
	if len(data) == 0 {
		return []string{}, nil
	}
	var claims []string
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, fmt.Errorf("failed to decode claims: %w", err)
	}
	if claims == nil {
		claims = []string{}
	}
	return claims, nil
}

// scanner はsql.Rowとsql.Rowsに共通のScanインターフェース。
type scanner interface {
	Scan(dest ...any) error
}

// scanPolicy は1行分のポリシーをスキャンする。
func scanPolicy(row scanner) (*model.Policy, error) {
	p := &model.Policy{}
	var startDate, deletedAt sql.NullTime
	var claimsData []byte

	err := row.Scan(
		&p.ID, &p.PolicyType, &p.PolicyNumber, &p.InsuranceProvider, &p.PolicyComment,
		&startDate, &p.EndDate, &p.AutomaticRenewal, &p.CreatedBy, &p.Premium,
		&p.PaymentFrequency, &p.Agent, &claimsData, &deletedAt, &p.Created, &p.Updated,
	)
	if err != nil {
		return nil, err
	}

	if startDate.Valid {
		p.StartDate = &startDate.Time
	}
	if deletedAt.Valid {
		p.DeletedAt = &deletedAt.Time
	}

	claims, err := decodeClaims(claimsData)
	if err != nil {
		return nil, err
	}
	p.Claims = claims

	return p, nil
}

// Create はポリシーを作成する。IDとタイムスタンプは呼び出し側が設定する。
func (r *PostgresPolicyRepo) Create(ctx context.Context, policy *model.Policy) error {
	claimsData, err := encodeClaims(policy.Claims)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO policies (id, policy_type, policy_number, insurance_provider, policy_comment,
		 start_date, end_date, automatic_renewal, created_by, premium, payment_frequency,
		 agent, claims, deleted_at, created, updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		policy.ID, policy.PolicyType, policy.PolicyNumber, policy.InsuranceProvider, policy.PolicyComment,
		policy.StartDate, policy.EndDate, policy.AutomaticRenewal, policy.CreatedBy, policy.Premium,
		policy.PaymentFrequency, policy.Agent, claimsData, policy.DeletedAt, policy.Created, policy.Updated,
	)
	if err != nil {
		return fmt.Errorf("failed to insert policy: %w", err)
	}

	return nil
}

// FindByID は指定IDのポリシーを取得する。見つからない場合はnilを返す。
func (r *PostgresPolicyRepo) FindByID(ctx context.Context, id string) (*model.Policy, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE id = $1`,
		id,
	)

	policy, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find policy by ID: %w", err)
	}

	return policy, nil
}

// ListByOwner は所有者のポリシー一覧をupdated降順で返す。
// includeDeletedがfalseの場合は論理削除済みレコードを除外する。
func (r *PostgresPolicyRepo) ListByOwner(ctx context.Context, ownerRef string, includeDeleted bool) ([]*model.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM policies WHERE created_by = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY updated DESC`

	rows, err := r.db.QueryContext(ctx, query, ownerRef)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	policies := []*model.Policy{}
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, policy)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate policies: %w", err)
	}

	return policies, nil
}

// Update はポリシーの全フィールドを上書き更新する。
func (r *PostgresPolicyRepo) Update(ctx context.Context, policy *model.Policy) error {
	claimsData, err := encodeClaims(policy.Claims)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE policies
		 SET policy_type = $1, policy_number = $2, insurance_provider = $3, policy_comment = $4,
		     start_date = $5, end_date = $6, automatic_renewal = $7, premium = $8,
		     payment_frequency = $9, agent = $10, claims = $11, updated = $12
		 WHERE id = $13`,
		policy.PolicyType, policy.PolicyNumber, policy.InsuranceProvider, policy.PolicyComment,
		policy.StartDate, policy.EndDate, policy.AutomaticRenewal, policy.Premium,
		policy.PaymentFrequency, policy.Agent, claimsData, policy.Updated, policy.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}

	return checkOneRowAffected(result, policy.ID)
}

// SoftDelete はdeleted_atとupdatedを設定して論理削除する。
func (r *PostgresPolicyRepo) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE policies SET deleted_at = $1, updated = $1 WHERE id = $2`,
		deletedAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to soft-delete policy: %w", err)
	}

	return checkOneRowAffected(result, id)
}

// Restore はdeleted_atをクリアしupdatedを進めて復元する。
func (r *PostgresPolicyRepo) Restore(ctx context.Context, id string, restoredAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE policies SET deleted_at = NULL, updated = $1 WHERE id = $2`,
		restoredAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to restore policy: %w", err)
	}

	return checkOneRowAffected(result, id)
}

// HardDelete はレコードを物理削除する。APIにはルーティングされない。
func (r *PostgresPolicyRepo) HardDelete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM policies WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to hard-delete policy: %w", err)
	}

	return checkOneRowAffected(result, id)
}

// checkOneRowAffected は更新系クエリがちょうど1行に作用したことを確認する。
func checkOneRowAffected(result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("policy not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ PolicyRepository = (*PostgresPolicyRepo)(nil)
