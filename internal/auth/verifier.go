// Package auth はベアラートークンの検証とユーザーディレクトリを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken は署名不正・期限切れ等、検証に失敗したトークンを表す。
var ErrInvalidToken = errors.New("invalid or expired token")

// ErrForeignTenant は設定されたテナント以外に発行されたトークンを表す。
// 401ではなく403にマッピングされる。
var ErrForeignTenant = errors.New("token issued for a different tenant")

// Identity は検証済みトークンから得られたユーザーの身元情報を表す。
type Identity struct {
	SubjectID     string
	Email         string
	EmailVerified bool
	Provider      string
	DisplayName   string
	PhotoURL      string
}

// TokenVerifier はベアラートークン検証のインターフェース。
type TokenVerifier interface {
	// Verify はトークンを検証し、身元情報を返す。
	// テナント不一致はErrForeignTenant、それ以外の検証失敗はErrInvalidTokenでラップされる。
	Verify(ctx context.Context, token string) (*Identity, error)
}

// identityClaims はIDトークンから取り出すクレームの集合。
type identityClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Provider      string `json:"provider"`
}

// OIDCVerifier は外部IdPのJWKSを用いてIDトークンを検証する。
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
	issuer   string
	audience string
}

// NewOIDCVerifier はOIDCディスカバリ経由でOIDCVerifierを生成する。
// audienceには自テナントの識別子（プロジェクトID等）を指定する。
func NewOIDCVerifier(ctx context.Context, issuerURL, audience string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider discovery: %w", err)
	}

	// audience/issuerの照合はVerify内で明示的に行い、不一致をErrForeignTenantに分類する
	verifier := provider.Verifier(&oidc.Config{
		SkipClientIDCheck: true,
	})

	return &OIDCVerifier{
		verifier: verifier,
		issuer:   issuerURL,
		audience: audience,
	}, nil
}

// NewOIDCVerifierFromJWKS はディスカバリを行わずJWKS URLから直接OIDCVerifierを生成する。
func NewOIDCVerifierFromJWKS(ctx context.Context, jwksURL, issuerURL, audience string) *OIDCVerifier {
	keySet := oidc.NewRemoteKeySet(ctx, jwksURL)
	verifier := oidc.NewVerifier(issuerURL, keySet, &oidc.Config{
		SkipClientIDCheck: true,
	})

	return &OIDCVerifier{
		verifier: verifier,
		issuer:   issuerURL,
		audience: audience,
	}
}

// Verify はIDトークンを検証し、身元情報を返す。
func (v *OIDCVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	// テナントフェンス: audience/issuerが自テナントと一致しないトークンは拒否する
	if idToken.Issuer != v.issuer || !containsAudience(idToken.Audience, v.audience) {
		return nil, fmt.Errorf("%w: aud=%v iss=%s", ErrForeignTenant, idToken.Audience, idToken.Issuer)
	}

	var claims identityClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: parse claims: %v", ErrInvalidToken, err)
	}

	return buildIdentity(idToken.Subject, claims, v.issuer), nil
}

// HS256Verifier は共有シークレットで署名されたトークンを検証する。
// 開発・テスト用で、本番のIdP検証と同じテナントフェンスを適用する。
type HS256Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewHS256Verifier はHS256Verifierを生成する。
func NewHS256Verifier(secret, issuerURL, audience string) (*HS256Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("HS256 secret is required")
	}
	return &HS256Verifier{
		secret:   []byte(secret),
		issuer:   issuerURL,
		audience: audience,
	}, nil
}

// Verify はHS256署名のトークンを検証し、身元情報を返す。
func (v *HS256Verifier) Verify(_ context.Context, token string) (*Identity, error) {
	tok, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	raw, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported claim type %T", ErrInvalidToken, tok.Claims)
	}

	iss, _ := raw["iss"].(string)
	if iss != v.issuer || !containsAudience(audienceList(raw["aud"]), v.audience) {
		return nil, fmt.Errorf("%w: aud=%v iss=%s", ErrForeignTenant, raw["aud"], iss)
	}

	sub, _ := raw["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}

	claims := identityClaims{}
	if email, ok := raw["email"].(string); ok {
		claims.Email = email
	}
	if verified, ok := raw["email_verified"].(bool); ok {
		claims.EmailVerified = verified
	}
	if name, ok := raw["name"].(string); ok {
		claims.Name = name
	}
	if picture, ok := raw["picture"].(string); ok {
		claims.Picture = picture
	}
	if provider, ok := raw["provider"].(string); ok {
		claims.Provider = provider
	}

	return buildIdentity(sub, claims, v.issuer), nil
}

// buildIdentity はクレームからIdentityを構築する。
// providerクレームがない場合はissuerのホスト名にフォールバックする。
func buildIdentity(subject string, claims identityClaims, issuer string) *Identity {
	provider := claims.Provider
	if provider == "" {
		if u, err := url.Parse(issuer); err == nil && u.Host != "" {
			provider = u.Host
		} else {
			provider = issuer
		}
	}

	return &Identity{
		SubjectID:     subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Provider:      provider,
		DisplayName:   claims.Name,
		PhotoURL:      claims.Picture,
	}
}

// containsAudience はaudienceリストに目的のaudienceが含まれるかを返す。
func containsAudience(audiences []string, want string) bool {
	for _, aud := range audiences {
		if aud == want {
			return true
		}
	}
	return false
}

// audienceList はaudクレーム（文字列または配列）を文字列スライスに正規化する。
func audienceList(aud any) []string {
	switch v := aud.(type) {
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, a := range v {
			if s, ok := a.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// compile-time interface checks
var (
	_ TokenVerifier = (*OIDCVerifier)(nil)
	_ TokenVerifier = (*HS256Verifier)(nil)
)
