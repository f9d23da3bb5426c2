package auth

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// MinSigningKeyBytes はHS256署名鍵の最小長（256bit）。
const MinSigningKeyBytes = 32

// DefaultTokenTTL はトークンの既定の有効期間。
const DefaultTokenTTL = time.Hour

// Claims はベアラートークンのペイロード。
// subにアカウントID、correoにメールアドレス、roleにロールを格納する。
type Claims struct {
	Email string `json:"correo"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// AccountID はsubクレームを返す。
func (c *Claims) AccountID() string {
	return c.Subject
}

// Token は発行済みのベアラートークン。
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer はHS256署名のベアラートークンを発行・検証する。
// 署名鍵は生成後に変更されないため、複数goroutineから安全に利用できる。
type TokenIssuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// TokenOption はTokenIssuerの生成オプション。
type TokenOption func(*TokenIssuer)

// WithTokenClock は現在時刻の取得関数を差し替える。
func WithTokenClock(now func() time.Time) TokenOption {
	return func(i *TokenIssuer) {
		i.now = now
	}
}

// NewTokenIssuer は標準base64(パディングあり)でエンコードされた署名鍵からTokenIssuerを生成する。
// 鍵が空、デコード不能、または32バイト未満の場合はCodeTokenConfigのエラーを返す。
// このエラーは起動時に致命的エラーとして扱う。
func NewTokenIssuer(secretBase64 string, ttl time.Duration, opts ...TokenOption) (*TokenIssuer, error) {
	key, err := decodeSigningKey(secretBase64)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	// expは秒精度のため、TTLも秒単位に切り捨てる。
	ttl = max(ttl.Truncate(time.Second), time.Second)

	i := &TokenIssuer{key: key, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

func decodeSigningKey(secretBase64 string) ([]byte, error) {
	s := strings.TrimSpace(secretBase64)
	if s == "" {
		return nil, oops.Code(CodeTokenConfig).Errorf("signing key is empty")
	}

	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, oops.Code(CodeTokenConfig).
			With("reason", "invalid base64").
			Wrap(err)
	}
	if len(key) < MinSigningKeyBytes {
		return nil, oops.Code(CodeTokenConfig).
			With("key_bytes", len(key)).
			Errorf("signing key must be at least %d bytes, got %d", MinSigningKeyBytes, len(key))
	}
	return key, nil
}

// TTL はトークンの有効期間を返す。
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue はアカウントのトークンを発行する。exp = iat + TTL。
func (i *TokenIssuer) Issue(accountID, email, role string) (Token, error) {
	issuedAt := i.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.ttl)

	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	delete(token.Header, "typ")

	signed, err := token.SignedString(i.key)
	if err != nil {
		return Token{}, oops.Code(CodeTokenConfig).Wrap(err)
	}

	return Token{Value: signed, IssuedAt: issuedAt, ExpiresAt: expiresAt}, nil
}

// Validate はトークンの署名、アルゴリズム、有効期限を検証してクレームを返す。
// いずれかに問題がある場合はCodeTokenInvalidのエラーを返す。
func (i *TokenIssuer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) {
			return i.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, oops.Code(CodeTokenInvalid).Wrap(err)
	}
	if claims.Subject == "" {
		return nil, oops.Code(CodeTokenInvalid).Errorf("token has no subject")
	}
	return claims, nil
}
