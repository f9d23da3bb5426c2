// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/telconova/authgate/internal/auth"
	"github.com/telconova/authgate/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	accountIDContextKey = contextKey("account_id")
	claimsContextKey    = contextKey("claims")
)

// TokenValidator はベアラートークンの検証に必要なインターフェース。
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// NewBearerMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 検証済みのアカウントIDとクレームをリクエストコンテキストに注入する。
// トークンが無い場合、または無効な場合は401 Unauthorizedを返す。
func NewBearerMiddleware(validator TokenValidator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="authgate"`)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				slog.Debug("bearer token rejected",
					slog.String("error", err.Error()),
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="authgate", error="invalid_token"`)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
				return
			}

			setLoggedAccountID(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// BearerToken はAuthorizationヘッダーからトークンを取り出す。
// スキーム名は大文字小文字を区別しない。
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// AccountIDFromContext はリクエストコンテキストからアカウントIDを取得する。
// ベアラーミドルウェアを通過したリクエストでのみ有効。
func AccountIDFromContext(ctx context.Context) (string, error) {
	accountID, ok := ctx.Value(accountIDContextKey).(string)
	if !ok || accountID == "" {
		return "", fmt.Errorf("account ID not found in context")
	}
	return accountID, nil
}

// ClaimsFromContext はリクエストコンテキストから検証済みクレームを取得する。
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// ContextWithClaims はコンテキストにクレームとアカウントIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, claimsContextKey, claims)
	return context.WithValue(ctx, accountIDContextKey, claims.Subject)
}

// ContextWithAccountID はコンテキストにアカウントIDのみを注入する。
func ContextWithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDContextKey, accountID)
}
