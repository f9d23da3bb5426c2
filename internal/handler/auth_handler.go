// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/telconova/authgate/internal/auth"
	"github.com/telconova/authgate/internal/middleware"
	"github.com/telconova/authgate/internal/model"
)

// maxLoginBodyBytes はログインリクエストボディの上限サイズ。
const maxLoginBodyBytes = 64 << 10

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Authenticate(ctx context.Context, req auth.LoginRequest) (*auth.AuthResult, error)
	CurrentAccount(ctx context.Context, accountID string) (*model.Account, error)
}

// loginRequest はログインリクエストボディ。
// email / password は correo / contraseña の別名として受け付ける。
type loginRequest struct {
	Correo     string `json:"correo"`
	Contrasena string `json:"contraseña"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

func (r loginRequest) credentials() (string, string) {
	email := r.Correo
	if email == "" {
		email = r.Email
	}
	password := r.Contrasena
	if password == "" {
		password = r.Password
	}
	return email, password
}

// userResponse はレスポンスに含めるアカウント識別情報。
type userResponse struct {
	ID     string `json:"id"`
	Correo string `json:"correo"`
	Role   string `json:"role"`
}

// loginResponse はログイン成功時のレスポンス。
type loginResponse struct {
	Message   string       `json:"message"`
	Token     string       `json:"token"`
	User      userResponse `json:"user"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// meResponse は現在のアカウント情報のレスポンス。
type meResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Correo      string     `json:"correo"`
	Role        string     `json:"role"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// validateResponse はトークン検証結果のレスポンス。
type validateResponse struct {
	Valid     bool         `json:"valid"`
	User      userResponse `json:"user"`
	IssuedAt  time.Time    `json:"issued_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// AuthHandler はログイン関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// Login は資格情報を検証しベアラートークンを発行する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(""))
		return
	}

	email, password := req.credentials()
	result, err := h.service.Authenticate(r.Context(), auth.LoginRequest{
		Email:     email,
		Password:  password,
		SourceIP:  middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Message:   model.MsgLoginSucceeded,
		Token:     result.Token.Value,
		User:      toUserResponse(result.Account.ID, result.Account.Email, result.Account.Role),
		ExpiresAt: result.Token.ExpiresAt,
	})
}

// Me はベアラートークンの主体となるアカウント情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	account, err := h.service.CurrentAccount(r.Context(), accountID)
	if err != nil {
		slog.Error("failed to get current account",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}
	if account == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAccountNotFoundError())
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		ID:          account.ID,
		Name:        account.Name,
		Correo:      account.Email,
		Role:        account.Role,
		LastLoginAt: account.LastLoginAt,
	})
}

// Validate はベアラートークンのクレームを返す。
// 無効なトークンはベアラーミドルウェアで401となるため、ここに到達した時点で有効。
// POST /api/auth/validate
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
		return
	}

	resp := validateResponse{
		Valid: true,
		User:  toUserResponse(claims.AccountID(), claims.Email, claims.Role),
	}
	if claims.IssuedAt != nil {
		resp.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeAuthError は認証エラーのコードをHTTPステータスと統一エラーに変換する。
// ストレージ障害と署名鍵の問題は詳細をログのみに残し500を返す。
func writeAuthError(w http.ResponseWriter, err error) {
	switch auth.CodeOf(err) {
	case auth.CodeValidation:
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(""))
	case auth.CodeInvalidCredentials:
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
	case auth.CodeAccountLocked:
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAccountLockedError())
	default:
		slog.Error("login failed",
			slog.String("code", auth.CodeOf(err)),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
	}
}

func toUserResponse(id, email, role string) userResponse {
	return userResponse{ID: id, Correo: email, Role: role}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
