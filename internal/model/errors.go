// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeAccountLocked      = "ACCOUNT_LOCKED"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// ユーザー向けメッセージ。
// 未登録メールとパスワード誤りは同一メッセージを返す（アカウント列挙対策）。
const (
	MsgMissingCredentials = "Correo y contraseña son obligatorios"
	MsgInvalidCredentials = "Credenciales incorrectas"
	MsgAccountLocked      = "Cuenta bloqueada. Intente más tarde."
	MsgLoginSucceeded     = "Login exitoso"
)

// NewValidationError は必須項目の欠落エラーを生成する。
func NewValidationError(message string) *APIError {
	if message == "" {
		message = MsgMissingCredentials
	}
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Ingrese su correo y contraseña.",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// 原因（未登録/パスワード誤り）は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  MsgInvalidCredentials,
		Category: "auth",
		Action:   "Verifique su correo y contraseña e intente nuevamente.",
	}
}

// NewAccountLockedError はロックアウト中エラーを生成する。
// 残りクールダウン時間は含めない。
func NewAccountLockedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountLocked,
		Message:  MsgAccountLocked,
		Category: "auth",
		Action:   "Espere unos minutos antes de volver a intentarlo.",
	}
}

// NewUnauthorizedError はBearerトークン欠落エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Autenticación requerida",
		Category: "auth",
		Action:   "Inicie sesión para continuar.",
	}
}

// NewInvalidTokenError は不正または期限切れトークンのエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "Token inválido o expirado",
		Category: "auth",
		Action:   "Inicie sesión nuevamente.",
	}
}

// NewAccountNotFoundError はトークンの主体となるアカウントが存在しない場合のエラーを生成する。
func NewAccountNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  "Usuario no encontrado",
		Category: "auth",
		Action:   "Inicie sesión nuevamente.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Demasiados intentos. Intente más tarde.",
		Category: "system",
		Action:   "Espere el tiempo indicado antes de reintentar.",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Ocurrió un error interno.",
		Category: "system",
		Action:   "Intente nuevamente en unos momentos.",
	}
}
