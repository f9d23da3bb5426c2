package auth

import (
	"github.com/samber/oops"
)

// 認証コアが返すエラーコード。HTTP層はこのコードでステータスとレスポンスを決定する。
const (
	CodeValidation         = "AUTH_VALIDATION"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeAccountLocked      = "AUTH_ACCOUNT_LOCKED"
	CodeStorage            = "AUTH_STORAGE"
	CodeTokenConfig        = "AUTH_TOKEN_CONFIG"
	CodeTokenInvalid       = "AUTH_TOKEN_INVALID"
)

var knownCodes = []string{
	CodeValidation,
	CodeInvalidCredentials,
	CodeAccountLocked,
	CodeStorage,
	CodeTokenConfig,
	CodeTokenInvalid,
}

// HasCode はerrが指定コードのoopsエラーかどうかを返す。
func HasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	return oopsErr.Code() == code
}

// CodeOf はerrに付与された認証エラーコードを返す。
// 認証コア由来でないエラーの場合は空文字を返す。
func CodeOf(err error) string {
	for _, code := range knownCodes {
		if HasCode(err, code) {
			return code
		}
	}
	return ""
}

func errValidation() error {
	return oops.Code(CodeValidation).Errorf("email and password are required")
}

func errInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid credentials")
}

func errAccountLocked() error {
	return oops.Code(CodeAccountLocked).Errorf("account is locked")
}

func errStorage(operation string, err error) error {
	return oops.Code(CodeStorage).
		With("operation", operation).
		Wrap(err)
}
