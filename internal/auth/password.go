package auth

import (
	"crypto/rand"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// PasswordVerifier は平文パスワードと保存済みハッシュを照合する。
type PasswordVerifier interface {
	// Verify は一致する場合にtrueを返す。不正な形式のハッシュはfalseとなる。
	Verify(plain, hash string) bool
	// VerifyDummy は存在しないアカウントに対して同等のコストで照合を行い、常にfalseを返す。
	// 応答時間からアカウントの存在が推測されないようにする。
	VerifyDummy(plain string)
}

// BcryptVerifier はbcryptによるPasswordVerifierの実装。
type BcryptVerifier struct {
	cost      int
	dummyHash []byte
}

// NewBcryptVerifier はBcryptVerifierを生成する。
// costが範囲外の場合はbcrypt.DefaultCostを使用する。
func NewBcryptVerifier(cost int) (*BcryptVerifier, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, oops.Code("AUTH_DUMMY_HASH_FAILED").Wrap(err)
	}
	dummy, err := bcrypt.GenerateFromPassword(seed, cost)
	if err != nil {
		return nil, oops.Code("AUTH_DUMMY_HASH_FAILED").Wrap(err)
	}

	return &BcryptVerifier{cost: cost, dummyHash: dummy}, nil
}

// Verify はbcrypt.CompareHashAndPasswordで定数時間比較を行う。
func (v *BcryptVerifier) Verify(plain, hash string) bool {
	if hash == "" {
		v.VerifyDummy(plain)
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// VerifyDummy はダミーハッシュとの比較を行う。
func (v *BcryptVerifier) VerifyDummy(plain string) {
	_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(plain))
}

// Hash は平文パスワードのbcryptハッシュを生成する。アカウント発行用。
func (v *BcryptVerifier) Hash(plain string) (string, error) {
	if plain == "" {
		return "", oops.Code(CodeValidation).Errorf("password cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), v.cost)
	if err != nil {
		return "", oops.Code(CodeValidation).Wrap(err)
	}
	return string(hash), nil
}

// Cost は使用中のbcryptコストを返す。
func (v *BcryptVerifier) Cost() int {
	return v.cost
}

var _ PasswordVerifier = (*BcryptVerifier)(nil)
