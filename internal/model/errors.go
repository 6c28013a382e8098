// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// CodeUniqueViolation はPostgreSQLの一意制約違反を表すSQLSTATE。
// PostgREST(Supabase)もエラーボディのcodeに同じ値を返す。
const CodeUniqueViolation = "23505"

// StoreError はリモートストアが返した機械可読なエラーコード付きのエラー。
type StoreError struct {
	Code    string // SQLSTATE または HTTP_<status>
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *StoreError) Error() string {
	return fmt.Sprintf("store error %s: %s", e.Code, e.Message)
}

// IsUniqueViolation はエラーチェーン中に一意制約違反のStoreErrorが含まれるかを判定する。
func IsUniqueViolation(err error) bool {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Code == CodeUniqueViolation
	}
	return false
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, signup, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeEmailRequired      = "EMAIL_REQUIRED"
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
	ErrCodeDuplicateEmail     = "DUPLICATE_EMAIL"
	ErrCodeSignupFailed       = "SIGNUP_FAILED"
	ErrCodeSubmissionInFlight = "SUBMISSION_IN_FLIGHT"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Request body could not be parsed.",
		Category: "validation",
		Action:   "Send a JSON object such as {\"email\": \"you@example.com\"}.",
	}
}

// NewEmailRequiredError はメールアドレス未入力エラーを生成する。
func NewEmailRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailRequired,
		Message:  "Email is required.",
		Category: "validation",
		Action:   "Enter your email address.",
	}
}

// NewInvalidEmailError はメールアドレス形式エラーを生成する。
func NewInvalidEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  fmt.Sprintf("Not a valid email address: %s", email),
		Category: "validation",
		Action:   "Check the address for typos.",
	}
}

// NewSubmissionInFlightError は送信処理中の二重送信エラーを生成する。
func NewSubmissionInFlightError() *APIError {
	return &APIError{
		Code:     ErrCodeSubmissionInFlight,
		Message:  "A submission is already in progress.",
		Category: "signup",
		Action:   "Wait for the current submission to finish.",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please try again later.",
	}
}
