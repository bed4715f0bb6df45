// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, lending, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeInvalidGameID       = "INVALID_GAME_ID"
	ErrCodeInvalidUserID       = "INVALID_USER_ID"
	ErrCodeInvalidOrderID      = "INVALID_ORDER_ID"
	ErrCodeMissingOrderFields  = "MISSING_ORDER_FIELDS"
	ErrCodeMissingUserInfo     = "MISSING_USER_INFO"
	ErrCodeGameNotFound        = "GAME_NOT_FOUND"
	ErrCodeOrderNotFound       = "ORDER_NOT_FOUND"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	ErrCodeInvalidPassword     = "INVALID_PASSWORD"
	ErrCodeMissingAccountInfo  = "MISSING_ACCOUNT_INFO"
	ErrCodeAccountExists       = "ACCOUNT_EXISTS"
	ErrCodeEmptyImport         = "EMPTY_IMPORT"
	ErrCodeMissingGameFields   = "MISSING_GAME_FIELDS"
)

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInvalidGameIDError はゲームIDが不正な場合のエラーを生成する。
func NewInvalidGameIDError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidGameID,
		Message:  fmt.Sprintf("無効なゲームIDです: %s", raw),
		Category: "validation",
		Action:   "ゲームIDには数値を指定してください。",
	}
}

// NewInvalidUserIDError はユーザーIDが欠落・不正・未登録の場合のエラーを生成する。
func NewInvalidUserIDError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidUserID,
		Message:  fmt.Sprintf("無効なユーザーIDです: %s", reason),
		Category: "validation",
		Action:   "登録済みユーザーの数値IDを userId に指定してください。",
	}
}

// NewInvalidOrderIDError は注文IDが不正な場合のエラーを生成する。
func NewInvalidOrderIDError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOrderID,
		Message:  fmt.Sprintf("無効な注文IDです: %s", raw),
		Category: "validation",
		Action:   "注文IDには数値を指定してください。",
	}
}

// NewMissingOrderFieldsError は注文の必須項目が欠落している場合のエラーを生成する。
func NewMissingOrderFieldsError(fields []string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingOrderFields,
		Message:  fmt.Sprintf("必須項目が入力されていません: %v", fields),
		Category: "validation",
		Action:   "gameId、tableId、firstName、lastName、phone をすべて指定してください。",
	}
}

// NewMissingUserInfoError は注文に氏名または電話番号がない場合のエラーを生成する。
func NewMissingUserInfoError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingUserInfo,
		Message:  "注文に氏名または電話番号が含まれていません。",
		Category: "validation",
		Action:   "注文をキャンセルし、正しい情報で再度注文してください。",
	}
}

// NewEmptyImportError は取り込むゲームが1件もない場合のエラーを生成する。
func NewEmptyImportError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyImport,
		Message:  "取り込むゲームがありません。",
		Category: "validation",
		Action:   "ゲームのJSON配列を1件以上指定してください。",
	}
}

// NewMissingGameFieldsError は取り込むゲームの必須項目が欠落している場合のエラーを生成する。
// index は配列内の位置（0始まり）。
func NewMissingGameFieldsError(index int, fields []string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingGameFields,
		Message:  fmt.Sprintf("%d 件目のゲームに必須項目がありません: %v", index, fields),
		Category: "validation",
		Action:   "すべてのゲームに title_sv と title_en を指定してください。",
	}
}

// NewGameNotFoundError はゲーム未検出エラーを生成する。
func NewGameNotFoundError(gameID int64) *APIError {
	return &APIError{
		Code:     ErrCodeGameNotFound,
		Message:  fmt.Sprintf("指定されたゲームが見つかりません: %d", gameID),
		Category: "lending",
		Action:   "ゲームIDを確認してください。",
	}
}

// NewOrderNotFoundError は注文未検出エラーを生成する。
func NewOrderNotFoundError(orderID int64) *APIError {
	return &APIError{
		Code:     ErrCodeOrderNotFound,
		Message:  fmt.Sprintf("指定された注文が見つかりません: %d", orderID),
		Category: "lending",
		Action:   "注文が既に完了またはキャンセルされていないか確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUnauthorizedError は認証が必要な場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足の場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "スタッフアカウントでログインしてください。",
	}
}

// NewInvalidCredentialsError はログイン情報が一致しない場合のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewInvalidRefreshTokenError はリフレッシュトークンが無効または期限切れの場合のエラーを生成する。
func NewInvalidRefreshTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRefreshToken,
		Message:  "リフレッシュトークンが無効か、有効期限が切れています。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidPasswordError はパスワードポリシーを満たさない場合のエラーを生成する。
func NewInvalidPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPassword,
		Message:  "パスワードは8文字以上で、英字と数字の両方を含める必要があります。",
		Category: "validation",
		Action:   "別のパスワードを指定してください。",
	}
}

// NewMissingAccountInfoError は会員登録の必須項目が欠落している場合のエラーを生成する。
func NewMissingAccountInfoError(fields []string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingAccountInfo,
		Message:  fmt.Sprintf("必須項目が入力されていません: %v", fields),
		Category: "validation",
		Action:   "firstName、lastName、phone、email、password をすべて指定してください。",
	}
}

// NewAccountExistsError は電話番号またはメールアドレスが既に会員登録済みの場合のエラーを生成する。
func NewAccountExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountExists,
		Message:  "この電話番号またはメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別の連絡先で登録してください。",
	}
}
