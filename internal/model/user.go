package model

import "time"

// Role はユーザーの権限種別を表す。
type Role string

const (
	// RoleUser は一般ユーザー。
	RoleUser Role = "user"
	// RoleAdmin はスタッフ（貸出・注文処理が可能）。
	RoleAdmin Role = "admin"
)

// User はサービス利用ユーザーを表す。
// PasswordHash が空のユーザーはゲスト（注文完了時に電話番号から自動作成）。
type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Phone        string // 数字のみに正規化済み
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsGuest はパスワード未設定のゲストユーザーかどうかを返す。
func (u *User) IsGuest() bool {
	return u.PasswordHash == ""
}

// Identity はアクセストークンから取り出した認証済みの利用者情報。
type Identity struct {
	UserID int64
	Role   Role
}

// RefreshToken はリフレッシュトークンを表す。
// 永続化され、有効期限を過ぎたものはクリーンアップジョブで削除される。
type RefreshToken struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}
