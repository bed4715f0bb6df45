package model

import "time"

// BadgeFirstBorrow は初回貸出時に付与されるバッジのキー。
const BadgeFirstBorrow = "first_borrow"

// Badge は実績バッジの定義。
type Badge struct {
	ID          int64
	Key         string
	Name        string
	Description string
	Icon        string
}

// NotificationType は通知の種別。
type NotificationType string

const (
	// NotificationTypeBadge はバッジ付与の通知。
	NotificationTypeBadge NotificationType = "badge"
)

// Notification はユーザー向け通知レコード。
type Notification struct {
	ID        int64
	UserID    int64
	Type      NotificationType
	Message   string
	IsRead    bool
	CreatedAt time.Time
}
