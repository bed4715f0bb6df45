package model

import "time"

// GameOrder はテーブルからのゲーム貸出リクエスト（未処理）を表す。
// 完了処理で1度だけ消費されるか、キャンセルで破棄される。
type GameOrder struct {
	ID        int64
	GameID    int64
	TableID   string
	FirstName string
	LastName  string
	Phone     string
	CreatedAt time.Time
}

// PartySession はパーティーでのゲーム利用セッションを表す。
// 返却時に ReturnedAt が未設定のセッションへ返却情報を記録する。
type PartySession struct {
	ID               int64
	PartyID          int64
	GameID           int64
	StartedByUserID  *int64
	StartedAt        time.Time
	ReturnedAt       *time.Time
	ReturnedByUserID *int64
	ReturnNotes      string
}
