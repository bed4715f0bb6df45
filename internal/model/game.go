package model

import "time"

// Game はカタログに登録されたボードゲームを表す。
// LentOut は最新の貸出履歴が lend である場合にのみ true となる。
type Game struct {
	ID              int64
	TitleSV         string
	TitleEN         string
	DescriptionSV   string
	DescriptionEN   string
	Players         string
	Time            string
	Age             string
	Tags            string
	Img             string
	Rules           string
	SlowDayOnly     bool
	TrustedOnly     bool
	MaxTableSize    int
	ConditionRating int
	StaffPicks      string
	LentOut         bool
	TimesLent       int
	LastLent        *time.Time
	CreatedAt       time.Time
}

// HistoryAction は貸出履歴の操作種別を表す。
type HistoryAction string

const (
	// HistoryActionLend は貸出を表す。
	HistoryActionLend HistoryAction = "lend"
	// HistoryActionReturn は返却を表す。
	HistoryActionReturn HistoryAction = "return"
)

// GameHistoryEntry は貸出・返却ごとに追記される不変の履歴レコード。
// 更新・削除は行わない。
type GameHistoryEntry struct {
	ID         int64
	GameID     int64
	UserID     *int64
	Action     HistoryAction
	Note       string
	Timestamp  time.Time
	ReturnedAt *time.Time
}

// GameFilter はゲーム一覧の絞り込み条件。
// LentOut が nil の場合は貸出状態で絞り込まない。
type GameFilter struct {
	LentOut *bool
}
