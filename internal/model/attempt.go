package model

import "time"

// AttemptReason はログイン試行結果の理由を表す。
type AttemptReason string

const (
	AttemptReasonOK           AttemptReason = "ok"
	AttemptReasonUnknownEmail AttemptReason = "unknown_email"
	AttemptReasonBadPassword  AttemptReason = "bad_password"
	AttemptReasonLocked       AttemptReason = "locked"
)

// AttemptRecord はログイン試行の監査ログエントリ。
// 追記専用で、作成後に更新されることはない。
// Emailは試行時に入力された値であり、実在するアカウントとは限らない。
type AttemptRecord struct {
	ID         string
	Email      string
	Success    bool
	Reason     AttemptReason
	SourceIP   string
	UserAgent  string
	OccurredAt time.Time
}
