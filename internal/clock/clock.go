// Package clock は現在時刻の取得を抽象化する。
// OTPの有効期限判定と期限切れ登録の削除はすべてこのインターフェース経由で現在時刻を得る。
package clock

import "time"

// Clock は現在時刻を返すインターフェース。
type Clock interface {
	Now() time.Time
}

// Real はシステム時刻をUTCで返すClock。
type Real struct{}

// Now は現在のシステム時刻を返す。
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// Func は関数をClockとして扱うアダプタ。
type Func func() time.Time

// Now はfを呼び出して時刻を返す。
func (f Func) Now() time.Time {
	return f()
}

// Fixed は常に同じ時刻を返すClockを生成する。
func Fixed(t time.Time) Clock {
	return Func(func() time.Time { return t })
}

// Manual はテスト用に手動で進められるClock。
type Manual struct {
	now time.Time
}

// NewManual は指定時刻から始まるManualを生成する。
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now は現在の時刻を返す。
func (m *Manual) Now() time.Time {
	return m.now
}

// Advance は時刻をdだけ進める。
func (m *Manual) Advance(d time.Duration) {
	m.now = m.now.Add(d)
}

// Set は時刻をtに設定する。
func (m *Manual) Set(t time.Time) {
	m.now = t
}
