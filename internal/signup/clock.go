package signup

import "time"

// Timer は予約済みの遅延タスクを取り消すためのハンドル。
type Timer interface {
	Stop() bool
}

// Clock は遅延タスクのスケジューラ。テストでは仮想時間の実装に差し替える。
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock はtime.AfterFuncを使用するClock実装。
type RealClock struct{}

// AfterFunc はdの経過後にfを別ゴルーチンで実行する。
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
