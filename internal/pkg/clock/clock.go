package clock

import (
	"sync"
	"time"
)

// Clock は現在時刻の取得を抽象化する
// エンジンはグローバルな時刻を直接読まず、必ず注入された Clock を使う
type Clock interface {
	// Now は現在時刻をUTCで返す
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// System はシステム時刻を返す Clock を作成する
func System() Clock {
	return systemClock{}
}

// Fake はテスト用の固定時刻 Clock
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake は指定時刻で固定された Clock を作成する
func NewFake(t time.Time) *Fake {
	return &Fake{now: t.UTC()}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set は現在時刻を設定する
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t.UTC()
}

// Advance は現在時刻を進める
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
