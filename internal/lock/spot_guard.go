package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrLockTimeout = errors.New("スポットロックの取得がタイムアウトしました")
)

// SpotGuard はスポット単位の排他制御を提供する
// 「空き確認 → 予約確定」の一連の処理をスポットごとに直列化し、
// 同じスポットへの同時リクエストが両方とも「空き」を観測することを防ぐ。
// 別スポットへのリクエストは互いにブロックしない
type SpotGuard struct {
	mu          sync.Mutex
	sems        map[string]chan struct{}
	waitTimeout time.Duration
}

// NewSpotGuard はロック待ちの上限時間を指定して SpotGuard を作成する
func NewSpotGuard(waitTimeout time.Duration) *SpotGuard {
	return &SpotGuard{
		sems:        make(map[string]chan struct{}),
		waitTimeout: waitTimeout,
	}
}

// sem はスポットのセマフォを遅延生成する
// 生成時の競合を避けるため、一度作ったセマフォは削除しない
func (g *SpotGuard) sem(spotID string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sems[spotID]
	if !ok {
		s = make(chan struct{}, 1)
		g.sems[spotID] = s
	}
	return s
}

// acquire はスポットロックを取得し、解放関数を返す
// 上限時間内に取得できない場合は ErrLockTimeout、
// コンテキストが先に打ち切られた場合はその理由を返す
func (g *SpotGuard) acquire(ctx context.Context, spotID string) (release func(), err error) {
	s := g.sem(spotID)
	timer := time.NewTimer(g.waitTimeout)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrLockTimeout
	}
}

// WithSpotLock はスポットロックを保持した状態で fn を実行する
// fn がエラーやパニックで終了してもロックは必ず解放される
func (g *SpotGuard) WithSpotLock(ctx context.Context, spotID string, fn func() error) error {
	release, err := g.acquire(ctx, spotID)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// WithSpotLocks は2つのスポットのロックを保持した状態で fn を実行する
// デッドロックを避けるため、取得順はスポットIDの昇順に固定する
func (g *SpotGuard) WithSpotLocks(ctx context.Context, spotA, spotB string, fn func() error) error {
	if spotA == spotB {
		return g.WithSpotLock(ctx, spotA, fn)
	}
	first, second := spotA, spotB
	if second < first {
		first, second = second, first
	}

	releaseFirst, err := g.acquire(ctx, first)
	if err != nil {
		return err
	}
	defer releaseFirst()

	releaseSecond, err := g.acquire(ctx, second)
	if err != nil {
		return err
	}
	defer releaseSecond()

	return fn()
}
