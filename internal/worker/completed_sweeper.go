package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	redisinfra "github.com/kangxxie/go-parking-reservation/internal/infrastructure/redis"
	"github.com/kangxxie/go-parking-reservation/internal/pkg/logger"
)

// sweepLockKey は複数プロセス構成でスイープ実行者を1つに限定するためのキー
const sweepLockKey = "reservation-sweep"

// ReservationCompleter は終了済み予約を完了状態へ遷移させるインターフェース
type ReservationCompleter interface {
	CompletePastReservations(ctx context.Context) (int, error)
}

// CompletedSweeper は終了時刻を過ぎた確定予約を完了状態に整理するワーカー
// 安全性はエンジン側のスポットロックと状態条件付き更新が担うため、
// このワーカー自体はベストエフォートでよい
type CompletedSweeper struct {
	service     ReservationCompleter
	lockManager *redisinfra.LockManager
	lockTTL     time.Duration
}

// NewCompletedSweeper は新しいスイーパーを作成する
// lockManager は nil でもよく、その場合は排他なしで実行する（単一プロセス構成）
func NewCompletedSweeper(service ReservationCompleter, lockManager *redisinfra.LockManager, lockTTL time.Duration) *CompletedSweeper {
	return &CompletedSweeper{
		service:     service,
		lockManager: lockManager,
		lockTTL:     lockTTL,
	}
}

// RunOnce はスイープを1回実行する
// 他プロセスが実行中の場合はスキップする
func (s *CompletedSweeper) RunOnce(ctx context.Context) {
	if s.lockManager != nil {
		lock, err := s.lockManager.TryAcquire(ctx, sweepLockKey, s.lockTTL)
		if err != nil {
			if errors.Is(err, redisinfra.ErrLockNotAcquired) {
				logger.Debug("完了スイープをスキップ（他プロセスが実行中）")
				return
			}
			logger.Warn("完了スイープ用ロックの取得に失敗", zap.Error(err))
			return
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				logger.Warn("完了スイープ用ロックの解放に失敗", zap.Error(err))
			}
		}()
	}

	count, err := s.service.CompletePastReservations(ctx)
	if err != nil {
		logger.Error("完了スイープに失敗", zap.Error(err))
		return
	}
	if count > 0 {
		logger.Info("完了スイープ終了", zap.Int("count", count))
	} else {
		logger.Debug("完了対象の予約なし")
	}
}
