package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kangxxie/go-parking-reservation/internal/domain/reservation"
	"github.com/kangxxie/go-parking-reservation/internal/pkg/logger"
)

// CompletePastReservations は終了時刻を過ぎた確定予約を完了状態にする
// ベストエフォートの整理処理だが、同時進行のキャンセルと競合しないよう
// スポットロックと状態条件付き更新の両方を通して遷移させる
func (s *ReservationService) CompletePastReservations(ctx context.Context) (int, error) {
	now := s.clock.Now()
	rows, err := s.repo.ListConfirmedEndedBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("終了済み予約の取得に失敗: %w", err)
	}

	completed := 0
	for _, r := range rows {
		r := r
		err := s.guard.WithSpotLock(ctx, r.SpotID, func() error {
			if err := s.repo.UpdateStatus(ctx, r.ID, reservation.StatusCompleted, reservation.StatusConfirmed, now); err != nil {
				return err
			}
			s.index.Remove(r.SpotID, r.ID)
			return nil
		})
		if err != nil {
			// 先行したキャンセルに負けた場合はそのままスキップする
			if errors.Is(err, reservation.ErrStatusConflict) {
				continue
			}
			return completed, err
		}
		completed++
		s.adjustConfirmedGauge(-1)
	}

	if completed > 0 {
		logger.Info("終了済み予約を完了状態へ更新", zap.Int("count", completed))
	}
	return completed, nil
}
