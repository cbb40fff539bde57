package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kangxxie/go-parking-reservation/internal/availability"
	"github.com/kangxxie/go-parking-reservation/internal/domain/reservation"
	"github.com/kangxxie/go-parking-reservation/internal/domain/spot"
	redisinfra "github.com/kangxxie/go-parking-reservation/internal/infrastructure/redis"
	"github.com/kangxxie/go-parking-reservation/internal/pkg/logger"
)

// 空き照会は書き込みロックを取らずインデックスの読み取りロックのみで行う。
// 進行中の確定処理とは結果整合となるが、最終判定は常に作成時の
// ロック内検査が行うため、二重予約には繋がらない。

// CheckAvailability はスポットが指定時間帯に空いているかを返す
// 競合する確定予約の一覧も診断用に返す
func (s *ReservationService) CheckAvailability(ctx context.Context, spotID string, start, end time.Time) (bool, []availability.Entry, error) {
	rng := reservation.NewTimeRange(start, end)
	if err := rng.Validate(); err != nil {
		return false, nil, err
	}
	if _, err := s.lookupActiveSpot(ctx, spotID); err != nil {
		return false, nil, err
	}
	conflicts := s.index.Query(spotID, rng)
	return len(conflicts) == 0, conflicts, nil
}

// ListAvailableSpots は都市内で指定時間帯に空いているスポットIDを返す
// 結果は短いTTLでキャッシュされ、その間の確定・取消は反映されない
func (s *ReservationService) ListAvailableSpots(ctx context.Context, cityID string, start, end time.Time, vehicleType string) ([]string, error) {
	rng := reservation.NewTimeRange(start, end)
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	vt, err := spot.ParseVehicleType(vehicleType)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		ids, err := s.cache.GetSpotIDs(ctx, cityID, string(vt), rng.Start, rng.End)
		if err == nil {
			return ids, nil
		}
		if !errors.Is(err, redisinfra.ErrCacheMiss) {
			logger.Warn("空き情報キャッシュの取得に失敗", zap.Error(err))
		}
	}

	spots, err := s.directory.ListActiveByCity(ctx, cityID, vt)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(spots))
	for _, sp := range spots {
		if len(s.index.Query(sp.ID, rng)) == 0 {
			ids = append(ids, sp.ID)
		}
	}

	if s.cache != nil {
		if err := s.cache.SetSpotIDs(ctx, cityID, string(vt), rng.Start, rng.End, ids); err != nil {
			logger.Warn("空き情報キャッシュの保存に失敗", zap.Error(err))
		}
	}
	return ids, nil
}
