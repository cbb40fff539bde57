package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kangxxie/go-parking-reservation/internal/availability"
	"github.com/kangxxie/go-parking-reservation/internal/domain/reservation"
	"github.com/kangxxie/go-parking-reservation/internal/domain/spot"
	redisinfra "github.com/kangxxie/go-parking-reservation/internal/infrastructure/redis"
	"github.com/kangxxie/go-parking-reservation/internal/lock"
	"github.com/kangxxie/go-parking-reservation/internal/pkg/clock"
	"github.com/kangxxie/go-parking-reservation/internal/pkg/logger"
	"github.com/kangxxie/go-parking-reservation/internal/pkg/metrics"
)

// Policy は予約エンジンの業務ポリシー
type Policy struct {
	// MaxDuration は1件の予約の最大時間
	MaxDuration time.Duration
	// AdvanceWindow は予約開始の受付上限（0で無制限）
	AdvanceWindow time.Duration
}

// ReservationService は予約の作成・取消・変更と空き照会を担うエンジン
// スポット単位のロックで「空き確認 → 確定」を直列化し、
// 確定済み予約の時間帯が重ならない不変条件を守る
type ReservationService struct {
	repo      reservation.Repository
	directory spot.Directory
	index     *availability.Index
	guard     *lock.SpotGuard
	cache     *redisinfra.AvailabilityCache
	clock     clock.Clock
	policy    Policy
	metrics   *metrics.Metrics
}

// NewReservationService は ReservationService を作成する
// cache と m は任意で、nil の場合は該当機能を使わない
func NewReservationService(
	repo reservation.Repository,
	directory spot.Directory,
	index *availability.Index,
	guard *lock.SpotGuard,
	cache *redisinfra.AvailabilityCache,
	clk clock.Clock,
	policy Policy,
	m *metrics.Metrics,
) *ReservationService {
	return &ReservationService{
		repo:      repo,
		directory: directory,
		index:     index,
		guard:     guard,
		cache:     cache,
		clock:     clk,
		policy:    policy,
		metrics:   m,
	}
}

// CreateReservationInput は予約作成の入力
type CreateReservationInput struct {
	SpotID      string
	UserID      string
	VehicleType string
	StartTime   time.Time
	EndTime     time.Time
}

// CreateReservation は空きを確認した上で予約を確定する
// 検証エラーはロック取得前に返し、競合検査と永続化はスポットロック内で行う
func (s *ReservationService) CreateReservation(ctx context.Context, input CreateReservationInput) (*reservation.Reservation, error) {
	rng := reservation.NewTimeRange(input.StartTime, input.EndTime)
	now := s.clock.Now()
	if err := s.validateRange(rng, now); err != nil {
		s.countOperation("create", "rejected")
		return nil, err
	}

	vt, err := spot.ParseVehicleType(input.VehicleType)
	if err != nil {
		s.countOperation("create", "rejected")
		return nil, err
	}
	sp, err := s.lookupActiveSpot(ctx, input.SpotID)
	if err != nil {
		s.countOperation("create", "rejected")
		return nil, err
	}
	if !sp.CanAccept(vt) {
		s.countOperation("create", "rejected")
		return nil, spot.ErrVehicleTypeMismatch
	}

	res := reservation.NewReservation(sp.ID, input.UserID, rng, sp.PriceFor(rng.Duration()), now)
	if err := res.Validate(); err != nil {
		s.countOperation("create", "rejected")
		return nil, err
	}

	lockStart := time.Now()
	err = s.guard.WithSpotLock(ctx, sp.ID, func() error {
		s.observeLockWait(lockStart, "acquired")

		if conflicts := s.index.Query(sp.ID, rng); len(conflicts) > 0 {
			c := conflicts[0]
			return &reservation.SlotConflictError{ReservationID: c.ReservationID, Range: c.Range}
		}

		if err := res.Confirm(now); err != nil {
			return err
		}
		// ストアへの挿入成功後にのみインデックスを更新する
		// 失敗時はどちらにも残らず、両者の整合が保たれる
		if err := s.repo.Insert(ctx, res); err != nil {
			return err
		}
		if err := s.index.Insert(sp.ID, rng, res.ID); err != nil {
			return fmt.Errorf("インデックス更新に失敗: %w", err)
		}
		return nil
	})
	if err != nil {
		s.countOperation("create", resultLabel(err))
		s.observeLockFailure(lockStart, err)
		return nil, err
	}

	s.countOperation("create", "confirmed")
	s.adjustConfirmedGauge(1)
	logger.Info("予約を確定",
		zap.String("reservation_id", res.ID),
		zap.String("spot_id", sp.ID),
		zap.Time("start", rng.Start),
		zap.Time("end", rng.End),
	)
	return res, nil
}

// CancelReservation は確定済みの予約をキャンセルする
// ストアの状態条件付き更新が通った場合のみインデックスから除去する
// ロック取得までの間に予約変更で別スポットへ移ることがあるため、
// ロック内で読み直し、スポットが変わっていれば正しいロックで取り直す
func (s *ReservationService) CancelReservation(ctx context.Context, id, requestingUserID string) (*reservation.Reservation, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.UserID != requestingUserID {
		return nil, reservation.ErrNotOwner
	}

	now := s.clock.Now()
	spotID := res.SpotID
	for {
		moved := false
		err = s.guard.WithSpotLock(ctx, spotID, func() error {
			cur, err := s.repo.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if cur.SpotID != spotID {
				spotID = cur.SpotID
				moved = true
				return nil
			}
			res = cur

			switch res.Status {
			case reservation.StatusCancelled:
				return reservation.ErrAlreadyCancelled
			case reservation.StatusCompleted:
				return reservation.ErrAlreadyCompleted
			case reservation.StatusConfirmed:
			default:
				return reservation.ErrNotConfirmed
			}

			if err := s.repo.UpdateStatus(ctx, id, reservation.StatusCancelled, reservation.StatusConfirmed, now); err != nil {
				if errors.Is(err, reservation.ErrStatusConflict) {
					// インデックスがストアより古かったことを示すため、
					// エラーを返す前にこのスポットのインデックスを再構築する
					s.reconcileSpot(ctx, spotID)
				}
				return err
			}
			s.index.Remove(spotID, id)
			return nil
		})
		if err != nil || !moved {
			break
		}
	}
	if err != nil {
		s.countOperation("cancel", resultLabel(err))
		return nil, err
	}

	res.Status = reservation.StatusCancelled
	res.UpdatedAt = now
	s.countOperation("cancel", "cancelled")
	s.adjustConfirmedGauge(-1)
	logger.Info("予約をキャンセル",
		zap.String("reservation_id", id),
		zap.String("spot_id", res.SpotID),
	)
	return res, nil
}

// UpdateReservationInput は予約変更の入力
// NewSpotID が空の場合は同じスポットのまま時間帯のみ変更する
type UpdateReservationInput struct {
	ReservationID string
	UserID        string
	NewSpotID     string
	StartTime     time.Time
	EndTime       time.Time
}

// UpdateReservation は予約の時間帯（および任意でスポット）を変更する
// 旧スポットと新スポットの両ロックをID昇順で取得し、
// 除去と再挿入が揃って成功するまでどちらのロックも手放さない
// ロック内で読み直し、スポットが変わっていれば正しいロックで取り直す
func (s *ReservationService) UpdateReservation(ctx context.Context, input UpdateReservationInput) (*reservation.Reservation, error) {
	rng := reservation.NewTimeRange(input.StartTime, input.EndTime)
	now := s.clock.Now()
	if err := s.validateRange(rng, now); err != nil {
		s.countOperation("update", "rejected")
		return nil, err
	}

	res, err := s.repo.GetByID(ctx, input.ReservationID)
	if err != nil {
		return nil, err
	}
	if res.UserID != input.UserID {
		return nil, reservation.ErrNotOwner
	}

	oldSpotID := res.SpotID
	targetID := input.NewSpotID
	if targetID == "" {
		targetID = oldSpotID
	}
	target, err := s.lookupActiveSpot(ctx, targetID)
	if err != nil {
		s.countOperation("update", "rejected")
		return nil, err
	}

	var updated reservation.Reservation
	lockStart := time.Now()
	for {
		moved := false
		err = s.guard.WithSpotLocks(ctx, oldSpotID, target.ID, func() error {
			s.observeLockWait(lockStart, "acquired")

			// ロック取得までの間に別の変更でスポットが移ることがある
			cur, err := s.repo.GetByID(ctx, input.ReservationID)
			if err != nil {
				return err
			}
			if cur.SpotID != oldSpotID {
				oldSpotID = cur.SpotID
				moved = true
				return nil
			}
			res = cur

			switch res.Status {
			case reservation.StatusCancelled:
				return reservation.ErrAlreadyCancelled
			case reservation.StatusCompleted:
				return reservation.ErrAlreadyCompleted
			case reservation.StatusConfirmed:
			default:
				return reservation.ErrNotConfirmed
			}

			if target.ID != res.SpotID {
				// 利用車種は元の予約から変わらないため、移動先は同じ車種を
				// 受け入れるスポットでなければならない
				old, err := s.directory.GetByID(ctx, res.SpotID)
				if err != nil {
					return err
				}
				if !target.CanAccept(old.VehicleType) {
					return spot.ErrVehicleTypeMismatch
				}
			}

			for _, c := range s.index.Query(target.ID, rng) {
				// 同一スポット内の変更では自分自身との重なりは競合にしない
				if c.ReservationID == res.ID {
					continue
				}
				return &reservation.SlotConflictError{ReservationID: c.ReservationID, Range: c.Range}
			}

			updated = *res
			updated.SpotID = target.ID
			updated.Range = rng
			updated.PriceCents = target.PriceFor(rng.Duration())
			updated.UpdatedAt = now

			if err := s.repo.Reschedule(ctx, &updated, reservation.StatusConfirmed); err != nil {
				if errors.Is(err, reservation.ErrStatusConflict) {
					s.reconcileSpot(ctx, oldSpotID)
					s.reconcileSpot(ctx, target.ID)
				}
				return err
			}
			s.index.Remove(oldSpotID, res.ID)
			if err := s.index.Insert(target.ID, rng, res.ID); err != nil {
				return fmt.Errorf("インデックス更新に失敗: %w", err)
			}
			return nil
		})
		if err != nil || !moved {
			break
		}
		// スポット指定なしの変更は移動後のスポットに追従する
		if input.NewSpotID == "" {
			target, err = s.lookupActiveSpot(ctx, oldSpotID)
			if err != nil {
				s.countOperation("update", "rejected")
				return nil, err
			}
		}
	}
	if err != nil {
		s.countOperation("update", resultLabel(err))
		s.observeLockFailure(lockStart, err)
		return nil, err
	}

	s.countOperation("update", "confirmed")
	logger.Info("予約を変更",
		zap.String("reservation_id", res.ID),
		zap.String("from_spot", oldSpotID),
		zap.String("to_spot", target.ID),
	)
	return &updated, nil
}

// GetReservation はIDから予約を取得する
func (s *ReservationService) GetReservation(ctx context.Context, id string) (*reservation.Reservation, error) {
	return s.repo.GetByID(ctx, id)
}

// ListUserReservations はユーザーの予約一覧を取得する
func (s *ReservationService) ListUserReservations(ctx context.Context, userID string, limit, offset int) ([]*reservation.Reservation, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// RebuildIndex はストアの確定予約からインデックス全体を再構築する
// 起動時と障害復旧時に呼ばれる
func (s *ReservationService) RebuildIndex(ctx context.Context) error {
	confirmed, err := s.repo.ListConfirmed(ctx)
	if err != nil {
		return fmt.Errorf("確定予約の取得に失敗: %w", err)
	}
	bySpot := make(map[string][]*reservation.Reservation)
	for _, r := range confirmed {
		bySpot[r.SpotID] = append(bySpot[r.SpotID], r)
	}
	for spotID, rs := range bySpot {
		s.index.Rebuild(spotID, rs)
	}
	if s.metrics != nil {
		s.metrics.ConfirmedReservations.Set(float64(len(confirmed)))
	}
	logger.Info("インデックスを再構築",
		zap.Int("reservations", len(confirmed)),
		zap.Int("spots", len(bySpot)),
	)
	return nil
}

// reconcileSpot はストアを正としてスポットのインデックスを作り直す
func (s *ReservationService) reconcileSpot(ctx context.Context, spotID string) {
	rows, err := s.repo.ListBySpot(ctx, spotID, reservation.StatusConfirmed)
	if err != nil {
		logger.Warn("インデックス再構築に失敗",
			zap.String("spot_id", spotID),
			zap.Error(err),
		)
		return
	}
	s.index.Rebuild(spotID, rows)
}

// lookupActiveSpot は稼働中のスポットを取得する
// 存在しない場合も稼働停止中の場合も SpotNotFound として扱う
func (s *ReservationService) lookupActiveSpot(ctx context.Context, id string) (*spot.ParkingSpot, error) {
	sp, err := s.directory.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sp.Active {
		return nil, spot.ErrSpotNotFound
	}
	return sp, nil
}

func (s *ReservationService) validateRange(rng reservation.TimeRange, now time.Time) error {
	if err := rng.Validate(); err != nil {
		return err
	}
	if rng.Start.Before(now) {
		return reservation.ErrPastStart
	}
	if s.policy.MaxDuration > 0 && rng.Duration() > s.policy.MaxDuration {
		return reservation.ErrDurationTooLong
	}
	if s.policy.AdvanceWindow > 0 && rng.Start.After(now.Add(s.policy.AdvanceWindow)) {
		return reservation.ErrTooFarInAdvance
	}
	return nil
}

func (s *ReservationService) countOperation(operation, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ReservationsTotal.WithLabelValues(operation, result).Inc()
}

func (s *ReservationService) adjustConfirmedGauge(delta float64) {
	if s.metrics == nil {
		return
	}
	s.metrics.ConfirmedReservations.Add(delta)
}

func (s *ReservationService) observeLockWait(start time.Time, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.SpotLockWaitDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

func (s *ReservationService) observeLockFailure(start time.Time, err error) {
	switch {
	case errors.Is(err, lock.ErrLockTimeout):
		s.observeLockWait(start, "timeout")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.observeLockWait(start, "cancelled")
	}
}

// resultLabel はエラーをメトリクスの result ラベルへ対応付ける
func resultLabel(err error) string {
	var conflict *reservation.SlotConflictError
	switch {
	case errors.As(err, &conflict), errors.Is(err, reservation.ErrStatusConflict):
		return "conflict"
	case errors.Is(err, lock.ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, reservation.ErrAlreadyCancelled),
		errors.Is(err, reservation.ErrAlreadyCompleted),
		errors.Is(err, reservation.ErrNotConfirmed),
		errors.Is(err, spot.ErrVehicleTypeMismatch):
		return "rejected"
	default:
		return "error"
	}
}
