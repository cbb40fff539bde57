package reservation

import (
	"errors"
	"fmt"
	"time"
)

// Reservation ドメインのエラー定義
var (
	ErrInvalidRange     = errors.New("時間帯が不正です")
	ErrPastStart        = errors.New("過去の時刻では予約できません")
	ErrDurationTooLong  = errors.New("予約時間が上限を超えています")
	ErrTooFarInAdvance  = errors.New("予約開始が受付期間より先です")
	ErrNotFound         = errors.New("予約が見つかりません")
	ErrNotOwner         = errors.New("予約の所有者ではありません")
	ErrNotConfirmed     = errors.New("予約は確定状態ではありません")
	ErrAlreadyCancelled = errors.New("予約は既にキャンセルされています")
	ErrAlreadyCompleted = errors.New("予約は既に完了しています")
	ErrStatusConflict   = errors.New("予約の状態が他の処理によって変更されました")
	ErrSpotIDRequired   = errors.New("駐車スポットIDは必須です")
	ErrUserIDRequired   = errors.New("ユーザーIDは必須です")
)

// SlotConflictError は時間帯の競合を表すエラー
// 呼び出し側の診断用に競合した予約のIDと時間帯を保持する
type SlotConflictError struct {
	ReservationID string
	Range         TimeRange
}

func (e *SlotConflictError) Error() string {
	if e.ReservationID == "" {
		return "指定時間帯は既に予約されています"
	}
	return fmt.Sprintf("指定時間帯は既に予約されています（予約 %s: %s〜%s）",
		e.ReservationID,
		e.Range.Start.Format(time.RFC3339),
		e.Range.End.Format(time.RFC3339),
	)
}
