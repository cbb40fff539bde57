package reservation

import (
	"time"

	"github.com/google/uuid"
)

// Status は予約の状態を表す
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Reservation は駐車スポットの予約エンティティを表す
type Reservation struct {
	ID         string
	SpotID     string
	UserID     string
	Range      TimeRange
	Status     Status
	PriceCents int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewReservation は新しい予約を作成する
// IDは確定前にインデックスへ登録できるよう、この時点で採番する
func NewReservation(spotID, userID string, r TimeRange, priceCents int64, now time.Time) *Reservation {
	return &Reservation{
		ID:         uuid.New().String(),
		SpotID:     spotID,
		UserID:     userID,
		Range:      r,
		Status:     StatusPending,
		PriceCents: priceCents,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsConfirmed は予約が確定済みかを返す
func (r *Reservation) IsConfirmed() bool {
	return r.Status == StatusConfirmed
}

// Confirm は予約を確定する
func (r *Reservation) Confirm(now time.Time) error {
	if r.Status != StatusPending {
		return ErrStatusConflict
	}
	r.Status = StatusConfirmed
	r.UpdatedAt = now
	return nil
}

// Cancel は予約をキャンセルする
func (r *Reservation) Cancel(now time.Time) error {
	switch r.Status {
	case StatusCancelled:
		return ErrAlreadyCancelled
	case StatusCompleted:
		return ErrAlreadyCompleted
	case StatusConfirmed:
		r.Status = StatusCancelled
		r.UpdatedAt = now
		return nil
	default:
		return ErrNotConfirmed
	}
}

// Complete は終了済みの確定予約を完了状態にする
func (r *Reservation) Complete(now time.Time) error {
	if r.Status != StatusConfirmed {
		return ErrNotConfirmed
	}
	r.Status = StatusCompleted
	r.UpdatedAt = now
	return nil
}

// Validate は予約の検証を行う
func (r *Reservation) Validate() error {
	if r.SpotID == "" {
		return ErrSpotIDRequired
	}
	if r.UserID == "" {
		return ErrUserIDRequired
	}
	return r.Range.Validate()
}
