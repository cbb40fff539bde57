package reservation

import (
	"context"
	"time"
)

// Repository は予約の永続化を抽象化するインターフェース
// インメモリのインデックスはこのストアから再構築される派生キャッシュであり、
// 永続化された予約レコードが常に信頼できる唯一の情報源となる
type Repository interface {
	// Insert は新しい予約レコードを永続化する
	Insert(ctx context.Context, r *Reservation) error

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Reservation, error)

	// ListBySpot はスポットの予約一覧を取得する（status が空なら全状態）
	ListBySpot(ctx context.Context, spotID string, status Status) ([]*Reservation, error)

	// ListByUser はユーザーの予約一覧を取得する
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Reservation, error)

	// UpdateStatus は期待する現在状態を条件に状態を更新する
	// 現在状態が expected と異なる場合は ErrStatusConflict を返す
	// （プロセス内ロックの下をくぐる別プロセスの更新に対する安全網）
	UpdateStatus(ctx context.Context, id string, next, expected Status, now time.Time) error

	// Reschedule はスポット・時間帯・料金を更新する
	// 状態が expected と異なる場合は ErrStatusConflict を返す
	Reschedule(ctx context.Context, r *Reservation, expected Status) error

	// ListConfirmed は確定済みの予約を全件取得する（インデックス再構築用）
	ListConfirmed(ctx context.Context) ([]*Reservation, error)

	// ListConfirmedEndedBefore は終了時刻が t より前の確定予約を取得する
	ListConfirmedEndedBefore(ctx context.Context, t time.Time) ([]*Reservation, error)

	// Delete は予約レコードを削除する
	Delete(ctx context.Context, id string) error
}
