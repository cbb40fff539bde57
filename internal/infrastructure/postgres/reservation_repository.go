package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kangxxie/go-parking-reservation/internal/domain/reservation"
)

// PostgreSQL のエラーコード
const (
	pgCodeUniqueViolation    = "23505"
	pgCodeExclusionViolation = "23P01"
)

type reservationRow struct {
	ID         string    `db:"id"`
	SpotID     string    `db:"spot_id"`
	UserID     string    `db:"user_id"`
	Status     string    `db:"status"`
	StartTime  time.Time `db:"start_time"`
	EndTime    time.Time `db:"end_time"`
	PriceCents int64     `db:"price_cents"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r *reservationRow) toEntity() *reservation.Reservation {
	return &reservation.Reservation{
		ID:         r.ID,
		SpotID:     r.SpotID,
		UserID:     r.UserID,
		Status:     reservation.Status(r.Status),
		Range:      reservation.NewTimeRange(r.StartTime, r.EndTime),
		PriceCents: r.PriceCents,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

const reservationColumns = `id, spot_id, user_id, status, start_time, end_time, price_cents, created_at, updated_at`

// ReservationRepository は予約の PostgreSQL リポジトリ
// confirmed 状態の予約に対する排他制約（スポット×期間）がストア側の
// 最終防壁となり、複数プロセス構成でもプロセス内ロックの下を
// くぐった二重予約を拒否する
type ReservationRepository struct{ db *sqlx.DB }

func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Insert(ctx context.Context, res *reservation.Reservation) error {
	query := `INSERT INTO reservations (id, spot_id, user_id, status, start_time, end_time, price_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query,
		res.ID, res.SpotID, res.UserID, string(res.Status),
		res.Range.Start, res.Range.End, res.PriceCents,
		res.CreatedAt, res.UpdatedAt,
	)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && string(pgErr.Code) == pgCodeExclusionViolation {
			return &reservation.SlotConflictError{}
		}
		return fmt.Errorf("予約作成に失敗: %w", err)
	}
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	var row reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reservation.ErrNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *ReservationRepository) ListBySpot(ctx context.Context, spotID string, status reservation.Status) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	var err error
	if status == "" {
		query := `SELECT ` + reservationColumns + ` FROM reservations WHERE spot_id = $1 ORDER BY start_time`
		err = r.db.SelectContext(ctx, &rows, query, spotID)
	} else {
		query := `SELECT ` + reservationColumns + ` FROM reservations WHERE spot_id = $1 AND status = $2 ORDER BY start_time`
		err = r.db.SelectContext(ctx, &rows, query, spotID, string(status))
	}
	if err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	return toEntities(rows), nil
}

func (r *ReservationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	return toEntities(rows), nil
}

// UpdateStatus は現在状態が expected の場合のみ状態を更新する
// 更新対象が0行の場合、レコードの有無で NotFound と StatusConflict を区別する
func (r *ReservationRepository) UpdateStatus(ctx context.Context, id string, next, expected reservation.Status, now time.Time) error {
	query := `UPDATE reservations SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, string(next), now, id, string(expected))
	if err != nil {
		return fmt.Errorf("予約状態の更新に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return r.zeroRowsError(ctx, id)
	}
	return nil
}

// Reschedule は状態が expected の場合のみスポット・時間帯・料金を更新する
func (r *ReservationRepository) Reschedule(ctx context.Context, res *reservation.Reservation, expected reservation.Status) error {
	query := `UPDATE reservations SET spot_id = $1, start_time = $2, end_time = $3, price_cents = $4, updated_at = $5 WHERE id = $6 AND status = $7`
	result, err := r.db.ExecContext(ctx, query,
		res.SpotID, res.Range.Start, res.Range.End, res.PriceCents, res.UpdatedAt,
		res.ID, string(expected),
	)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && string(pgErr.Code) == pgCodeExclusionViolation {
			return &reservation.SlotConflictError{}
		}
		return fmt.Errorf("予約変更に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return r.zeroRowsError(ctx, res.ID)
	}
	return nil
}

func (r *ReservationRepository) ListConfirmed(ctx context.Context) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE status = 'confirmed' ORDER BY spot_id, start_time`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("確定予約の取得に失敗: %w", err)
	}
	return toEntities(rows), nil
}

func (r *ReservationRepository) ListConfirmedEndedBefore(ctx context.Context, t time.Time) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE status = 'confirmed' AND end_time <= $1 ORDER BY end_time`
	if err := r.db.SelectContext(ctx, &rows, query, t); err != nil {
		return nil, fmt.Errorf("終了済み予約の取得に失敗: %w", err)
	}
	return toEntities(rows), nil
}

func (r *ReservationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("予約削除に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return reservation.ErrNotFound
	}
	return nil
}

// zeroRowsError は条件付きUPDATEが0行だった原因を調べる
func (r *ReservationRepository) zeroRowsError(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM reservations WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("予約の存在確認に失敗: %w", err)
	}
	if !exists {
		return reservation.ErrNotFound
	}
	return reservation.ErrStatusConflict
}

func toEntities(rows []reservationRow) []*reservation.Reservation {
	result := make([]*reservation.Reservation, len(rows))
	for i := range rows {
		result[i] = rows[i].toEntity()
	}
	return result
}

var _ reservation.Repository = (*ReservationRepository)(nil)
