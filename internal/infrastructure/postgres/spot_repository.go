package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kangxxie/go-parking-reservation/internal/domain/spot"
)

type spotRow struct {
	ID              string    `db:"id"`
	CityID          string    `db:"city_id"`
	Label           string    `db:"label"`
	Latitude        float64   `db:"latitude"`
	Longitude       float64   `db:"longitude"`
	VehicleType     string    `db:"vehicle_type"`
	HourlyRateCents int64     `db:"hourly_rate_cents"`
	Active          bool      `db:"active"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r *spotRow) toEntity() *spot.ParkingSpot {
	return &spot.ParkingSpot{
		ID:              r.ID,
		CityID:          r.CityID,
		Label:           r.Label,
		Latitude:        r.Latitude,
		Longitude:       r.Longitude,
		VehicleType:     spot.VehicleType(r.VehicleType),
		HourlyRateCents: r.HourlyRateCents,
		Active:          r.Active,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

const spotColumns = `id, city_id, label, latitude, longitude, vehicle_type, hourly_rate_cents, active, created_at, updated_at`

// SpotRepository はスポット台帳の PostgreSQL リポジトリ
type SpotRepository struct{ db *sqlx.DB }

func NewSpotRepository(db *sqlx.DB) *SpotRepository {
	return &SpotRepository{db: db}
}

func (r *SpotRepository) GetByID(ctx context.Context, id string) (*spot.ParkingSpot, error) {
	var row spotRow
	query := `SELECT ` + spotColumns + ` FROM parking_spots WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, spot.ErrSpotNotFound
		}
		return nil, fmt.Errorf("スポット取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *SpotRepository) ListActiveByCity(ctx context.Context, cityID string, vt spot.VehicleType) ([]*spot.ParkingSpot, error) {
	var rows []spotRow
	query := `SELECT ` + spotColumns + ` FROM parking_spots WHERE city_id = $1 AND vehicle_type = $2 AND active ORDER BY id`
	if err := r.db.SelectContext(ctx, &rows, query, cityID, string(vt)); err != nil {
		return nil, fmt.Errorf("スポット一覧取得に失敗: %w", err)
	}
	spots := make([]*spot.ParkingSpot, len(rows))
	for i := range rows {
		spots[i] = rows[i].toEntity()
	}
	return spots, nil
}

var _ spot.Directory = (*SpotRepository)(nil)
