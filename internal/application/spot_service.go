package application

import (
	"context"

	"github.com/kangxxie/go-parking-reservation/internal/domain/spot"
)

// SpotService はスポット台帳への参照を提供する
// スポットの登録・編集は本システムの範囲外で、参照のみを扱う
type SpotService struct {
	directory spot.Directory
}

// NewSpotService は SpotService を作成する
func NewSpotService(directory spot.Directory) *SpotService {
	return &SpotService{directory: directory}
}

// GetSpot はIDからスポットを取得する
func (s *SpotService) GetSpot(ctx context.Context, id string) (*spot.ParkingSpot, error) {
	return s.directory.GetByID(ctx, id)
}

// ListCitySpots は都市内の稼働中スポットを車種で絞り込んで取得する
func (s *SpotService) ListCitySpots(ctx context.Context, cityID, vehicleType string) ([]*spot.ParkingSpot, error) {
	vt, err := spot.ParseVehicleType(vehicleType)
	if err != nil {
		return nil, err
	}
	return s.directory.ListActiveByCity(ctx, cityID, vt)
}
