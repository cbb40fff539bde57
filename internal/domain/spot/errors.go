package spot

import "errors"

// ParkingSpot ドメインのエラー定義
var (
	ErrSpotNotFound        = errors.New("駐車スポットが見つかりません")
	ErrVehicleTypeMismatch = errors.New("車種がスポットの受け入れ車種と一致しません")
	ErrInvalidVehicleType  = errors.New("車種が不正です")
	ErrCityIDRequired      = errors.New("都市IDは必須です")
	ErrInvalidHourlyRate   = errors.New("時間料金が不正です")
)
