package spot

import "time"

// VehicleType はスポットが受け入れ可能な車種を表す
type VehicleType string

const (
	VehicleTypeCar VehicleType = "car"
	VehicleTypeBus VehicleType = "bus"
)

// ParseVehicleType は文字列から車種を解析する
func ParseVehicleType(s string) (VehicleType, error) {
	switch VehicleType(s) {
	case VehicleTypeCar, VehicleTypeBus:
		return VehicleType(s), nil
	default:
		return "", ErrInvalidVehicleType
	}
}

// ParkingSpot は駐車スポットエンティティを表す
// 稼働フラグと料金以外は不変で、変更はスポット管理側の責務
type ParkingSpot struct {
	ID              string
	CityID          string
	Label           string
	Latitude        float64
	Longitude       float64
	VehicleType     VehicleType
	HourlyRateCents int64
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CanAccept はスポットが指定車種を受け入れ可能かを返す
func (s *ParkingSpot) CanAccept(vt VehicleType) bool {
	return s.VehicleType == vt
}

// PriceFor は利用時間に対する料金（セント）を計算する
// 時間割料金を分単位で按分し、端数は切り捨てる
func (s *ParkingSpot) PriceFor(d time.Duration) int64 {
	minutes := int64(d / time.Minute)
	return s.HourlyRateCents * minutes / 60
}

// Validate はスポットの検証を行う
func (s *ParkingSpot) Validate() error {
	if s.CityID == "" {
		return ErrCityIDRequired
	}
	if _, err := ParseVehicleType(string(s.VehicleType)); err != nil {
		return err
	}
	if s.HourlyRateCents < 0 {
		return ErrInvalidHourlyRate
	}
	return nil
}
