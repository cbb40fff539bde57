package spot

import "context"

// Directory はスポット台帳への読み取りアクセスを抽象化する
// スポットの登録・編集は管理側コラボレーターの責務であり、
// 予約エンジンからは参照のみを行う
type Directory interface {
	// GetByID はIDからスポットを取得する
	// 存在しない場合は ErrSpotNotFound を返す
	GetByID(ctx context.Context, id string) (*ParkingSpot, error)

	// ListActiveByCity は都市内の稼働中スポットを車種で絞り込んで取得する
	ListActiveByCity(ctx context.Context, cityID string, vt VehicleType) ([]*ParkingSpot, error)
}
