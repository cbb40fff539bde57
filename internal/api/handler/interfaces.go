package handler

import (
	"context"
	"time"

	"github.com/kangxxie/go-parking-reservation/internal/application"
	"github.com/kangxxie/go-parking-reservation/internal/availability"
	"github.com/kangxxie/go-parking-reservation/internal/domain/reservation"
	"github.com/kangxxie/go-parking-reservation/internal/domain/spot"
)

// ReservationServiceInterface は予約エンジンのインターフェース
type ReservationServiceInterface interface {
	CreateReservation(ctx context.Context, input application.CreateReservationInput) (*reservation.Reservation, error)
	CancelReservation(ctx context.Context, id, requestingUserID string) (*reservation.Reservation, error)
	UpdateReservation(ctx context.Context, input application.UpdateReservationInput) (*reservation.Reservation, error)
	GetReservation(ctx context.Context, id string) (*reservation.Reservation, error)
	ListUserReservations(ctx context.Context, userID string, limit, offset int) ([]*reservation.Reservation, error)
	CheckAvailability(ctx context.Context, spotID string, start, end time.Time) (bool, []availability.Entry, error)
	ListAvailableSpots(ctx context.Context, cityID string, start, end time.Time, vehicleType string) ([]string, error)
}

// SpotServiceInterface はスポット参照サービスのインターフェース
type SpotServiceInterface interface {
	GetSpot(ctx context.Context, id string) (*spot.ParkingSpot, error)
	ListCitySpots(ctx context.Context, cityID, vehicleType string) ([]*spot.ParkingSpot, error)
}
