package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kangxxie/go-parking-reservation/internal/domain/spot"
)

// SpotHandler はスポット参照のハンドラー
type SpotHandler struct {
	service SpotServiceInterface
}

func NewSpotHandler(s SpotServiceInterface) *SpotHandler {
	return &SpotHandler{service: s}
}

type SpotResponse struct {
	ID              string    `json:"id" example:"milan-p1"`
	CityID          string    `json:"city_id" example:"milan"`
	Label           string    `json:"label" example:"Piazza Duomo P1"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	VehicleType     string    `json:"vehicle_type" example:"car"`
	HourlyRateCents int64     `json:"hourly_rate_cents" example:"200"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

func toSpotResponse(s *spot.ParkingSpot) SpotResponse {
	return SpotResponse{
		ID:              s.ID,
		CityID:          s.CityID,
		Label:           s.Label,
		Latitude:        s.Latitude,
		Longitude:       s.Longitude,
		VehicleType:     string(s.VehicleType),
		HourlyRateCents: s.HourlyRateCents,
		Active:          s.Active,
		CreatedAt:       s.CreatedAt,
	}
}

// GetByID godoc
// @Summary スポットを取得
// @Tags spots
// @Produce json
// @Param id path string true "スポットID"
// @Success 200 {object} SpotResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /spots/{id} [get]
func (h *SpotHandler) GetByID(c echo.Context) error {
	s, err := h.service.GetSpot(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSpotResponse(s))
}
