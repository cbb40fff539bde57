package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kangxxie/go-parking-reservation/internal/availability"
)

// AvailabilityHandler は空き照会のハンドラー
type AvailabilityHandler struct {
	service ReservationServiceInterface
}

func NewAvailabilityHandler(s ReservationServiceInterface) *AvailabilityHandler {
	return &AvailabilityHandler{service: s}
}

type ConflictResponse struct {
	ReservationID string    `json:"reservation_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

type SpotAvailabilityResponse struct {
	SpotID    string             `json:"spot_id"`
	StartTime time.Time          `json:"start_time"`
	EndTime   time.Time          `json:"end_time"`
	Available bool               `json:"available"`
	Conflicts []ConflictResponse `json:"conflicts,omitempty"`
}

type AvailableSpotsResponse struct {
	CityID      string    `json:"city_id"`
	VehicleType string    `json:"vehicle_type"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	SpotIDs     []string  `json:"spot_ids"`
}

// CheckSpot godoc
// @Summary スポットの空きを照会
// @Description 指定時間帯にスポットが空いているかを返します
// @Tags availability
// @Produce json
// @Param id path string true "スポットID"
// @Param start query string true "開始時刻（RFC3339）"
// @Param end query string true "終了時刻（RFC3339）"
// @Success 200 {object} SpotAvailabilityResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /spots/{id}/availability [get]
func (h *AvailabilityHandler) CheckSpot(c echo.Context) error {
	spotID := c.Param("id")
	start, end, err := parseWindow(c)
	if err != nil {
		return err
	}
	free, conflicts, err := h.service.CheckAvailability(c.Request().Context(), spotID, start, end)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SpotAvailabilityResponse{
		SpotID:    spotID,
		StartTime: start.UTC(),
		EndTime:   end.UTC(),
		Available: free,
		Conflicts: toConflictResponses(conflicts),
	})
}

// ListCitySpots godoc
// @Summary 都市内の空きスポットを照会
// @Description 指定時間帯に空いている稼働中スポットのID一覧を返します
// @Tags availability
// @Produce json
// @Param id path string true "都市ID"
// @Param start query string true "開始時刻（RFC3339）"
// @Param end query string true "終了時刻（RFC3339）"
// @Param vehicle_type query string true "車種（car または bus）"
// @Success 200 {object} AvailableSpotsResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /cities/{id}/spots [get]
func (h *AvailabilityHandler) ListCitySpots(c echo.Context) error {
	cityID := c.Param("id")
	vehicleType := c.QueryParam("vehicle_type")
	start, end, err := parseWindow(c)
	if err != nil {
		return err
	}
	ids, err := h.service.ListAvailableSpots(c.Request().Context(), cityID, start, end, vehicleType)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AvailableSpotsResponse{
		CityID:      cityID,
		VehicleType: vehicleType,
		StartTime:   start.UTC(),
		EndTime:     end.UTC(),
		SpotIDs:     ids,
	})
}

func parseWindow(c echo.Context) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, c.QueryParam("start"))
	if err != nil {
		return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "start はRFC3339形式で指定してください")
	}
	end, err := time.Parse(time.RFC3339, c.QueryParam("end"))
	if err != nil {
		return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "end はRFC3339形式で指定してください")
	}
	return start, end, nil
}

func toConflictResponses(entries []availability.Entry) []ConflictResponse {
	if len(entries) == 0 {
		return nil
	}
	resp := make([]ConflictResponse, len(entries))
	for i, e := range entries {
		resp[i] = ConflictResponse{
			ReservationID: e.ReservationID,
			StartTime:     e.Range.Start,
			EndTime:       e.Range.End,
		}
	}
	return resp
}
