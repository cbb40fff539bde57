package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/kangxxie/go-parking-reservation/internal/domain/reservation"
	"github.com/kangxxie/go-parking-reservation/internal/domain/spot"
	"github.com/kangxxie/go-parking-reservation/internal/lock"
	"github.com/kangxxie/go-parking-reservation/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
// ハンドラーはドメインエラーをそのまま返してよく、ここでHTTPステータスへ変換する
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		code    int
		message string
	)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	} else {
		code = statusFromError(err)
		message = err.Error()
	}

	// 5xx エラーの場合のみエラーログを出力
	if code >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	if err := c.JSON(code, ErrorResponse{
		Error: message,
		Code:  code,
	}); err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}

// statusFromError はドメインエラーをHTTPステータスへ対応付ける
func statusFromError(err error) int {
	var conflict *reservation.SlotConflictError
	switch {
	case errors.Is(err, reservation.ErrInvalidRange),
		errors.Is(err, reservation.ErrPastStart),
		errors.Is(err, reservation.ErrDurationTooLong),
		errors.Is(err, reservation.ErrTooFarInAdvance),
		errors.Is(err, reservation.ErrSpotIDRequired),
		errors.Is(err, reservation.ErrUserIDRequired),
		errors.Is(err, spot.ErrInvalidVehicleType),
		errors.Is(err, spot.ErrVehicleTypeMismatch):
		return http.StatusBadRequest
	case errors.Is(err, reservation.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, reservation.ErrNotFound),
		errors.Is(err, spot.ErrSpotNotFound):
		return http.StatusNotFound
	case errors.As(err, &conflict),
		errors.Is(err, reservation.ErrStatusConflict),
		errors.Is(err, reservation.ErrAlreadyCancelled),
		errors.Is(err, reservation.ErrAlreadyCompleted),
		errors.Is(err, reservation.ErrNotConfirmed):
		return http.StatusConflict
	case errors.Is(err, lock.ErrLockTimeout):
		// リトライ可能なエラーとして 503 を返す
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
