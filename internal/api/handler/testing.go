package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/kangxxie/go-parking-reservation/internal/api"
)

// NewTestEcho はテスト用のEchoインスタンスを作成する
func NewTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	return e
}

// newEchoWithHandler はルートを1つ登録したテスト用Echoを作成する
// エラーハンドラー経由のステータスコードを検証する場合に使う
func newEchoWithHandler(method, path string, h echo.HandlerFunc) *echo.Echo {
	e := NewTestEcho()
	e.Add(method, path, h)
	return e
}
