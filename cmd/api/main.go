package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kangxxie/go-parking-reservation/internal/api"
	"github.com/kangxxie/go-parking-reservation/internal/api/handler"
	custommw "github.com/kangxxie/go-parking-reservation/internal/api/middleware"
	"github.com/kangxxie/go-parking-reservation/internal/application"
	"github.com/kangxxie/go-parking-reservation/internal/availability"
	"github.com/kangxxie/go-parking-reservation/internal/config"
	"github.com/kangxxie/go-parking-reservation/internal/infrastructure/postgres"
	redisinfra "github.com/kangxxie/go-parking-reservation/internal/infrastructure/redis"
	"github.com/kangxxie/go-parking-reservation/internal/lock"
	"github.com/kangxxie/go-parking-reservation/internal/pkg/clock"
	"github.com/kangxxie/go-parking-reservation/internal/pkg/logger"
	"github.com/kangxxie/go-parking-reservation/internal/pkg/metrics"
	"github.com/kangxxie/go-parking-reservation/internal/worker"
)

func main() {
	// ローカル開発用の .env（存在しなくてもよい）
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Set(logger.NewLogger(cfg.Server.Env))
	defer logger.Sync()

	m := metrics.Init()

	// PostgreSQL
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("データベース接続に失敗", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.RunMigrations(db.DB, cfg.Database.MigrationsPath); err != nil {
		logger.Fatal("マイグレーションに失敗", zap.Error(err))
	}

	// Redis（任意。接続できない場合はキャッシュとスイープ排他なしで続行）
	var (
		cache       *redisinfra.AvailabilityCache
		lockManager *redisinfra.LockManager
	)
	if cfg.Redis.Enabled {
		client := redisinfra.NewClient(&cfg.Redis)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisinfra.Ping(pingCtx, client); err != nil {
			logger.Warn("Redisに接続できないため、キャッシュなしで起動します", zap.Error(err))
		} else {
			cache = redisinfra.NewAvailabilityCache(client, cfg.Redis.CacheTTL)
			lockManager = redisinfra.NewLockManager(client)
		}
		cancel()
	}

	// エンジンの組み立て
	reservationRepo := postgres.NewReservationRepository(db)
	spotRepo := postgres.NewSpotRepository(db)
	index := availability.NewIndex()
	guard := lock.NewSpotGuard(cfg.Reservation.LockWaitTimeout)

	reservationService := application.NewReservationService(
		reservationRepo,
		spotRepo,
		index,
		guard,
		cache,
		clock.System(),
		application.Policy{
			MaxDuration:   cfg.Reservation.MaxDuration,
			AdvanceWindow: cfg.Reservation.AdvanceWindow,
		},
		m,
	)
	spotService := application.NewSpotService(spotRepo)

	// インデックスはストアの派生キャッシュなので、起動時に再構築する
	rebuildCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := reservationService.RebuildIndex(rebuildCtx); err != nil {
		logger.Fatal("インデックス再構築に失敗", zap.Error(err))
	}
	cancel()

	// 完了スイープのスケジュール
	sweeper := worker.NewCompletedSweeper(reservationService, lockManager, time.Minute)
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Reservation.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		sweeper.RunOnce(ctx)
	}); err != nil {
		logger.Fatal("スイープのスケジュール登録に失敗", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	// HTTPサーバー
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	custommw.SetupMiddleware(e)
	e.Use(custommw.PrometheusMiddleware(m))

	reservationHandler := handler.NewReservationHandler(reservationService)
	availabilityHandler := handler.NewAvailabilityHandler(reservationService)
	spotHandler := handler.NewSpotHandler(spotService)
	healthHandler := handler.NewHealthHandler(db)

	v1 := e.Group("/api/v1")
	v1.GET("/health", healthHandler.Check)
	v1.GET("/ready", healthHandler.Ready)
	v1.POST("/reservations", reservationHandler.Create)
	v1.GET("/reservations", reservationHandler.ListForUser)
	v1.GET("/reservations/:id", reservationHandler.GetByID)
	v1.PUT("/reservations/:id", reservationHandler.Update)
	v1.POST("/reservations/:id/cancel", reservationHandler.Cancel)
	v1.GET("/spots/:id", spotHandler.GetByID)
	v1.GET("/spots/:id/availability", availabilityHandler.CheckSpot)
	v1.GET("/cities/:id/spots", availabilityHandler.ListCitySpots)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), custommw.MetricsBasicAuth())

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("サーバーシャットダウンエラー", zap.Error(err))
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}
