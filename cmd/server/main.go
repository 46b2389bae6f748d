package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafHustle/vrs-live-final/internal/api"
	"github.com/DeafHustle/vrs-live-final/internal/config"
	"github.com/DeafHustle/vrs-live-final/internal/repository"
	"github.com/DeafHustle/vrs-live-final/internal/service"
	"github.com/DeafHustle/vrs-live-final/internal/websocket"
	"github.com/DeafHustle/vrs-live-final/pkg/database"
	"github.com/DeafHustle/vrs-live-final/pkg/distributed"
	"github.com/DeafHustle/vrs-live-final/pkg/jwt"
	"github.com/DeafHustle/vrs-live-final/pkg/logger"
	"github.com/DeafHustle/vrs-live-final/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
)

const (
	outboxName       = "session_records"
	providerTokenTTL = 24 * time.Hour
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 로거 초기화
	logger.Init(cfg.LogLevel, cfg.Env)
	defer logger.Sync()

	logger.Info("Starting VRS Live backend",
		"port", cfg.Port,
		"env", cfg.Env,
		"storage", cfg.StorageBackend,
	)

	ctx := context.Background()

	// 방 카탈로그
	roomList, err := config.LoadRooms(cfg.RoomsFile)
	if err != nil {
		logger.Fatal("Failed to load rooms", "error", err)
	}
	rooms, err := service.NewRoomRegistry(roomList)
	if err != nil {
		logger.Fatal("Invalid room catalog", "error", err)
	}
	logger.Info("Rooms loaded", "count", len(roomList), "file", cfg.RoomsFile)

	billing, err := service.NewBillingEngine(service.Split{
		InterpreterPct: cfg.SplitInterpreterPct,
		PlatformPct:    cfg.SplitPlatformPct,
	}, cfg.BillingMinMinutes)
	if err != nil {
		logger.Fatal("Invalid billing split", "error", err)
	}

	// Provider 자격 검증
	var jwtManager *jwt.JWTManager
	var gate service.ProviderGate = service.OpenProviderGate{}
	if cfg.ProviderJWTSecret != "" {
		jwtManager = jwt.NewJWTManager(cfg.ProviderJWTSecret, providerTokenTTL)
		gate = service.NewJWTProviderGate(jwtManager)
		logger.Info("Provider verification enabled")
	} else {
		logger.Warn("PROVIDER_JWT_SECRET not set, providers join without verification")
	}

	// 세션 저장소
	sessions, closeStore := openSessionRepository(ctx, cfg)
	defer closeStore()

	// Redis outbox / 이벤트 발행 (선택)
	var outbox service.Outbox
	var publisher service.Publisher
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Invalid REDIS_URL", "error", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal("Failed to connect to redis", "error", err)
		}

		outbox = distributed.NewRedisOutbox(rdb, outboxName, 0)
		publisher = distributed.NewEventPublisher(rdb, distributed.SessionsCompletedChannel, logger.Named("publisher"))
		logger.Info("Redis outbox enabled", "channel", distributed.SessionsCompletedChannel)
	}

	recorder := service.NewSessionRecorder(sessions, outbox, publisher,
		cfg.RecorderInterval, cfg.RecorderMaxRetries, logger.Named("recorder"))
	recorder.Start()

	// 매칭 서비스와 WebSocket Hub
	matcher := service.NewMatchingService(rooms, service.NewWaitingPool(), billing, gate, recorder, logger.Named("matchmaking"))
	hub := websocket.NewHub(logger.Named("hub"))
	matcher.SetNotifier(hub)

	httpLimiter := ratelimit.NewRateLimiter(int64(cfg.HTTPRateBurst), cfg.HTTPRateLimit)
	defer httpLimiter.Close()

	router := api.SetupRouter(cfg, api.Services{
		Matcher:     matcher,
		Hub:         hub,
		Sessions:    sessions,
		JWTManager:  jwtManager,
		HTTPLimiter: httpLimiter,
		Logger:      logger.Named("ws"),
	})

	// 서버 설정
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 서버 시작 (고루틴)
	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown 대기
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 10초 타임아웃으로 종료
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// 연결을 닫아 진행 중인 세션을 정산한 뒤 남은 기록 저장
	if err := hub.CloseAll(shutdownCtx); err != nil {
		logger.Error("Failed to close all connections", "error", err)
	}
	recorder.Stop()

	logger.Info("Server exited")
}

// openSessionRepository 설정된 저장소 연결. 반환된 함수로 연결을 닫는다.
func openSessionRepository(ctx context.Context, cfg *config.Config) (repository.SessionRepository, func()) {
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}
		repo := repository.NewPostgresSessionRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to ensure schema", "error", err)
		}
		return repo, func() { _ = db.Close() }

	case config.StorageMongo:
		client, err := database.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			logger.Fatal("Failed to connect to mongo", "error", err)
		}
		repo := repository.NewMongoSessionRepository(client.Database(cfg.MongoDatabase))
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Fatal("Failed to ensure indexes", "error", err)
		}
		return repo, func() { _ = client.Disconnect(context.Background()) }

	default:
		logger.Warn("Using in-memory session storage, records are lost on restart")
		return repository.NewMemorySessionRepository(), func() {}
	}
}
