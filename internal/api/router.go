package api

import (
	"time"

	"github.com/DeafHustle/vrs-live-final/internal/api/handlers"
	"github.com/DeafHustle/vrs-live-final/internal/api/middleware"
	"github.com/DeafHustle/vrs-live-final/internal/config"
	"github.com/DeafHustle/vrs-live-final/internal/repository"
	"github.com/DeafHustle/vrs-live-final/internal/service"
	"github.com/DeafHustle/vrs-live-final/internal/websocket"
	"github.com/DeafHustle/vrs-live-final/pkg/jwt"
	"github.com/DeafHustle/vrs-live-final/pkg/ratelimit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services 라우터가 사용하는 의존성
type Services struct {
	Matcher     *service.MatchingService
	Hub         *websocket.Hub
	Sessions    repository.SessionRepository
	JWTManager  *jwt.JWTManager // nil 이면 수익 조회 인증 없음
	HTTPLimiter *ratelimit.RateLimiter
	Logger      *zap.Logger
}

// SetupRouter API 라우터 설정
func SetupRouter(cfg *config.Config, svc Services) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(cors.New(corsConfig(cfg.CORSAllowedOrigins)))

	// Handler 초기화
	healthHandler := handlers.NewHealthHandler(svc.Matcher, svc.Hub)
	roomHandler := handlers.NewRoomHandler(svc.Matcher)
	statsHandler := handlers.NewStatsHandler(svc.Sessions, svc.Matcher)
	wsHandler := handlers.NewWebSocketHandler(svc.Hub, svc.Matcher, websocket.Options{
		JoinRateCapacity: cfg.JoinRateCapacity,
		JoinRateRefill:   cfg.JoinRateRefill,
		AllowedOrigins:   cfg.CORSAllowedOrigins,
	}, svc.Logger)

	// Health check
	router.GET("/health", healthHandler.HealthCheck)

	// Prometheus
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := router.Group("/api/v1")
	if svc.HTTPLimiter != nil {
		v1.Use(middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Limiter:  svc.HTTPLimiter,
			Capacity: int64(cfg.HTTPRateBurst),
			KeyFunc:  middleware.IPKeyFunc,
		}))
	}
	{
		// WebSocket endpoint (참가자 식별은 join-room 에서)
		v1.GET("/ws", wsHandler.HandleWebSocket)

		v1.GET("/rooms", roomHandler.ListRooms)
		v1.GET("/pricing", roomHandler.GetPricing)
		v1.GET("/stats", statsHandler.GetStats)
		v1.GET("/sessions/:id", statsHandler.GetSession)

		earnings := v1.Group("/interpreters")
		if svc.JWTManager != nil {
			earnings.Use(middleware.Auth(svc.JWTManager))
		}
		{
			earnings.GET("/:identity/earnings", statsHandler.GetInterpreterEarnings)
		}
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	}
	return cfg
}
