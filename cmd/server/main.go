// Package main is the server entry point.
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

	"github.com/gin-gonic/gin"

	"github.com/klenoapp/kleno-server/internal/cache"
	"github.com/klenoapp/kleno-server/internal/config"
	"github.com/klenoapp/kleno-server/internal/handler"
	"github.com/klenoapp/kleno-server/internal/middleware"
	"github.com/klenoapp/kleno-server/internal/model"
	"github.com/klenoapp/kleno-server/internal/repository"
	"github.com/klenoapp/kleno-server/internal/service"
	"github.com/klenoapp/kleno-server/internal/tracking"
	"github.com/klenoapp/kleno-server/internal/ws"
	"github.com/klenoapp/kleno-server/pkg/geocode"
	"github.com/klenoapp/kleno-server/pkg/jwt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load("./configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}

	if err := autoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		log.Fatalf("Failed to init redis: %v", err)
	}

	jwtService := jwt.NewJWTService(
		cfg.JWT.Secret,
		cfg.JWT.AccessExpire,
		cfg.JWT.RefreshExpire,
	)

	geocoder := geocode.NewClient(
		cfg.Geocode.Endpoint,
		cfg.Geocode.UserAgent,
		cfg.Geocode.Timeout,
	)

	// Repository layer
	userRepo := repository.NewUserRepository(db)
	houseRepo := repository.NewHouseRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	broadcastRepo := repository.NewBroadcastRepository(db)

	// Service layer
	authService := service.NewAuthService(userRepo, redisCache, jwtService)
	userService := service.NewUserService(userRepo)
	houseService := service.NewHouseService(houseRepo, userRepo)
	trackingService := service.NewTrackingService(
		sessionRepo,
		houseRepo,
		userRepo,
		redisCache,
		trackingConfig(cfg),
		cfg.Tracking.ResumeRateLimit,
		cfg.Tracking.ResumeRateWindow,
	)
	broadcastService := service.NewBroadcastService(
		broadcastRepo,
		userRepo,
		houseRepo,
		geocoder,
		cfg.Tracking.BroadcastDailyLimit,
	)
	broadcastService.SetSink(service.LogSink{})

	// WebSocket hub for trip watchers
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	wsHub := ws.NewHub(redisCache)
	go wsHub.Run(hubCtx)
	trackingService.SetNotifier(wsHub)

	// Handler layer
	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	houseHandler := handler.NewHouseHandler(houseService)
	trackingHandler := handler.NewTrackingHandler(trackingService)
	broadcastHandler := handler.NewBroadcastHandler(broadcastService)
	wsHandler := ws.NewHandler(wsHub, trackingService, cfg.JWT.Secret)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.CORSMiddleware(middleware.DefaultCORSConfig()))

	registerRoutes(router, jwtService, redisCache, authHandler, userHandler, houseHandler, trackingHandler, broadcastHandler, wsHandler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	hubCancel()

	if err := redisCache.Close(); err != nil {
		log.Printf("Failed to close redis: %v", err)
	}

	log.Println("Server exited")
}

// initDatabase opens MySQL and configures the connection pool.
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		cfg.MySQL.Username,
		cfg.MySQL.Password,
		cfg.MySQL.Host,
		cfg.MySQL.Port,
		cfg.MySQL.Database,
		cfg.MySQL.Charset,
	)

	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.Server.Mode == "release" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MySQL.MaxLifetime) * time.Second)

	log.Println("Database connected successfully")
	return db, nil
}

// autoMigrate keeps the schema in sync with the models.
func autoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	if err := db.AutoMigrate(
		&model.User{},
		&model.BoardingHouse{},
		&model.TrackingSession{},
		&model.Breadcrumb{},
		&model.TrackingAlert{},
		&model.BubbleEvent{},
		&model.BroadcastAlert{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	log.Println("Database migrations completed")
	return nil
}

// trackingConfig maps the loaded configuration onto the engine constants.
func trackingConfig(cfg *config.Config) tracking.Config {
	return tracking.Config{
		InitialRadiusFloorKm:  cfg.Tracking.InitialRadiusFloorKm,
		InitialRadiusMarginKm: cfg.Tracking.InitialRadiusMarginKm,
		MinRadiusKm:           cfg.Tracking.MinRadiusKm,
		ShrinkStepKm:          cfg.Tracking.ShrinkStepKm,
		ShrinkIntervalMin:     cfg.Tracking.ShrinkIntervalMin,
		SafetyMarginKm:        cfg.Tracking.SafetyMarginKm,
		LateralAllowanceRatio: cfg.Tracking.LateralAllowanceRatio,
		HardDeviationKm:       cfg.Tracking.HardDeviationKm,
	}
}

// registerRoutes mounts every route group.
func registerRoutes(
	router *gin.Engine,
	jwtService *jwt.JWTService,
	redisCache *cache.RedisCache,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	houseHandler *handler.HouseHandler,
	trackingHandler *handler.TrackingHandler,
	broadcastHandler *handler.BroadcastHandler,
	wsHandler *ws.Handler,
) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Auth (no login required)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)
	}

	// Profile and stored location
	users := v1.Group("/users")
	users.Use(middleware.AuthMiddleware(jwtService, redisCache))
	{
		users.GET("/me", userHandler.GetProfile)
		users.PUT("/me", userHandler.UpdateProfile)
		users.GET("/me/location", userHandler.GetLocation)
		users.PUT("/me/location", userHandler.UpdateLocation)
	}

	// Boarding houses
	houses := v1.Group("/houses")
	houses.Use(middleware.AuthMiddleware(jwtService, redisCache))
	{
		houses.GET("/nearby", houseHandler.Nearby)
		houses.GET("/:id", houseHandler.GetHouse)
		houses.GET("/:id/navigation", houseHandler.Navigation)
	}

	// Trip tracking
	trips := v1.Group("/trips")
	trips.Use(middleware.AuthMiddleware(jwtService, redisCache))
	{
		trips.POST("", middleware.PremiumMiddleware(), trackingHandler.StartTrip)
		trips.GET("", trackingHandler.ListTrips)
		trips.GET("/:session_id", trackingHandler.GetTrip)
		trips.POST("/:session_id/resume", middleware.PremiumMiddleware(), trackingHandler.ResumeTrip)
		trips.POST("/:session_id/complete", trackingHandler.CompleteTrip)
		trips.POST("/:session_id/cancel", trackingHandler.CancelTrip)
	}

	// Landlord broadcast alerts
	alerts := v1.Group("/alerts")
	alerts.Use(middleware.AuthMiddleware(jwtService, redisCache))
	{
		alerts.POST("/broadcast", middleware.PremiumMiddleware(), broadcastHandler.SendBroadcast)
		alerts.GET("/recent", broadcastHandler.RecentBroadcasts)
	}

	// WebSocket trip watching
	wsHandler.RegisterRoutes(router)
}
