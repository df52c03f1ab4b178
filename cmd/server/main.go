package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bitfantasy/cams/internal/cams/entity"
	"github.com/bitfantasy/cams/internal/cams/handler"
	"github.com/bitfantasy/cams/internal/cams/repository"
	"github.com/bitfantasy/cams/internal/cams/service"
	"github.com/bitfantasy/cams/internal/config"
	"github.com/bitfantasy/cams/internal/middleware"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting cams service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// 自动迁移
	if err := db.AutoMigrate(
		&entity.Asset{},
		&entity.ServiceTicket{},
		&entity.TicketAssetDetail{},
		&entity.DeliveryRecord{},
		&entity.ReturnRecord{},
		&entity.RepairWorkOrder{},
		&entity.MaintenanceTask{},
		&entity.MaintenanceAssetDetail{},
		&entity.ActivityLog{},
	); err != nil {
		zapLogger.Fatal("AutoMigrate failed", zap.Error(err))
	}

	// 初始化Redis
	rdb := initRedis(cfg.Redis)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		zapLogger.Warn("Redis unavailable, reconcile sweep will run without distributed lock", zap.Error(err))
	}

	// 初始化各层
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, db, rdb, cfg, zapLogger)
	handlers := handler.NewHandlers(services)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// 注册路由
	registerRoutes(router, handlers, cfg)

	// 后台对账纠偏
	reconcileCtx, stopReconcile := context.WithCancel(context.Background())
	defer stopReconcile()
	if cfg.Reconcile.Enabled {
		go services.Reconcile.Run(reconcileCtx, cfg.Reconcile.Interval)
	}

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // Disable for SSE long-lived connections
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")
	stopReconcile()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	// API v1
	v1 := r.Group("/api/v1")
	{
		// SSE 实时推送
		sseGroup := v1.Group("/sse")
		sseGroup.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			sseGroup.GET("/events", h.SSE.Stream)
		}

		// 需要认证的API
		api := v1.Group("")
		api.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			// 钞箱资产
			assets := api.Group("/assets")
			{
				assets.POST("", h.Asset.Register)
				assets.GET("", h.Asset.List)
				assets.POST("/availability", h.Asset.CheckAvailabilityBatch)
				assets.GET("/:id", h.Asset.Get)
				assets.DELETE("/:id", h.Asset.Delete)
				assets.GET("/:id/history", h.Asset.History)
				assets.GET("/:id/availability", h.Asset.CheckAvailability)
			}

			// 维修工单（服务票据）
			tickets := api.Group("/tickets")
			{
				tickets.POST("", h.Ticket.Create)
				tickets.GET("", h.Ticket.List)
				tickets.GET("/:id", h.Ticket.Get)
				tickets.DELETE("/:id", h.Ticket.Delete)
				tickets.POST("/:id/approve", h.Ticket.Approve)
				tickets.POST("/:id/evaluate", h.Ticket.EvaluateResolution)

				// 维修任务
				tickets.POST("/:id/work-orders", h.Repair.CreateFromTicket)

				// 物流
				tickets.POST("/:id/delivery", h.Shipment.CreateDelivery)
				tickets.POST("/:id/delivery/receive", h.Shipment.ConfirmDeliveryReceived)
				tickets.POST("/:id/return", h.Shipment.CreateReturn)
				tickets.POST("/:id/return/receive", h.Shipment.ConfirmReturnReceived)
				tickets.POST("/:id/pickup", h.Shipment.ConfirmPickup)
			}

			// 维修任务
			workOrders := api.Group("/work-orders")
			{
				workOrders.GET("", h.Repair.List)
				workOrders.GET("/:id", h.Repair.Get)
				workOrders.POST("/:id/claim", h.Repair.Claim)
				workOrders.PUT("/:id/status", h.Repair.UpdateStatus)
				workOrders.POST("/:id/complete", h.Repair.Complete)
			}

			// 保养任务
			maintenance := api.Group("/maintenance-tasks")
			{
				maintenance.POST("", h.Maintenance.Create)
				maintenance.GET("", h.Maintenance.List)
				maintenance.GET("/:id", h.Maintenance.Get)
				maintenance.POST("/:id/claim", h.Maintenance.Claim)
				maintenance.POST("/:id/start", h.Maintenance.Start)
				maintenance.POST("/:id/complete", h.Maintenance.Complete)
				maintenance.POST("/:id/cancel", h.Maintenance.Cancel)
				maintenance.POST("/:id/reschedule", h.Maintenance.Reschedule)
				maintenance.POST("/:id/work-orders", h.Maintenance.CreateWorkOrders)
			}

			// 管理
			admin := api.Group("/admin")
			admin.Use(middleware.RequireRole("cams_admin"))
			{
				admin.POST("/reconcile", h.Reconcile.Sweep)
			}
		}
	}
}
