package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "collaborative-whiteboard/internal/handler/http"
	wsHandler "collaborative-whiteboard/internal/handler/websocket"
	"collaborative-whiteboard/internal/hub"
	gormpersistence "collaborative-whiteboard/internal/infra/persistence/gorm"
	"collaborative-whiteboard/internal/infra/setup"
	redisstate "collaborative-whiteboard/internal/infra/state/redis"
	"collaborative-whiteboard/internal/middleware"
	"collaborative-whiteboard/internal/render"
	"collaborative-whiteboard/internal/scheduler"
	"collaborative-whiteboard/internal/service"
	"collaborative-whiteboard/internal/worker"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	DBUser        string
	DBPassword    string
	DBHost        string
	DBPort        string
	DBName        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	JWTSecret     string
	ServerPort    string
	LogLevel      string
	AppEnv        string // development/production
	KeyPrefix     string // Redis key 前缀

	RateLimitMax    int
	RateLimitWindow time.Duration

	// --- 绘图引擎配置 ---
	BoardWidth            int           // 画板宽度（像素）
	BoardHeight           int           // 画板高度（像素）
	PreviewWidth          int           // 预览图宽度（像素）
	PreviewHeight         int           // 预览图高度（像素）
	ActiveDrawsLimit      int           // 流缓冲区长度上限
	ActiveDrawsExpiration time.Duration // 流缓冲区滑动过期窗口
	RecordActiveLimit     int           // 未归档记录数上限
	DelayForUpdatePreview time.Duration // 预览重新生成防抖窗口
	RenderPoolMaxSize     int           // 合成画面池上限
	RenderPoolIdleTimeout time.Duration // 空闲画面销毁时限
	RenderTimeout         time.Duration // 单次合成的时间预算
}

// envInt 读取整数环境变量，缺失或非法时返回默认值
func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		logrus.Warnf("Invalid %s '%s', using default %d", key, raw, def)
		return def
	}
	return v
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)，忽略错误，允许只使用环境变量
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBHost:        os.Getenv("DB_HOST"),
		DBPort:        os.Getenv("DB_PORT"),
		DBName:        os.Getenv("DB_NAME"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		ServerPort:    os.Getenv("SERVER_PORT"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		AppEnv:        os.Getenv("APP_ENV"),
		KeyPrefix:     os.Getenv("REDIS_KEY_PREFIX"),

		RateLimitMax:    envInt("RATE_LIMIT_MAX", 100),
		RateLimitWindow: 1 * time.Second,

		BoardWidth:            envInt("BOARD_WIDTH", 1280),
		BoardHeight:           envInt("BOARD_HEIGHT", 720),
		PreviewWidth:          envInt("PREVIEW_WIDTH", 320),
		PreviewHeight:         envInt("PREVIEW_HEIGHT", 180),
		ActiveDrawsLimit:      envInt("ACTIVE_DRAWS_LIMIT", 1000),
		ActiveDrawsExpiration: time.Duration(envInt("ACTIVE_DRAWS_EXPIRATION_SECONDS", 300)) * time.Second,
		RecordActiveLimit:     envInt("RECORD_ACTIVE_LIMIT", 10),
		DelayForUpdatePreview: time.Duration(envInt("DELAY_FOR_UPDATE_PREVIEW_MS", 3000)) * time.Millisecond,
		RenderPoolMaxSize:     envInt("RENDER_POOL_MAX_SIZE", 3),
		RenderPoolIdleTimeout: time.Duration(envInt("RENDER_POOL_IDLE_TIMEOUT_MS", 60000)) * time.Millisecond,
		RenderTimeout:         time.Duration(envInt("RENDER_TIMEOUT_MS", 30000)) * time.Millisecond,
	}

	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "wb:"
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	AsynqServer *worker.Server
	Hub         *hub.Hub
	Debouncer   *scheduler.Debouncer
	RenderPool  *render.Pool
	HttpServer  *http.Server
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	log.Infof("Logger initialized (Level: %s)", logLevel.String())
	log.Info("Configuration loaded successfully")

	// 3. 初始化基础设施
	log.Info("Initializing infrastructure...")
	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	log.Info("Database initialized")

	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	log.Info("Redis client initialized")

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Asynq client initialized")

	// 4. 初始化 Repositories
	log.Info("Initializing repositories...")
	recordRepo := gormpersistence.NewGormRecordRepository(db)
	boardRepo := gormpersistence.NewGormBoardRepository(db)
	streamRepo := redisstate.NewRedisStreamRepository(redisClient, cfg.KeyPrefix, cfg.ActiveDrawsLimit, cfg.ActiveDrawsExpiration)
	stateRepo := redisstate.NewRedisStateRepository(redisClient, cfg.KeyPrefix)
	log.Info("Repositories initialized")

	// 5. 初始化渲染池与防抖调度器
	renderPool := render.NewPool(render.Config{
		Width:         cfg.BoardWidth,
		Height:        cfg.BoardHeight,
		MaxSize:       cfg.RenderPoolMaxSize,
		IdleTimeout:   cfg.RenderPoolIdleTimeout,
		RenderTimeout: cfg.RenderTimeout,
	})
	debouncer := scheduler.NewDebouncer(asynqClient, cfg.DelayForUpdatePreview)
	log.Info("Render pool and debounce scheduler initialized")

	// 6. 初始化 Services
	log.Info("Initializing services...")
	streamService := service.NewStreamService(streamRepo, float64(cfg.BoardWidth), float64(cfg.BoardHeight))
	recordService := service.NewRecordService(
		recordRepo, boardRepo, streamRepo, stateRepo, debouncer,
		float64(cfg.BoardWidth), float64(cfg.BoardHeight), cfg.RecordActiveLimit,
	)
	boardService := service.NewBoardService(boardRepo, recordRepo, renderPool)
	log.Info("Services initialized")

	// 7. 初始化 Hub
	hubInstance := hub.NewHub(streamService, recordService, redisClient, cfg.KeyPrefix)
	log.Info("Hub initialized")

	// 8. 初始化 Handlers
	boardHandler := httpHandler.NewBoardHandler(boardService, recordService)
	wsConnHandler := wsHandler.NewWebSocketHandler(hubInstance, boardService)
	log.Info("Handlers initialized")

	// 9. 初始化 Worker Server
	regenHandler := worker.NewBoardRegenerateHandler(
		boardRepo, recordRepo, stateRepo, renderPool,
		cfg.PreviewWidth, cfg.PreviewHeight,
	)
	workerServer := worker.NewServer(redisClientOpt, regenHandler, log)
	log.Info("Worker server initialized")

	// 10. 初始化 Gin Engine 和路由
	log.Info("Setting up Gin router...")
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))

	router.Use(func(c *gin.Context) { /* CORS */
		allowedOrigin := os.Getenv("CORS_ALLOWED_ORIGIN")
		if allowedOrigin == "" {
			allowedOrigin = "http://localhost:3000"
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})
	router.Use(middleware.RateLimit(stateRepo, cfg.RateLimitMax, cfg.RateLimitWindow))

	boardRoutes := router.Group("/api/boards").Use(middleware.Auth(cfg.JWTSecret))
	{
		boardRoutes.POST("/:channelId", boardHandler.AddBoard)
		// GET /:channelId 返回频道内最近创建的画板（路由树中静态段
		// 与参数段不能共存，故不使用 /:channelId/latest）
		boardRoutes.GET("/:channelId", boardHandler.GetLatestBoard)
		boardRoutes.GET("/:channelId/:boardId", boardHandler.GetSnapshot)
		boardRoutes.GET("/:channelId/:boardId/image", boardHandler.GetImage)
		boardRoutes.POST("/:channelId/:boardId/records", boardHandler.FinalizeRecord)
		boardRoutes.POST("/:channelId/:boardId/undo", boardHandler.Undo)
		boardRoutes.POST("/:channelId/:boardId/redo", boardHandler.Redo)
		boardRoutes.POST("/:channelId/:boardId/clean", boardHandler.Clean)
	}
	wsRoutes := router.Group("/ws").Use(middleware.Auth(cfg.JWTSecret))
	{
		wsRoutes.GET("/channel/:channelId/board/:boardId", wsConnHandler.HandleConnection)
	}
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	log.Info("Router setup complete")

	// 11. 初始化 HTTP Server
	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}
	log.Info("HTTP server initialized")

	app := &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		RedisClient: redisClient,
		AsynqClient: asynqClient,
		AsynqServer: workerServer,
		Hub:         hubInstance,
		Debouncer:   debouncer,
		RenderPool:  renderPool,
		HttpServer:  httpServer,
	}
	log.Info("Application assembled successfully")

	return app, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")
	go a.Hub.Run()
	a.Log.Info("Hub routine started")

	go a.AsynqServer.Start()
	a.Log.Info("Asynq worker server routine started")

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 停止 Hub 的频道订阅
	if a.Hub != nil {
		a.Hub.StopAllSubscriptions()
	}

	// 2. 停止防抖调度器，不再产生新任务
	if a.Debouncer != nil {
		a.Debouncer.Close()
	}

	// 3. 优雅关闭 Worker Server
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 4. 优雅关闭 HTTP 服务器
	a.Log.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 5. 关闭渲染池
	if a.RenderPool != nil {
		a.RenderPool.Close()
	}

	// 6. 关闭 Asynq Client
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		} else {
			a.Log.Info("Asynq client closed.")
		}
	}

	// 7. 关闭 Redis 连接
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		} else {
			a.Log.Info("Redis connection closed.")
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   clientIP,
			"method":      method,
			"path":        path,
		})

		if errorMessage != "" {
			entry.Error(errorMessage)
		} else {
			if statusCode >= 500 {
				entry.Error("Server error")
			} else if statusCode >= 400 {
				entry.Warn("Client error")
			} else {
				entry.Info("Request handled")
			}
		}
	}
}
