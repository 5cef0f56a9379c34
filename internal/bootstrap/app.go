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

	httpHandler "github.com/mainak1023/Codelith/internal/handler/http"
	wsHandler "github.com/mainak1023/Codelith/internal/handler/websocket"
	"github.com/mainak1023/Codelith/internal/hub"
	gormpersistence "github.com/mainak1023/Codelith/internal/infra/persistence/gorm"
	"github.com/mainak1023/Codelith/internal/infra/setup"
	redisstate "github.com/mainak1023/Codelith/internal/infra/state/redis"
	"github.com/mainak1023/Codelith/internal/middleware"
	"github.com/mainak1023/Codelith/internal/service"
	"github.com/mainak1023/Codelith/internal/tasks"
	"github.com/mainak1023/Codelith/internal/worker"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	DBUser           string
	DBPassword       string
	DBHost           string
	DBPort           string
	DBName           string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	JWTSecret        string
	ChannelAppKey    string
	ChannelAppSecret string
	ServerPort       string
	LogLevel         string
	AppEnv           string
	KeyPrefix        string
	RateLimitMax     int
	RateLimitWindow  time.Duration
	RequestTimeout   time.Duration
	SessionMaxIdle   time.Duration
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:           os.Getenv("DB_USER"),
		DBPassword:       os.Getenv("DB_PASSWORD"),
		DBHost:           os.Getenv("DB_HOST"),
		DBPort:           os.Getenv("DB_PORT"),
		DBName:           os.Getenv("DB_NAME"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		ChannelAppKey:    os.Getenv("CHANNEL_APP_KEY"),
		ChannelAppSecret: os.Getenv("CHANNEL_APP_SECRET"),
		ServerPort:       os.Getenv("SERVER_PORT"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		AppEnv:           os.Getenv("APP_ENV"),
		KeyPrefix:        os.Getenv("REDIS_KEY_PREFIX"),
		RateLimitMax:     100,
		RateLimitWindow:  1 * time.Second,
		RequestTimeout:   5 * time.Second,
		SessionMaxIdle:   24 * time.Hour,
	}

	redisDBStr := os.Getenv("REDIS_DB")
	cfg.RedisDB, _ = strconv.Atoi(redisDBStr)

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
		cfg.KeyPrefix = "cc:"
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}
	if cfg.ChannelAppKey == "" || cfg.ChannelAppSecret == "" {
		return nil, fmt.Errorf("environment variables CHANNEL_APP_KEY and CHANNEL_APP_SECRET must be set")
	}

	if maxIdleStr := os.Getenv("SESSION_MAX_IDLE"); maxIdleStr != "" {
		if d, err := time.ParseDuration(maxIdleStr); err == nil && d > 0 {
			cfg.SessionMaxIdle = d
		} else {
			logrus.Warnf("Invalid SESSION_MAX_IDLE '%s', using default 24h", maxIdleStr)
		}
	}

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
	AsynqServer *worker.WorkerServer
	Hub         *hub.Hub
	EventBus    *redisstate.RedisEventBus
	HttpServer  *http.Server

	redisClientOpt asynq.RedisClientOpt
	busCancel      context.CancelFunc
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

	// 3. 初始化基础设施
	log.Info("Initializing infrastructure...")
	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database initialized and migrated")

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
	userRepo := gormpersistence.NewGormUserRepository(db)
	sessionRepo := redisstate.NewRedisSessionRepository(redisClient, cfg.KeyPrefix)
	tokenRepo := redisstate.NewRedisTokenRepository(redisClient, cfg.KeyPrefix)
	projectRepo := redisstate.NewRedisProjectRepository(redisClient, cfg.KeyPrefix)
	fileRepo := redisstate.NewRedisFileRepository(redisClient, cfg.KeyPrefix)
	eventBus := redisstate.NewRedisEventBus(redisClient, cfg.KeyPrefix)
	log.Info("Repositories initialized")

	// 5. 初始化 Services
	log.Info("Initializing services...")
	authService, err := service.NewAuthService(userRepo, cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create AuthService: %w", err)
	}
	channelAuthService, err := service.NewChannelAuthService(tokenRepo, userRepo, cfg.ChannelAppKey, cfg.ChannelAppSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create ChannelAuthService: %w", err)
	}
	collabService := service.NewCollabService(sessionRepo, channelAuthService, eventBus)
	projectService := service.NewProjectService(projectRepo, fileRepo)
	fileService := service.NewFileService(fileRepo, projectRepo)
	log.Info("Services initialized")

	// 6. 初始化 Hub
	hubInstance := hub.NewHub(channelAuthService)
	log.Info("Hub initialized")

	// 7. 初始化 Handlers
	authHandler := httpHandler.NewAuthHandler(authService)
	collabHandler := httpHandler.NewCollabHandler(collabService)
	pusherHandler := httpHandler.NewPusherHandler(channelAuthService, eventBus, hubInstance)
	projectHandler := httpHandler.NewProjectHandler(projectService)
	fileHandler := httpHandler.NewFileHandler(fileService)
	websocketHandler := wsHandler.NewWebSocketHandler(hubInstance)
	log.Info("Handlers initialized")

	// 8. 初始化 Worker Server
	workerServer := worker.NewWorkerServer(redisClientOpt, collabService, cfg.SessionMaxIdle, log)
	log.Info("Worker server initialized")

	// 9. 初始化 Gin Engine 和路由
	log.Info("Setting up Gin router...")
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(corsMiddleware())
	router.Use(middleware.RateLimit(redisClient, cfg.KeyPrefix, cfg.RateLimitMax, cfg.RateLimitWindow))

	api := router.Group("/api", middleware.Timeout(cfg.RequestTimeout))
	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.GET("/profile", middleware.Auth(cfg.JWTSecret), authHandler.Profile)
	}
	collabRoutes := api.Group("/collaboration")
	{
		collabRoutes.POST("", collabHandler.CreateSession)
		collabRoutes.PUT("", collabHandler.JoinSession)
		collabRoutes.GET("", collabHandler.GetSession)
		collabRoutes.DELETE("", collabHandler.LeaveSession)
	}
	projectRoutes := api.Group("/projects").Use(middleware.Auth(cfg.JWTSecret))
	{
		projectRoutes.POST("", projectHandler.CreateProject)
		projectRoutes.GET("", projectHandler.ListProjects)
		projectRoutes.GET("/:id", projectHandler.GetProject)
		projectRoutes.PUT("/:id", projectHandler.UpdateProject)
		projectRoutes.DELETE("/:id", projectHandler.DeleteProject)
	}
	fileRoutes := api.Group("/files").Use(middleware.Auth(cfg.JWTSecret))
	{
		fileRoutes.POST("", fileHandler.CreateFile)
		fileRoutes.GET("", fileHandler.ListFiles)
		fileRoutes.GET("/:id", fileHandler.GetFile)
		fileRoutes.PUT("/:id", fileHandler.UpdateFile)
		fileRoutes.DELETE("/:id", fileHandler.DeleteFile)
	}
	// 触发端点和 /pusher/auth 一样只靠通道令牌体系防护：
	// 协作客户端只持有 authToken，没有 JWT。
	pusherRoutes := router.Group("/pusher", middleware.Timeout(cfg.RequestTimeout))
	{
		pusherRoutes.POST("/auth", pusherHandler.AuthorizeChannel)
		pusherRoutes.POST("/trigger", pusherHandler.Trigger)
		pusherRoutes.GET("/channels/:channelName", pusherHandler.ChannelInfo)
	}
	router.GET("/ws", websocketHandler.HandleConnection)
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	log.Info("Router setup complete")

	// 10. 初始化 HTTP Server
	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	app := &App{
		Config:         cfg,
		Log:            log,
		DB:             db,
		RedisClient:    redisClient,
		AsynqClient:    asynqClient,
		AsynqServer:    workerServer,
		Hub:            hubInstance,
		EventBus:       eventBus,
		HttpServer:     httpServer,
		redisClientOpt: redisClientOpt,
	}
	log.Info("Application assembled successfully")
	return app, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")
	go a.Hub.Run()
	a.Log.Info("Hub routine started")

	// 事件总线订阅：把 Redis Pub/Sub 的事件接到本地 Hub
	busCtx, cancel := context.WithCancel(context.Background())
	a.busCancel = cancel
	go func() {
		if err := a.EventBus.Subscribe(busCtx, func(env redisstate.Envelope) {
			a.Hub.Deliver(env.Channel, env.Event, env.Data)
		}); err != nil && !errors.Is(err, context.Canceled) {
			a.Log.Errorf("Event bus subscription stopped with error: %v", err)
		}
	}()
	a.Log.Info("Event bus subscription started")

	go a.AsynqServer.Start()
	a.Log.Info("Asynq worker server routine started")

	a.registerPeriodicTasks()

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

func (a *App) registerPeriodicTasks() {
	scheduler := asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{})

	task := asynq.NewTask(tasks.TypeSessionJanitor, nil)
	schedule := "@every 10m"
	entryID, err := scheduler.Register(schedule, task, asynq.Queue("low"))
	if err != nil {
		a.Log.Errorf("Could not register session janitor task: %v", err)
	} else {
		a.Log.Infof("Session janitor task registered with schedule '%s' (EntryID: %s)", schedule, entryID)
	}

	go func() {
		a.Log.Info("Asynq scheduler starting...")
		if err := scheduler.Run(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, asynq.ErrServerClosed) {
				a.Log.Errorf("Asynq scheduler Run() failed: %v", err)
			} else {
				a.Log.Info("Asynq scheduler stopped.")
			}
		}
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 停止事件总线订阅
	if a.busCancel != nil {
		a.busCancel()
	}

	// 2. 优雅关闭 Worker Server
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 3. 优雅关闭 HTTP 服务器
	a.Log.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 4. 关闭 Asynq Client
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}

	// 5. 关闭 Redis 连接
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// corsMiddleware 处理跨域请求头
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
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
	}
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
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
