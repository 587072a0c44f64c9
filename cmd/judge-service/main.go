package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edujudge/internal/common/cache"
	"edujudge/internal/common/db"
	commonmw "edujudge/internal/common/http/middleware"
	"edujudge/internal/common/mq"
	"edujudge/internal/common/storage"
	"edujudge/internal/contest/authoring"
	contestController "edujudge/internal/contest/controller"
	"edujudge/internal/contest/leaderboard"
	contestRepo "edujudge/internal/contest/repository"
	"edujudge/internal/judge/controller"
	"edujudge/internal/judge/harness"
	judgeRepo "edujudge/internal/judge/repository"
	"edujudge/internal/judge/sandbox/engine"
	"edujudge/internal/judge/sandbox/observer"
	"edujudge/internal/judge/sandbox/profile"
	"edujudge/internal/judge/sandbox/runner"
	"edujudge/internal/judge/service"
	"edujudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "judge service exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	database, err := openDatabase(appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer func() {
		_ = database.Close()
	}()
	if appCfg.Database.AutoMigrate {
		if err := contestRepo.Migrate(ctx, database); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}

	redisCache, err := cache.NewRedisCacheWithConfig(appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	var mqClient *mq.KafkaQueue
	if len(appCfg.Kafka.Brokers) > 0 {
		mqClient, err = mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
		if err != nil {
			return fmt.Errorf("init kafka: %w", err)
		}
		defer func() {
			_ = mqClient.Close()
		}()
	} else {
		logger.Warn(ctx, "kafka brokers not configured, verdict events disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := observer.NewPrometheusRecorder(registry)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	languages, err := profile.NewRegistry(appCfg.Languages)
	if err != nil {
		return fmt.Errorf("init languages: %w", err)
	}
	eng, err := engine.NewEngine(appCfg.Sandbox.toEngineConfig())
	if err != nil {
		return fmt.Errorf("init sandbox engine: %w", err)
	}
	sandboxRunner, err := runner.NewRunner(eng, languages, recorder, appCfg.Sandbox.toRunnerConfig())
	if err != nil {
		return fmt.Errorf("init runner: %w", err)
	}

	contests := contestRepo.NewContestRepository(database, redisCache)
	problems := contestRepo.NewProblemRepositoryWithTTL(database, redisCache, appCfg.Cache.ProblemTTL, appCfg.Cache.EmptyTTL)
	participants := contestRepo.NewParticipantRepository(database)

	svcCfg := service.Config{
		Harness:           harness.NewHarness(sandboxRunner),
		Contests:          contests,
		Problems:          problems,
		Submissions:       contestRepo.NewSubmissionRepository(database),
		Participants:      participants,
		StatusStore:       judgeRepo.NewStatusRepository(redisCache, appCfg.Judge.StatusTTL),
		Limiter:           judgeRepo.NewTrialLimiter(redisCache, appCfg.Trial.MaxPerMinute),
		Locker:            redisCache,
		WorkerPoolSize:    appCfg.Judge.WorkerPoolSize,
		QueueWait:         appCfg.Judge.QueueWait,
		MaxCodeBytes:      appCfg.Judge.MaxCodeBytes,
		GradeTimeout:      appCfg.Judge.GradeTimeout,
		SideEffectTimeout: appCfg.Judge.SideEffectTimeout,
		LockTTL:           appCfg.Judge.LockTTL,
		LockWait:          appCfg.Judge.LockWait,
	}
	if mqClient != nil {
		svcCfg.Publisher = judgeRepo.NewMQVerdictPublisher(mqClient, appCfg.Kafka.VerdictTopic)
	}
	if appCfg.Archive.Enabled {
		archive, err := openArchive(ctx, appCfg)
		if err != nil {
			return err
		}
		svcCfg.Archive = archive
	}
	judgeSvc, err := service.NewService(svcCfg)
	if err != nil {
		return fmt.Errorf("init judge service: %w", err)
	}

	if mqClient != nil {
		err := mqClient.SubscribeWithOptions(ctx, appCfg.Kafka.VerdictTopic, judgeSvc.HandleVerdictEvent, appCfg.Kafka.subscribeOptions())
		if err != nil {
			return fmt.Errorf("subscribe verdict topic: %w", err)
		}
		if err := mqClient.Start(); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
		defer func() {
			_ = mqClient.Stop()
		}()
	}

	standings := leaderboard.NewService(contests, participants, nil)
	authoringSvc := authoring.NewService(contests, problems, participants, nil)
	routes := []routeRegistrar{
		controller.NewJudgeController(judgeSvc, standings),
		contestController.NewContestController(authoringSvc),
	}
	httpServer := buildHTTPServer(appCfg.Server, routes, registry, database, redisCache)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "judge http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server stopped: %w", err)
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	// In-flight submissions finish grading before the server returns.
	timeoutCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	return nil
}

func openDatabase(cfg DatabaseConfig) (db.Database, error) {
	if cfg.Driver == "postgres" {
		return db.NewPostgreSQL(db.PostgreSQLConfig{DSN: cfg.DSN, PoolConfig: cfg.Pool})
	}
	return db.NewMySQL(db.MySQLConfig{DSN: cfg.DSN, PoolConfig: cfg.Pool})
}

func openArchive(ctx context.Context, appCfg *AppConfig) (*judgeRepo.SubmissionArchive, error) {
	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := objStorage.EnsureBucket(bucketCtx, appCfg.Archive.Bucket); err != nil {
		return nil, fmt.Errorf("ensure archive bucket: %w", err)
	}
	archive, err := judgeRepo.NewSubmissionArchive(objStorage, appCfg.Archive.Bucket)
	if err != nil {
		return nil, fmt.Errorf("init archive: %w", err)
	}
	return archive, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

type routeRegistrar interface {
	Register(r gin.IRouter)
}

func buildHTTPServer(cfg ServerConfig, routes []routeRegistrar, gatherer prometheus.Gatherer, deps ...pinger) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	api := router.Group("/api/v1")
	for _, rt := range routes {
		rt.Register(api)
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/healthz", healthHandler(deps...))

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func healthHandler(deps ...pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		for _, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
