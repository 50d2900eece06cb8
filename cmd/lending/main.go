package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"github.com/wyfcoding/pkg/cache"
	"github.com/wyfcoding/pkg/config"
	"github.com/wyfcoding/pkg/database"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/messagequeue/kafka"
	"github.com/wyfcoding/pkg/metrics"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/amitk-codes/lendity-fi/internal/lending/application"
	"github.com/amitk-codes/lendity-fi/internal/lending/domain"
	"github.com/amitk-codes/lendity-fi/internal/lending/infrastructure/custody"
	"github.com/amitk-codes/lendity-fi/internal/lending/infrastructure/messaging"
	"github.com/amitk-codes/lendity-fi/internal/lending/infrastructure/oracle"
	persistence_mysql "github.com/amitk-codes/lendity-fi/internal/lending/infrastructure/persistence/mysql"
	lendingconsumer "github.com/amitk-codes/lendity-fi/internal/lending/interfaces/consumer"
	httpserver "github.com/amitk-codes/lendity-fi/internal/lending/interfaces/http"
)

var configPath = flag.String("config", "configs/lending/config.toml", "config file path")

const defaultMaxPriceAge = 60 * time.Second

func main() {
	flag.Parse()

	// 1. 初始化配置
	var cfg config.Config
	if err := config.Load(*configPath, &cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 借贷专属配置项走 viper 读取同一配置文件
	viper.SetConfigFile(*configPath)
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Sprintf("read config failed: %v", err))
	}
	maxPriceAge := viper.GetDuration("lending.max_price_age")
	if maxPriceAge <= 0 {
		maxPriceAge = defaultMaxPriceAge
	}
	priceTopic := viper.GetString("lending.price_topic")
	if priceTopic == "" {
		priceTopic = "market.price"
	}

	// 2. 初始化日志
	logCfg := &logging.Config{
		Service:    cfg.Server.Name,
		Module:     "lending",
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}
	logger := logging.NewFromConfig(logCfg)
	slog.SetDefault(logger.Logger)

	// 3. 初始化指标
	metricsImpl := metrics.NewMetrics(cfg.Server.Name)
	if cfg.Metrics.Enabled {
		go metricsImpl.ExposeHTTP(cfg.Metrics.Port)
	}

	// 4. 初始化基础设施
	db, err := database.NewDB(cfg.Data.Database, cfg.CircuitBreaker, logger, metricsImpl)
	if err != nil {
		slog.Error("failed to connect database", "error", err)
		os.Exit(1)
	}

	// Auto Migrate (仅用于开发方便)
	if cfg.Server.Environment == "dev" {
		if err := db.RawDB().AutoMigrate(&domain.Bank{}, &domain.Position{}, &custody.AccountBalance{}); err != nil {
			slog.Error("failed to migrate database", "error", err)
		}
	}

	redisCache, err := cache.NewRedisCache(&cfg.Data.Redis, cfg.CircuitBreaker, logger, metricsImpl)
	if err != nil {
		slog.Error("failed to init redis", "error", err)
		os.Exit(1)
	}

	kafkaProducer := kafka.NewProducer(&cfg.MessageQueue.Kafka, logger, metricsImpl)

	// 5. 初始化仓储与适配器
	bankRepo := persistence_mysql.NewBankRepository(db)
	positionRepo := persistence_mysql.NewPositionRepository(db)
	custodyLedger := custody.NewLedger(db)
	priceCache := oracle.NewPriceCache(redisCache.GetClient(), 10*maxPriceAge)
	eventPublisher := messaging.NewKafkaEventPublisher(kafkaProducer)

	// 6. 初始化应用服务
	lendingService := application.NewLendingService(
		bankRepo,
		positionRepo,
		custodyLedger,
		priceCache,
		eventPublisher,
		db.RawDB(),
		clock.New(),
		maxPriceAge,
		logger.Logger,
	)

	// 7. 初始化接口层
	// gRPC
	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, health.NewServer())
	reflection.Register(grpcSrv)

	// HTTP
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	httpHandler := httpserver.NewHandler(lendingService)
	httpHandler.RegisterRoutes(r.Group("/api"))

	// 8. 启动服务
	g, ctx := errgroup.WithContext(context.Background())

	// 行情喂价消费者
	kafkaCfg := cfg.MessageQueue.Kafka
	kafkaCfg.GroupID = "lending-group"
	kafkaCfg.Topic = priceTopic
	priceConsumer := kafka.NewConsumer(&kafkaCfg, logger, metricsImpl)
	priceHandler := lendingconsumer.NewPriceTickHandler(priceCache, logger.Logger)
	priceHandler.Subscribe(ctx, priceConsumer)

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Server.GRPC.Port)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		slog.Info("gRPC server starting", "addr", addr)
		return grpcSrv.Serve(lis)
	})

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Server.HTTP.Port)
		server := &http.Server{
			Addr:    addr,
			Handler: r,
		}
		slog.Info("HTTP server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// 9. 优雅关闭
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down servers...")
		case <-ctx.Done():
			slog.Info("context cancelled, shutting down...")
		}

		grpcSrv.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
	}
}
