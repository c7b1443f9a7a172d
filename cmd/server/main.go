// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"kb-vectorizer/internal/config"
	"kb-vectorizer/internal/handler"
	"kb-vectorizer/internal/middleware"
	"kb-vectorizer/internal/pipeline"
	"kb-vectorizer/internal/repository"
	"kb-vectorizer/internal/service"
	"kb-vectorizer/pkg/database"
	"kb-vectorizer/pkg/embedding"
	"kb-vectorizer/pkg/es"
	"kb-vectorizer/pkg/kafka"
	"kb-vectorizer/pkg/log"
	"kb-vectorizer/pkg/storage"
	"kb-vectorizer/pkg/tasks"
	"kb-vectorizer/pkg/tika"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	// 1. 初始化配置
	configPath := os.Getenv("KBV_CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和 Redis
	database.InitMySQL(cfg.Database.MySQL)
	database.InitRedis(cfg.Database.Redis)
	if cfg.Database.MySQL.AutoMigrate {
		if err := repository.AutoMigrate(database.DB); err != nil {
			log.Fatal("数据库迁移失败", err)
		}
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	// 4. 初始化外部客户端
	embeddingClient := embedding.NewClient(cfg.Embedding)
	if cfg.Embedding.Cache.Enabled {
		embeddingClient = embedding.NewCachedClient(embeddingClient, database.RDB, cfg.Embedding.Cache.TTL)
		log.Infof("[Embedding] 已启用向量缓存, ttl: %s", cfg.Embedding.Cache.TTL)
	}

	var vectorIndex pipeline.VectorIndex
	if cfg.Elasticsearch.Enabled {
		esClient, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			log.Fatal("Elasticsearch 初始化失败", err)
		}
		indexer := es.NewIndexer(esClient, cfg.Elasticsearch.IndexName, cfg.Embedding.Dimensions)
		if err := indexer.EnsureIndex(startupCtx); err != nil {
			log.Fatal("Elasticsearch 索引初始化失败", err)
		}
		vectorIndex = indexer
	}

	var objects service.ObjectReader
	if cfg.MinIO.Enabled {
		store, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			log.Fatal("MinIO 初始化失败", err)
		}
		if err := store.EnsureBucket(startupCtx); err != nil {
			log.Fatal("MinIO 存储桶初始化失败", err)
		}
		objects = store
	}
	tikaClient := tika.NewClient(cfg.Tika)

	// 5. 初始化 Repository 与向量化流程
	docRepo := repository.NewDocumentRepository(database.DB)
	vectorRepo := repository.NewDocumentVectorRepository(database.DB)

	tracker := pipeline.NewTracker(docRepo)
	chunker := pipeline.NewChunker(cfg.Vectorize.ChunkSize, cfg.Vectorize.ChunkOverlap, cfg.Vectorize.CharsPerToken)
	writer := pipeline.NewVectorWriter(vectorRepo, vectorIndex, embeddingClient.Model())
	orchestrator := pipeline.NewOrchestrator(docRepo, tracker, chunker, embeddingClient, writer, pipeline.OrchestratorConfig{
		DefaultBatchSize: cfg.Vectorize.BatchSize,
		MaxBatchSize:     cfg.Vectorize.MaxBatchSize,
		Concurrency:      cfg.Vectorize.Concurrency,
		StaleAfter:       cfg.Vectorize.StaleAfter,
	})

	// 6. 初始化 Service：Kafka 未启用时在进程内执行触发的任务
	var (
		vectorizeService service.VectorizeService
		submitter        service.TriggerSubmitter
		producer         *kafka.Producer
		local            *service.LocalSubmitter
	)
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka)
		submitter = producer
	} else {
		local = service.NewLocalSubmitter(func(ctx context.Context, task tasks.VectorizeTask) error {
			return vectorizeService.RunTask(ctx, task)
		}, orchestrator.BatchSize(0))
		submitter = local
	}
	vectorizeService = service.NewVectorizeService(orchestrator, tracker, submitter, cfg.Vectorize.BatchTimeout)
	ingestService := service.NewIngestService(docRepo, objects, tikaClient, vectorizeService)

	// 7. 启动后台 Kafka 消费者
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	var consumerWG sync.WaitGroup
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, database.RDB, vectorizeService)
		consumerWG.Add(1)
		go func() {
			defer consumerWG.Done()
			if err := consumer.Run(consumerCtx); err != nil {
				log.Errorf("[Kafka] 消费者异常退出: %v", err)
			}
		}()
	}

	// 8. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())
	handler.RegisterRoutes(r, cfg.Internal.APIKey,
		handler.NewVectorizeHandler(vectorizeService),
		handler.NewIngestHandler(ingestService))

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	stopConsumer()
	consumerWG.Wait()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("[Kafka] 关闭生产者失败: %v", err)
		}
	}
	// 进程内的批处理只在 batch_timeout 内运行，等待其结束以免留下 PROCESSING 文档
	if local != nil {
		local.Wait()
	}
	log.Info("服务已优雅关闭")
}
