package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"inpeak-backend/config"
	"inpeak-backend/internal/api"
	"inpeak-backend/internal/database"
	"inpeak-backend/internal/grading"
	"inpeak-backend/internal/media"
	"inpeak-backend/internal/queue"
	"inpeak-backend/internal/services"
	"inpeak-backend/internal/store"
	"inpeak-backend/internal/utils"
	"inpeak-backend/internal/worker"
	"inpeak-backend/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	zlog, err := logger.InitLogger(&logger.Config{
		Level:      cfg.LogLevel,
		Filename:   cfg.LogFilename,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
	})
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zlog); err != nil {
		zlog.Fatal("inpeak-backend exited", zap.Error(err))
	}
	zlog.Info("inpeak-backend stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Info("starting inpeak-backend",
		zap.String("mode", cfg.AppMode),
		zap.String("queue_driver", cfg.QueueDriver),
		zap.String("storage_driver", cfg.StorageDriver))

	db, err := database.Connect(cfg.DSN())
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := database.Migrate(db, log); err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.QueueDriver != "nats" {
		rdb, err = database.ConnectRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	broker, err := queue.New(cfg, rdb, log.Named("queue"))
	if err != nil {
		return err
	}
	defer broker.Close()

	presigner, err := media.NewPresigner(cfg)
	if err != nil {
		return err
	}

	tasks := store.NewTaskStore(db)

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	if cfg.AppMode == "api" || cfg.AppMode == "all" {
		submissions := services.NewSubmissionService(cfg, tasks, store.NewAnswerStore(db), store.NewQuestionStore(db), broker, log)
		router := api.NewRouter(api.Deps{
			Config:      cfg,
			Log:         log,
			DB:          db,
			Redis:       rdb,
			Submissions: submissions,
			Media:       media.NewService(presigner, cfg.StoragePresignTTL, log),
		})
		srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- err
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("http server shutdown", zap.Error(err))
			}
		}()
	}

	if cfg.AppMode == "worker" || cfg.AppMode == "all" {
		fetcher := media.NewFetcher(utils.NewHTTPClient(cfg.MediaFetchTimeout, log.Named("fetch")), presigner, media.FetcherOptions{
			Timeout:  cfg.MediaFetchTimeout,
			MaxBytes: cfg.MediaMaxBytes,
			SignTTL:  cfg.StoragePresignTTL,
		}, log)
		grader := grading.NewClient(cfg, utils.NewHTTPClient(cfg.GradingTimeout, log.Named("grading-http")), log)
		stats := services.NewStatisticsService(store.NewStatisticStore(db), log)
		consumer := worker.NewConsumer(cfg, tasks, fetcher, grader, stats, log)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := worker.NewPool(broker, consumer, log).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
		log.Error("component failed, shutting down", zap.Error(runErr))
		cancel()
	}
	wg.Wait()
	return runErr
}
