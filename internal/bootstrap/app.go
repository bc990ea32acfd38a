package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"recipebox/internal/config"
	"recipebox/internal/imagestore"
	mysqlClient "recipebox/internal/platform/mysql"
	rabbitmqClient "recipebox/internal/platform/rabbitmq"
	redisClient "recipebox/internal/platform/redis"
	s3Client "recipebox/internal/platform/s3"
	"recipebox/internal/repository"
	"recipebox/internal/worker"
)

type App struct {
	Config        *config.Config
	Logger        *zap.Logger
	MySQL         *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	S3            *awss3.Client
	Images        *imagestore.Store
	CleanupWorker *worker.ImageCleanupWorker

	StartedAt time.Time
}

// New connects every backing service, migrates the schema and starts the
// image cleanup worker. Resources opened before a failure are closed.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	app := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	app.MySQL, err = OpenMySQL(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err = repository.AutoMigrate(app.MySQL); err != nil {
		return nil, err
	}

	app.Redis, err = redisClient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}

	app.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.ImageCleanupQueue)
	if err != nil {
		return nil, err
	}

	app.S3, err = s3Client.New(ctx, cfg.S3)
	if err != nil {
		return nil, err
	}
	app.Images = imagestore.New(app.S3, imagestore.Options{
		Bucket:               cfg.S3.Bucket,
		Region:               cfg.S3.Region,
		PublicBaseURL:        cfg.S3.PublicBaseURL,
		MaxBytes:             cfg.Upload.MaxBytes,
		MaxPixels:            cfg.Upload.MaxPixels,
		MaxWidth:             cfg.Upload.MaxImageWidth,
		FetchTimeout:         time.Duration(cfg.Upload.URLFetchTimeoutSec) * time.Second,
		AllowPrivateNetworks: cfg.Upload.AllowPrivateURLs,
	})

	app.CleanupWorker = worker.NewImageCleanupWorker(app.MQConn, app.Images, cfg.RabbitMQ.ImageCleanupQueue, logger)
	if err = app.CleanupWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start image cleanup worker failed: %w", err)
	}

	logger.Info("backing services ready",
		zap.String("mysql", fmt.Sprintf("%s:%d/%s", cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.DB)),
		zap.String("redis", cfg.Redis.Addr),
		zap.String("s3_bucket", cfg.S3.Bucket),
	)
	return app, nil
}

// OpenMySQL connects to MySQL without touching the other services.
func OpenMySQL(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	return mysqlClient.New(ctx, cfg.MySQLDSN(), cfg.App.GinMode == "debug")
}

func (a *App) Close() error {
	var errs []error
	if a.CleanupWorker != nil {
		a.CleanupWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close rabbitmq: %w", err))
		}
	}
	if a.MySQL != nil {
		if sqlDB, err := a.MySQL.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close mysql: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
