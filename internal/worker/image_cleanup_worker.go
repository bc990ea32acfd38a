package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"recipebox/internal/model"
	"recipebox/internal/platform/rabbitmq"
)

type ImageDeleter interface {
	Delete(ctx context.Context, key string) error
}

// ImageCleanupWorker consumes cleanup jobs and deletes the referenced objects.
// Failed jobs are dropped without requeue so a poison message cannot loop.
type ImageCleanupWorker struct {
	conn      *amqp.Connection
	images    ImageDeleter
	queueName string
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewImageCleanupWorker(conn *amqp.Connection, images ImageDeleter, queueName string, logger *zap.Logger) *ImageCleanupWorker {
	return &ImageCleanupWorker{
		conn:      conn,
		images:    images,
		queueName: queueName,
		logger:    logger,
	}
}

func (w *ImageCleanupWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(8, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.handle(workerCtx, d.Body); err != nil {
					w.logger.Warn("image cleanup failed", zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.logger.Info("image cleanup worker started", zap.String("queue", w.queueName))
	return nil
}

func (w *ImageCleanupWorker) handle(ctx context.Context, body []byte) error {
	var job model.ImageCleanupJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("decode cleanup job failed: %w", err)
	}
	if job.Key == "" {
		return fmt.Errorf("cleanup job has no key")
	}
	if err := w.images.Delete(ctx, job.Key); err != nil {
		return err
	}
	w.logger.Debug("image deleted", zap.String("key", job.Key), zap.String("reason", job.Reason))
	return nil
}

func (w *ImageCleanupWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
