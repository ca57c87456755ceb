package worker

import (
	"context"

	"go.uber.org/zap"

	"inpeak-backend/internal/queue"
)

// Pool feeds queue deliveries to a Consumer. Parallelism comes from the
// queue driver, which is configured with WORKER_CONCURRENCY.
type Pool struct {
	source   queue.Consumer
	consumer *Consumer
	log      *zap.Logger
}

func NewPool(source queue.Consumer, consumer *Consumer, log *zap.Logger) *Pool {
	return &Pool{source: source, consumer: consumer, log: log.Named("pool")}
}

// Run blocks until ctx is cancelled and the driver has drained.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info("worker pool started")
	err := p.source.Consume(ctx, p.consumer.HandleMessage)
	p.log.Info("worker pool stopped")
	return err
}
