package queue

import (
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"inpeak-backend/config"
)

// New builds the broker selected by QUEUE_DRIVER. rdb is only used by the
// redis driver and may be nil otherwise.
func New(cfg *config.Config, rdb *redis.Client, log *zap.Logger) (Broker, error) {
	switch cfg.QueueDriver {
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis queue driver needs a redis client")
		}
		return NewRedisStreamBroker(rdb, RedisStreamOptions{
			Topic:          cfg.QueueTopic,
			Group:          cfg.QueueGroup,
			Partitions:     cfg.QueuePartitions,
			Concurrency:    cfg.WorkerConcurrency,
			RedeliverAfter: cfg.QueueRedeliverAfter,
		}, log), nil
	case "asynq":
		return NewAsynqBroker(asynq.RedisClientOpt{
			Addr:     cfg.RedisFullAddr(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, AsynqOptions{
			Queue:           cfg.QueueTopic,
			Concurrency:     cfg.WorkerConcurrency,
			ShutdownTimeout: cfg.GradingTimeout + cfg.MediaFetchTimeout,
		}, log), nil
	case "nats":
		return ConnectNATS(cfg.NATSURL, NATSOptions{
			Topic:          cfg.QueueTopic,
			Group:          cfg.QueueGroup,
			Partitions:     cfg.QueuePartitions,
			Concurrency:    cfg.WorkerConcurrency,
			RedeliverAfter: cfg.QueueRedeliverAfter,
		}, log)
	}
	return nil, fmt.Errorf("unknown queue driver %q", cfg.QueueDriver)
}
