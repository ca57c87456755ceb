package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TypeGradingEvaluate is the asynq task type for grading messages.
const TypeGradingEvaluate = "grading:evaluate"

type AsynqOptions struct {
	Queue       string
	Concurrency int
	// ShutdownTimeout is how long Consume waits for in-flight handlers.
	ShutdownTimeout time.Duration
}

// AsynqBroker delivers task messages through asynq. asynq retries a task whose
// handler returned an error, which gives the same redelivery semantics as the
// stream driver.
type AsynqBroker struct {
	redisOpt asynq.RedisClientOpt
	client   *asynq.Client
	opts     AsynqOptions
	log      *zap.Logger
}

func NewAsynqBroker(redisOpt asynq.RedisClientOpt, opts AsynqOptions, log *zap.Logger) *AsynqBroker {
	if opts.Queue == "" {
		opts.Queue = "default"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	return &AsynqBroker{
		redisOpt: redisOpt,
		client:   asynq.NewClient(redisOpt),
		opts:     opts,
		log:      log.Named("queue.asynq"),
	}
}

func (b *AsynqBroker) Publish(ctx context.Context, msg TaskMessage) error {
	payload, err := Encode(msg)
	if err != nil {
		return err
	}
	info, err := b.client.EnqueueContext(ctx, asynq.NewTask(TypeGradingEvaluate, payload), asynq.Queue(b.opts.Queue))
	if err != nil {
		return fmt.Errorf("enqueue task %d: %w", msg.TaskID, err)
	}
	b.log.Debug("task enqueued", zap.Uint("task_id", msg.TaskID), zap.String("asynq_id", info.ID), zap.String("queue", info.Queue))
	return nil
}

func (b *AsynqBroker) Consume(ctx context.Context, handler Handler) error {
	server := asynq.NewServer(b.redisOpt, asynq.Config{
		Concurrency:     b.opts.Concurrency,
		Queues:          map[string]int{b.opts.Queue: 1},
		ShutdownTimeout: b.opts.ShutdownTimeout,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeGradingEvaluate, func(ctx context.Context, t *asynq.Task) error {
		msg, err := Decode(t.Payload())
		if err != nil {
			b.log.Error("dropping undecodable task", zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return handler(ctx, msg)
	})

	if err := server.Start(mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	b.log.Info("consuming asynq queue", zap.String("queue", b.opts.Queue), zap.Int("concurrency", b.opts.Concurrency))
	<-ctx.Done()
	server.Shutdown()
	return nil
}

func (b *AsynqBroker) Close() error {
	return b.client.Close()
}
