package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const payloadField = "payload"

type RedisStreamOptions struct {
	Topic          string
	Group          string
	Partitions     int
	Concurrency    int
	RedeliverAfter time.Duration
	// Block bounds one XREADGROUP call so cancellation is noticed.
	Block time.Duration
}

// RedisStreamBroker keeps one stream per partition, named "{topic}:{n}", read
// through a consumer group. Each partition is owned by exactly one reader
// goroutine so messages of a partition are handled in order.
type RedisStreamBroker struct {
	rdb      *redis.Client
	opts     RedisStreamOptions
	consumer string
	log      *zap.Logger
}

func NewRedisStreamBroker(rdb *redis.Client, opts RedisStreamOptions, log *zap.Logger) *RedisStreamBroker {
	if opts.Partitions <= 0 {
		opts.Partitions = 1
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Block <= 0 {
		opts.Block = time.Second
	}
	if opts.RedeliverAfter <= 0 {
		opts.RedeliverAfter = 5 * time.Minute
	}
	b := &RedisStreamBroker{
		rdb:      rdb,
		opts:     opts,
		consumer: "consumer-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		log:      log.Named("queue.redis"),
	}
	if opts.Concurrency > opts.Partitions {
		b.log.Warn("concurrency above partition count, extra handlers stay idle",
			zap.Int("concurrency", opts.Concurrency),
			zap.Int("partitions", opts.Partitions),
			zap.Int("handlers", opts.Partitions))
	}
	return b
}

// StreamName returns the stream that holds partition p.
func (b *RedisStreamBroker) StreamName(p int) string {
	return fmt.Sprintf("%s:%d", b.opts.Topic, p)
}

func (b *RedisStreamBroker) Publish(ctx context.Context, msg TaskMessage) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	stream := b.StreamName(Partition(msg.TaskID, b.opts.Partitions))
	if err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{payloadField: string(data)},
	}).Err(); err != nil {
		return fmt.Errorf("publish task %d to %s: %w", msg.TaskID, stream, err)
	}
	return nil
}

func (b *RedisStreamBroker) ensureGroups(ctx context.Context) error {
	for p := 0; p < b.opts.Partitions; p++ {
		err := b.rdb.XGroupCreateMkStream(ctx, b.StreamName(p), b.opts.Group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("create consumer group on %s: %w", b.StreamName(p), err)
		}
	}
	return nil
}

func (b *RedisStreamBroker) Consume(ctx context.Context, handler Handler) error {
	if err := b.ensureGroups(ctx); err != nil {
		return err
	}

	readers := b.opts.Concurrency
	if readers > b.opts.Partitions {
		readers = b.opts.Partitions
	}
	assigned := make([][]string, readers)
	for p := 0; p < b.opts.Partitions; p++ {
		assigned[p%readers] = append(assigned[p%readers], b.StreamName(p))
	}

	b.log.Info("consuming streams",
		zap.String("group", b.opts.Group),
		zap.String("consumer", b.consumer),
		zap.Int("partitions", b.opts.Partitions),
		zap.Int("readers", readers))

	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(streams []string) {
			defer wg.Done()
			b.readLoop(ctx, streams, handler)
		}(assigned[i])
	}
	wg.Wait()
	return nil
}

func (b *RedisStreamBroker) readLoop(ctx context.Context, streams []string, handler Handler) {
	args := make([]string, 0, len(streams)*2)
	args = append(args, streams...)
	for range streams {
		args = append(args, ">")
	}

	lastReclaim := time.Now()
	for ctx.Err() == nil {
		if time.Since(lastReclaim) >= b.reclaimEvery() {
			b.reclaim(ctx, streams, handler)
			lastReclaim = time.Now()
		}

		res, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.opts.Group,
			Consumer: b.consumer,
			Streams:  args,
			Count:    1,
			Block:    b.opts.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			b.log.Error("read streams failed", zap.Strings("streams", streams), zap.Error(err))
			sleepCtx(ctx, b.opts.Block)
			continue
		}
		for _, s := range res {
			for _, m := range s.Messages {
				b.deliver(ctx, s.Stream, m, handler)
			}
		}
	}
}

func (b *RedisStreamBroker) reclaimEvery() time.Duration {
	if b.opts.RedeliverAfter < time.Second {
		return b.opts.RedeliverAfter
	}
	return b.opts.RedeliverAfter / 2
}

// reclaim takes over entries that were delivered but never acknowledged for
// longer than RedeliverAfter, either by a crashed consumer or a failed handler.
func (b *RedisStreamBroker) reclaim(ctx context.Context, streams []string, handler Handler) {
	for _, stream := range streams {
		start := "0-0"
		for {
			msgs, next, err := b.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream:   stream,
				Group:    b.opts.Group,
				Consumer: b.consumer,
				MinIdle:  b.opts.RedeliverAfter,
				Start:    start,
				Count:    10,
			}).Result()
			if err != nil {
				if ctx.Err() == nil {
					b.log.Warn("reclaim pending entries failed", zap.String("stream", stream), zap.Error(err))
				}
				break
			}
			for _, m := range msgs {
				b.log.Info("redelivering pending entry", zap.String("stream", stream), zap.String("entry", m.ID))
				b.deliver(ctx, stream, m, handler)
			}
			if next == "0-0" || len(msgs) == 0 {
				break
			}
			start = next
		}
	}
}

func (b *RedisStreamBroker) deliver(ctx context.Context, stream string, m redis.XMessage, handler Handler) {
	raw, _ := m.Values[payloadField].(string)
	msg, err := Decode([]byte(raw))
	if err != nil {
		// Poison entry: acknowledge so it does not come back forever.
		b.log.Error("dropping undecodable entry", zap.String("stream", stream), zap.String("entry", m.ID), zap.Error(err))
		b.ack(ctx, stream, m.ID)
		return
	}
	if err := handler(ctx, msg); err != nil {
		b.log.Warn("handler failed, entry left pending",
			zap.String("stream", stream), zap.String("entry", m.ID), zap.Uint("task_id", msg.TaskID), zap.Error(err))
		return
	}
	b.ack(ctx, stream, m.ID)
}

func (b *RedisStreamBroker) ack(ctx context.Context, stream, id string) {
	if err := b.rdb.XAck(ctx, stream, b.opts.Group, id).Err(); err != nil {
		b.log.Error("ack failed", zap.String("stream", stream), zap.String("entry", id), zap.Error(err))
	}
}

// Close is a no-op: the redis client belongs to the caller.
func (b *RedisStreamBroker) Close() error { return nil }

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
