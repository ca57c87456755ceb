package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type NATSOptions struct {
	Topic          string
	Group          string
	Partitions     int
	Concurrency    int
	RedeliverAfter time.Duration
}

// NATSBroker publishes to JetStream subjects "{topic}.{partition}" and
// consumes them through a durable queue group with manual acks.
type NATSBroker struct {
	nc   *nats.Conn
	js   nats.JetStreamContext
	opts NATSOptions
	log  *zap.Logger
}

func ConnectNATS(url string, opts NATSOptions, log *zap.Logger) (*NATSBroker, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	if opts.Partitions <= 0 {
		opts.Partitions = 1
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.RedeliverAfter <= 0 {
		opts.RedeliverAfter = 5 * time.Minute
	}
	b := &NATSBroker{nc: nc, js: js, opts: opts, log: log.Named("queue.nats")}
	if err := b.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return b, nil
}

// StreamName is the JetStream stream name for a topic. Stream names may not
// contain dots.
func StreamName(topic string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(topic))
}

func (b *NATSBroker) subject(p int) string {
	return fmt.Sprintf("%s.%d", b.opts.Topic, p)
}

func (b *NATSBroker) ensureStream() error {
	name := StreamName(b.opts.Topic)
	if _, err := b.js.StreamInfo(name); err == nil {
		return nil
	}
	_, err := b.js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  []string{b.opts.Topic + ".>"},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", name, err)
	}
	return nil
}

func (b *NATSBroker) Publish(ctx context.Context, msg TaskMessage) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	subj := b.subject(Partition(msg.TaskID, b.opts.Partitions))
	if _, err := b.js.Publish(subj, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish task %d to %s: %w", msg.TaskID, subj, err)
	}
	return nil
}

func (b *NATSBroker) Consume(ctx context.Context, handler Handler) error {
	sem := make(chan struct{}, b.opts.Concurrency)
	var wg sync.WaitGroup

	sub, err := b.js.QueueSubscribe(b.opts.Topic+".>", b.opts.Group, func(m *nats.Msg) {
		msg, err := Decode(m.Data)
		if err != nil {
			b.log.Error("terminating undecodable message", zap.String("subject", m.Subject), zap.Error(err))
			_ = m.Term()
			return
		}
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			if err := handler(ctx, msg); err != nil {
				b.log.Warn("handler failed, message nacked", zap.Uint("task_id", msg.TaskID), zap.Error(err))
				_ = m.NakWithDelay(b.opts.RedeliverAfter)
				return
			}
			if err := m.Ack(); err != nil {
				b.log.Error("ack failed", zap.Uint("task_id", msg.TaskID), zap.Error(err))
			}
		}()
	},
		nats.Durable(b.opts.Group),
		nats.ManualAck(),
		nats.AckWait(b.opts.RedeliverAfter),
		nats.MaxAckPending(b.opts.Concurrency),
		nats.DeliverAll(),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.opts.Topic, err)
	}
	b.log.Info("consuming jetstream", zap.String("subject", b.opts.Topic+".>"), zap.String("group", b.opts.Group))

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		b.log.Warn("drain subscription failed", zap.Error(err))
	}
	wg.Wait()
	return nil
}

func (b *NATSBroker) Close() error {
	return b.nc.Drain()
}
