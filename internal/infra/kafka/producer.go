package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/arklim/account-service/internal/infra/config"
)

// SaramaConfig returns the producer settings shared by the sync and async modes.
func SaramaConfig(async bool) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_5_0_0
	sc.ClientID = "account-service"
	sc.Metadata.Retry.Max = 3
	sc.Metadata.Retry.Backoff = 250 * time.Millisecond

	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Errors = true
	if async {
		sc.Producer.RequiredAcks = sarama.WaitForLocal
		sc.Producer.Flush.Frequency = 100 * time.Millisecond
		sc.Producer.Flush.Messages = 100
	} else {
		sc.Producer.RequiredAcks = sarama.WaitForAll
		sc.Producer.Idempotent = true
		sc.Net.MaxOpenRequests = 1
		sc.Producer.Return.Successes = true
	}
	return sc
}

// Producer sends records either fire-and-forget (async) or waiting for the broker ack (sync).
// The active trace context is copied into record headers.
type Producer struct {
	async   sarama.AsyncProducer
	sync    sarama.SyncProducer
	prefix  string
	logger  *zap.Logger
	drained chan struct{}
}

// NewProducer connects to cfg.Brokers in the mode selected by cfg.Async.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	sc := SaramaConfig(cfg.Async)
	if !cfg.Async {
		sp, err := sarama.NewSyncProducer(cfg.Brokers, sc)
		if err != nil {
			return nil, fmt.Errorf("create kafka sync producer: %w", err)
		}
		logger.Info("kafka producer ready", zap.Strings("brokers", cfg.Brokers), zap.Bool("async", false))
		return NewSyncProducer(sp, cfg.TopicPrefix, logger), nil
	}

	ap, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create kafka async producer: %w", err)
	}
	logger.Info("kafka producer ready", zap.Strings("brokers", cfg.Brokers), zap.Bool("async", true))
	return NewAsyncProducer(ap, cfg.TopicPrefix, logger), nil
}

// NewAsyncProducer wraps ap and logs delivery failures until Close.
func NewAsyncProducer(ap sarama.AsyncProducer, topicPrefix string, logger *zap.Logger) *Producer {
	p := &Producer{async: ap, prefix: topicPrefix, logger: logger, drained: make(chan struct{})}
	go func() {
		defer close(p.drained)
		for perr := range ap.Errors() {
			p.logger.Error("kafka delivery failed", zap.String("topic", perr.Msg.Topic), zap.Error(perr.Err))
		}
	}()
	return p
}

// NewSyncProducer wraps sp.
func NewSyncProducer(sp sarama.SyncProducer, topicPrefix string, logger *zap.Logger) *Producer {
	return &Producer{sync: sp, prefix: topicPrefix, logger: logger}
}

// TopicName prefixes eventType with the configured topic prefix once.
func (p *Producer) TopicName(eventType string) string {
	if p.prefix == "" || strings.HasPrefix(eventType, p.prefix+".") {
		return eventType
	}
	return p.prefix + "." + eventType
}

// Send publishes value to topic. An empty key lets the partitioner pick a partition.
func (p *Producer) Send(ctx context.Context, topic, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{Topic: topic, Value: sarama.ByteEncoder(value)}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg})

	if p.sync != nil {
		if _, _, err := p.sync.SendMessage(msg); err != nil {
			return fmt.Errorf("send to %s: %w", topic, err)
		}
		return nil
	}

	select {
	case p.async.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes buffered records.
func (p *Producer) Close() error {
	var err error
	if p.sync != nil {
		err = p.sync.Close()
	} else {
		// Close drains Errors before returning, so wait for the logger goroutine after it.
		err = p.async.Close()
		<-p.drained
	}
	if err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	p.logger.Info("kafka producer closed")
	return nil
}

// headerCarrier adapts record headers to propagation.TextMapCarrier.
type headerCarrier struct {
	msg *sarama.ProducerMessage
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if string(h.Key) == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c.msg.Headers))
	for i, h := range c.msg.Headers {
		keys[i] = string(h.Key)
	}
	return keys
}
