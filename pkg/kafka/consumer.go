package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"UniAD/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// messageReader is the subset of *kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer fetches from one reader per registered topic and hands messages
// to a pool of workers. Every partition is pinned to one worker, so its
// messages are handled and committed in offset order. Offsets are committed
// after handling, or after a message was parked on the DLQ, so delivery is
// at least once. A failure that cannot be parked stops commits for its
// partition until the consumer restarts.
type Consumer struct {
	cfg       ConsumerConfig
	handlers  map[string]MessageHandler
	readers   map[string]messageReader
	newReader func(topic string) messageReader
	dlq       MessageWriter
	hook      ConsumerHook
	log       *logger.Logger
	metrics   *consumerMetrics

	workers  []*worker
	cancel   context.CancelFunc
	fetchWg  sync.WaitGroup
	workerWg sync.WaitGroup
	stopOnce sync.Once
}

// worker owns the partitions routed to it. stalled holds, per partition, the
// first offset that failed without reaching the DLQ.
type worker struct {
	queue   chan delivery
	stalled map[partitionKey]int64
}

type delivery struct {
	reader messageReader
	msg    kafka.Message
}

type partitionKey struct {
	topic     string
	partition int
}

// NewConsumer builds a consumer. Handlers are registered before Start.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	c := &Consumer{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]messageReader),
		hook:     HookFuncs{},
		log:      cfg.Logger,
		metrics:  newConsumerMetrics(cfg.Registerer),
	}
	c.newReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.GroupID,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			StartOffset: cfg.startOffset(),
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	return c, nil
}

// WithConsumerHook replaces the lifecycle hook.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler binds handler to its topic. A second handler for the same
// topic is ignored.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("kafka consumer: handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start opens the readers and launches the workers. It does not block.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	workers := c.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	depth := c.cfg.BufferSize / workers
	if depth < 1 {
		depth = 1
	}
	c.workers = make([]*worker, workers)
	for i := range c.workers {
		w := &worker{queue: make(chan delivery, depth), stalled: make(map[partitionKey]int64)}
		c.workers[i] = w
		c.workerWg.Add(1)
		go c.work(w)
	}
	for topic := range c.handlers {
		r := c.newReader(topic)
		c.readers[topic] = r
		c.fetchWg.Add(1)
		go c.fetch(ctx, topic, r)
	}
	c.log.Info("kafka consumer: started",
		logger.Int("topics", len(c.handlers)),
		logger.Int("workers", c.cfg.Workers),
		logger.String("group", c.cfg.GroupID),
	)
	return nil
}

// Stop stops fetching, lets the workers drain the queue until ctx expires,
// then closes readers and the DLQ writer.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if c.cancel == nil {
			return
		}
		c.cancel()
		c.fetchWg.Wait()
		for _, w := range c.workers {
			close(w.queue)
		}

		done := make(chan struct{})
		go func() {
			c.workerWg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer: drain: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Error("kafka consumer: close reader", logger.String("topic", topic), logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Error("kafka consumer: close dlq writer", logger.Error(cerr))
			}
		}
		c.log.Info("kafka consumer: stopped")
	})
	return err
}

func (c *Consumer) fetch(ctx context.Context, topic string, r messageReader) {
	defer c.fetchWg.Done()
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("kafka consumer: fetch", logger.String("topic", topic), logger.Error(err))
			if !sleepCtx(ctx, c.cfg.BackoffMin) {
				return
			}
			continue
		}
		w := c.workerFor(topic, msg.Partition)
		select {
		case w.queue <- delivery{reader: r, msg: msg}:
			c.metrics.queueDepth.WithLabelValues(topic).Set(float64(len(w.queue)))
		case <-ctx.Done():
			return
		}
	}
}

// workerFor pins a partition to one worker.
func (c *Consumer) workerFor(topic string, partition int) *worker {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return c.workers[(h.Sum32()+uint32(partition))%uint32(len(c.workers))]
}

func (c *Consumer) work(w *worker) {
	defer c.workerWg.Done()
	for d := range w.queue {
		c.process(w, d)
	}
}

func (c *Consumer) process(w *worker, d delivery) {
	topic := d.msg.Topic
	handler, ok := c.handlers[topic]
	if !ok {
		c.metrics.handled.WithLabelValues(topic, "dropped").Inc()
		return
	}
	key := partitionKey{topic: topic, partition: d.msg.Partition}

	start := time.Now()
	attempts, err := c.handle(handler, d.msg)
	c.metrics.latency.WithLabelValues(topic).Observe(time.Since(start).Seconds())

	result := "ok"
	if err != nil {
		c.hook.OnError(context.Background(), topic, d.msg, d.msg.Value, err)
		c.log.Error("kafka consumer: handle message",
			logger.String("topic", topic),
			logger.Int("partition", d.msg.Partition),
			logger.Int64("offset", d.msg.Offset),
			logger.Int("attempts", attempts),
			logger.Bool("permanent", IsPermanent(err)),
			logger.Error(err),
		)
		if !c.parkOnDLQ(d.msg, err) {
			c.metrics.handled.WithLabelValues(topic, "uncommitted").Inc()
			if _, ok := w.stalled[key]; !ok {
				w.stalled[key] = d.msg.Offset
				c.log.Warn("kafka consumer: partition commits halted",
					logger.String("topic", topic),
					logger.Int("partition", d.msg.Partition),
					logger.Int64("offset", d.msg.Offset),
				)
			}
			return
		}
		result = "dlq"
	}
	c.metrics.handled.WithLabelValues(topic, result).Inc()
	if _, stalled := w.stalled[key]; stalled {
		// Committing would move the group past the failed offset.
		return
	}
	c.commit(d.reader, d.msg)
}

// handle runs the hooks and the handler with retries. It returns the number
// of attempts made and the last error.
func (c *Consumer) handle(h MessageHandler, msg kafka.Message) (int, error) {
	var err error
	attempt := 0
	for {
		attempt++
		err = c.handleOnce(h, msg)
		if err == nil || IsPermanent(err) || attempt > c.cfg.RetryMax {
			return attempt, err
		}
		time.Sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt))
	}
}

func (c *Consumer) handleOnce(h MessageHandler, msg kafka.Message) (err error) {
	ctx, hmsg, data, err := c.hook.BeforeHandle(context.Background(), msg.Topic, msg, msg.Value)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
		c.hook.AfterHandle(ctx, msg.Topic, hmsg, data, err)
	}()
	return h.Handle(ctx, data)
}

func (c *Consumer) parkOnDLQ(msg kafka.Message, cause error) bool {
	if c.dlq == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   msg.Key,
		Value: msg.Value,
		Time:  time.Now(),
		Headers: append(append([]kafka.Header(nil), msg.Headers...),
			kafka.Header{Key: "source_topic", Value: []byte(msg.Topic)},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
		),
	})
	if err != nil {
		c.log.Error("kafka consumer: write dlq", logger.String("topic", c.cfg.DLQTopic), logger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commit(r messageReader, msg kafka.Message) {
	const attempts = 3
	var err error
	for i := 1; i <= attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, msg)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, i))
	}
	c.log.Error("kafka consumer: commit offset",
		logger.String("topic", msg.Topic),
		logger.Int64("offset", msg.Offset),
		logger.Error(err),
	)
}

// backoffWithJitter doubles min per attempt up to max and subtracts up to
// half of it at random.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := min
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	if half := int64(d) / 2; half > 0 {
		d -= time.Duration(rand.Int63n(half))
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
