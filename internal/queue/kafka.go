package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"taskd/internal/models"
	"taskd/pkg/logger"
)

// Options names the brokers and topics.
type Options struct {
	Brokers       []string
	EventsTopic   string
	CommandsTopic string
	GroupID       string
	Partitions    int
}

// EnsureTopics creates the event and command topics (idempotent). Failures
// are logged; the app still runs without them.
func EnsureTopics(ctx context.Context, opts Options) {
	if len(opts.Brokers) == 0 {
		return
	}
	conn, err := kafka.DialContext(ctx, "tcp", opts.Brokers[0])
	if err != nil {
		logger.Debug(ctx, "Kafka dial for topic creation failed", "error", err)
		return
	}
	defer conn.Close()
	controller, err := conn.Controller()
	if err != nil {
		logger.Debug(ctx, "Kafka controller lookup failed", "error", err)
		return
	}
	ctrlConn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		logger.Debug(ctx, "Kafka controller dial failed", "error", err)
		return
	}
	defer ctrlConn.Close()

	partitions := max(opts.Partitions, 1)
	var topics []kafka.TopicConfig
	for _, name := range []string{opts.EventsTopic, opts.CommandsTopic} {
		if name == "" {
			continue
		}
		topics = append(topics, kafka.TopicConfig{Topic: name, NumPartitions: partitions, ReplicationFactor: 1})
	}
	if err := ctrlConn.CreateTopics(topics...); err != nil {
		logger.Debug(ctx, "Kafka create topics failed (topics may already exist)", "error", err)
		return
	}
	logger.Info(ctx, "Kafka topics ensured", "events", opts.EventsTopic, "commands", opts.CommandsTopic, "partitions", partitions)
}

// EventPublisher writes TaskEvents keyed by task id, so every event for a
// task lands on the same partition in order.
type EventPublisher struct {
	w *kafka.Writer
}

// NewEventPublisher returns a publisher for opts.EventsTopic, or nil when
// no brokers are configured.
func NewEventPublisher(ctx context.Context, opts Options) *EventPublisher {
	if len(opts.Brokers) == 0 || opts.EventsTopic == "" {
		return nil
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.EventsTopic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		RequiredAcks: kafka.RequireOne,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn(context.Background(), "Kafka event batch failed", "count", len(messages), "error", err)
			}
		},
	}
	logger.Info(ctx, "Kafka producer initialized", "topic", opts.EventsTopic, "brokers", opts.Brokers)
	return &EventPublisher{w: w}
}

// EventMessage encodes ev as a Kafka message.
func EventMessage(ev models.TaskEvent) (kafka.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode task event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.TaskID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
		Time: ev.At,
	}, nil
}

// Publish queues ev. Non-blocking with the async writer. A nil publisher
// drops the event.
func (p *EventPublisher) Publish(ctx context.Context, ev models.TaskEvent) error {
	if p == nil {
		return nil
	}
	msg, err := EventMessage(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, msg)
}

// Close flushes pending events.
func (p *EventPublisher) Close() error {
	if p == nil {
		return nil
	}
	return p.w.Close()
}

// NewCommandReader returns a consumer-group reader on the commands topic.
func NewCommandReader(opts Options) (*kafka.Reader, error) {
	if len(opts.Brokers) == 0 {
		return nil, errors.New("no Kafka brokers configured")
	}
	if opts.CommandsTopic == "" || opts.GroupID == "" {
		return nil, errors.New("commands topic and group id are required")
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  opts.Brokers,
		Topic:    opts.CommandsTopic,
		GroupID:  opts.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	}), nil
}
