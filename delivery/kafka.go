package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is satisfied by *kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka appends segment jobs to a topic, keyed by message id so all
// segments of one message land on the same partition in order.
type Kafka struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		now: time.Now,
	}
}

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func (k *Kafka) Name() string {
	return "kafka"
}

func (k *Kafka) Deliver(ctx context.Context, msg Message) ([]Receipt, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	jobs := segmentJobs(msg, k.now())
	records := make([]kafka.Message, 0, len(jobs))
	for _, job := range jobs {
		body, err := json.Marshal(job)
		if err != nil {
			return nil, err
		}
		records = append(records, kafka.Message{
			Key:   []byte(msg.ID),
			Value: body,
			Time:  job.QueuedAt,
		})
	}

	err := k.writer.WriteMessages(ctx, records...)
	var perMessage kafka.WriteErrors
	if !errors.As(err, &perMessage) || len(perMessage) != len(records) {
		perMessage = nil
	}

	receipts := make([]Receipt, 0, len(jobs))
	for i, job := range jobs {
		switch {
		case perMessage != nil && perMessage[i] != nil:
			receipts = append(receipts, failedReceipt(msg, msg.Segments[i], perMessage[i]))
		case perMessage == nil && err != nil:
			receipts = append(receipts, failedReceipt(msg, msg.Segments[i], err))
		default:
			receipts = append(receipts, Receipt{MessageID: msg.ID, SegmentIndex: job.SegmentIndex, Status: StatusQueued})
		}
	}
	return receipts, nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
