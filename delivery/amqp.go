package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

var ErrAMQPNotReady = errors.New("amqp: connection not ready")

// SegmentJob is the queued form of one segment, shared by the AMQP and
// Kafka gateways so workers downstream can consume either.
type SegmentJob struct {
	MessageID     string    `json:"message_id"`
	SegmentIndex  int       `json:"segment_index"`
	TotalSegments int       `json:"total_segments"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Encoding      string    `json:"encoding"`
	Content       string    `json:"content"`
	MediaURL      string    `json:"media_url,omitempty"`
	Units         int       `json:"units"`
	QueuedAt      time.Time `json:"queued_at"`
}

func segmentJobs(msg Message, now time.Time) []SegmentJob {
	jobs := make([]SegmentJob, 0, len(msg.Segments))
	for _, seg := range msg.Segments {
		job := SegmentJob{
			MessageID:     msg.ID,
			SegmentIndex:  seg.Index,
			TotalSegments: msg.Parts(),
			From:          msg.From,
			To:            msg.To,
			Encoding:      msg.Encoding.String(),
			Content:       seg.Content,
			Units:         seg.SegmentUnits,
			QueuedAt:      now,
		}
		if seg.IncludesMedia {
			job.MediaURL = seg.MediaURL
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// channelPublisher is satisfied by *amqp.Channel.
type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQP queues segments on a durable RabbitMQ queue. The connection is
// re-established lazily when the broker drops it.
type AMQP struct {
	m          sync.Mutex
	addr       string
	queue      string
	logger     logrus.FieldLogger
	connection *amqp.Connection
	channel    channelPublisher
	now        func() time.Time
}

// DialAMQP connects to addr and declares queue.
func DialAMQP(addr, queue string, logger logrus.FieldLogger) (*AMQP, error) {
	client := &AMQP{addr: addr, queue: queue, logger: logger, now: time.Now}
	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func (a *AMQP) connect() error {
	conn, err := amqp.Dial(a.addr)
	if err != nil {
		return fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp: open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(a.queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp: declare %s: %w", a.queue, err)
	}
	a.connection = conn
	a.channel = ch
	return nil
}

func (a *AMQP) Name() string {
	return "amqp"
}

// IsReady reports whether the broker connection is open.
func (a *AMQP) IsReady() bool {
	a.m.Lock()
	defer a.m.Unlock()
	if a.connection == nil {
		return a.channel != nil
	}
	return !a.connection.IsClosed()
}

func (a *AMQP) Deliver(ctx context.Context, msg Message) ([]Receipt, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	a.m.Lock()
	defer a.m.Unlock()

	if a.connection != nil && a.connection.IsClosed() {
		if a.logger != nil {
			a.logger.Warn("amqp connection closed, reconnecting")
		}
		if err := a.connect(); err != nil {
			return nil, err
		}
	}
	if a.channel == nil {
		return nil, ErrAMQPNotReady
	}

	jobs := segmentJobs(msg, a.now())
	receipts := make([]Receipt, 0, len(jobs))
	for i, job := range jobs {
		body, err := json.Marshal(job)
		if err != nil {
			receipts = append(receipts, failedReceipt(msg, msg.Segments[i], err))
			continue
		}
		err = a.channel.PublishWithContext(ctx, "", a.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    fmt.Sprintf("%s-%d", job.MessageID, job.SegmentIndex),
			Timestamp:    job.QueuedAt,
			Body:         body,
		})
		if err != nil {
			receipts = append(receipts, failedReceipt(msg, msg.Segments[i], err))
			continue
		}
		receipts = append(receipts, Receipt{MessageID: msg.ID, SegmentIndex: job.SegmentIndex, Status: StatusQueued})
	}
	return receipts, nil
}

// Close shuts the connection down.
func (a *AMQP) Close() error {
	a.m.Lock()
	defer a.m.Unlock()
	if a.connection == nil {
		return nil
	}
	return a.connection.Close()
}
