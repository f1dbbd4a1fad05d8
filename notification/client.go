package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

const (
	UserSignedUpEvent   = "USER_SIGNED_UP"
	ProductPostedEvent  = "PRODUCT_POSTED"
	MessagePostedEvent  = "MESSAGE_POSTED"
	defaultWriteTimeout = 5 * time.Second
	batchTimeout        = 10 * time.Millisecond
	healthCheckTimeout  = 2 * time.Second
)

//Event is published whenever a user signs up, posts a product or posts a message
type Event struct {
	Type   string    `json:"type"`
	UserID string    `json:"userID"`
	Email  string    `json:"email,omitempty"`
	Text   string    `json:"text,omitempty"`
	Time   time.Time `json:"time"`
}

//QueueClient delivers events on a best-effort basis. Failures are logged and never returned
type QueueClient interface {
	AddMessageToQueue(ctx context.Context, event Event)
	QueueIsWritable(ctx context.Context) bool
	Close() error
}

//LogQueueClient only logs events. Used when no brokers are configured
type LogQueueClient struct{}

//NewLogQueueClient returns a queue client which writes events to the log
func NewLogQueueClient() *LogQueueClient {
	return &LogQueueClient{}
}

//AddMessageToQueue logs the provided event
func (qc *LogQueueClient) AddMessageToQueue(_ context.Context, event Event) {
	log.WithField("UserID", event.UserID).WithField("type", event.Type).Info("event raised")
}

//QueueIsWritable is always true for the log client
func (qc *LogQueueClient) QueueIsWritable(_ context.Context) bool {
	return true
}

func (qc *LogQueueClient) Close() error { return nil }

//KafkaQueueClient publishes events as JSON onto a Kafka topic, keyed by user ID
type KafkaQueueClient struct {
	writer  *kafka.Writer
	brokers []string
	topic   string
}

//NewKafkaQueueClient returns a client writing to topic on the provided brokers.
//Writes are asynchronous so request handlers never wait on the broker; failed batches are logged
func NewKafkaQueueClient(brokers []string, topic string) *KafkaQueueClient {
	return &KafkaQueueClient{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			Async:        true,
			BatchTimeout: batchTimeout,
			MaxAttempts:  3,
			WriteTimeout: defaultWriteTimeout,
			Completion:   logFailedDelivery(topic),
		},
		brokers: brokers,
		topic:   topic,
	}
}

func logFailedDelivery(topic string) func([]kafka.Message, error) {
	return func(messages []kafka.Message, err error) {
		if err == nil {
			return
		}
		for _, m := range messages {
			log.WithError(err).WithField("UserID", string(m.Key)).WithField("topic", topic).Error("could not publish event")
		}
	}
}

//AddMessageToQueue publishes the provided event
func (qc *KafkaQueueClient) AddMessageToQueue(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.WithError(err).WithField("UserID", event.UserID).Error("could not encode event")
		return
	}
	err = qc.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
	})
	if err != nil {
		log.WithError(err).WithField("UserID", event.UserID).WithField("topic", qc.topic).Error("could not queue event")
		return
	}
	log.WithField("UserID", event.UserID).WithField("type", event.Type).Debug("event queued")
}

//QueueIsWritable checks the topic's partitions can be looked up on the first reachable broker.
//The whole check is bounded by ctx and healthCheckTimeout
func (qc *KafkaQueueClient) QueueIsWritable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	deadline, _ := ctx.Deadline()
	for _, broker := range qc.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			log.WithError(err).WithField("broker", broker).Warn("could not dial kafka broker")
			continue
		}
		if err = conn.SetDeadline(deadline); err == nil {
			_, err = conn.ReadPartitions(qc.topic)
		}
		conn.Close()
		if err != nil {
			log.WithError(err).WithField("topic", qc.topic).Warn("could not read topic partitions")
			continue
		}
		return true
	}
	return false
}

func (qc *KafkaQueueClient) Close() error {
	if err := qc.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}
