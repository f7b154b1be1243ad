package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"gvteway/pkg/logger"
)

// Producer interface defines the contract for publishing notification
// messages
type Producer interface {
	PublishTicketsAvailable(ctx context.Context, message *TicketsAvailableMessage) error
	Close() error
}

// KafkaProducerConfig contains configuration for the Kafka notification
// producer
type KafkaProducerConfig struct {
	Brokers          []string
	Topic            string
	RetryMax         int
	TimeoutMs        int
	RequiredAcks     sarama.RequiredAcks
	CompressionType  sarama.CompressionCodec
	IdempotentWrites bool
	MaxMessageBytes  int
}

// DefaultKafkaProducerConfig returns a default producer configuration
func DefaultKafkaProducerConfig() *KafkaProducerConfig {
	return &KafkaProducerConfig{
		Brokers:          []string{"localhost:9092"},
		Topic:            "waitlist-notifications",
		RetryMax:         3,
		TimeoutMs:        10000,
		RequiredAcks:     sarama.WaitForAll,
		CompressionType:  sarama.CompressionSnappy,
		IdempotentWrites: true,
		MaxMessageBytes:  1000000,
	}
}

type kafkaProducer struct {
	producer sarama.SyncProducer
	config   *KafkaProducerConfig
	log      *logger.Logger
}

// NewKafkaProducer creates a new Kafka notification producer
func NewKafkaProducer(config *KafkaProducerConfig) (Producer, error) {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = config.RequiredAcks
	saramaConfig.Producer.Compression = config.CompressionType
	saramaConfig.Producer.Retry.Max = config.RetryMax
	saramaConfig.Producer.Timeout = time.Duration(config.TimeoutMs) * time.Millisecond
	saramaConfig.Producer.Idempotent = config.IdempotentWrites
	saramaConfig.Producer.MaxMessageBytes = config.MaxMessageBytes

	if config.IdempotentWrites {
		saramaConfig.Net.MaxOpenRequests = 1
	}

	// Hash partitioner keeps a recipient's messages on one partition
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &kafkaProducer{
		producer: producer,
		config:   config,
		log:      logger.GetDefault(),
	}, nil
}

// PublishTicketsAvailable publishes a tickets-available message to the
// notification topic
func (kp *kafkaProducer) PublishTicketsAvailable(ctx context.Context, message *TicketsAvailableMessage) error {
	messageBytes, err := message.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal notification message: %w", err)
	}

	kafkaMessage := &sarama.ProducerMessage{
		Topic:     kp.config.Topic,
		Key:       sarama.StringEncoder(message.PartitionKey()),
		Value:     sarama.ByteEncoder(messageBytes),
		Headers:   kp.createHeaders(message),
		Timestamp: message.CreatedAt,
	}

	partition, offset, err := kp.producer.SendMessage(kafkaMessage)
	if err != nil {
		return fmt.Errorf("failed to send notification to Kafka: %w", err)
	}

	kp.log.Debug("notification published",
		"topic", kp.config.Topic,
		"partition", partition,
		"offset", offset,
		"notification_id", message.NotificationID.String(),
	)

	return nil
}

func (kp *kafkaProducer) createHeaders(message *TicketsAvailableMessage) []sarama.RecordHeader {
	return []sarama.RecordHeader{
		{Key: []byte("notification_id"), Value: []byte(message.NotificationID.String())},
		{Key: []byte("notification_type"), Value: []byte(NotificationTypeTicketsAvailable)},
		{Key: []byte("recipient_id"), Value: []byte(message.UserID.String())},
		{Key: []byte("event_id"), Value: []byte(message.EventID.String())},
		{Key: []byte("expires_at"), Value: []byte(message.ExpiresAt.Format(time.RFC3339))},
		{Key: []byte("producer"), Value: []byte("gvteway-waitlist")},
	}
}

// Close closes the Kafka producer
func (kp *kafkaProducer) Close() error {
	if kp.producer != nil {
		if err := kp.producer.Close(); err != nil {
			return fmt.Errorf("failed to close Kafka producer: %w", err)
		}
	}
	return nil
}
