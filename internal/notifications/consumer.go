package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"gvteway/pkg/logger"
)

// Consumer interface defines the contract for the notification
// delivery workers
type Consumer interface {
	Start(ctx context.Context, numWorkers int) error
	Stop() error
}

type ConsumerConfig struct {
	Brokers              []string
	GroupID              string
	Topics               []string
	SessionTimeoutMs     int
	HeartbeatMs          int
	MaxProcessingTime    time.Duration
	OffsetOldest         bool
	MaxRetries           int
	RetryBackoffDuration time.Duration
}

func DefaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		Brokers:              []string{"localhost:9092"},
		GroupID:              "gvteway-notification-workers",
		Topics:               []string{"waitlist-notifications"},
		SessionTimeoutMs:     30000,
		HeartbeatMs:          3000,
		MaxProcessingTime:    5 * time.Minute,
		OffsetOldest:         false,
		MaxRetries:           3,
		RetryBackoffDuration: time.Second,
	}
}

type kafkaConsumer struct {
	consumerGroup sarama.ConsumerGroup
	config        *ConsumerConfig
	emailService  EmailService
	repo          Repository
	log           *logger.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewKafkaConsumer creates a new Kafka notification consumer
func NewKafkaConsumer(config *ConsumerConfig, emailService EmailService, repo Repository) (Consumer, error) {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMs) * time.Millisecond
	saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatMs) * time.Millisecond
	saramaConfig.Consumer.MaxProcessingTime = config.MaxProcessingTime
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = 1 * time.Second

	if config.OffsetOldest {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	consumerGroup, err := sarama.NewConsumerGroup(config.Brokers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &kafkaConsumer{
		consumerGroup: consumerGroup,
		config:        config,
		emailService:  emailService,
		repo:          repo,
		log:           logger.GetDefault(),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

func (kc *kafkaConsumer) Start(ctx context.Context, numWorkers int) error {
	kc.log.Info("starting notification consumer workers",
		"workers", numWorkers,
		"topics", kc.config.Topics,
	)

	go kc.handleErrors()

	for i := 0; i < numWorkers; i++ {
		kc.wg.Add(1)
		go func(workerID int) {
			defer kc.wg.Done()
			kc.runWorker(ctx, workerID)
		}(i)
	}

	return nil
}

func (kc *kafkaConsumer) runWorker(ctx context.Context, workerID int) {
	handler := &deliveryHandler{
		workerID:     workerID,
		emailService: kc.emailService,
		repo:         kc.repo,
		maxRetries:   kc.config.MaxRetries,
		retryBackoff: kc.config.RetryBackoffDuration,
		log:          kc.log,
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-kc.ctx.Done():
			return
		default:
			if err := kc.consumerGroup.Consume(ctx, kc.config.Topics, handler); err != nil {
				kc.log.Warn("consumer worker error", "worker", workerID, "error", err.Error())
				time.Sleep(time.Second)
			}
		}
	}
}

func (kc *kafkaConsumer) handleErrors() {
	for err := range kc.consumerGroup.Errors() {
		kc.log.Warn("consumer group error", "error", err.Error())
	}
}

func (kc *kafkaConsumer) Stop() error {
	kc.cancel()
	if err := kc.consumerGroup.Close(); err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	kc.wg.Wait()
	return nil
}

// deliveryHandler consumes tickets-available messages and delivers
// them over email, recording the outcome on the persisted notification
type deliveryHandler struct {
	workerID     int
	emailService EmailService
	repo         Repository
	maxRetries   int
	retryBackoff time.Duration
	log          *logger.Logger
}

func (h *deliveryHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *deliveryHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *deliveryHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}
			if err := h.processMessage(session.Context(), message); err != nil {
				h.log.Warn("failed to process notification message",
					"worker", h.workerID,
					"offset", message.Offset,
					"error", err.Error(),
				)
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *deliveryHandler) processMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	var payload TicketsAvailableMessage
	if err := json.Unmarshal(message.Value, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal notification message: %w", err)
	}

	// The redemption window may already be over when a message sat on
	// the topic too long
	if time.Now().UTC().After(payload.ExpiresAt) {
		h.log.Info("skipping expired notification message",
			"notification_id", payload.NotificationID.String(),
		)
		return nil
	}

	if err := h.deliverWithRetry(ctx, &payload); err != nil {
		if markErr := h.repo.MarkFailed(ctx, payload.NotificationID, err.Error()); markErr != nil {
			h.log.Warn("failed to record notification failure", "error", markErr.Error())
		}
		return err
	}

	if err := h.repo.MarkSent(ctx, payload.NotificationID, time.Now().UTC()); err != nil {
		h.log.Warn("failed to record notification delivery", "error", err.Error())
	}
	return nil
}

func (h *deliveryHandler) deliverWithRetry(ctx context.Context, payload *TicketsAvailableMessage) error {
	var lastErr error
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		lastErr = h.emailService.SendTicketsAvailable(ctx, payload)
		if lastErr == nil {
			return nil
		}

		if attempt == h.maxRetries {
			break
		}

		delay := h.retryBackoff * time.Duration(1<<attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("delivery failed after %d attempts: %w", h.maxRetries+1, lastErr)
}
