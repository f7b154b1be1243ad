package notifications

import (
	"context"
	"fmt"
	"sync"

	"gvteway/internal/shared/config"
	"gvteway/internal/users"
	"gvteway/pkg/logger"
)

// Service owns the notification pipeline: the Kafka producer the
// gateway publishes through and the consumer workers that deliver
// email
type Service interface {
	Gateway() *Gateway
	ListRecent(ctx context.Context, limit int) ([]Notification, error)
	Start(ctx context.Context) error
	Stop() error
}

type service struct {
	cfg      *config.Config
	repo     Repository
	producer Producer
	consumer Consumer
	gateway  *Gateway
	log      *logger.Logger

	mu        sync.Mutex
	isRunning bool
}

// NewService wires the producer, consumer and gateway from config
func NewService(cfg *config.Config, repo Repository, usersRepo users.Repository) (Service, error) {
	producerConfig := DefaultKafkaProducerConfig()
	producerConfig.Brokers = cfg.Kafka.Brokers
	producerConfig.Topic = cfg.Kafka.NotificationTopic

	producer, err := NewKafkaProducer(producerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification producer: %w", err)
	}

	var emailService EmailService
	if cfg.SMTP.Host != "" {
		emailService, err = NewSMTPEmailService(&SMTPConfig{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			FromEmail: cfg.SMTP.FromEmail,
			FromName:  cfg.SMTP.FromName,
			UseTLS:    true,
			Timeout:   cfg.SMTP.Timeout,
		})
		if err != nil {
			return nil, err
		}
	} else {
		emailService = NewMockEmailService()
	}

	consumerConfig := DefaultConsumerConfig()
	consumerConfig.Brokers = cfg.Kafka.Brokers
	consumerConfig.Topics = []string{cfg.Kafka.NotificationTopic}
	consumerConfig.GroupID = cfg.Kafka.ConsumerGroupID

	consumer, err := NewKafkaConsumer(consumerConfig, emailService, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification consumer: %w", err)
	}

	return &service{
		cfg:      cfg,
		repo:     repo,
		producer: producer,
		consumer: consumer,
		gateway:  NewGateway(repo, usersRepo, producer),
		log:      logger.GetDefault(),
	}, nil
}

func (s *service) Gateway() *Gateway {
	return s.gateway
}

func (s *service) ListRecent(ctx context.Context, limit int) ([]Notification, error) {
	return s.repo.ListRecent(ctx, limit)
}

func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("notification service is already running")
	}

	if err := s.consumer.Start(ctx, s.cfg.Kafka.NumConsumerWorkers); err != nil {
		return fmt.Errorf("failed to start consumers: %w", err)
	}

	s.isRunning = true
	s.log.Info("notification service started", "workers", s.cfg.Kafka.NumConsumerWorkers)
	return nil
}

func (s *service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	if err := s.consumer.Stop(); err != nil {
		s.log.Warn("error stopping consumer", "error", err.Error())
	}
	if err := s.producer.Close(); err != nil {
		s.log.Warn("error closing producer", "error", err.Error())
	}

	s.isRunning = false
	s.log.Info("notification service stopped")
	return nil
}
