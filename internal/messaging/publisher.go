package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"keepsake-server/internal/engine"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	publishTimeout    = 10 * time.Second
	publishMaxRetries = 3
	publisherAppID    = "keepsake-server"
)

// ProgressionNotification - сообщение для слоя представления и аудио-плеера
// о результате обработки одного события.
type ProgressionNotification struct {
	PlayerID    string        `json:"playerId"`
	EventType   string        `json:"eventType"`
	Result      engine.Result `json:"result"`
	PublishedAt time.Time     `json:"publishedAt"`
}

// ResultPublisher публикует результаты движка прогрессии.
//
//go:generate mockery --name ResultPublisher --output ./mocks --outpkg mocks --case=underscore
type ResultPublisher interface {
	PublishProgressionResult(ctx context.Context, notification ProgressionNotification) error
	Close() error
}

// rabbitMQResultPublisher реализует ResultPublisher поверх RabbitMQ.
type rabbitMQResultPublisher struct {
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQResultPublisher открывает канал и объявляет durable очередь.
func NewRabbitMQResultPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (ResultPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("result publisher: не удалось открыть канал: %w", err)
	}
	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("result publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}
	log := logger.Named("ResultPublisher")
	log.Info("Очередь результатов объявлена", zap.String("queue", queueName))
	return &rabbitMQResultPublisher{channel: ch, queueName: queueName, logger: log}, nil
}

func (p *rabbitMQResultPublisher) PublishProgressionResult(ctx context.Context, notification ProgressionNotification) error {
	if notification.PublishedAt.IsZero() {
		notification.PublishedAt = time.Now().UTC()
	}
	return p.publishMessage(ctx, notification)
}

func (p *rabbitMQResultPublisher) Close() error {
	if p.channel == nil {
		return nil
	}
	return p.channel.Close()
}

// publishMessage сериализует payload и публикует его с повторными попытками.
func (p *rabbitMQResultPublisher) publishMessage(ctx context.Context, payload interface{}) error {
	if p.channel == nil {
		return errors.New("result publisher: канал не инициализирован")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка маршалинга сообщения в JSON: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= publishMaxRetries; attempt++ {
		lastErr = p.channel.PublishWithContext(ctx,
			"",          // exchange
			p.queueName, // routing key
			false,       // mandatory
			false,       // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
				AppId:        publisherAppID,
			},
		)
		if lastErr == nil {
			return nil
		}
		p.logger.Warn("Ошибка публикации результата",
			zap.String("queue", p.queueName),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		if attempt < publishMaxRetries {
			select {
			case <-ctx.Done():
				return fmt.Errorf("публикация прервана: %w", ctx.Err())
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
	}
	return fmt.Errorf("не удалось опубликовать сообщение в очередь '%s' после %d попыток: %w",
		p.queueName, publishMaxRetries, lastErr)
}
