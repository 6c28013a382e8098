// Package events は登録確定イベントをRabbitMQへ発行する。
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// DefaultExchange はイベントを発行するトピックエクスチェンジ名。
	DefaultExchange = "launchpage.events"
	// RoutingKeySignupCreated は登録確定イベントのルーティングキー。
	RoutingKeySignupCreated = "signup.created"

	dialTimeout = 10 * time.Second
)

// SignupCreated は登録確定イベントのペイロード。
type SignupCreated struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	OccurredAt time.Time `json:"occurred_at"`
}

// channel は*amqp.Channelのうち発行に使う操作。
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher は signup.Notifier の実装。
type Publisher struct {
	exchange string
	logger   *slog.Logger
	now      func() time.Time
	newID    func() uuid.UUID

	mu      sync.Mutex
	conn    *amqp.Connection
	channel channel
	// reopen はチャネルを開き直してエクスチェンジを再宣言する。
	reopen func() (channel, error)
}

// SanitizeURL は環境変数由来のAMQP URLから空白や引用符を取り除き、スキームを検証する。
func SanitizeURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if clean == "" {
		return "", errors.New("AMQP URL is empty")
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("failed to parse AMQP URL: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewPublisher はRabbitMQへ接続し、トピックエクスチェンジを宣言したPublisherを返す。
func NewPublisher(amqpURL, exchange string, logger *slog.Logger) (*Publisher, error) {
	cleanURL, err := SanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	open := func() (channel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("failed to open channel: %w", err)
		}
		if err := declareExchange(ch, exchange); err != nil {
			ch.Close()
			return nil, err
		}
		return ch, nil
	}

	ch, err := open()
	if err != nil {
		conn.Close()
		return nil, err
	}

	p := newPublisher(ch, exchange, logger)
	p.conn = conn
	p.reopen = open
	return p, nil
}

func newPublisher(ch channel, exchange string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		exchange: exchange,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.New,
		channel:  ch,
	}
}

func declareExchange(ch channel, exchange string) error {
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return nil
}

// NotifySignup は signup.created イベントを発行する。
// 発行に失敗した場合はチャネルを開き直して1回だけ再試行する。
func (p *Publisher) NotifySignup(ctx context.Context, email string) error {
	event := SignupCreated{
		ID:         p.newID(),
		Email:      email,
		OccurredAt: p.now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode signup event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID.String(),
		Timestamp:    event.OccurredAt,
		Type:         RoutingKeySignupCreated,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, RoutingKeySignupCreated, false, false, msg)
	if err == nil {
		p.logger.Debug("signup event published",
			slog.String("event_id", event.ID.String()),
			slog.String("exchange", p.exchange),
		)
		return nil
	}

	if p.reopen == nil {
		return fmt.Errorf("failed to publish signup event: %w", err)
	}

	p.logger.Warn("publish failed; reopening channel",
		slog.String("exchange", p.exchange),
		slog.String("error", err.Error()),
	)
	ch, rerr := p.reopen()
	if rerr != nil {
		return fmt.Errorf("failed to publish signup event: %w", errors.Join(err, rerr))
	}
	p.channel.Close()
	p.channel = ch

	if err := p.channel.PublishWithContext(ctx, p.exchange, RoutingKeySignupCreated, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish signup event after reopen: %w", err)
	}
	return nil
}

// Close はチャネルと接続を閉じる。
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
