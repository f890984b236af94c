// Package eventbus publishes ledger events to RabbitMQ.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

const (
	publishTimeout        = 5 * time.Second
	defaultReconnectDelay = 2 * time.Second
	confirmBuffer         = 64
)

var (
	// ErrNotReady is returned when the publisher has no open channel.
	ErrNotReady = errors.New("eventbus: publisher not ready")
	// ErrNotConfirmed is returned when the broker nacks a message.
	ErrNotConfirmed = errors.New("eventbus: message not confirmed")
	// ErrConfirmTimeout is returned when no confirmation arrives in time.
	ErrConfirmTimeout = errors.New("eventbus: confirmation timeout")
)

// Config describes the broker and the outgoing exchange.
type Config struct {
	URL            string
	Exchange       string
	ExchangeType   string
	ReconnectDelay time.Duration
}

// Publisher sends JSON messages to a durable exchange with publisher confirms.
// Publishes are serialised and each one waits for the confirmation carrying
// its own delivery tag. A channel whose confirmation went missing is closed
// and replaced, so a late confirm can never be credited to a later message.
type Publisher struct {
	mu        sync.Mutex
	cfg       Config
	conn      *amqp.Connection
	channel   *amqp.Channel
	confirms  chan amqp.Confirmation
	published uint64
	logger    *slog.Logger
	done      chan struct{}
	closed    bool
}

// Dial connects, enables confirm mode and declares the exchange. A watcher
// redials the broker whenever the connection drops until Close is called.
func Dial(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = amqp.ExchangeTopic
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	p := &Publisher{cfg: cfg, logger: logger, done: make(chan struct{})}
	p.mu.Lock()
	closes, err := p.connectLocked()
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	logger.Info("eventbus connected", slog.String("exchange", cfg.Exchange), slog.String("type", cfg.ExchangeType))
	go p.watch(closes)
	return p, nil
}

func (p *Publisher) connectLocked() (chan *amqp.Error, error) {
	conn, err := amqp.Dial(p.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("eventbus: dial: %w", err)
	}
	p.conn = conn
	if err := p.openChannelLocked(); err != nil {
		_ = conn.Close()
		p.conn = nil
		return nil, err
	}
	return conn.NotifyClose(make(chan *amqp.Error, 1)), nil
}

// openChannelLocked replaces the producer channel. Delivery tags restart at
// one on every new channel.
func (p *Publisher) openChannelLocked() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("eventbus: open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("eventbus: confirm mode: %w", err)
	}
	if err := ch.ExchangeDeclare(p.cfg.Exchange, p.cfg.ExchangeType, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("eventbus: declare exchange %s: %w", p.cfg.Exchange, err)
	}
	p.channel = ch
	p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer))
	p.published = 0
	return nil
}

// dropChannelLocked discards the producer channel together with any
// confirmations still in flight on it.
func (p *Publisher) dropChannelLocked() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	p.channel = nil
	p.confirms = nil
	p.published = 0
}

func (p *Publisher) ensureChannelLocked() error {
	if p.closed {
		return ErrNotReady
	}
	if p.channel != nil {
		return nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		return ErrNotReady
	}
	if err := p.openChannelLocked(); err != nil {
		p.logger.Warn("eventbus channel reopen failed", slog.Any("error", err))
		return ErrNotReady
	}
	return nil
}

// watch redials after the broker drops the connection.
func (p *Publisher) watch(closes chan *amqp.Error) {
	for {
		select {
		case <-p.done:
			return
		case amqpErr := <-closes:
			select {
			case <-p.done:
				return
			default:
			}
			p.logger.Warn("eventbus connection lost", slog.Any("error", amqpErr))
			next, ok := p.reconnect()
			if !ok {
				return
			}
			closes = next
		}
	}
}

func (p *Publisher) reconnect() (chan *amqp.Error, bool) {
	p.mu.Lock()
	p.dropChannelLocked()
	p.mu.Unlock()
	for attempt := 1; ; attempt++ {
		select {
		case <-p.done:
			return nil, false
		case <-time.After(p.cfg.ReconnectDelay):
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, false
		}
		closes, err := p.connectLocked()
		p.mu.Unlock()
		if err == nil {
			p.logger.Info("eventbus reconnected", slog.Int("attempt", attempt))
			return closes, true
		}
		p.logger.Warn("eventbus reconnect failed", slog.Int("attempt", attempt), slog.Any("error", err))
	}
}

// PublishMessage marshals payload and waits for the broker confirmation.
func (p *Publisher) PublishMessage(ctx context.Context, routingKey string, payload any) error {
	if p == nil {
		return ErrNotReady
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("eventbus: marshal: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureChannelLocked(); err != nil {
		return err
	}
	err = p.channel.Publish(p.cfg.Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		p.dropChannelLocked()
		return fmt.Errorf("eventbus: publish %s: %w", routingKey, err)
	}
	p.published++

	err = awaitConfirm(ctx, p.confirms, p.published, publishTimeout)
	if err != nil && !errors.Is(err, ErrNotConfirmed) {
		p.logger.Warn("eventbus confirmation lost, resetting channel",
			slog.String("routing_key", routingKey), slog.Uint64("delivery_tag", p.published), slog.Any("error", err))
		p.dropChannelLocked()
	}
	if err != nil {
		return fmt.Errorf("eventbus: publish %s: %w", routingKey, err)
	}
	return nil
}

// awaitConfirm waits for the confirmation of tag. Confirmations for earlier
// tags are leftovers of abandoned publishes and are skipped.
func awaitConfirm(ctx context.Context, confirms <-chan amqp.Confirmation, tag uint64, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case confirm, ok := <-confirms:
			if !ok {
				return ErrNotReady
			}
			if confirm.DeliveryTag < tag {
				continue
			}
			if confirm.DeliveryTag > tag {
				return fmt.Errorf("%w: expected tag %d, got %d", ErrNotReady, tag, confirm.DeliveryTag)
			}
			if !confirm.Ack {
				return ErrNotConfirmed
			}
			return nil
		case <-timer.C:
			return ErrConfirmTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the reconnect watcher and shuts the channel and connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed && p.done != nil {
		close(p.done)
	}
	p.closed = true
	p.dropChannelLocked()
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	return p.conn.Close()
}
