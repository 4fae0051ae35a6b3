// Package notify доставляет гардиану уведомления о действиях с реестром
// и заблокированных транзакциях через Redis Pub/Sub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/guardian-demo/internal/address"
	"github.com/xela07ax/guardian-demo/internal/domain"
	"go.uber.org/zap"
)

// Broker: транспорт публикации (Redis в проде, фейк в тестах).
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type RedisBroker struct {
	rdb *redis.Client
}

func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.rdb.Publish(ctx, channel, payload).Err()
}

const (
	publishBuffer  = 256
	publishTimeout = 3 * time.Second
)

// Publisher превращает события политики в уведомления и публикует их в фоне.
// Record (FLAG/UNFLAG) и ObserveCheck (заблокированные проверки) не блокируются.
type Publisher struct {
	broker  Broker
	channel string
	childID string
	logger  *zap.Logger

	ch chan domain.Notification
	wg sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	now   func() time.Time
	newID func() string
}

func NewPublisher(broker Broker, channel, childID string, logger *zap.Logger) *Publisher {
	return &Publisher{
		broker:  broker,
		channel: channel,
		childID: childID,
		logger:  logger.Named("notify-publisher"),
		ch:      make(chan domain.Notification, publishBuffer),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func (p *Publisher) Start() {
	p.wg.Add(1)
	go p.worker()
}

// Stop закрывает вход и дожидается публикации остатков.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	p.wg.Wait()
}

// Record реализует policy.EventSink.
func (p *Publisher) Record(event domain.Event) {
	var msg string
	switch d := event.Data.(type) {
	case domain.AddressFlagged:
		msg = fmt.Sprintf("Address %s flagged: %s", address.FormatShort(d.Address), d.Reason)
	case domain.AddressUnflagged:
		msg = fmt.Sprintf("Address %s removed from the safety registry", address.FormatShort(d.Address))
	default:
		return
	}
	p.enqueue(msg)
}

// ObserveCheck уведомляет только о заблокированных транзакциях.
func (p *Publisher) ObserveCheck(addr string, amount domain.Balance, res domain.CheckResult) {
	if res.Approved {
		return
	}
	p.enqueue(fmt.Sprintf("Blocked transaction of %d DOT to %s: %s", amount, address.FormatShort(addr), res.Reason))
}

func (p *Publisher) enqueue(msg string) {
	n := domain.Notification{
		ID:        p.newID(),
		ChildID:   p.childID,
		Message:   msg,
		Timestamp: p.now().UTC(),
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- n:
	default:
		p.logger.Error("notification_buffer_overflow", zap.String("id", n.ID))
	}
}

func (p *Publisher) worker() {
	defer p.wg.Done()
	for n := range p.ch {
		if err := p.publish(n); err != nil {
			p.logger.Error("publish failed", zap.String("id", n.ID), zap.Error(err))
		}
	}
}

func (p *Publisher) publish(n domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(3),
	)
	return r.Do(func() error {
		return p.broker.Publish(ctx, p.channel, payload)
	})
}
