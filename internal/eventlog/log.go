// Package eventlog: ограниченный журнал изменений состояния политики.
// Новые записи в начале, при переполнении вытесняется самая старая (FIFO).
package eventlog

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/guardian-demo/internal/domain"
)

// DefaultCapacity: сколько записей хранит журнал демо-сайта.
const DefaultCapacity = 50

type Option func(*Log)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithIDGenerator подменяет генератор идентификаторов записей.
func WithIDGenerator(newID func() string) Option {
	return func(l *Log) { l.newID = newID }
}

type Log struct {
	mu       sync.RWMutex
	entries  []domain.Event // [0]: самая свежая
	capacity int

	now   func() time.Time
	newID func() string
}

func New(capacity int, opts ...Option) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Log{
		entries:  make([]domain.Event, 0, capacity+1),
		capacity: capacity,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append создает запись, кладет ее в начало и обрезает журнал до capacity.
// Никогда не завершается ошибкой.
func (l *Log) Append(payload domain.EventPayload) domain.Event {
	event := domain.Event{
		Type:      payload.EventType(),
		Data:      payload,
		Timestamp: l.now().UnixMilli(),
		ID:        l.newID(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, domain.Event{})
	copy(l.entries[1:], l.entries)
	l.entries[0] = event

	if len(l.entries) > l.capacity {
		// Обнуляем хвост, чтобы не держать ссылки на вытесненные payload
		for i := l.capacity; i < len(l.entries); i++ {
			l.entries[i] = domain.Event{}
		}
		l.entries = l.entries[:l.capacity]
	}
	return event
}

// Entries возвращает копию журнала (свежие в начале).
func (l *Log) Entries() []domain.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Event, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Log) Capacity() int { return l.capacity }
