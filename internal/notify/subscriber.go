package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/xela07ax/guardian-demo/internal/domain"
	"go.uber.org/zap"
)

type Callback func(domain.Notification)

// Subscriber раздает уведомления из канала всем подписчикам.
// Первый Subscribe запускает прослушивание, последний unsubscribe его останавливает.
type Subscriber struct {
	listen ListenFunc
	logger *zap.Logger

	mu        sync.Mutex
	nextID    int
	callbacks map[int]Callback
	cancel    context.CancelFunc
	done      chan struct{}

	gen  int           // поколение текущего слушателя
	prev chan struct{} // done последнего остановленного слушателя
}

func NewSubscriber(listen ListenFunc, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		listen:    listen,
		logger:    logger.Named("notify-subscriber"),
		callbacks: make(map[int]Callback),
	}
}

// Subscribe регистрирует callback и возвращает функцию отписки (идемпотентную).
func (s *Subscriber) Subscribe(cb Callback) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.callbacks[id] = cb
	if s.cancel == nil {
		s.start()
	}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

// Active сообщает, идет ли сейчас прослушивание.
func (s *Subscriber) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Close отписывает всех и дожидается остановки слушателя.
func (s *Subscriber) Close() {
	s.mu.Lock()
	clear(s.callbacks)
	s.stop()
	done := s.prev
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// remove не ждет завершения слушателя: отписка может прийти из самого callback.
func (s *Subscriber) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.callbacks, id)
	if len(s.callbacks) == 0 {
		s.stop()
	}
}

// start вызывается под s.mu. Новый слушатель подписывается на канал только
// после выхода предыдущего, так что подписка в Redis всегда одна.
func (s *Subscriber) start() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	prev := s.prev
	s.gen++
	gen := s.gen
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		if ctx.Err() != nil {
			return
		}
		s.listen(ctx, func(payload string) { s.dispatch(gen, payload) })
	}()
	s.logger.Debug("listener started", zap.Int("gen", gen))
}

// stop вызывается под s.mu; ждать s.prev нужно уже без блокировки.
func (s *Subscriber) stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.prev = s.done
	s.cancel = nil
	s.done = nil
	s.logger.Debug("listener stopped", zap.Int("gen", s.gen))
}

// dispatch отбрасывает сообщения остановленного слушателя: он мог успеть
// вынуть их из канала уже после отписки.
func (s *Subscriber) dispatch(gen int, payload string) {
	var n domain.Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		s.logger.Error("failed to parse notification", zap.Error(err))
		return
	}

	s.mu.Lock()
	if gen != s.gen || s.cancel == nil {
		s.mu.Unlock()
		s.logger.Debug("stale notification dropped", zap.String("id", n.ID))
		return
	}
	cbs := make([]Callback, 0, len(s.callbacks))
	for _, cb := range s.callbacks {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()

	for _, cb := range cbs {
		s.safeCall(cb, n)
	}
}

// safeCall изолирует панику одного подписчика от остальных.
func (s *Subscriber) safeCall(cb Callback, n domain.Notification) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("notification callback panicked", zap.Any("panic", r), zap.String("id", n.ID))
		}
	}()
	cb(n)
}
