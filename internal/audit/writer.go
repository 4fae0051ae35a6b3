package audit

/*
Writer: фоновая запись журнала политики в хранилище (PostgreSQL).

- Non-blocking: Record вызывается под мьютексом Store, поэтому только кладет
  событие в буферизованный канал. Переполнение — сброс нагрузки с логом ошибки.
- Batching: накопление и пакетная запись по таймеру или при достижении batchSize.
- Drain: Stop закрывает вход, воркер вычитывает остатки и делает финальный flush.
*/

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xela07ax/guardian-demo/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultBufferSize    = 1000
	DefaultFlushInterval = 500 * time.Millisecond
	batchSize            = 100
)

// Storage определяет, куда физически сохраняются записи
type Storage interface {
	WriteBatch(ctx context.Context, records []Record) error
}

type Option func(*Writer)

func WithBufferSize(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.bufferSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.flushInterval = d
		}
	}
}

// WithBufferGauge публикует заполненность буфера (backpressure).
func WithBufferGauge(g prometheus.Gauge) Option {
	return func(w *Writer) { w.fill = g }
}

type Writer struct {
	ch     chan domain.Event
	repo   Storage
	logger *zap.Logger
	wg     sync.WaitGroup

	// closed защищен mu: Record держит RLock на время неблокирующей отправки,
	// Stop берет Lock перед close(ch)
	mu     sync.RWMutex
	closed bool

	bufferSize    int
	flushInterval time.Duration
	fill          prometheus.Gauge
}

func NewWriter(repo Storage, logger *zap.Logger, opts ...Option) *Writer {
	w := &Writer{
		repo:          repo,
		logger:        logger.With(zap.String("mod", "audit")),
		bufferSize:    DefaultBufferSize,
		flushInterval: DefaultFlushInterval,
		fill:          prometheus.NewGauge(prometheus.GaugeOpts{Name: "unused_audit_fill"}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.ch = make(chan domain.Event, w.bufferSize)
	return w
}

func (w *Writer) Start() {
	w.wg.Add(1)
	go w.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (w *Writer) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.logger.Info("stopping audit writer: closing channel and flushing buffer...")
	close(w.ch)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("audit writer stopped gracefully")
}

// Record реализует policy.EventSink.
func (w *Writer) Record(event domain.Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.logger.Warn("audit event dropped: writer is stopping", zap.String("id", event.ID))
		return
	}

	select {
	case w.ch <- event:
		w.fill.Set(float64(len(w.ch)))
	default:
		w.logger.Error("audit_buffer_overflow",
			zap.String("id", event.ID),
			zap.String("type", string(event.Type)),
		)
	}
}

func (w *Writer) worker() {
	defer w.wg.Done()

	batch := make([]Record, 0, batchSize)
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	flush := func() {
		w.fill.Set(float64(len(w.ch)))
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст при остановке уже может быть закрыт
		if err := w.repo.WriteBatch(context.Background(), batch); err != nil {
			w.logger.Error("audit flush failed", zap.Int("records", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-w.ch:
			if !ok {
				flush() // Финальный сброс
				w.logger.Info("audit worker finished")
				return
			}
			rec, err := FromEvent(event)
			if err != nil {
				w.logger.Error("audit record skipped", zap.String("id", event.ID), zap.Error(err))
				continue
			}
			batch = append(batch, rec)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
