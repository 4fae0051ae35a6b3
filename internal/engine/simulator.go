package engine

/*
Simulator: обертка над policy.Store, имитирующая сетевую задержку блокчейна.

Каждый вызов проходит одинаковый пайплайн:
  слот ключа (семафор на 1) -> флаг loading -> задержка [min, max) -> Store -> сброс флага.

Вызовы с одним ключом сериализованы: второй SetCap ждет, пока первый
не завершится, поэтому флаг loading не сбрасывается раньше времени.
Отмена контекста во время ожидания слота или задержки прерывает вызов
ДО обращения к Store. Сам вызов Store не прерывается.
*/

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/xela07ax/guardian-demo/internal/domain"
	"github.com/xela07ax/guardian-demo/internal/policy"
	"go.uber.org/zap"
)

type LoadingKey string

const (
	KeySetCap    LoadingKey = "setCap"
	KeyAllowlist LoadingKey = "allowlist"
	KeyFlag      LoadingKey = "flag"
	KeyUnflag    LoadingKey = "unflag"
	KeyCheck     LoadingKey = "check"
)

var LoadingKeys = []LoadingKey{KeySetCap, KeyAllowlist, KeyFlag, KeyUnflag, KeyCheck}

const (
	DefaultMinDelay        = 900 * time.Millisecond
	DefaultMaxDelay        = 1500 * time.Millisecond
	DefaultSimulatedAmount = domain.Balance(150)
)

type SimulatorConfig struct {
	MinDelay        time.Duration
	MaxDelay        time.Duration
	SimulatedAmount domain.Balance
}

func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		MinDelay:        DefaultMinDelay,
		MaxDelay:        DefaultMaxDelay,
		SimulatedAmount: DefaultSimulatedAmount,
	}
}

type SimulatorOption func(*Simulator)

// WithRandom подменяет источник случайной задержки: int64n(n) в [0, n).
func WithRandom(int64n func(n int64) int64) SimulatorOption {
	return func(s *Simulator) { s.int64n = int64n }
}

func WithMetrics(m *Metrics) SimulatorOption {
	return func(s *Simulator) { s.metrics = m }
}

// CheckObserver получает результат каждой проверки после выхода из Store.
type CheckObserver interface {
	ObserveCheck(addr string, amount domain.Balance, res domain.CheckResult)
}

func WithCheckObservers(obs ...CheckObserver) SimulatorOption {
	return func(s *Simulator) { s.observers = append(s.observers, obs...) }
}

func WithSimulatorLogger(logger *zap.Logger) SimulatorOption {
	return func(s *Simulator) { s.logger = logger.Named("simulator") }
}

type Simulator struct {
	store *policy.Store
	cfg   SimulatorConfig

	slots map[LoadingKey]chan struct{}

	mu      sync.RWMutex
	loading map[LoadingKey]bool

	int64n    func(n int64) int64
	metrics   *Metrics
	observers []CheckObserver
	logger    *zap.Logger
}

func NewSimulator(store *policy.Store, cfg SimulatorConfig, opts ...SimulatorOption) *Simulator {
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	s := &Simulator{
		store:   store,
		cfg:     cfg,
		slots:   make(map[LoadingKey]chan struct{}, len(LoadingKeys)),
		loading: make(map[LoadingKey]bool, len(LoadingKeys)),
		int64n:  rand.Int64N,
		metrics: NewMetrics(nil),
		logger:  zap.NewNop(),
	}
	for _, key := range LoadingKeys {
		s.slots[key] = make(chan struct{}, 1)
		s.loading[key] = false
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) Store() *policy.Store { return s.store }

func (s *Simulator) SetCap(ctx context.Context, limit domain.Balance) error {
	_, err := run(ctx, s, KeySetCap, func() (struct{}, error) {
		s.store.SetSpendCap(limit)
		return struct{}{}, nil
	})
	return err
}

func (s *Simulator) UpdateAllowlist(ctx context.Context, addresses []string) error {
	_, err := run(ctx, s, KeyAllowlist, func() (struct{}, error) {
		s.store.SetAllowlist(addresses)
		return struct{}{}, nil
	})
	return err
}

func (s *Simulator) FlagAccount(ctx context.Context, addr, reason string) error {
	_, err := run(ctx, s, KeyFlag, func() (struct{}, error) {
		return struct{}{}, s.store.FlagAddress(addr, reason)
	})
	return err
}

func (s *Simulator) UnflagAccount(ctx context.Context, addr string) error {
	_, err := run(ctx, s, KeyUnflag, func() (struct{}, error) {
		return struct{}{}, s.store.UnflagAddress(addr)
	})
	return err
}

// CheckSafety проверяет адрес на фиксированной демо-сумме.
func (s *Simulator) CheckSafety(ctx context.Context, addr string) (domain.CheckResult, error) {
	return s.Check(ctx, addr, s.cfg.SimulatedAmount)
}

func (s *Simulator) Check(ctx context.Context, addr string, amount domain.Balance) (domain.CheckResult, error) {
	return run(ctx, s, KeyCheck, func() (domain.CheckResult, error) {
		res := s.store.CheckAddress(addr, amount)
		s.metrics.observeCheck(res.Outcome)
		for _, o := range s.observers {
			o.ObserveCheck(addr, amount, res)
		}
		return res, nil
	})
}

// Loading возвращает копию флагов "операция в полете".
func (s *Simulator) Loading() map[LoadingKey]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[LoadingKey]bool, len(s.loading))
	for k, v := range s.loading {
		out[k] = v
	}
	return out
}

func (s *Simulator) IsLoading(key LoadingKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading[key]
}

func (s *Simulator) setLoading(key LoadingKey, v bool) {
	s.mu.Lock()
	s.loading[key] = v
	s.mu.Unlock()
}

func (s *Simulator) delay() time.Duration {
	spread := int64(s.cfg.MaxDelay - s.cfg.MinDelay)
	if spread <= 0 {
		return s.cfg.MinDelay
	}
	return s.cfg.MinDelay + time.Duration(s.int64n(spread))
}

// run: общий пайплайн вызова. Методы не бывают обобщенными, поэтому функция.
func run[T any](ctx context.Context, s *Simulator, key LoadingKey, call func() (T, error)) (T, error) {
	var zero T
	start := time.Now()
	pending := s.metrics.PendingOperations.WithLabelValues(string(key))
	pending.Inc()
	defer pending.Dec()

	status := "ok"
	defer func() {
		s.metrics.OperationsTotal.WithLabelValues(string(key), status).Inc()
		s.metrics.OperationDuration.WithLabelValues(string(key), status).Observe(time.Since(start).Seconds())
	}()

	if err := ctx.Err(); err != nil {
		status = "canceled"
		return zero, err
	}

	slot := s.slots[key]
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		status = "canceled"
		return zero, ctx.Err()
	}
	defer func() { <-slot }()

	s.setLoading(key, true)
	defer s.setLoading(key, false)

	timer := time.NewTimer(s.delay())
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		status = "canceled"
		s.logger.Debug("operation canceled before store call", zap.String("key", string(key)))
		return zero, ctx.Err()
	}

	res, err := call()
	if err != nil {
		status = "error"
		s.logger.Info("operation rejected", zap.String("key", string(key)), zap.Error(err))
		return zero, err
	}
	return res, nil
}
