package policy

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/xela07ax/guardian-demo/internal/address"
	"github.com/xela07ax/guardian-demo/internal/domain"
	"github.com/xela07ax/guardian-demo/internal/eventlog"
	"go.uber.org/zap"
)

const (
	ReasonApproved       = "APPROVED — Transaction permitted"
	ReasonFlaggedPrefix  = "BLOCKED — Address flagged: "
	ReasonNotAllowlisted = "BLOCKED — Address not in allowlist"
	ReasonCapExceeded    = "BLOCKED — Spend cap exceeded"
)

// EventSink получает каждую запись журнала сразу после Append.
// Вызывается под мьютексом Store, поэтому реализация НЕ должна блокироваться
// (аудит и уведомления кладут событие в буферизованный канал).
type EventSink interface {
	Record(event domain.Event)
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger.Named("policy-store") }
}

// WithClock подменяет время для меток FlaggedAddress.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithEventLog позволяет передать журнал с нестандартной емкостью.
func WithEventLog(log *eventlog.Log) Option {
	return func(s *Store) { s.events = log }
}

func WithSinks(sinks ...EventSink) Option {
	return func(s *Store) { s.sinks = append(s.sinks, sinks...) }
}

// Store единолично владеет состоянием демо-политики: лимит, потраченное,
// allowlist, реестр флагов и журнал событий. Все операции сериализованы мьютексом:
// каждая (вместе с записью в журнал) завершается до начала следующей.
type Store struct {
	mu sync.Mutex

	guardian     string
	child        string
	spendCap     domain.Balance
	currentSpent domain.Balance
	allowlist    []string
	flagged      []domain.FlaggedAddress

	events *eventlog.Log
	sinks  []EventSink

	now    func() time.Time
	logger *zap.Logger
}

func NewStore(seed Seed, opts ...Option) *Store {
	s := &Store{
		guardian:  seed.Guardian,
		child:     seed.Child,
		spendCap:  seed.SpendCap,
		allowlist: slices.Clone(seed.Allowlist),
		flagged:   slices.Clone(seed.Flagged),
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	if s.allowlist == nil {
		s.allowlist = []string{}
	}
	if s.flagged == nil {
		s.flagged = []domain.FlaggedAddress{}
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.events == nil {
		s.events = eventlog.New(eventlog.DefaultCapacity)
	}
	return s
}

// AddSink подключает получателя событий после создания Store (wiring в main).
func (s *Store) AddSink(sink EventSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// SetSpendCap заменяет лимит. Валидация (неотрицательность) на стороне вызывающего.
// currentSpent не трогается.
func (s *Store) SetSpendCap(limit domain.Balance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spendCap = limit
	s.record(domain.CapSet{Cap: limit})
	s.logger.Info("spend cap updated", zap.Uint64("cap", uint64(limit)))
}

// SetAllowlist полностью заменяет allowlist (не инкрементально, дубликаты сохраняются).
func (s *Store) SetAllowlist(addresses []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allowlist = cloneList(addresses)
	s.record(domain.AllowlistSet{Addresses: cloneList(addresses)})
	s.logger.Info("allowlist replaced", zap.Int("count", len(addresses)))
}

// FlagAddress добавляет адрес в реестр. Повторный флаг: ErrDuplicateFlag,
// состояние и журнал при этом не меняются.
func (s *Store) FlagAddress(addr, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flagIndex(addr) >= 0 {
		return fmt.Errorf("flag %s: %w", address.FormatShort(addr), domain.ErrDuplicateFlag)
	}

	s.flagged = append(s.flagged, domain.FlaggedAddress{
		Address:   addr,
		Reason:    reason,
		Timestamp: s.now().UnixMilli(),
	})
	s.record(domain.AddressFlagged{Address: addr, Reason: reason})
	s.logger.Info("address flagged", zap.String("address", addr), zap.String("reason", reason))
	return nil
}

// UnflagAddress удаляет адрес из реестра. Отсутствующий адрес: ErrNotFlagged.
func (s *Store) UnflagAddress(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.flagIndex(addr)
	if idx < 0 {
		return fmt.Errorf("unflag %s: %w", address.FormatShort(addr), domain.ErrNotFlagged)
	}

	s.flagged = slices.Delete(s.flagged, idx, idx+1)
	s.record(domain.AddressUnflagged{Address: addr})
	s.logger.Info("address unflagged", zap.String("address", addr))
	return nil
}

// CheckAddress принимает решение по транзакции. CHECK пишется в журнал ДО оценки,
// то есть при любом исходе. Приоритет фиксирован: реестр -> allowlist -> лимит.
// currentSpent увеличивается только на ветке одобрения.
func (s *Store) CheckAddress(addr string, amount domain.Balance) domain.CheckResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record(domain.AddressChecked{Address: addr, Amount: amount})

	result := s.decide(addr, amount)
	if result.Approved {
		s.currentSpent += amount
		s.logger.Info("transaction approved",
			zap.String("address", addr),
			zap.Uint64("amount", uint64(amount)),
			zap.Uint64("current_spent", uint64(s.currentSpent)))
	} else {
		s.logger.Warn("transaction blocked",
			zap.String("address", addr),
			zap.Uint64("amount", uint64(amount)),
			zap.String("outcome", string(result.Outcome)))
	}
	return result
}

func (s *Store) decide(addr string, amount domain.Balance) domain.CheckResult {
	if idx := s.flagIndex(addr); idx >= 0 {
		return domain.CheckResult{
			Approved: false,
			Reason:   ReasonFlaggedPrefix + s.flagged[idx].Reason,
			Details:  "This address has been flagged by the safety registry.",
			Outcome:  domain.OutcomeFlagged,
		}
	}

	if !slices.Contains(s.allowlist, addr) {
		return domain.CheckResult{
			Approved: false,
			Reason:   ReasonNotAllowlisted,
			Details:  "Guardian has not approved this address for transactions.",
			Outcome:  domain.OutcomeNotAllowlisted,
		}
	}

	if exceedsCap(s.currentSpent, amount, s.spendCap) {
		return domain.CheckResult{
			Approved: false,
			Reason:   ReasonCapExceeded,
			Details: fmt.Sprintf("Transaction would exceed spend cap (%d DOT). Current spent: %d DOT.",
				s.spendCap, s.currentSpent),
			Outcome: domain.OutcomeCapExceeded,
		}
	}

	return domain.CheckResult{
		Approved: true,
		Reason:   ReasonApproved,
		Details:  "Address is in allowlist, not flagged, and within spend cap.",
		Outcome:  domain.OutcomeApproved,
	}
}

// exceedsCap считает spent+amount > limit без переполнения uint64.
// Лимит мог быть опущен ниже уже потраченного, тогда блокируется любая сумма.
func exceedsCap(spent, amount, limit domain.Balance) bool {
	if spent > limit {
		return true
	}
	return amount > limit-spent
}

// record вызывается только под s.mu
func (s *Store) record(payload domain.EventPayload) {
	event := s.events.Append(payload)
	for _, sink := range s.sinks {
		sink.Record(event)
	}
}

func (s *Store) flagIndex(addr string) int {
	return slices.IndexFunc(s.flagged, func(f domain.FlaggedAddress) bool {
		return f.Address == addr
	})
}

// --- Чтение ---

// Snapshot возвращает согласованную копию всего агрегата.
func (s *Store) Snapshot() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.State{
		Guardian:         s.guardian,
		Child:            s.child,
		SpendCap:         s.spendCap,
		CurrentSpent:     s.currentSpent,
		Allowlist:        cloneList(s.allowlist),
		FlaggedAddresses: slices.Clone(s.flagged),
		Events:           s.events.Entries(),
	}
}

func (s *Store) Events() []domain.Event {
	return s.events.Entries()
}

// IsAllowed: чистая проверка allowlist без записи в журнал.
func (s *Store) IsAllowed(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.allowlist, addr)
}

func (s *Store) IsFlagged(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flagIndex(addr) >= 0
}

func (s *Store) SpendCap() domain.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spendCap
}

func (s *Store) CurrentSpent() domain.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSpent
}

func (s *Store) Guardian() string { return s.guardian }

func (s *Store) Child() string { return s.child }

func cloneList(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
