package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/xela07ax/guardian-demo/internal/address"
	"github.com/xela07ax/guardian-demo/internal/domain"
	"github.com/xela07ax/guardian-demo/internal/engine"
	"github.com/xela07ax/guardian-demo/internal/infra/auth"
	"go.uber.org/zap"
)

const (
	MsgInvalidCap         = "Please enter a valid positive number"
	MsgEmptyAllowlist     = "Please enter at least one address"
	MsgInvalidAddressList = "Invalid address format: "
	MsgInvalidAddress     = "Invalid Polkadot address format"
	MsgEmptyReason        = "Please provide a reason for flagging"
	MsgEmptyCheck         = "Please enter an address to check"
	MsgInvalidCheck       = "Invalid Polkadot SS58 address format"
)

type PanelOption func(*PanelService)

// WithGuardianOnly включает проверку, что мутации делает гардиан (по JWT в контексте).
func WithGuardianOnly(enabled bool) PanelOption {
	return func(s *PanelService) { s.guardianOnly = enabled }
}

func WithLogger(logger *zap.Logger) PanelOption {
	return func(s *PanelService) { s.logger = logger.Named("panel") }
}

// PanelService: логика панелей демо-сайта: разбор и проверка ввода
// (строки, как их присылает форма), затем вызов Simulator.
// Некорректный ввод возвращается как *domain.ValidationError и до Store не доходит.
type PanelService struct {
	sim          *engine.Simulator
	guardianOnly bool
	logger       *zap.Logger
}

func NewPanelService(sim *engine.Simulator, opts ...PanelOption) *PanelService {
	s := &PanelService{sim: sim, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PanelService) SetCap(ctx context.Context, input string) (domain.Balance, error) {
	limit, ok := parseLeadingInt(input)
	if !ok {
		return 0, domain.NewValidationError("cap", MsgInvalidCap)
	}
	if err := s.ensureGuardian(ctx); err != nil {
		return 0, err
	}
	if err := s.sim.SetCap(ctx, limit); err != nil {
		return 0, err
	}
	return limit, nil
}

func (s *PanelService) UpdateAllowlist(ctx context.Context, input string) ([]string, error) {
	addrs := address.ParseList(input)
	if len(addrs) == 0 {
		return nil, domain.NewValidationError("addresses", MsgEmptyAllowlist)
	}
	for _, a := range addrs {
		if !address.Validate(a) {
			return nil, domain.NewValidationError("addresses", MsgInvalidAddressList+a)
		}
	}
	if err := s.ensureGuardian(ctx); err != nil {
		return nil, err
	}
	if err := s.sim.UpdateAllowlist(ctx, addrs); err != nil {
		return nil, err
	}
	return addrs, nil
}

// Flag: адрес не обрезается (как в форме реестра), причина проверяется по trim.
func (s *PanelService) Flag(ctx context.Context, addr, reason string) error {
	if !address.Validate(addr) {
		return domain.NewValidationError("address", MsgInvalidAddress)
	}
	if strings.TrimSpace(reason) == "" {
		return domain.NewValidationError("reason", MsgEmptyReason)
	}
	if err := s.ensureGuardian(ctx); err != nil {
		return err
	}
	return s.sim.FlagAccount(ctx, addr, reason)
}

func (s *PanelService) Unflag(ctx context.Context, addr string) error {
	if !address.Validate(addr) {
		return domain.NewValidationError("address", MsgInvalidAddress)
	}
	if err := s.ensureGuardian(ctx); err != nil {
		return err
	}
	return s.sim.UnflagAccount(ctx, addr)
}

// Check: публичная проверка безопасности на демо-сумме. Ввод обрезается.
func (s *PanelService) Check(ctx context.Context, input string) (domain.CheckResult, error) {
	addr := strings.TrimSpace(input)
	if addr == "" {
		return domain.CheckResult{}, domain.NewValidationError("address", MsgEmptyCheck)
	}
	if !address.Validate(addr) {
		return domain.CheckResult{}, domain.NewValidationError("address", MsgInvalidCheck)
	}
	return s.sim.CheckSafety(ctx, addr)
}

func (s *PanelService) State() domain.State {
	return s.sim.Store().Snapshot()
}

// Events возвращает журнал, опционально только события типа t.
func (s *PanelService) Events(t domain.EventType) []domain.Event {
	events := s.sim.Store().Events()
	if t == "" {
		return events
	}
	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (s *PanelService) Loading() map[engine.LoadingKey]bool {
	return s.sim.Loading()
}

func (s *PanelService) ensureGuardian(ctx context.Context) error {
	if !s.guardianOnly {
		return nil
	}
	if err := auth.EnsureGuardian(ctx, s.sim.Store().Guardian()); err != nil {
		s.logger.Warn("guardian-only operation rejected", zap.Error(err))
		return err
	}
	return nil
}

// parseLeadingInt разбирает ведущее целое число, как это делает поле формы:
// пробелы слева, необязательный знак, цифры; хвост игнорируется.
// Отрицательные и нечисловые значения отклоняются.
func parseLeadingInt(input string) (domain.Balance, bool) {
	s := strings.TrimLeft(input, " \t\n\r")
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	if neg && n != 0 {
		return 0, false
	}
	return domain.Balance(n), true
}
