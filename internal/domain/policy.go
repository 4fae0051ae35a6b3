package domain

import (
	"errors"
	"fmt"
)

// Balance: сумма в минимальных единицах демо-сети (DOT).
type Balance uint64

var (
	ErrDuplicateFlag = errors.New("address already flagged")
	ErrNotFlagged    = errors.New("address not found in flagged list")
	ErrNotGuardian   = errors.New("caller is not the guardian")
)

// ValidationError: некорректный ввод, обнаруженный ДО обращения к Store.
// Никогда не меняет состояние.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FlaggedAddress: запись реестра опасных адресов.
type FlaggedAddress struct {
	Address   string `json:"address"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"` // epoch ms
}

// CheckOutcome: машиночитаемый итог проверки (для метрик и фильтров).
type CheckOutcome string

const (
	OutcomeApproved       CheckOutcome = "approved"
	OutcomeFlagged        CheckOutcome = "flagged"
	OutcomeNotAllowlisted CheckOutcome = "not_allowlisted"
	OutcomeCapExceeded    CheckOutcome = "cap_exceeded"
)

// CheckResult: решение по предложенной транзакции.
// Блокировка не ошибка, а обычный результат с Approved=false.
type CheckResult struct {
	Approved bool         `json:"approved"`
	Reason   string       `json:"reason"`
	Details  string       `json:"details,omitempty"`
	Outcome  CheckOutcome `json:"outcome"`
}

// State: снимок агрегата политики для чтения (копия, не ссылка на внутренности Store).
type State struct {
	Guardian         string           `json:"guardian"`
	Child            string           `json:"child"`
	SpendCap         Balance          `json:"spend_cap"`
	CurrentSpent     Balance          `json:"current_spent"`
	Allowlist        []string         `json:"allowlist"`
	FlaggedAddresses []FlaggedAddress `json:"flagged_addresses"`
	Events           []Event          `json:"events"`
}

// Remaining возвращает остаток лимита. Если лимит опустили ниже потраченного, 0.
func (s State) Remaining() Balance {
	if s.CurrentSpent >= s.SpendCap {
		return 0
	}
	return s.SpendCap - s.CurrentSpent
}
