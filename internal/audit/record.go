package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xela07ax/guardian-demo/internal/domain"
)

// Record: строка таблицы policy_events: зеркало записи журнала политики.
type Record struct {
	ID        string           `json:"id"`
	Type      domain.EventType `json:"type"`
	Address   string           `json:"address,omitempty"` // для фильтрации по адресу
	Payload   json.RawMessage  `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
}

// FromEvent превращает событие журнала в запись аудита.
func FromEvent(e domain.Event) (Record, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s payload: %w", e.Type, err)
	}
	return Record{
		ID:        e.ID,
		Type:      e.Type,
		Address:   subjectAddress(e.Data),
		Payload:   payload,
		Timestamp: time.UnixMilli(e.Timestamp).UTC(),
	}, nil
}

func subjectAddress(p domain.EventPayload) string {
	switch v := p.(type) {
	case domain.AddressFlagged:
		return v.Address
	case domain.AddressUnflagged:
		return v.Address
	case domain.AddressChecked:
		return v.Address
	default:
		return ""
	}
}
