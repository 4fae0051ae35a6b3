package domain

import (
	"encoding/json"
	"fmt"
)

// EventType определяет вид записи журнала событий
type EventType string

const (
	EventSetCap       EventType = "SET_CAP"
	EventSetAllowlist EventType = "SET_ALLOWLIST"
	EventFlag         EventType = "FLAG"
	EventUnflag       EventType = "UNFLAG"
	EventCheck        EventType = "CHECK"
)

// EventTypes: полный список типов в порядке объявления.
var EventTypes = []EventType{EventSetCap, EventSetAllowlist, EventFlag, EventUnflag, EventCheck}

// Valid сообщает, известен ли тип.
func (t EventType) Valid() bool {
	switch t {
	case EventSetCap, EventSetAllowlist, EventFlag, EventUnflag, EventCheck:
		return true
	}
	return false
}

// EventPayload: закрытое объединение (sum type) полезных нагрузок событий.
// Реализовать его можно только внутри пакета domain.
type EventPayload interface {
	EventType() EventType
	isEventPayload()
}

// CapSet: гардиан установил лимит трат.
type CapSet struct {
	Cap Balance `json:"cap"`
}

// AllowlistSet: allowlist заменен целиком.
type AllowlistSet struct {
	Addresses []string `json:"addresses"`
}

// AddressFlagged: адрес добавлен в реестр.
type AddressFlagged struct {
	Address string `json:"address"`
	Reason  string `json:"reason"`
}

// AddressUnflagged: адрес удален из реестра.
type AddressUnflagged struct {
	Address string `json:"address"`
}

// AddressChecked: проверка транзакции (пишется при любом исходе).
type AddressChecked struct {
	Address string  `json:"address"`
	Amount  Balance `json:"amount"`
}

func (CapSet) EventType() EventType           { return EventSetCap }
func (AllowlistSet) EventType() EventType     { return EventSetAllowlist }
func (AddressFlagged) EventType() EventType   { return EventFlag }
func (AddressUnflagged) EventType() EventType { return EventUnflag }
func (AddressChecked) EventType() EventType   { return EventCheck }

func (CapSet) isEventPayload()           {}
func (AllowlistSet) isEventPayload()     {}
func (AddressFlagged) isEventPayload()   {}
func (AddressUnflagged) isEventPayload() {}
func (AddressChecked) isEventPayload()   {}

// Event: запись журнала. Type всегда совпадает с Data.EventType().
type Event struct {
	Type      EventType    `json:"type"`
	Data      EventPayload `json:"data"`
	Timestamp int64        `json:"timestamp"` // epoch ms
	ID        string       `json:"id"`
}

// UnmarshalJSON восстанавливает конкретный вариант Data по полю type.
func (e *Event) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type      EventType       `json:"type"`
		Data      json.RawMessage `json:"data"`
		Timestamp int64           `json:"timestamp"`
		ID        string          `json:"id"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	payload, err := DecodePayload(raw.Type, raw.Data)
	if err != nil {
		return err
	}

	e.Type = raw.Type
	e.Data = payload
	e.Timestamp = raw.Timestamp
	e.ID = raw.ID
	return nil
}

// DecodePayload разбирает JSON полезной нагрузки в вариант, соответствующий типу.
func DecodePayload(t EventType, data []byte) (EventPayload, error) {
	switch t {
	case EventSetCap:
		return decodeAs[CapSet](data)
	case EventSetAllowlist:
		p, err := decodeAs[AllowlistSet](data)
		if err != nil {
			return nil, err
		}
		if set := p.(AllowlistSet); set.Addresses == nil {
			set.Addresses = []string{}
			return set, nil
		}
		return p, nil
	case EventFlag:
		return decodeAs[AddressFlagged](data)
	case EventUnflag:
		return decodeAs[AddressUnflagged](data)
	case EventCheck:
		return decodeAs[AddressChecked](data)
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
}

func decodeAs[T EventPayload](data []byte) (EventPayload, error) {
	var p T
	if err := decodeInto(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeInto(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode event payload: %w", err)
	}
	return nil
}
