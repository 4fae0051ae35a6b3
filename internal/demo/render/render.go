// Package render формирует человекочитаемые строки журнала и реестра.
package render

import (
	"fmt"
	"time"

	"github.com/xela07ax/guardian-demo/internal/address"
	"github.com/xela07ax/guardian-demo/internal/domain"
)

// Describe возвращает однострочное описание события.
func Describe(e domain.Event) string {
	switch d := e.Data.(type) {
	case domain.CapSet:
		return fmt.Sprintf("Spend cap set to %d DOT", d.Cap)
	case domain.AllowlistSet:
		n := len(d.Addresses)
		suffix := "es"
		if n == 1 {
			suffix = ""
		}
		return fmt.Sprintf("Allowlist updated (%d address%s)", n, suffix)
	case domain.AddressFlagged:
		return fmt.Sprintf("Flagged %s: %s", address.FormatShort(d.Address), d.Reason)
	case domain.AddressUnflagged:
		return fmt.Sprintf("Unflagged %s", address.FormatShort(d.Address))
	case domain.AddressChecked:
		return fmt.Sprintf("Safety check on %s (%d DOT)", address.FormatShort(d.Address), d.Amount)
	default:
		return "Unknown event"
	}
}

func Icon(t domain.EventType) string {
	switch t {
	case domain.EventSetCap:
		return "💰"
	case domain.EventSetAllowlist:
		return "📋"
	case domain.EventFlag:
		return "🚩"
	case domain.EventUnflag:
		return "✅"
	case domain.EventCheck:
		return "🔍"
	default:
		return "📝"
	}
}

// Clock форматирует метку журнала как HH:MM:SS в часовом поясе loc.
func Clock(tsMillis int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(tsMillis).In(loc).Format("15:04:05")
}

// TimeSince: "Ns ago", "Nm ago", "Nh ago" или "Nd ago". Будущее время считается как 0s.
func TimeSince(tsMillis int64, now time.Time) string {
	seconds := (now.UnixMilli() - tsMillis) / 1000
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds ago", seconds)
	}
	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm ago", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh ago", hours)
	}
	return fmt.Sprintf("%dd ago", hours/24)
}

// Line: событие в виде, удобном для вывода в консоль и JSON.
type Line struct {
	ID          string           `json:"id"`
	Type        domain.EventType `json:"type"`
	Icon        string           `json:"icon"`
	Description string           `json:"description"`
	Time        string           `json:"time"`
}

func Lines(events []domain.Event, loc *time.Location) []Line {
	out := make([]Line, 0, len(events))
	for _, e := range events {
		out = append(out, Line{
			ID:          e.ID,
			Type:        e.Type,
			Icon:        Icon(e.Type),
			Description: Describe(e),
			Time:        Clock(e.Timestamp, loc),
		})
	}
	return out
}
