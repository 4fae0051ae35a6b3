package domain

// AuditStats: сводка по истории событий политики за окно времени.
type AuditStats struct {
	WindowMinutes  int                 `json:"window_minutes"`
	TotalEvents    int64               `json:"total_events"`
	ByType         map[EventType]int64 `json:"by_type"`
	TopChecked     []AddressCount      `json:"top_checked"`
	HourlyActivity []ActivityPoint     `json:"hourly_activity"`
}

type AddressCount struct {
	Address string `json:"address"`
	Count   int64  `json:"count"`
}

type ActivityPoint struct {
	Hour  string `json:"hour"`
	Count int64  `json:"count"`
}
