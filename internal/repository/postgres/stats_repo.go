package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/guardian-demo/internal/domain"
)

const topCheckedLimit = 5

const statsByTypeQuery = `
	SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE type = 'SET_CAP'),
		COUNT(*) FILTER (WHERE type = 'SET_ALLOWLIST'),
		COUNT(*) FILTER (WHERE type = 'FLAG'),
		COUNT(*) FILTER (WHERE type = 'UNFLAG'),
		COUNT(*) FILTER (WHERE type = 'CHECK')
	FROM policy_events
	WHERE timestamp > $1`

const statsTopCheckedQuery = `
	SELECT address, COUNT(*) AS cnt
	FROM policy_events
	WHERE type = 'CHECK' AND timestamp > $1
	GROUP BY address
	ORDER BY cnt DESC, address
	LIMIT $2`

const statsHourlyQuery = `
	SELECT to_char(date_trunc('hour', timestamp), 'YYYY-MM-DD"T"HH24:00'), COUNT(*)
	FROM policy_events
	WHERE timestamp > $1
	GROUP BY 1
	ORDER BY 1`

// Stats собирает сводку по событиям за последние window.
func (r *AuditRepo) Stats(ctx context.Context, window time.Duration) (*domain.AuditStats, error) {
	since := time.Now().Add(-window).UTC()
	s := &domain.AuditStats{
		WindowMinutes:  int(window.Minutes()),
		ByType:         make(map[domain.EventType]int64, len(domain.EventTypes)),
		TopChecked:     make([]domain.AddressCount, 0, topCheckedLimit),
		HourlyActivity: make([]domain.ActivityPoint, 0),
	}

	// 1. Счетчики по типам
	var setCap, setAllowlist, flag, unflag, check int64
	err := r.db.QueryRowContext(ctx, statsByTypeQuery, since).
		Scan(&s.TotalEvents, &setCap, &setAllowlist, &flag, &unflag, &check)
	if err != nil {
		return nil, fmt.Errorf("postgres: stats by type: %w", err)
	}
	s.ByType[domain.EventSetCap] = setCap
	s.ByType[domain.EventSetAllowlist] = setAllowlist
	s.ByType[domain.EventFlag] = flag
	s.ByType[domain.EventUnflag] = unflag
	s.ByType[domain.EventCheck] = check

	// 2. Самые проверяемые адреса
	rows, err := r.db.QueryContext(ctx, statsTopCheckedQuery, since, topCheckedLimit)
	if err != nil {
		return nil, fmt.Errorf("postgres: stats top checked: %w", err)
	}
	for rows.Next() {
		var ac domain.AddressCount
		if err := rows.Scan(&ac.Address, &ac.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan top checked: %w", err)
		}
		s.TopChecked = append(s.TopChecked, ac)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// 3. Активность по часам
	rows, err = r.db.QueryContext(ctx, statsHourlyQuery, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: stats hourly: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.ActivityPoint
		if err := rows.Scan(&p.Hour, &p.Count); err != nil {
			return nil, fmt.Errorf("postgres: scan hourly: %w", err)
		}
		s.HourlyActivity = append(s.HourlyActivity, p)
	}
	return s, rows.Err()
}
