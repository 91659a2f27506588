// Package heartbeat logs a periodic status line on a cron schedule.
package heartbeat

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/aegion/docbot/pkg/bot"
	"github.com/aegion/docbot/pkg/logger"
)

const checkInterval = time.Minute

type StatusSource interface {
	Status() bot.Status
}

type Service struct {
	expr   string
	source StatusSource
	last   time.Time
}

func NewService(expr string, source StatusSource) (*Service, error) {
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid heartbeat cron %q", expr)
	}
	return &Service{expr: expr, source: source}, nil
}

// Run checks the schedule once a minute until ctx is done.
func (s *Service) Run(ctx context.Context) {
	logger.InfoCF("heartbeat", "Heartbeat scheduled", map[string]any{
		"cron": s.expr,
	})

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

// tick logs the status when now falls on a due minute. Each minute fires at
// most once.
func (s *Service) tick(now time.Time) bool {
	minute := now.Truncate(time.Minute)
	if minute.Equal(s.last) {
		return false
	}

	due, err := gronx.New().IsDue(s.expr, minute)
	if err != nil {
		logger.WarnCF("heartbeat", "Cron evaluation failed", map[string]any{
			"cron":  s.expr,
			"error": err.Error(),
		})
		return false
	}
	if !due {
		return false
	}
	s.last = minute

	st := s.source.Status()
	logger.InfoCF("heartbeat", "Status", map[string]any{
		"mode":            st.Mode,
		"active_sessions": st.ActiveSessions,
		"history_length":  st.HistoryLength,
		"control_held":    st.ControlHeld,
	})
	return true
}
