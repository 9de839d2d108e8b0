// Package scheduler drives the periodic lifecycle jobs. IntervalScheduler
// fires a task on interval boundaries, optionally only inside a trading
// window; DailyScheduler fires once per day at a wall-clock time.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"tradeflow/internal/logger"
)

// TradingWindow restricts interval runs to exchange hours. Zero value means
// no restriction.
type TradingWindow struct {
	Location  *time.Location
	OpenHour  int
	OpenMin   int
	CloseHour int
	CloseMin  int
}

// NewTradingWindow parses "HH:MM" open/close times in the given zone.
func NewTradingWindow(openAt, closeAt, tz string) (*TradingWindow, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler: bad timezone %q: %w", tz, err)
	}
	w := &TradingWindow{Location: loc}
	if _, err := fmt.Sscanf(openAt, "%d:%d", &w.OpenHour, &w.OpenMin); err != nil {
		return nil, fmt.Errorf("scheduler: bad open time %q: %w", openAt, err)
	}
	if _, err := fmt.Sscanf(closeAt, "%d:%d", &w.CloseHour, &w.CloseMin); err != nil {
		return nil, fmt.Errorf("scheduler: bad close time %q: %w", closeAt, err)
	}
	return w, nil
}

// Contains reports whether t falls on a weekday inside the window.
func (w *TradingWindow) Contains(t time.Time) bool {
	if w == nil {
		return true
	}
	local := t.In(w.Location)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= w.OpenHour*60+w.OpenMin && minutes < w.CloseHour*60+w.CloseMin
}

// IntervalScheduler runs a task aligned to interval boundaries. Ticks that
// land outside the trading window are skipped, not deferred.
type IntervalScheduler struct {
	Name           string
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool
	Window         *TradingWindow

	ctx   context.Context
	nowFn func() time.Time
}

// NewIntervalScheduler builds a scheduler bound to ctx.
func NewIntervalScheduler(ctx context.Context, name string, interval, offset time.Duration) *IntervalScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &IntervalScheduler{
		Name:     name,
		Interval: interval,
		Offset:   offset,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start blocks, running task on every aligned tick until ctx is cancelled.
func (s *IntervalScheduler) Start(task func()) {
	if s == nil || task == nil {
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("scheduler[%s]: invalid interval=%s, exit", s.Name, s.Interval)
		return
	}
	if s.Offset < 0 {
		logger.Warnf("scheduler[%s]: negative offset=%s, clamp to 0", s.Name, s.Offset)
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	logger.Infof("scheduler[%s]: started interval=%s offset=%s run_immediately=%v",
		s.Name, s.Interval, s.Offset, s.RunImmediately)

	if s.RunImmediately && s.Window.Contains(s.nowFn()) {
		task()
	}

	for {
		now := s.nowFn().UTC()
		wakeAt := nextAlignedTick(now, s.Interval, s.Offset)
		wait := wakeAt.Sub(now)
		logger.Debugf("scheduler[%s]: next run at %s (in %s)", s.Name, wakeAt.Format(time.RFC3339), wait.Truncate(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			logger.Infof("scheduler[%s]: ctx done, exit", s.Name)
			return
		case <-timer.C:
		}

		if !s.Window.Contains(s.nowFn()) {
			logger.Debugf("scheduler[%s]: outside trading window, tick skipped", s.Name)
			continue
		}
		task()
	}
}

// nextAlignedTick is the first interval boundary (plus offset) strictly
// after now.
func nextAlignedTick(now time.Time, interval, offset time.Duration) time.Time {
	next := now.Truncate(interval).Add(interval).Add(offset)
	for !next.After(now) {
		next = next.Add(interval)
	}
	return next
}

// DailyScheduler runs a task once per day at a fixed local time.
type DailyScheduler struct {
	Name     string
	Hour     int
	Minute   int
	Location *time.Location

	ctx   context.Context
	nowFn func() time.Time
}

// NewDailyScheduler builds a daily scheduler; at is "HH:MM" in tz.
func NewDailyScheduler(ctx context.Context, name, at, tz string) (*DailyScheduler, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler: bad timezone %q: %w", tz, err)
	}
	s := &DailyScheduler{Name: name, Location: loc, ctx: ctx, nowFn: time.Now}
	if _, err := fmt.Sscanf(at, "%d:%d", &s.Hour, &s.Minute); err != nil {
		return nil, fmt.Errorf("scheduler: bad time %q: %w", at, err)
	}
	return s, nil
}

// Start blocks, running task every day at the configured time until ctx is
// cancelled.
func (s *DailyScheduler) Start(task func()) {
	if s == nil || task == nil {
		return
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}
	logger.Infof("scheduler[%s]: daily at %02d:%02d %s", s.Name, s.Hour, s.Minute, s.Location)

	for {
		now := s.nowFn()
		wakeAt := nextDailyRun(now, s.Hour, s.Minute, s.Location)
		logger.Debugf("scheduler[%s]: next run at %s", s.Name, wakeAt.Format(time.RFC3339))

		timer := time.NewTimer(wakeAt.Sub(now))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			logger.Infof("scheduler[%s]: ctx done, exit", s.Name)
			return
		case <-timer.C:
		}
		task()
	}
}

// nextDailyRun is the next occurrence of hh:mm in loc strictly after now.
func nextDailyRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
