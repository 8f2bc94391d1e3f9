package monitor

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler turns a cron spec into monitor ticks.
type Scheduler struct {
	Cron    *cron.Cron
	monitor *Monitor
	now     func() time.Time
}

// NewScheduler registers spec (standard five fields or a descriptor such as
// "@every 5m") to tick m.
func NewScheduler(spec string, m *Monitor) (*Scheduler, error) {
	s := &Scheduler{
		Cron:    cron.New(cron.WithLocation(time.UTC)),
		monitor: m,
		now:     time.Now,
	}
	if _, err := s.Cron.AddFunc(spec, s.fire); err != nil {
		return nil, fmt.Errorf("register schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) fire() {
	s.monitor.Tick(s.now())
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[scheduler] started")
}

// RunNow ticks immediately (for the first fetch at start-up).
func (s *Scheduler) RunNow() {
	s.fire()
}

// Stop stops the cron scheduler and waits for a running tick dispatch.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[scheduler] stopped")
}
