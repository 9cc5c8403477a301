package syncer

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler ticks on a short cron interval and triggers a sync when the
// configured interval has elapsed since the last run. Reading the config at
// every tick means interval changes take effect without a restart.
type Scheduler struct {
	Orchestrator *Orchestrator
	Config       ConfigStore

	cron *cron.Cron
	log  *zap.SugaredLogger
	now  func() time.Time
}

func NewScheduler(orch *Orchestrator, config ConfigStore, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		Orchestrator: orch,
		Config:       config,
		cron:         cron.New(),
		log:          log,
		now:          time.Now,
	}
}

// Start begins the tick loop. The tick is deliberately much shorter than any
// sensible sync interval; dueness is decided from config telemetry.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc("@every 10m", func() {
		s.tick(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Infow("sync scheduler started", "tick", "10m")
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) tick(ctx context.Context) {
	cfg, err := s.Config.GetSyncConfig(ctx)
	if err != nil {
		s.log.Warnw("scheduler could not load config", "error", err)
		return
	}
	if cfg == nil || !cfg.Enabled {
		return
	}

	interval := time.Duration(cfg.SyncIntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if cfg.LastSyncAt != nil && s.now().Sub(*cfg.LastSyncAt) < interval {
		return
	}

	if _, err := s.Orchestrator.SyncOpportunities(ctx); err != nil {
		s.log.Errorw("scheduled sync failed", "error", err)
	}
}
