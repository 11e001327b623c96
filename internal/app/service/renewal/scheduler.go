package renewal

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jameswitika/iei.org.au/pkg/config"
)

// Scheduler fires the daily run at the configured hour. A coarse ticker plus
// a last-run date guard keeps it at one run per day even across restarts
// within the same hour.
type Scheduler struct {
	cfg *config.Config
	log *zap.SugaredLogger
	svc *Service

	cancel      context.CancelFunc
	done        chan struct{}
	lastRunDate string
}

func NewScheduler(lc fx.Lifecycle, cfg *config.Config, log *zap.SugaredLogger, svc *Service) *Scheduler {
	s := &Scheduler{cfg: cfg, log: log, svc: svc, done: make(chan struct{})}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if !cfg.Scheduler.Enabled {
				log.Infow("renewal scheduler disabled")
				close(s.done)
				return nil
			}
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			go s.loop(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if s.cancel != nil {
				s.cancel()
			}
			select {
			case <-s.done:
			case <-ctx.Done():
			}
			return nil
		},
	})
	return s
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	interval := time.Duration(s.cfg.Scheduler.CheckIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()
	if now.Hour() < s.cfg.Scheduler.DailyRunHour {
		return
	}
	today := now.Format("2006-01-02")
	if s.lastRunDate == today {
		return
	}
	s.lastRunDate = today

	if _, err := s.svc.RunDaily(ctx); err != nil {
		s.log.Errorw("renewal_daily_run_failed", "err", err)
	}
}
