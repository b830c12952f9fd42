package sync

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"watch-sync-service/internal/config"
	"watch-sync-service/internal/logger"
)

// Scheduler periodically syncs every user with a linked tracker account.
type Scheduler struct {
	cfg     config.SchedulerConfig
	manager *Manager
	cron    *cron.Cron
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(cfg config.SchedulerConfig, manager *Manager) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:     cfg,
		manager: manager,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		logger.Log.Info("Scheduler is disabled")
		return nil
	}

	logger.Log.Info("Starting scheduler", zap.String("interval", s.cfg.Interval))

	id, err := s.cron.AddFunc(s.cfg.Interval, s.triggerSync)
	if err != nil {
		return err
	}

	s.entryID = id
	s.cron.Start()
	return nil
}

// Stop cancels an in-flight run and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	logger.Log.Info("Stopped scheduler")
}

func (s *Scheduler) triggerSync() {
	logger.Log.Info("Triggering scheduled sync")

	users, err := s.manager.LinkedUsers(s.ctx)
	if err != nil {
		logger.Log.Error("Failed to list linked users", zap.Error(err))
		return
	}

	for _, userID := range users {
		if s.ctx.Err() != nil {
			return
		}
		result, err := s.manager.SyncLinked(s.ctx, userID)
		switch {
		case errors.Is(err, ErrSyncInProgress):
			logger.Log.Info("Sync already running, skipping scheduled run", zap.String("userID", userID))
		case err != nil:
			logger.Log.Error("Scheduled sync failed", zap.String("userID", userID), zap.Error(err))
		default:
			logger.Log.Info("Scheduled sync complete",
				zap.String("userID", userID),
				zap.Int("imported", result.Imported),
				zap.Int("merged", result.Merged),
				zap.Int("exported", result.Exported),
				zap.Int("errors", len(result.Errors)),
			)
		}
	}
}
