package sse

import (
	"context"
	"time"

	"renopilot/internal/config"
	"renopilot/internal/logger"
	"renopilot/internal/repository"
	"renopilot/internal/service"
)

// PollJob runs the ingestion loop on a fixed interval and pushes each run's
// report to connected clients.
type PollJob struct {
	ingestion service.IngestionService
	userRepo  repository.UserRepository
	manager   *Manager
	logger    *logger.Logger
	interval  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func NewPollJob(
	ingestion service.IngestionService,
	userRepo repository.UserRepository,
	manager *Manager,
	cfg *config.Config,
	logger *logger.Logger,
) *PollJob {
	interval := time.Duration(cfg.PollInterval) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &PollJob{
		ingestion: ingestion,
		userRepo:  userRepo,
		manager:   manager,
		logger:    logger,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start blocks, running one poll pass per tick until Stop is called.
func (j *PollJob) Start() {
	j.logger.Info("Starting ingestion poll job with interval:", j.interval.String())

	go j.runOnce()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			go j.runOnce()
		case <-j.ctx.Done():
			j.logger.Info("Ingestion poll job stopped")
			return
		}
	}
}

// Stop cancels the job; an in-flight pass finishes on its own deadline.
func (j *PollJob) Stop() {
	j.cancel()
}

func (j *PollJob) runOnce() {
	report, err := j.ingestion.PollOnce(j.ctx)
	if err != nil {
		j.logger.Error("Ingestion pass failed:", err)
		return
	}

	if report.NewMessages == 0 && report.OffersFound == 0 {
		return
	}

	j.logger.Info("Ingestion pass done:", report.NewMessages, "new message(s),", report.OffersFound, "offer(s)")

	users, err := j.userRepo.FindAll(j.ctx)
	if err != nil {
		j.logger.Error("Failed to list users for broadcast:", err)
		return
	}
	for _, user := range users {
		if j.manager.HasUserConnection(user.ID) {
			j.manager.BroadcastToUser(user.ID, "poll_report", report)
		}
	}
}
