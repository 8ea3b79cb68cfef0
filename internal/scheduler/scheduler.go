// Package scheduler runs periodic duplicate-detection sweeps. Each tick
// triggers an auto-merge pass for every configured tenant.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/opencdp/profile-engine/internal/config"
	"github.com/opencdp/profile-engine/usecase/merge"
)

type Scheduler struct {
	merger  *merge.UseCase
	cron    *cron.Cron
	tenants []string
	spec    string
	dedupe  string
	logger  *zap.Logger
}

func New(merger *merge.UseCase, cfg config.SchedulerConfig, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Tenants) == 0 {
		return nil, fmt.Errorf("scheduler enabled but no tenants configured")
	}

	s := &Scheduler{
		merger:  merger,
		cron:    cron.New(),
		tenants: cfg.Tenants,
		spec:    cfg.Cron,
		dedupe:  cfg.Strategy,
		logger:  logger,
	}

	if _, err := s.cron.AddFunc(cfg.Cron, s.sweep); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", cfg.Cron, err)
	}
	return s, nil
}

// Start launches the cron scheduler.
func (s *Scheduler) Start() {
	if s == nil || s.cron == nil {
		return
	}
	s.cron.Start()
	s.logger.Info("merge scheduler started",
		zap.String("cron", s.spec),
		zap.Strings("tenants", s.tenants),
		zap.String("strategy", s.dedupe),
	)
}

// Stop gracefully stops the scheduler, waiting for an in-flight sweep.
func (s *Scheduler) Stop(ctx context.Context) {
	if s == nil || s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.logger.Info("merge scheduler stopped")
}

// sweep runs one auto-merge pass per tenant. A tenant failure is logged
// and does not block the remaining tenants.
func (s *Scheduler) sweep() {
	ctx := context.Background()
	for _, tenant := range s.tenants {
		report, err := s.merger.AutoMerge(ctx, tenant, s.dedupe, false, 0)
		if err != nil {
			s.logger.Error("scheduled merge sweep failed",
				zap.String("tenant_id", tenant),
				zap.Error(err),
			)
			continue
		}
		s.logger.Info("scheduled merge sweep finished",
			zap.String("tenant_id", tenant),
			zap.Int("groups_found", report.GroupsFound),
			zap.Int("groups_merged", report.GroupsMerged),
			zap.Int("errors", len(report.Errors)),
		)
	}
}
