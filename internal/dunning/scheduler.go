// Package dunning runs the scheduled reminder batch over unpaid invoices.
package dunning

import (
	"context"
	"time"

	"github.com/smallbiznis/payline/internal/clock"
	"github.com/smallbiznis/payline/internal/jobs"
	"github.com/smallbiznis/payline/internal/ledger/domain"
	"github.com/smallbiznis/payline/internal/notification"
	"github.com/smallbiznis/payline/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Stage is one relative reminder point. OffsetDays is added to today to find
// the due date the stage targets: +7 means "due a week from now", -3 means
// "went overdue three days ago".
type Stage struct {
	Name       string
	OffsetDays int
}

// Stages returns the fixed reminder ladder, in firing order.
func Stages() []Stage {
	return []Stage{
		{Name: "T-7", OffsetDays: 7},
		{Name: "T-3", OffsetDays: 3},
		{Name: "T-1", OffsetDays: 1},
		{Name: "T+3", OffsetDays: -3},
	}
}

// StageReport counts one stage's outcome within a run.
type StageReport struct {
	Stage      string `json:"stage"`
	Candidates int    `json:"candidates"`
	Dispatched int    `json:"dispatched"`
	Skipped    int    `json:"skipped"`
}

type RunReport struct {
	RanAt  time.Time     `json:"ran_at"`
	Stages []StageReport `json:"stages"`
}

type Scheduler struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	repo     domain.Repository
	jobs     jobs.Dispatcher
	notifier *notification.Dispatcher
	metrics  *metrics.Metrics
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     domain.Repository
	Jobs     jobs.Dispatcher
	Notifier *notification.Dispatcher
	Metrics  *metrics.Metrics
	Config   Config `optional:"true"`
}

func New(p Params) *Scheduler {
	return &Scheduler{
		db:       p.DB,
		log:      p.Log.Named("dunning.scheduler"),
		cfg:      p.Config.withDefaults(),
		clock:    p.Clock,
		repo:     p.Repo,
		jobs:     p.Jobs,
		notifier: p.Notifier,
		metrics:  p.Metrics,
	}
}

var dunningStatuses = []domain.InvoiceStatus{
	domain.InvoiceStatusIssued,
	domain.InvoiceStatusPending,
}

// RunOnce evaluates every stage against today's date and dispatches one
// notification task per (invoice, stage) that has not been covered yet. The
// existence check here is advisory; the per-stage unique index underneath
// the dispatcher is what makes overlapping runs safe.
func (s *Scheduler) RunOnce(ctx context.Context) (*RunReport, error) {
	now := s.clock.Now()
	report := &RunReport{RanAt: now}

	for _, stage := range Stages() {
		target := now.AddDate(0, 0, stage.OffsetDays)
		stageReport := StageReport{Stage: stage.Name}

		invoices, err := s.repo.ListInvoicesDueOn(ctx, s.db, target, dunningStatuses)
		if err != nil {
			return report, err
		}
		stageReport.Candidates = len(invoices)

		for _, invoice := range invoices {
			ref := domain.NotifiableRef{Kind: domain.EntityKindInvoice, ID: invoice.ID}
			notified, err := s.repo.HasNotification(ctx, s.db, ref, domain.NotificationTypeInvoiceDunning, stage.Name)
			if err != nil {
				return report, err
			}
			if notified {
				stageReport.Skipped++
				s.metrics.ObserveDunningSkipped(stage.Name)
				continue
			}

			if err := s.dispatch(invoice, stage.Name); err != nil {
				s.log.Warn("dispatch failed",
					zap.Int64("invoice_id", int64(invoice.ID)),
					zap.String("stage", stage.Name),
					zap.Error(err),
				)
				continue
			}
			stageReport.Dispatched++
			s.metrics.ObserveDunningDispatched(stage.Name)
		}

		s.log.Info("dunning stage evaluated",
			zap.String("stage", stage.Name),
			zap.Int("candidates", stageReport.Candidates),
			zap.Int("dispatched", stageReport.Dispatched),
			zap.Int("skipped", stageReport.Skipped),
		)
		report.Stages = append(report.Stages, stageReport)
	}
	return report, nil
}

func (s *Scheduler) dispatch(invoice domain.Invoice, stage string) error {
	return s.jobs.Dispatch(jobs.Task{
		Name: "dunning.notify",
		Run: func(ctx context.Context) error {
			created, err := s.notifier.SendDunning(ctx, invoice, stage)
			if err != nil {
				return err
			}
			if !created {
				s.log.Debug("stage already covered",
					zap.Int64("invoice_id", int64(invoice.ID)),
					zap.String("stage", stage),
				)
			}
			return nil
		},
	})
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("dunning run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
