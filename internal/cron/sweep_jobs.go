package cron

import (
	"context"
	"fmt"

	"github.com/autevo/filmtechos-backend/internal/founders"
	"github.com/autevo/filmtechos-backend/internal/tenants"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/autevo/filmtechos-backend/pkg/types"
)

// Sweeper is a batch pass that reports what it changed.
type Sweeper interface {
	Sweep(ctx context.Context) (*types.SweepReport, error)
}

// ReportingJob is a Job whose run can be requested on demand with its report returned.
type ReportingJob interface {
	Job
	Sweeper
}

type FounderExpiryJobParams struct {
	Logger  *logger.Logger
	Sweeper *founders.ExpirySweeper
}

// NewFounderExpiryJob moves founders past their price lock to the standard price.
func NewFounderExpiryJob(params FounderExpiryJobParams) (ReportingJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("founder expiry sweeper required")
	}
	return &sweepJob{name: founders.ExpiryJobName, logg: params.Logger, sweeper: params.Sweeper}, nil
}

type TrialExpiryJobParams struct {
	Logger  *logger.Logger
	Tenants *tenants.Service
}

// NewTrialExpiryJob suspends tenants whose trial ended without a subscription.
func NewTrialExpiryJob(params TrialExpiryJobParams) (ReportingJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tenants == nil {
		return nil, fmt.Errorf("tenants service required")
	}
	return &sweepJob{
		name:    tenants.TrialExpiryJobName,
		logg:    params.Logger,
		sweeper: sweeperFunc(params.Tenants.ExpireTrials),
	}, nil
}

type sweeperFunc func(ctx context.Context) (*types.SweepReport, error)

func (f sweeperFunc) Sweep(ctx context.Context) (*types.SweepReport, error) { return f(ctx) }

type sweepJob struct {
	name    string
	logg    *logger.Logger
	sweeper Sweeper
}

func (j *sweepJob) Name() string { return j.name }

func (j *sweepJob) Run(ctx context.Context) error {
	_, err := j.Sweep(ctx)
	return err
}

func (j *sweepJob) Sweep(ctx context.Context) (*types.SweepReport, error) {
	report, err := j.sweeper.Sweep(ctx)
	if report != nil {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"scanned":  report.Scanned,
			"migrated": report.Migrated,
			"failures": len(report.Failures),
		}), "sweep report")
	}
	return report, err
}
