package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/autevo/filmtechos-backend/internal/cron"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/autevo/filmtechos-backend/pkg/types"

	"github.com/autevo/filmtechos-backend/api/responses"
)

type CronTrigger interface {
	Trigger(ctx context.Context, name string) (*types.SweepReport, error)
}

// CronSweep runs a named sweep on behalf of an external scheduler. Per-item failures are
// part of the report and do not fail the request.
func CronSweep(svc CronTrigger, job string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cron service unavailable"))
			return
		}

		report, err := svc.Trigger(ctx, job)
		switch {
		case errors.Is(err, cron.ErrUnknownJob):
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "unknown job"))
			return
		case errors.Is(err, cron.ErrLocked):
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "another sweep is running"))
			return
		case err != nil && report == nil:
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sweep failed"))
			return
		case err != nil:
			logg.Error(logg.WithField(ctx, "job", job), "cron.sweep_partial_failure", err)
		}
		responses.WriteSuccess(w, report)
	}
}
