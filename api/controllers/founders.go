package controllers

import (
	"context"
	"net/http"

	"github.com/autevo/filmtechos-backend/internal/founders"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/logger"

	"github.com/autevo/filmtechos-backend/api/responses"
)

type FounderSlots interface {
	Snapshot(ctx context.Context) (*founders.Snapshot, error)
	Recount(ctx context.Context) (*founders.Snapshot, error)
}

type publicFounderSlots struct {
	MaxSlots  int `json:"max_slots"`
	Remaining int `json:"remaining"`
}

// PublicFounderSlots shows how many founder seats are left on the pricing page.
func PublicFounderSlots(svc FounderSlots, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "founder allocator unavailable"))
			return
		}
		snapshot, err := svc.Snapshot(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load founder slots"))
			return
		}
		responses.WriteSuccess(w, publicFounderSlots{MaxSlots: snapshot.MaxSlots, Remaining: snapshot.Remaining})
	}
}

func AdminFounderSnapshot(svc FounderSlots, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "founder allocator unavailable"))
			return
		}
		snapshot, err := svc.Snapshot(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load founder slots"))
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}

// AdminFounderRecount rewrites the counter row from the founding-member flags.
func AdminFounderRecount(svc FounderSlots, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "founder allocator unavailable"))
			return
		}
		snapshot, err := svc.Recount(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recount founder slots"))
			return
		}
		logg.Info(logg.WithFields(r.Context(), map[string]any{
			"used":    snapshot.Used,
			"counter": snapshot.Counter,
		}), "founders.recounted")
		responses.WriteSuccess(w, snapshot)
	}
}
