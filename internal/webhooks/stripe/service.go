package stripewebhook

import (
	"context"
	"errors"

	"github.com/autevo/filmtechos-backend/internal/reconciler"
	"github.com/autevo/filmtechos-backend/internal/webhooks/ledger"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/autevo/filmtechos-backend/pkg/metrics"
	"github.com/stripe/stripe-go/v84"
)

// Outcome is the acknowledged result of one delivery.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

type eventTranslator interface {
	FromStripeEvent(ctx context.Context, event *stripe.Event) (reconciler.Event, error)
}

type eventApplier interface {
	Apply(ctx context.Context, event reconciler.Event) (*reconciler.Outcome, error)
}

type inFlightGuard interface {
	Acquire(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type ServiceParams struct {
	Translator eventTranslator
	Reconciler eventApplier
	Ledger     ledger.Repository
	Guard      inFlightGuard
	Metrics    *metrics.WebhookMetrics
	Logger     *logger.Logger
}

// Service processes verified Stripe events exactly once per event id.
type Service struct {
	translator eventTranslator
	reconciler eventApplier
	ledger     ledger.Repository
	guard      inFlightGuard
	metrics    *metrics.WebhookMetrics
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Translator == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event translator required")
	}
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook ledger required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "in-flight guard required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		translator: params.Translator,
		reconciler: params.Reconciler,
		ledger:     params.Ledger,
		guard:      params.Guard,
		metrics:    params.Metrics,
		logg:       params.Logger,
	}, nil
}

// HandleEvent records the delivery, reconciles it, and reports the outcome. A
// returned error means the provider should redeliver.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event, payload []byte) (Outcome, error) {
	if event == nil || event.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "stripe event id required")
	}
	eventType := string(event.Type)
	ctx = s.logg.WithEvent(ctx, enums.WebhookProviderStripe.String(), event.ID, eventType)

	acquired, err := s.guard.Acquire(ctx, event.ID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check in-flight event")
	}
	if !acquired {
		s.metrics.Observe(enums.WebhookProviderStripe.String(), eventType, "in_flight")
		return "", pkgerrors.New(pkgerrors.CodeConflict, "event is already being processed")
	}
	defer func() {
		if err := s.guard.Release(s.logg.Detach(ctx), event.ID); err != nil {
			s.logg.Warn(ctx, "stripe_webhook.release_failed")
		}
	}()

	entry, err := s.ledger.Record(ctx, enums.WebhookProviderStripe, event.ID, eventType, payload)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record webhook")
	}
	if entry.Status.IsTerminal() {
		s.metrics.Observe(enums.WebhookProviderStripe.String(), eventType, string(OutcomeDuplicate))
		s.logg.Info(ctx, "stripe_webhook.duplicate")
		return OutcomeDuplicate, nil
	}

	outcome, err := s.process(ctx, event)
	if err != nil {
		if markErr := s.ledger.MarkFailed(ctx, entry.ID, err); markErr != nil {
			s.logg.Error(ctx, "stripe_webhook.ledger_failed", markErr)
		}
		s.metrics.Observe(enums.WebhookProviderStripe.String(), eventType, "failed")
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "process stripe event")
	}

	if outcome == OutcomeIgnored {
		err = s.ledger.MarkIgnored(ctx, entry.ID, reconciler.ErrUnhandledEvent.Error())
	} else {
		err = s.ledger.MarkProcessed(ctx, entry.ID)
	}
	if err != nil {
		s.logg.Error(ctx, "stripe_webhook.ledger_failed", err)
	}
	s.metrics.Observe(enums.WebhookProviderStripe.String(), eventType, string(outcome))
	return outcome, nil
}

func (s *Service) process(ctx context.Context, event *stripe.Event) (Outcome, error) {
	translated, err := s.translator.FromStripeEvent(ctx, event)
	if errors.Is(err, reconciler.ErrUnhandledEvent) {
		s.logg.Info(ctx, "stripe_webhook.ignored")
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}
	if _, err := s.reconciler.Apply(ctx, translated); err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}
