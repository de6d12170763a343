package clerkwebhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/autevo/filmtechos-backend/internal/tenants"
	"github.com/autevo/filmtechos-backend/internal/webhooks/ledger"
	"github.com/autevo/filmtechos-backend/pkg/db"
	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	"github.com/autevo/filmtechos-backend/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventUserCreated is the only identity event acted upon.
const EventUserCreated = "user.created"

// Public metadata keys written on invitations.
const (
	MetadataInternalUserID = "internal_user_id"
	MetadataTenantID       = "tenant_id"
	MetadataRole           = "role"
)

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Provisioning names how a new identity was attached to a tenant.
type Provisioning string

const (
	ProvisionedExisting Provisioning = "existing"
	ProvisionedInvite   Provisioning = "invite"
	ProvisionedMember   Provisioning = "member"
	ProvisionedOwner    Provisioning = "owner"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type inFlightGuard interface {
	Acquire(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type identityDispatcher interface {
	Dispatch(ctx context.Context, userID uuid.UUID)
}

type ServiceParams struct {
	TenantRepo        tenants.Repository
	TransactionRunner txRunner
	Ledger            ledger.Repository
	Guard             inFlightGuard
	Identity          identityDispatcher
	Metrics           *metrics.WebhookMetrics
	Logger            *logger.Logger
	TrialPeriod       time.Duration
	Now               func() time.Time
}

// Service provisions tenants and users from identity provider sign-ups.
type Service struct {
	tenantRepo  tenants.Repository
	tx          txRunner
	ledger      ledger.Repository
	guard       inFlightGuard
	identity    identityDispatcher
	metrics     *metrics.WebhookMetrics
	logg        *logger.Logger
	trialPeriod time.Duration
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.TenantRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tenant repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
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
	trial := params.TrialPeriod
	if trial <= 0 {
		trial = 14 * 24 * time.Hour
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		tenantRepo:  params.TenantRepo,
		tx:          params.TransactionRunner,
		ledger:      params.Ledger,
		guard:       params.Guard,
		identity:    params.Identity,
		metrics:     params.Metrics,
		logg:        params.Logger,
		trialPeriod: trial,
		now:         now,
	}, nil
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type emailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// UserPayload is the user object carried by user.* events.
type UserPayload struct {
	ID                    string         `json:"id"`
	FirstName             *string        `json:"first_name"`
	LastName              *string        `json:"last_name"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	EmailAddresses        []emailAddress `json:"email_addresses"`
	PublicMetadata        map[string]any `json:"public_metadata"`
}

func (u UserPayload) email() string {
	for _, addr := range u.EmailAddresses {
		if addr.ID == u.PrimaryEmailAddressID {
			return addr.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

func (u UserPayload) name() string {
	var parts []string
	for _, p := range []*string{u.FirstName, u.LastName} {
		if p != nil && strings.TrimSpace(*p) != "" {
			parts = append(parts, strings.TrimSpace(*p))
		}
	}
	return strings.Join(parts, " ")
}

func (u UserPayload) metadata(key string) string {
	v, _ := u.PublicMetadata[key].(string)
	return strings.TrimSpace(v)
}

// HandleEvent processes one verified delivery identified by its svix-id.
func (s *Service) HandleEvent(ctx context.Context, eventID string, payload []byte) (Outcome, error) {
	if eventID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "webhook id required")
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook payload")
	}
	provider := enums.WebhookProviderClerk.String()
	ctx = s.logg.WithEvent(ctx, provider, eventID, env.Type)

	acquired, err := s.guard.Acquire(ctx, eventID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check in-flight event")
	}
	if !acquired {
		s.metrics.Observe(provider, env.Type, "in_flight")
		return "", pkgerrors.New(pkgerrors.CodeConflict, "event is already being processed")
	}
	defer func() {
		if err := s.guard.Release(s.logg.Detach(ctx), eventID); err != nil {
			s.logg.Warn(ctx, "clerk_webhook.release_failed")
		}
	}()

	entry, err := s.ledger.Record(ctx, enums.WebhookProviderClerk, eventID, env.Type, payload)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record webhook")
	}
	if entry.Status.IsTerminal() {
		s.metrics.Observe(provider, env.Type, string(OutcomeDuplicate))
		return OutcomeDuplicate, nil
	}

	if env.Type != EventUserCreated {
		if err := s.ledger.MarkIgnored(ctx, entry.ID, "unhandled event type"); err != nil {
			s.logg.Error(ctx, "clerk_webhook.ledger_failed", err)
		}
		s.metrics.Observe(provider, env.Type, string(OutcomeIgnored))
		return OutcomeIgnored, nil
	}

	var data UserPayload
	err = json.Unmarshal(env.Data, &data)
	if err == nil {
		_, err = s.UserCreated(ctx, data)
	}
	if err != nil {
		if markErr := s.ledger.MarkFailed(ctx, entry.ID, err); markErr != nil {
			s.logg.Error(ctx, "clerk_webhook.ledger_failed", markErr)
		}
		s.metrics.Observe(provider, env.Type, "failed")
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "process clerk event")
	}
	if err := s.ledger.MarkProcessed(ctx, entry.ID); err != nil {
		s.logg.Error(ctx, "clerk_webhook.ledger_failed", err)
	}
	s.metrics.Observe(provider, env.Type, string(OutcomeProcessed))
	return OutcomeProcessed, nil
}

// UserCreated links or provisions the internal user for a new identity. Replays of
// the same identity are no-ops.
func (s *Service) UserCreated(ctx context.Context, data UserPayload) (Provisioning, error) {
	if data.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user id missing")
	}
	email := strings.ToLower(strings.TrimSpace(data.email()))
	if email == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user has no email address")
	}

	var (
		provisioned Provisioning
		user        *models.User
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.tenantRepo.WithTx(tx)
		existing, err := repo.FindUserByExternalID(ctx, data.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			provisioned, user = ProvisionedExisting, existing
			return nil
		}

		if linked, err := s.linkInvite(ctx, repo, data); err != nil || linked != nil {
			provisioned, user = ProvisionedInvite, linked
			return err
		}
		if member, err := s.addMember(ctx, repo, data, email); err != nil || member != nil {
			provisioned, user = ProvisionedMember, member
			return err
		}
		owner, err := s.createTenant(ctx, repo, data, email)
		provisioned, user = ProvisionedOwner, owner
		return err
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			s.logg.Info(ctx, "clerk_webhook.user_already_linked")
			return ProvisionedExisting, nil
		}
		return "", err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":      user.ID.String(),
		"tenant_id":    user.TenantID.String(),
		"provisioning": string(provisioned),
	})
	s.logg.Info(ctx, "clerk_webhook.user_provisioned")
	if provisioned != ProvisionedExisting && s.identity != nil {
		s.identity.Dispatch(ctx, user.ID)
	}
	return provisioned, nil
}

func (s *Service) linkInvite(ctx context.Context, repo tenants.Repository, data UserPayload) (*models.User, error) {
	raw := data.metadata(MetadataInternalUserID)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		s.logg.Warn(ctx, "clerk_webhook.invalid_internal_user_id")
		return nil, nil
	}
	invited, err := repo.FindUser(ctx, id)
	if err != nil || invited == nil {
		return nil, err
	}
	if invited.ExternalAuthID != nil && *invited.ExternalAuthID != data.ID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "invited user already linked to another identity")
	}
	external := data.ID
	invited.ExternalAuthID = &external
	invited.Status = enums.UserStatusActive
	if invited.Name == "" {
		invited.Name = data.name()
	}
	if err := repo.UpdateUser(ctx, invited); err != nil {
		return nil, err
	}
	return invited, nil
}

func (s *Service) addMember(ctx context.Context, repo tenants.Repository, data UserPayload, email string) (*models.User, error) {
	raw := data.metadata(MetadataTenantID)
	if raw == "" {
		return nil, nil
	}
	tenantID, err := uuid.Parse(raw)
	if err != nil {
		return nil, nil
	}
	tenant, err := repo.FindTenant(ctx, tenantID)
	if err != nil || tenant == nil {
		return nil, err
	}
	role := enums.UserRoleMember
	if parsed, err := enums.ParseUserRole(data.metadata(MetadataRole)); err == nil && parsed != enums.UserRoleOwner {
		role = parsed
	}
	external := data.ID
	member := &models.User{
		TenantID:       tenant.ID,
		Email:          email,
		Name:           data.name(),
		Role:           role,
		Status:         enums.UserStatusActive,
		ExternalAuthID: &external,
	}
	if err := repo.CreateUser(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

func (s *Service) createTenant(ctx context.Context, repo tenants.Repository, data UserPayload, email string) (*models.User, error) {
	name := data.name()
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	trialEnds := s.now().UTC().Add(s.trialPeriod)
	tenant := &models.Tenant{
		Name:        name,
		Status:      enums.TenantStatusTrial,
		TrialEndsAt: &trialEnds,
	}
	if err := repo.CreateTenant(ctx, tenant); err != nil {
		return nil, err
	}
	external := data.ID
	owner := &models.User{
		TenantID:       tenant.ID,
		Email:          email,
		Name:           data.name(),
		Role:           enums.UserRoleOwner,
		Status:         enums.UserStatusActive,
		ExternalAuthID: &external,
	}
	if err := repo.CreateUser(ctx, owner); err != nil {
		return nil, err
	}
	return owner, nil
}
