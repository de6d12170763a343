package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/autevo/filmtechos-backend/pkg/config"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/invitation"
	"github.com/clerk/clerk-sdk-go/v2/user"
)

// Metadata is the authorization cache written to a user's public metadata.
type Metadata struct {
	TenantID     string `json:"tenantId"`
	Role         string `json:"role"`
	UserID       string `json:"userId"`
	TenantStatus string `json:"tenantStatus"`
	IsFounder    bool   `json:"isFounder"`
}

// InvitationParams describes a sign-up invitation for a pre-provisioned user.
type InvitationParams struct {
	Email          string
	InternalUserID string
	TenantID       string
	Role           string
}

// Client is the identity provider surface.
type Client interface {
	UpdatePublicMetadata(ctx context.Context, externalUserID string, metadata Metadata) error
	DeleteUser(ctx context.Context, externalUserID string) error
	CreateInvitation(ctx context.Context, params InvitationParams) error
}

type clerkClient struct {
	users       *user.Client
	invitations *invitation.Client
	redirectURL string
}

// NewClerkClient builds a Clerk Backend API client from configuration.
func NewClerkClient(cfg config.ClerkConfig, httpClient *http.Client) (Client, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("clerk secret key is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	backend := clerk.BackendConfig{
		HTTPClient: httpClient,
		Key:        clerk.String(cfg.SecretKey),
	}
	if cfg.APIURL != "" {
		backend.URL = clerk.String(strings.TrimRight(cfg.APIURL, "/"))
	}
	clientCfg := &clerk.ClientConfig{BackendConfig: backend}
	return &clerkClient{
		users:       user.NewClient(clientCfg),
		invitations: invitation.NewClient(clientCfg),
		redirectURL: cfg.RedirectURL,
	}, nil
}

func (c *clerkClient) UpdatePublicMetadata(ctx context.Context, externalUserID string, metadata Metadata) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	public := json.RawMessage(raw)
	if _, err := c.users.UpdateMetadata(ctx, externalUserID, &user.UpdateMetadataParams{
		PublicMetadata: &public,
	}); err != nil {
		return unavailable(err, "update_metadata")
	}
	return nil
}

func (c *clerkClient) DeleteUser(ctx context.Context, externalUserID string) error {
	if _, err := c.users.Delete(ctx, externalUserID); err != nil {
		if isNotFound(err) {
			return nil
		}
		return unavailable(err, "delete_user")
	}
	return nil
}

func (c *clerkClient) CreateInvitation(ctx context.Context, params InvitationParams) error {
	raw, err := json.Marshal(map[string]string{
		"internal_user_id": params.InternalUserID,
		"tenant_id":        params.TenantID,
		"role":             params.Role,
	})
	if err != nil {
		return err
	}
	public := json.RawMessage(raw)
	req := &invitation.CreateParams{
		EmailAddress:   params.Email,
		PublicMetadata: &public,
		IgnoreExisting: clerk.Bool(true),
	}
	if c.redirectURL != "" {
		req.RedirectURL = clerk.String(c.redirectURL)
	}
	if _, err := c.invitations.Create(ctx, req); err != nil {
		return unavailable(err, "create_invitation")
	}
	return nil
}

func unavailable(err error, op string) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "identity provider unavailable").
		WithDetails(map[string]any{"operation": op})
}

func isNotFound(err error) bool {
	var apiErr *clerk.APIErrorResponse
	return errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusNotFound
}
