package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/autevo/filmtechos-backend/api/responses"
	pkgerrors "github.com/autevo/filmtechos-backend/pkg/errors"
	"github.com/autevo/filmtechos-backend/pkg/logger"
	pkgredis "github.com/autevo/filmtechos-backend/pkg/redis"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"

	standardReplayWindow = 24 * time.Hour
	billingReplayWindow  = 7 * 24 * time.Hour
	inFlightWindow       = time.Minute
	maxIdempotencyKeyLen = 255
)

type idempotencyPolicy struct {
	window   time.Duration
	required bool
}

// Keyed by "METHOD path". Billing routes honour a key when one is sent.
var idempotencyPolicies = map[string]idempotencyPolicy{
	"POST /api/v1/team/invites":            {window: standardReplayWindow, required: true},
	"POST /api/admin/v1/tenants":           {window: standardReplayWindow, required: true},
	"POST /api/admin/v1/promo-codes":       {window: standardReplayWindow, required: true},
	"POST /api/v1/billing/checkout":        {window: billingReplayWindow},
	"POST /api/v1/billing/founder/upgrade": {window: billingReplayWindow},
}

type storedResponse struct {
	Pending     bool   `json:"pending,omitempty"`
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
}

// Idempotency replays the first completed response for a repeated Idempotency-Key.
// The key is scoped to the caller and path. A request arriving while the first one is
// still running is refused, and server errors are not recorded so the client may retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, ok := policyFor(r)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			switch {
			case clientKey == "" && policy.required:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case clientKey == "":
				next.ServeHTTP(w, r)
				return
			case len(clientKey) > maxIdempotencyKeyLen:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key is too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := fingerprintBody(body)
			key := store.IdempotencyKey(callerScope(r), clientKey)

			existing, err := loadResponse(ctx, store, key)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency key"))
				return
			}
			if existing == nil {
				marker, _ := json.Marshal(storedResponse{Pending: true, Fingerprint: fingerprint})
				claimed, err := store.SetNX(ctx, key, string(marker), inFlightWindow)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
					return
				}
				if !claimed {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this Idempotency-Key is in progress"))
					return
				}
				run(ctx, w, r, next, store, key, fingerprint, policy.window, logg)
				return
			}

			if existing.Fingerprint != fingerprint {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "Idempotency-Key reused with a different request body"))
				return
			}
			if existing.Pending {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this Idempotency-Key is in progress"))
				return
			}
			replay(w, existing)
		})
	}
}

func run(ctx context.Context, w http.ResponseWriter, r *http.Request, next http.Handler, store pkgredis.IdempotencyStore, key, fingerprint string, window time.Duration, logg *logger.Logger) {
	capture := &bodyCapture{ResponseWriter: w}
	completed := false
	defer func() {
		if completed {
			return
		}
		// panics and 5xx release the claim
		if err := store.Del(context.WithoutCancel(ctx), key); err != nil && logg != nil {
			logg.Error(ctx, "idempotency.release_failed", err)
		}
	}()

	next.ServeHTTP(capture, r)

	status := capture.statusCode()
	if status >= http.StatusInternalServerError {
		return
	}
	record, err := json.Marshal(storedResponse{
		Fingerprint: fingerprint,
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
	})
	if err != nil {
		return
	}
	persistCtx := context.WithoutCancel(ctx)
	if err := store.Del(persistCtx, key); err == nil {
		_, err = store.SetNX(persistCtx, key, string(record), window)
		if err == nil {
			completed = true
			return
		}
	}
	if logg != nil {
		logg.Warn(ctx, "idempotency.record_not_saved")
	}
}

func loadResponse(ctx context.Context, store pkgredis.IdempotencyStore, key string) (*storedResponse, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record storedResponse
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func replay(w http.ResponseWriter, record *storedResponse) {
	body, _ := base64.StdEncoding.DecodeString(record.Body)
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(body)
}

func callerScope(r *http.Request) string {
	return strings.Join([]string{
		UserIDFromContext(r.Context()),
		TenantIDFromContext(r.Context()),
		r.Method,
		normalizedPath(r),
	}, "|")
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// normalizedPath reads the URL path since chi has not resolved the full pattern
// for middleware mounted on a sub-router.
func normalizedPath(r *http.Request) string {
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == "" {
		return "/"
	}
	return path
}

func policyFor(r *http.Request) (idempotencyPolicy, bool) {
	if r == nil || r.URL == nil {
		return idempotencyPolicy{}, false
	}
	policy, ok := idempotencyPolicies[r.Method+" "+normalizedPath(r)]
	return policy, ok
}

type bodyCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *bodyCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *bodyCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *bodyCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
