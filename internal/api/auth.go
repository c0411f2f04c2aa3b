package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"carrental/internal/config"
	"carrental/internal/models"
)

const (
	permReadCars    = "read:cars"
	permReadRents   = "read:rents"
	permWriteRents  = "write:rents"
	permManageRents = "manage:rents"

	apiKeyHeaderDefault = "x-api-key"
	userIDHeader        = "x-user-id"
	userRoleHeader      = "x-user-role"
	clientKeyUnknown    = "unknown"
)

var (
	errMissingKey       = errors.New("missing api key header")
	errInvalidKey       = errors.New("invalid api key")
	errPermissionDenied = errors.New("permission denied")
)

type actorKey struct{}

func withActor(ctx context.Context, a models.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// actorFrom returns the caller resolved by the auth middleware.
func actorFrom(ctx context.Context) models.Actor {
	a, _ := ctx.Value(actorKey{}).(models.Actor)
	return a
}

// HTTPAuth resolves API keys to actors, checks route permissions and applies
// per-key rate limits.
type HTTPAuth struct {
	cfg     config.APIConfig
	clients []config.APIClientKey
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{
		cfg:     cfg,
		clients: cfg.Auth.APIKeys,
		limiter: newRateLimiter(cfg.RateLimit),
	}
}

func (a *HTTPAuth) headerName() string {
	h := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if h == "" {
		return apiKeyHeaderDefault
	}
	return h
}

// Require wraps a handler with authentication for the given permission.
// An empty permission only rate limits.
func (a *HTTPAuth) Require(permission string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		if permission == "" {
			next(w, r)
			return
		}

		actor, err := a.authenticate(r, permission)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, errPermissionDenied) {
				status = http.StatusForbidden
			}
			writeError(w, status, "unauthorized", err.Error())
			return
		}
		next(w, r.WithContext(withActor(r.Context(), actor)))
	}
}

func (a *HTTPAuth) authenticate(r *http.Request, permission string) (models.Actor, error) {
	if !a.cfg.Auth.Enabled {
		return actorFromHeaders(r), nil
	}

	key := strings.TrimSpace(r.Header.Get(a.headerName()))
	if key == "" {
		return models.Actor{}, errMissingKey
	}
	client, ok := a.lookup(key)
	if !ok {
		return models.Actor{}, errInvalidKey
	}
	if !hasPermission(client, permission) {
		return models.Actor{}, errPermissionDenied
	}
	return models.Actor{UserID: client.UserID, Role: client.Role}, nil
}

func (a *HTTPAuth) lookup(key string) (config.APIClientKey, bool) {
	for _, c := range a.clients {
		if subtle.ConstantTimeCompare([]byte(c.Key), []byte(key)) == 1 {
			return c, true
		}
	}
	return config.APIClientKey{}, false
}

// rolePermissions applies to keys configured without an explicit permission list.
var rolePermissions = map[models.Role][]string{
	models.RoleGuest:    {permReadCars, permWriteRents},
	models.RoleCustomer: {permReadCars, permReadRents, permWriteRents},
	models.RoleStaff:    {permReadCars, permReadRents, permWriteRents, permManageRents},
	models.RoleAdmin:    {permReadCars, permReadRents, permWriteRents, permManageRents},
}

func hasPermission(client config.APIClientKey, required string) bool {
	perms := client.Permissions
	if len(perms) == 0 {
		perms = rolePermissions[client.Role]
	}
	for _, p := range perms {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

// actorFromHeaders is used when auth is disabled: the caller asserts its own identity.
func actorFromHeaders(r *http.Request) models.Actor {
	id, _ := strconv.ParseInt(strings.TrimSpace(r.Header.Get(userIDHeader)), 10, 64)
	role := models.Role(strings.TrimSpace(r.Header.Get(userRoleHeader)))
	if role == "" {
		role = models.RoleCustomer
	}
	return models.Actor{UserID: id, Role: role}
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.headerName())); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}
