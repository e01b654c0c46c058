// Package identity caches the signed-in user's profile so the agent knows
// who is acting while the server is unreachable. The profile is fetched from
// the remote API when online and held durably with a TTL; when no cached
// profile exists the session token's claims serve as a fallback.
package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/sehetyar/sync-agent/internal/platform/api"
)

// CacheTTL bounds how long a cached profile may serve offline requests.
const CacheTTL = 7 * 24 * time.Hour

// ErrNoIdentity is returned when no usable identity is available: nothing
// cached, cache expired, and no decodable session token.
var ErrNoIdentity = errors.New("identity: no cached identity")

// User is the profile the agent acts as.
type User struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Cache fetches and durably caches the current user.
type Cache struct {
	db     *sql.DB
	client *api.Client
	token  string
	log    zerolog.Logger
}

const identityDDL = `
CREATE TABLE IF NOT EXISTS cached_identity (
	id        INTEGER PRIMARY KEY CHECK (id = 1),
	profile   TEXT NOT NULL,
	cached_at TEXT NOT NULL
);`

// NewCache creates the cache over the shared database handle. token is the
// session JWT used for the claims fallback.
func NewCache(db *sql.DB, client *api.Client, token string, log zerolog.Logger) (*Cache, error) {
	if _, err := db.Exec(identityDDL); err != nil {
		return nil, fmt.Errorf("migrate identity cache: %w", err)
	}
	return &Cache{
		db:     db,
		client: client,
		token:  token,
		log:    log.With().Str("component", "identity").Logger(),
	}, nil
}

// Current returns the acting user: freshly fetched when the server is
// reachable, from the cache when not, from the token claims as a last
// resort.
func (c *Cache) Current(ctx context.Context) (*User, error) {
	user, err := c.Refresh(ctx)
	if err == nil {
		return user, nil
	}
	if !api.IsUnreachable(err) {
		if _, rejected := api.IsRejection(err); !rejected {
			return nil, err
		}
		// A rejected /me (expired server session) still allows offline
		// work under the cached identity.
	}

	if cached, cerr := c.cached(ctx); cerr == nil {
		return cached, nil
	}
	if fallback := c.fromToken(); fallback != nil {
		return fallback, nil
	}
	return nil, ErrNoIdentity
}

// Refresh fetches the profile from the server and stores it.
func (c *Cache) Refresh(ctx context.Context) (*User, error) {
	resp, err := c.client.Get(ctx, "/api/user/me", nil)
	if err != nil {
		return nil, err
	}
	raw, err := resp.Document()
	if err != nil {
		return nil, err
	}

	user := &User{}
	if v, _ := raw["id"].(string); v != "" {
		user.ID = v
	} else if v, _ := raw["_id"].(string); v != "" {
		user.ID = v
	}
	user.FullName, _ = raw["fullName"].(string)
	user.Email, _ = raw["email"].(string)
	user.Role, _ = raw["role"].(string)

	if err := c.store(ctx, user); err != nil {
		c.log.Warn().Err(err).Msg("could not cache identity")
	}
	return user, nil
}

// Clear drops the cached profile. Called on logout.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cached_identity`); err != nil {
		return fmt.Errorf("clear cached identity: %w", err)
	}
	return nil
}

func (c *Cache) store(ctx context.Context, user *User) error {
	profile, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO cached_identity (id, profile, cached_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET profile = excluded.profile, cached_at = excluded.cached_at`,
		string(profile), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store profile: %w", err)
	}
	return nil
}

func (c *Cache) cached(ctx context.Context) (*User, error) {
	var profile, cachedAt string
	err := c.db.QueryRowContext(ctx,
		`SELECT profile, cached_at FROM cached_identity WHERE id = 1`).Scan(&profile, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("read cached identity: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, cachedAt)
	if err != nil || time.Since(at) > CacheTTL {
		// An expired profile must not grant offline access.
		if cerr := c.Clear(ctx); cerr != nil {
			c.log.Warn().Err(cerr).Msg("could not discard expired identity")
		}
		return nil, ErrNoIdentity
	}

	var user User
	if err := json.Unmarshal([]byte(profile), &user); err != nil {
		return nil, fmt.Errorf("decode cached identity: %w", err)
	}
	return &user, nil
}

// fromToken decodes the session token's claims without verifying the
// signature; the server remains the authority, this only names the local
// actor.
func (c *Cache) fromToken() *User {
	if c.token == "" {
		return nil
	}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(c.token, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}

	user := &User{}
	user.ID, _ = claims["sub"].(string)
	user.Email, _ = claims["email"].(string)
	user.Role, _ = claims["role"].(string)
	user.FullName, _ = claims["name"].(string)
	if user.ID == "" && user.Email == "" {
		return nil
	}
	return user
}
