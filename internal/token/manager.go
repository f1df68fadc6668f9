// Package token manages the OAuth credential lifecycle for athletes:
// handing out currently-valid access tokens and transparently
// refreshing expired ones through the provider's token endpoint.
package token

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	dbpkg "stridesync/internal/db"
	"stridesync/internal/strava"
)

var (
	// ErrNoCredential means the athlete never authorized. Fatal to the
	// current run; there is nothing to retry.
	ErrNoCredential = errors.New("token: no credential stored for athlete")

	// ErrRefreshFailed means the provider rejected the refresh token.
	// Fatal to the current run; the stored credential is left untouched.
	ErrRefreshFailed = errors.New("token: refresh failed")
)

// expiryMargin refreshes tokens slightly before their stated expiry so
// a token handed out now survives the call it is used for.
const expiryMargin = time.Minute

// CredentialStore is the subset of the credential repository the
// manager needs.
type CredentialStore interface {
	Get(ctx context.Context, athleteID int64) (*dbpkg.Credential, error)
	Upsert(ctx context.Context, cred *dbpkg.Credential) error
}

// Refresher performs the provider-side refresh grant.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*strava.TokenResponse, error)
}

// Manager hands out valid access tokens for athletes, refreshing and
// persisting through the credential store as needed.
type Manager struct {
	store  CredentialStore
	client Refresher

	// mu serializes refreshes within this process so two concurrent
	// callers don't both burn the same refresh token. Cross-process
	// refreshes are not coordinated; the last write wins.
	mu sync.Mutex

	now func() time.Time
}

func NewManager(store CredentialStore, client Refresher) *Manager {
	return &Manager{store: store, client: client, now: time.Now}
}

// ValidToken returns an access token that is valid now. A token within
// expiryMargin of its expiry is refreshed first and the new triple is
// persisted before the token is returned.
func (m *Manager) ValidToken(ctx context.Context, athleteID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.store.Get(ctx, athleteID)
	if err != nil {
		return "", fmt.Errorf("token: load credential: %w", err)
	}
	if cred == nil {
		return "", ErrNoCredential
	}

	if time.Unix(cred.ExpiresAt, 0).After(m.now().Add(expiryMargin)) {
		return cred.AccessToken, nil
	}

	return m.refresh(ctx, cred)
}

// ForceRefresh refreshes regardless of stored expiry. Used after the
// provider rejects a token the store still considered valid.
func (m *Manager) ForceRefresh(ctx context.Context, athleteID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.store.Get(ctx, athleteID)
	if err != nil {
		return "", fmt.Errorf("token: load credential: %w", err)
	}
	if cred == nil {
		return "", ErrNoCredential
	}

	return m.refresh(ctx, cred)
}

func (m *Manager) refresh(ctx context.Context, cred *dbpkg.Credential) (string, error) {
	tok, err := m.client.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	cred.AccessToken = tok.AccessToken
	cred.ExpiresAt = tok.ExpiresAt
	// Keep the old refresh token if the provider didn't rotate it.
	if tok.RefreshToken != "" {
		cred.RefreshToken = tok.RefreshToken
	}

	if err := m.store.Upsert(ctx, cred); err != nil {
		return "", fmt.Errorf("token: persist refreshed credential: %w", err)
	}

	log.Printf("token: refreshed credential for athlete %d (expires %s)",
		cred.AthleteID, time.Unix(cred.ExpiresAt, 0).UTC().Format(time.RFC3339))
	return cred.AccessToken, nil
}
