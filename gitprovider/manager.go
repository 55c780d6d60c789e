// Copyright 2025 Cloudbase Solutions SRL
//
//    Licensed under the Apache License, Version 2.0 (the "License"); you may
//    not use this file except in compliance with the License. You may obtain
//    a copy of the License at
//
//         http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
//    WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
//    License for the specific language governing permissions and limitations
//    under the License.

package gitprovider

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/temps-platform/control-plane/config"
	ctlerrors "github.com/temps-platform/control-plane/errors"
	"github.com/temps-platform/control-plane/gitprovider/bitbucket"
	"github.com/temps-platform/control-plane/gitprovider/generic"
	"github.com/temps-platform/control-plane/gitprovider/gitea"
	"github.com/temps-platform/control-plane/gitprovider/github"
	"github.com/temps-platform/control-plane/gitprovider/gitlab"
	"github.com/temps-platform/control-plane/locking"
	"github.com/temps-platform/control-plane/queue"
	"github.com/temps-platform/control-plane/store"
)

// Manager is the polymorphic git provider manager (spec section 4.E): it
// owns GitProvider/GitProviderConnection/Repository persistence, builds the
// correct Driver for a connection, and serializes sync with the per-
// connection "syncing" flag the teacher's pool manager uses for
// per-entity reconciliation locks.
type Manager struct {
	store        store.Store
	crypto       cryptoSvc
	queue        queue.Queue
	githubApps   map[string]config.GitHubProvider
	gitlabApps   map[string]config.GitLabProvider
	callbackBase string
}

// cryptoSvc is the narrow slice of crypto.EncryptionService this package
// needs, kept as an interface so tests can fake it without a real key.
type cryptoSvc interface {
	EncryptString(plaintext string) (string, error)
	DecryptString(ciphertext string) (string, error)
}

// NewManager builds a manager. githubApps/gitlabApps are keyed by the
// provider row's Name, matching config.GitHubProvider.Name /
// config.GitLabProvider.Name so a connection can be traced back to its
// configured app credentials.
func NewManager(st store.Store, crypto cryptoSvc, q queue.Queue, githubApps map[string]config.GitHubProvider, gitlabApps map[string]config.GitLabProvider, callbackBase string) *Manager {
	return &Manager{store: st, crypto: crypto, queue: q, githubApps: githubApps, gitlabApps: gitlabApps, callbackBase: callbackBase}
}

func connectionLockKey(id uuid.UUID) string { return "git-connection:" + id.String() }

// CreateProvider registers a new provider row. AuthConfig/WebhookSecret are
// expected already encrypted by the caller (the config-loading path holds
// the plaintext only in memory, never asks the store layer to encrypt it).
func (m *Manager) CreateProvider(ctx context.Context, p *store.GitProvider) (*store.GitProvider, error) {
	return m.store.CreateGitProvider(ctx, p)
}

// DeleteProvider refuses deletion while any of the provider's connections
// still has a synced repository on record. Projects are not looked up: the
// ProjectCount of the returned ProviderInUse error is the number of such
// repositories.
func (m *Manager) DeleteProvider(ctx context.Context, id uuid.UUID) error {
	conns, err := m.store.ListProviderConnections(ctx, id)
	if err != nil {
		return err
	}
	projectCount := 0
	for _, c := range conns {
		repos, err := m.store.ListConnectionRepositories(ctx, c.ID)
		if err != nil {
			return err
		}
		for range repos {
			projectCount++
		}
	}
	if projectCount > 0 {
		return &ctlerrors.ProviderInUse{ProviderID: id.String(), ProjectCount: projectCount}
	}
	return m.store.DeleteGitProvider(ctx, id)
}

// driverFor builds the Driver for a connection, decrypting its stored
// credential and dispatching on the owning provider's type.
func (m *Manager) driverFor(ctx context.Context, provider *store.GitProvider, conn *store.GitProviderConnection) (Driver, error) {
	switch provider.ProviderType {
	case store.GitProviderGitHub:
		appCfg, ok := m.githubApps[provider.Name]
		if !ok {
			return nil, &ctlerrors.GitProviderManagerError{ConnectionID: conn.ID.String(), Reason: "no configured github app/pat for provider " + provider.Name}
		}
		if conn.InstallationID != nil {
			return github.NewWithApp(ctx, appCfg, *conn.InstallationID)
		}
		token, err := m.crypto.DecryptString(conn.AccessTokenEnc)
		if err != nil {
			return nil, err
		}
		return github.NewWithPAT(ctx, appCfg, token)
	case store.GitProviderGitLab:
		token, err := m.crypto.DecryptString(conn.AccessTokenEnc)
		if err != nil {
			return nil, err
		}
		return gitlab.New(token, provider.BaseURL)
	case store.GitProviderBitbucket:
		token, err := m.crypto.DecryptString(conn.AccessTokenEnc)
		if err != nil {
			return nil, err
		}
		return bitbucket.New(conn.AccountName, token, conn.AccountName), nil
	case store.GitProviderGitea:
		token, err := m.crypto.DecryptString(conn.AccessTokenEnc)
		if err != nil {
			return nil, err
		}
		return gitea.New(provider.BaseURL, token)
	case store.GitProviderGeneric:
		token, err := m.crypto.DecryptString(conn.AccessTokenEnc)
		if err != nil {
			return nil, err
		}
		return generic.New(provider.BaseURL, conn.AccountName, token), nil
	default:
		return nil, fmt.Errorf("unsupported provider type %s", provider.ProviderType)
	}
}

// ensureFreshToken refreshes a connection's credential when TokenExpiresAt
// has passed and the driver supports it (GitHub App installation tokens).
// Connections whose provider classifies the failure as unrecoverable are
// marked IsExpired so the caller can prompt for reauthorization.
func (m *Manager) ensureFreshToken(ctx context.Context, conn *store.GitProviderConnection, drv Driver) error {
	if conn.TokenExpiresAt == nil || time.Now().Before(*conn.TokenExpiresAt) {
		return nil
	}
	refresher, ok := drv.(TokenRefresher)
	if !ok {
		conn.IsExpired = true
		_, _ = m.store.UpdateConnection(ctx, conn)
		return &ctlerrors.ConnectionTokenExpired{ConnectionID: conn.ID.String()}
	}
	token, expiresAt, err := refresher.Refresh(ctx)
	if err != nil {
		conn.IsExpired = true
		_, _ = m.store.UpdateConnection(ctx, conn)
		return &ctlerrors.ConnectionTokenExpired{ConnectionID: conn.ID.String()}
	}
	enc, err := m.crypto.EncryptString(token)
	if err != nil {
		return err
	}
	conn.AccessTokenEnc = enc
	conn.TokenExpiresAt = &expiresAt
	conn.IsExpired = false
	_, err = m.store.UpdateConnection(ctx, conn)
	return err
}

// SyncRepositories performs the bounded ownership-discovery scan: page
// through everything the connection's credential can see and upsert it
// into the repository table. Serialized per connection via the Syncing
// flag so overlapping requests surface SyncInProgress instead of racing.
func (m *Manager) SyncRepositories(ctx context.Context, connectionID uuid.UUID) (int, error) {
	if !locking.TryLock(connectionLockKey(connectionID), "sync") {
		return 0, &ctlerrors.SyncInProgress{ConnectionID: connectionID.String()}
	}
	defer locking.Unlock(connectionLockKey(connectionID), false)

	conn, err := m.store.GetConnection(ctx, connectionID)
	if err != nil {
		return 0, err
	}
	if conn.Syncing {
		return 0, &ctlerrors.SyncInProgress{ConnectionID: connectionID.String()}
	}
	conn.Syncing = true
	if _, err := m.store.UpdateConnection(ctx, conn); err != nil {
		return 0, err
	}
	defer func() {
		conn.Syncing = false
		_, _ = m.store.UpdateConnection(ctx, conn)
	}()

	provider, err := m.store.GetGitProvider(ctx, conn.ProviderID)
	if err != nil {
		return 0, err
	}
	drv, err := m.driverFor(ctx, provider, conn)
	if err != nil {
		return 0, err
	}
	if err := m.ensureFreshToken(ctx, conn, drv); err != nil {
		return 0, err
	}

	repos, err := drv.ListRepositories(ctx)
	if err != nil {
		return 0, &ctlerrors.GitProviderError{Provider: string(provider.ProviderType), Op: "list_repositories", Err: err}
	}

	for _, r := range repos {
		row := &store.Repository{
			GitProviderConnectionID: conn.ID,
			Owner:                   r.Owner,
			Name:                    r.Name,
			FullName:                r.FullName,
			Description:             r.Description,
			Private:                 r.Private,
			Fork:                    r.Fork,
			DefaultBranch:           r.DefaultBranch,
			Language:                r.Language,
			Size:                    r.Size,
			StargazersCount:         r.Stargazers,
			WatchersCount:           r.Watchers,
			CloneURL:                r.CloneURL,
			SSHURL:                  r.SSHURL,
			InstallationID:          r.InstallationID,
			PushedAt:                r.PushedAt,
		}
		saved, err := m.store.UpsertRepository(ctx, row)
		if err != nil {
			return 0, &ctlerrors.RepositoryServiceError{RepositoryID: r.FullName, Reason: err.Error()}
		}
		if err := m.queue.Send(ctx, queue.KindUpdateRepoFramework, queue.UpdateRepoFrameworkPayload{
			RepositoryID: saved.ID.String(),
		}); err != nil {
			return 0, &ctlerrors.RepositoryServiceError{RepositoryID: r.FullName, Reason: err.Error()}
		}
	}

	now := time.Now()
	conn.LastSyncedAt = &now
	return len(repos), nil
}

// ResolveLatestCommit resolves a branch's HEAD commit through the
// connection's driver. Callers (project.Service) treat any error as
// non-fatal and fall back to a sentinel commit rather than propagate it.
func (m *Manager) ResolveLatestCommit(ctx context.Context, connectionID uuid.UUID, owner, name, branch string) (string, error) {
	conn, err := m.store.GetConnection(ctx, connectionID)
	if err != nil {
		return "", err
	}
	provider, err := m.store.GetGitProvider(ctx, conn.ProviderID)
	if err != nil {
		return "", err
	}
	drv, err := m.driverFor(ctx, provider, conn)
	if err != nil {
		return "", err
	}
	if err := m.ensureFreshToken(ctx, conn, drv); err != nil {
		return "", err
	}
	return drv.LatestCommit(ctx, owner, name, branch)
}

// CalculateRepositoryPreset computes the build preset of a single
// directory in a repository. It is always recomputed live: callers that
// want the cached store.Repository.Preset JSON refresh it by calling this
// and persisting the result themselves. Returns an error if the
// connection's driver does not implement ContentFetcher.
func (m *Manager) CalculateRepositoryPreset(ctx context.Context, connectionID uuid.UUID, owner, name, branch, dir string) (PresetResult, error) {
	conn, err := m.store.GetConnection(ctx, connectionID)
	if err != nil {
		return PresetResult{}, err
	}
	provider, err := m.store.GetGitProvider(ctx, conn.ProviderID)
	if err != nil {
		return PresetResult{}, err
	}
	drv, err := m.driverFor(ctx, provider, conn)
	if err != nil {
		return PresetResult{}, err
	}
	if err := m.ensureFreshToken(ctx, conn, drv); err != nil {
		return PresetResult{}, err
	}
	fetcher, ok := drv.(ContentFetcher)
	if !ok {
		return PresetResult{}, fmt.Errorf("provider %s does not support preset detection", provider.ProviderType)
	}
	return DetectPreset(ctx, fetcher, owner, name, branch, dir)
}

// EnsureWebhook wires a repository's push webhook using the connection's
// driver and the provider's configured webhook secret.
func (m *Manager) EnsureWebhook(ctx context.Context, repo *store.Repository, secret string) error {
	conn, err := m.store.GetConnection(ctx, repo.GitProviderConnectionID)
	if err != nil {
		return err
	}
	provider, err := m.store.GetGitProvider(ctx, conn.ProviderID)
	if err != nil {
		return err
	}
	drv, err := m.driverFor(ctx, provider, conn)
	if err != nil {
		return err
	}
	callbackURL := fmt.Sprintf("%s/webhooks/git/%s", m.callbackBase, provider.ID)
	if err := drv.EnsureWebhook(ctx, repo.Owner, repo.Name, callbackURL, secret); err != nil {
		return &ctlerrors.GitProviderError{Provider: string(provider.ProviderType), Op: "ensure_webhook", Err: err}
	}
	return nil
}

// ValidateWebhookSignature tries every active provider's webhook secret
// against an HMAC-SHA256 signature (the format GitHub/Gitea/GitLab all
// use: "sha256=<hex>"), constant-time comparing each candidate so a
// secret's value can never be inferred from response timing. This lets one
// shared callback endpoint serve every configured GitHub App without the
// caller needing to know in advance which app a delivery belongs to.
func (m *Manager) ValidateWebhookSignature(ctx context.Context, body []byte, signatureHeader string) (*store.GitProvider, error) {
	const prefix = "sha256="
	if len(signatureHeader) <= len(prefix) || signatureHeader[:len(prefix)] != prefix {
		return nil, &ctlerrors.InvalidWebhookSignature{}
	}
	want, err := hex.DecodeString(signatureHeader[len(prefix):])
	if err != nil {
		return nil, &ctlerrors.InvalidWebhookSignature{}
	}

	providers, err := m.store.ListGitProviders(ctx)
	if err != nil {
		return nil, err
	}
	for i := range providers {
		p := &providers[i]
		if !p.IsActive || p.WebhookSecret == "" {
			continue
		}
		secret, err := m.crypto.DecryptString(p.WebhookSecret)
		if err != nil {
			continue
		}
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		got := mac.Sum(nil)
		if hmac.Equal(got, want) {
			return p, nil
		}
	}
	return nil, &ctlerrors.InvalidWebhookSignature{}
}

// GenerateOAuthState mints a random, unguessable state token for an OAuth
// authorization request. The caller persists it (e.g. in a short-lived
// session) and passes it back to ValidateOAuthState on callback.
func GenerateOAuthState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating oauth state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ValidateOAuthState compares a callback's state against the one issued
// for the request, in constant time.
func ValidateOAuthState(issued, got string) error {
	if !hmac.Equal([]byte(issued), []byte(got)) {
		return &ctlerrors.OAuthStateMismatch{}
	}
	return nil
}
