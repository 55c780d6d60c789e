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

// Package gitprovider is the Git Provider Manager (spec section 4.E): a
// polymorphic surface over GitHub, GitLab, Bitbucket, Gitea and generic
// git remotes, covering OAuth/App token lifecycle, webhook signature
// validation, and repository sync.
package gitprovider

import (
	"context"
	"time"
)

// RepositoryInfo is the provider-neutral shape every driver normalizes its
// listing into before the sync path upserts it into the store.
type RepositoryInfo struct {
	Owner           string
	Name            string
	FullName        string
	Description     string
	Private         bool
	Fork            bool
	DefaultBranch   string
	Language        string
	Size            int64
	Stargazers      int64
	Watchers        int64
	CloneURL        string
	SSHURL          string
	PushedAt        *time.Time
	InstallationID  *int64
}

// AccountInfo identifies the authenticated account/installation a
// connection was made under.
type AccountInfo struct {
	AccountName    string
	IsOrg          bool
	InstallationID *int64
}

// Driver is the per-provider-type contract. A Driver is constructed per
// connection (it already carries that connection's credentials).
type Driver interface {
	// Account returns the identity the driver is authenticated as.
	Account(ctx context.Context) (AccountInfo, error)
	// ListRepositories pages through every repository visible to this
	// connection's credentials, in the bounded-ownership-scan sense: it
	// stops once the provider reports no further pages.
	ListRepositories(ctx context.Context) ([]RepositoryInfo, error)
	// GetRepository fetches a single repository by owner/name.
	GetRepository(ctx context.Context, owner, name string) (RepositoryInfo, error)
	// EnsureWebhook creates or updates the push webhook on a repository,
	// pointed at callbackURL and carrying secret where the forge supports
	// a signing secret.
	EnsureWebhook(ctx context.Context, owner, name, callbackURL, secret string) error
	// LatestCommit resolves the HEAD commit sha of branch on a repository,
	// used by the project service to seed the initial deployment pipeline
	// and by trigger_pipeline when no explicit commit is given (4.F).
	LatestCommit(ctx context.Context, owner, name, branch string) (string, error)
}

// TokenRefresher is implemented by drivers whose credential is short-lived
// (GitHub App installation tokens). The manager calls Refresh when a
// connection's TokenExpiresAt has passed.
type TokenRefresher interface {
	Refresh(ctx context.Context) (token string, expiresAt time.Time, err error)
}

// ContentFetcher is implemented by drivers that can read a single file's
// raw content at a branch ref, used by preset detection to inspect
// manifest files (package.json, Dockerfile, nixpacks.toml) without cloning
// the repository. found is false (with a nil error) when the path does not
// exist at that ref; not every driver implements this, so callers type-
// assert a Driver against ContentFetcher before using it.
type ContentFetcher interface {
	GetFileContent(ctx context.Context, owner, name, branch, path string) (content []byte, found bool, err error)
}
