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

// Package github is the GitHub driver for the git provider manager,
// supporting both a single PAT-authenticated client and a GitHub App that
// mints short-lived per-installation tokens.
package github

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"

	"github.com/temps-platform/control-plane/config"
	"github.com/temps-platform/control-plane/gitprovider"
	"github.com/temps-platform/control-plane/metrics"
)

// driver implements gitprovider.Driver and gitprovider.TokenRefresher for a
// single connection. Grounded on the teacher's githubClient
// (util/github/client.go): same metrics-wrapped-operation idiom and the
// same entity/forge-type-driven client construction, generalized from
// runner-registration operations to repository/webhook operations.
type driver struct {
	cfg          config.GitHubProvider
	cli          *github.Client
	installID    int64
	appTransport *ghinstallation.Transport
	isApp        bool
}

// NewWithPAT builds a driver authenticated as a single GitHub user/token.
func NewWithPAT(ctx context.Context, cfg config.GitHubProvider, token string) (gitprovider.Driver, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)
	cli, err := newClient(httpClient, cfg)
	if err != nil {
		return nil, err
	}
	return &driver{cfg: cfg, cli: cli}, nil
}

// NewWithApp builds a driver authenticated as a GitHub App installation,
// minting and caching installation tokens via ghinstallation.
func NewWithApp(ctx context.Context, cfg config.GitHubProvider, installationID int64) (gitprovider.Driver, error) {
	keyBytes, err := cfg.App.PrivateKeyBytes()
	if err != nil {
		return nil, err
	}
	itr, err := ghinstallation.New(http.DefaultTransport, cfg.App.AppID, installationID, keyBytes)
	if err != nil {
		return nil, fmt.Errorf("building installation transport: %w", err)
	}
	if cfg.APIBaseURL != "" {
		itr.BaseURL = cfg.APIBaseURL
	}
	httpClient := &http.Client{Transport: itr}
	cli, err := newClient(httpClient, cfg)
	if err != nil {
		return nil, err
	}
	return &driver{cfg: cfg, cli: cli, installID: installationID, appTransport: itr, isApp: true}, nil
}

func newClient(httpClient *http.Client, cfg config.GitHubProvider) (*github.Client, error) {
	cli := github.NewClient(httpClient)
	if cfg.APIBaseURL != "" {
		var err error
		cli, err = cli.WithEnterpriseURLs(cfg.APIBaseURL, cfg.APIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("configuring enterprise urls: %w", err)
		}
	}
	return cli, nil
}

// op wraps a single GitHub API call with the teacher's
// increment-before/increment-failure-after metrics idiom.
func op(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	metrics.GitProviderOperationCount.WithLabelValues("github", name).Inc()
	if err := fn(ctx); err != nil {
		metrics.GitProviderOperationFailedCount.WithLabelValues("github", name).Inc()
		return err
	}
	return nil
}

func (d *driver) Account(ctx context.Context) (gitprovider.AccountInfo, error) {
	var info gitprovider.AccountInfo
	err := op(ctx, "get_account", func(ctx context.Context) error {
		if d.isApp {
			inst, _, err := d.cli.Apps.GetInstallation(ctx, d.installID)
			if err != nil {
				return fmt.Errorf("getting installation: %w", err)
			}
			if inst.Account != nil {
				info.AccountName = inst.Account.GetLogin()
				info.IsOrg = inst.Account.GetType() == "Organization"
			}
			id := d.installID
			info.InstallationID = &id
			return nil
		}
		user, _, err := d.cli.Users.Get(ctx, "")
		if err != nil {
			return fmt.Errorf("getting authenticated user: %w", err)
		}
		info.AccountName = user.GetLogin()
		return nil
	})
	return info, err
}

// ListRepositories pages through every repository visible to this
// connection, stopping once GitHub reports no further pages - the bounded
// ownership-discovery scan spec section 4.E calls for.
func (d *driver) ListRepositories(ctx context.Context) ([]gitprovider.RepositoryInfo, error) {
	var out []gitprovider.RepositoryInfo
	err := op(ctx, "list_repositories", func(ctx context.Context) error {
		if d.isApp {
			opts := &github.ListOptions{PerPage: 100}
			for {
				repos, resp, err := d.cli.Apps.ListRepos(ctx, opts)
				if err != nil {
					return fmt.Errorf("listing installation repositories: %w", err)
				}
				for _, r := range repos.Repositories {
					out = append(out, toRepositoryInfo(r, &d.installID))
				}
				if resp.NextPage == 0 {
					return nil
				}
				opts.Page = resp.NextPage
			}
		}
		opts := &github.RepositoryListOptions{ListOptions: github.ListOptions{PerPage: 100}}
		for {
			repos, resp, err := d.cli.Repositories.List(ctx, "", opts)
			if err != nil {
				return fmt.Errorf("listing repositories: %w", err)
			}
			for _, r := range repos {
				out = append(out, toRepositoryInfo(r, nil))
			}
			if resp.NextPage == 0 {
				return nil
			}
			opts.Page = resp.NextPage
		}
	})
	return out, err
}

func (d *driver) GetRepository(ctx context.Context, owner, name string) (gitprovider.RepositoryInfo, error) {
	var info gitprovider.RepositoryInfo
	err := op(ctx, "get_repository", func(ctx context.Context) error {
		r, _, err := d.cli.Repositories.Get(ctx, owner, name)
		if err != nil {
			return fmt.Errorf("getting repository %s/%s: %w", owner, name, err)
		}
		var installID *int64
		if d.isApp {
			installID = &d.installID
		}
		info = toRepositoryInfo(r, installID)
		return nil
	})
	return info, err
}

const pushEventHook = "web"

// EnsureWebhook creates the repository's push webhook if missing, or
// updates its callback URL and secret if one already points elsewhere.
func (d *driver) EnsureWebhook(ctx context.Context, owner, name, callbackURL, secret string) error {
	return op(ctx, "ensure_webhook", func(ctx context.Context) error {
		hooks, _, err := d.cli.Repositories.ListHooks(ctx, owner, name, nil)
		if err != nil {
			return fmt.Errorf("listing hooks: %w", err)
		}
		cfg := map[string]interface{}{
			"url":          callbackURL,
			"content_type": "json",
			"secret":       secret,
		}
		for _, h := range hooks {
			if h.Config != nil && h.Config["url"] == callbackURL {
				h.Config = cfg
				if _, _, err := d.cli.Repositories.EditHook(ctx, owner, name, h.GetID(), h); err != nil {
					return fmt.Errorf("updating hook: %w", err)
				}
				return nil
			}
		}
		hook := &github.Hook{
			Name:   github.String(pushEventHook),
			Active: github.Bool(true),
			Events: []string{"push"},
			Config: cfg,
		}
		if _, _, err := d.cli.Repositories.CreateHook(ctx, owner, name, hook); err != nil {
			return fmt.Errorf("creating hook: %w", err)
		}
		return nil
	})
}

// Refresh returns an installation token, satisfying gitprovider.TokenRefresher.
// ghinstallation caches tokens and renews them only near expiry, so the token
// may be the cached one; the reported expiry is always now plus 55 minutes.
func (d *driver) Refresh(ctx context.Context) (string, time.Time, error) {
	if !d.isApp {
		return "", time.Time{}, fmt.Errorf("refresh is only supported for app installations")
	}
	token, err := d.appTransport.Token(ctx)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("minting installation token: %w", err)
	}
	return token, time.Now().Add(55 * time.Minute), nil
}

func (d *driver) LatestCommit(ctx context.Context, owner, name, branch string) (string, error) {
	var sha string
	err := op(ctx, "latest_commit", func(ctx context.Context) error {
		b, _, err := d.cli.Repositories.GetBranch(ctx, owner, name, branch, false)
		if err != nil {
			return fmt.Errorf("getting branch %s on %s/%s: %w", branch, owner, name, err)
		}
		sha = b.GetCommit().GetSHA()
		return nil
	})
	return sha, err
}

// GetFileContent satisfies gitprovider.ContentFetcher, used by preset
// detection to inspect package.json/Dockerfile/nixpacks.toml without a
// clone. A 404 from the contents API is reported as found=false, not an
// error: a missing manifest is a normal detection signal.
func (d *driver) GetFileContent(ctx context.Context, owner, name, branch, path string) ([]byte, bool, error) {
	var content []byte
	var found bool
	err := op(ctx, "get_file_content", func(ctx context.Context) error {
		fc, _, resp, err := d.cli.Repositories.GetContents(ctx, owner, name, path, &github.RepositoryContentGetOptions{Ref: branch})
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil
		}
		if err != nil {
			return fmt.Errorf("getting contents of %s on %s/%s: %w", path, owner, name, err)
		}
		if fc == nil {
			return nil
		}
		decoded, err := fc.GetContent()
		if err != nil {
			return fmt.Errorf("decoding contents of %s on %s/%s: %w", path, owner, name, err)
		}
		content = []byte(decoded)
		found = true
		return nil
	})
	return content, found, err
}

func toRepositoryInfo(r *github.Repository, installationID *int64) gitprovider.RepositoryInfo {
	info := gitprovider.RepositoryInfo{
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Description:   r.GetDescription(),
		Private:       r.GetPrivate(),
		Fork:          r.GetFork(),
		DefaultBranch: r.GetDefaultBranch(),
		Language:      r.GetLanguage(),
		Size:          int64(r.GetSize()),
		Stargazers:    int64(r.GetStargazersCount()),
		Watchers:      int64(r.GetWatchersCount()),
		CloneURL:      r.GetCloneURL(),
		SSHURL:        r.GetSSHURL(),
		InstallationID: installationID,
	}
	if r.PushedAt != nil {
		t := r.PushedAt.Time
		info.PushedAt = &t
	}
	return info
}
