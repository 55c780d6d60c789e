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

// Package gitea is the driver for self-hosted Gitea/Forgejo instances,
// mirroring the teacher's own github client support for the gitea forge
// type (util/github/client.go dispatches on entity.Credentials.ForgeType).
package gitea

import (
	"context"
	"fmt"

	gt "code.gitea.io/sdk/gitea"

	"github.com/temps-platform/control-plane/gitprovider"
	"github.com/temps-platform/control-plane/metrics"
)

type driver struct {
	cli     *gt.Client
	baseURL string
}

// New builds a driver authenticated with a personal access token against a
// self-hosted Gitea/Forgejo instance.
func New(baseURL, token string) (gitprovider.Driver, error) {
	cli, err := gt.NewClient(baseURL, gt.SetToken(token))
	if err != nil {
		return nil, fmt.Errorf("building gitea client: %w", err)
	}
	return &driver{cli: cli, baseURL: baseURL}, nil
}

func op(name string, fn func() error) error {
	metrics.GitProviderOperationCount.WithLabelValues("gitea", name).Inc()
	if err := fn(); err != nil {
		metrics.GitProviderOperationFailedCount.WithLabelValues("gitea", name).Inc()
		return err
	}
	return nil
}

func (d *driver) Account(_ context.Context) (gitprovider.AccountInfo, error) {
	var info gitprovider.AccountInfo
	err := op("get_account", func() error {
		user, _, err := d.cli.GetMyUserInfo()
		if err != nil {
			return fmt.Errorf("getting authenticated user: %w", err)
		}
		info.AccountName = user.UserName
		return nil
	})
	return info, err
}

func (d *driver) ListRepositories(_ context.Context) ([]gitprovider.RepositoryInfo, error) {
	var out []gitprovider.RepositoryInfo
	err := op("list_repositories", func() error {
		page := 1
		for {
			repos, _, err := d.cli.ListMyRepos(gt.ListReposOptions{ListOptions: gt.ListOptions{Page: page, PageSize: 50}})
			if err != nil {
				return fmt.Errorf("listing repositories: %w", err)
			}
			if len(repos) == 0 {
				return nil
			}
			for _, r := range repos {
				out = append(out, toRepositoryInfo(r))
			}
			page++
		}
	})
	return out, err
}

func (d *driver) GetRepository(_ context.Context, owner, name string) (gitprovider.RepositoryInfo, error) {
	var info gitprovider.RepositoryInfo
	err := op("get_repository", func() error {
		r, _, err := d.cli.GetRepo(owner, name)
		if err != nil {
			return fmt.Errorf("getting repository %s/%s: %w", owner, name, err)
		}
		info = toRepositoryInfo(r)
		return nil
	})
	return info, err
}

func (d *driver) EnsureWebhook(_ context.Context, owner, name, callbackURL, secret string) error {
	return op("ensure_webhook", func() error {
		hooks, _, err := d.cli.ListRepoHooks(owner, name, gt.ListHooksOptions{})
		if err != nil {
			return fmt.Errorf("listing hooks: %w", err)
		}
		for _, h := range hooks {
			if h.Config["url"] == callbackURL {
				_, err := d.cli.EditRepoHook(owner, name, h.ID, gt.EditHookOption{
					Config: map[string]string{"url": callbackURL, "secret": secret, "content_type": "json"},
					Active: gt.OptionalBool(true),
				})
				return err
			}
		}
		_, _, err = d.cli.CreateRepoHook(owner, name, gt.CreateHookOption{
			Type:   "gitea",
			Config: map[string]string{"url": callbackURL, "secret": secret, "content_type": "json"},
			Events: []string{"push"},
			Active: true,
		})
		if err != nil {
			return fmt.Errorf("creating hook: %w", err)
		}
		return nil
	})
}

func (d *driver) LatestCommit(_ context.Context, owner, name, branch string) (string, error) {
	var sha string
	err := op("latest_commit", func() error {
		b, _, err := d.cli.GetRepoBranch(owner, name, branch)
		if err != nil {
			return fmt.Errorf("getting branch %s on %s/%s: %w", branch, owner, name, err)
		}
		sha = b.Commit.ID
		return nil
	})
	return sha, err
}

func toRepositoryInfo(r *gt.Repository) gitprovider.RepositoryInfo {
	info := gitprovider.RepositoryInfo{
		Owner:         r.Owner.UserName,
		Name:          r.Name,
		FullName:      r.FullName,
		Description:   r.Description,
		Private:       r.Private,
		Fork:          r.Fork,
		DefaultBranch: r.DefaultBranch,
		Size:          int64(r.Size),
		Stargazers:    int64(r.Stars),
		Watchers:      int64(r.Watchers),
		CloneURL:      r.CloneURL,
		SSHURL:        r.SSHURL,
	}
	if !r.Updated.IsZero() {
		t := r.Updated
		info.PushedAt = &t
	}
	return info
}
