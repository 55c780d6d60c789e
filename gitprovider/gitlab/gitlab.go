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

// Package gitlab is the GitLab driver for the git provider manager,
// following the same shape as gitprovider/github but over a PAT or OAuth
// access token rather than an installation credential.
package gitlab

import (
	"context"
	"fmt"

	gl "github.com/xanzy/go-gitlab"

	"github.com/temps-platform/control-plane/gitprovider"
	"github.com/temps-platform/control-plane/metrics"
)

type driver struct {
	cli     *gl.Client
	baseURL string
}

// New builds a driver authenticated with a personal or OAuth access token.
func New(token, baseURL string) (gitprovider.Driver, error) {
	opts := []gl.ClientOptionFunc{}
	if baseURL != "" {
		opts = append(opts, gl.WithBaseURL(baseURL))
	}
	cli, err := gl.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("building gitlab client: %w", err)
	}
	return &driver{cli: cli, baseURL: baseURL}, nil
}

func op(name string, fn func() error) error {
	metrics.GitProviderOperationCount.WithLabelValues("gitlab", name).Inc()
	if err := fn(); err != nil {
		metrics.GitProviderOperationFailedCount.WithLabelValues("gitlab", name).Inc()
		return err
	}
	return nil
}

func (d *driver) Account(ctx context.Context) (gitprovider.AccountInfo, error) {
	var info gitprovider.AccountInfo
	err := op("get_account", func() error {
		user, _, err := d.cli.Users.CurrentUser(gl.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("getting current user: %w", err)
		}
		info.AccountName = user.Username
		return nil
	})
	return info, err
}

func (d *driver) ListRepositories(ctx context.Context) ([]gitprovider.RepositoryInfo, error) {
	var out []gitprovider.RepositoryInfo
	err := op("list_repositories", func() error {
		opts := &gl.ListProjectsOptions{
			ListOptions: gl.ListOptions{PerPage: 100},
			Membership:  gl.Bool(true),
		}
		for {
			projects, resp, err := d.cli.Projects.ListProjects(opts, gl.WithContext(ctx))
			if err != nil {
				return fmt.Errorf("listing projects: %w", err)
			}
			for _, p := range projects {
				out = append(out, toRepositoryInfo(p))
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
	err := op("get_repository", func() error {
		p, _, err := d.cli.Projects.GetProject(fmt.Sprintf("%s/%s", owner, name), nil, gl.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("getting project %s/%s: %w", owner, name, err)
		}
		info = toRepositoryInfo(p)
		return nil
	})
	return info, err
}

func (d *driver) EnsureWebhook(ctx context.Context, owner, name, callbackURL, secret string) error {
	return op("ensure_webhook", func() error {
		pid := fmt.Sprintf("%s/%s", owner, name)
		hooks, _, err := d.cli.Projects.ListProjectHooks(pid, nil, gl.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("listing hooks: %w", err)
		}
		for _, h := range hooks {
			if h.URL == callbackURL {
				_, _, err := d.cli.Projects.EditProjectHook(pid, h.ID, &gl.EditProjectHookOptions{
					URL:         gl.String(callbackURL),
					Token:       gl.String(secret),
					PushEvents:  gl.Bool(true),
				}, gl.WithContext(ctx))
				return err
			}
		}
		_, _, err = d.cli.Projects.AddProjectHook(pid, &gl.AddProjectHookOptions{
			URL:        gl.String(callbackURL),
			Token:      gl.String(secret),
			PushEvents: gl.Bool(true),
		}, gl.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("creating hook: %w", err)
		}
		return nil
	})
}

func (d *driver) LatestCommit(ctx context.Context, owner, name, branch string) (string, error) {
	var sha string
	err := op("latest_commit", func() error {
		pid := fmt.Sprintf("%s/%s", owner, name)
		b, _, err := d.cli.Branches.GetBranch(pid, branch, gl.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("getting branch %s on %s: %w", branch, pid, err)
		}
		sha = b.Commit.ID
		return nil
	})
	return sha, err
}

func toRepositoryInfo(p *gl.Project) gitprovider.RepositoryInfo {
	owner := p.Namespace.Path
	info := gitprovider.RepositoryInfo{
		Owner:         owner,
		Name:          p.Path,
		FullName:      p.PathWithNamespace,
		Description:   p.Description,
		Private:       p.Visibility == gl.PrivateVisibility,
		Fork:          p.ForkedFromProject != nil,
		DefaultBranch: p.DefaultBranch,
		Stargazers:    int64(p.StarCount),
		CloneURL:      p.HTTPURLToRepo,
		SSHURL:        p.SSHURLToRepo,
	}
	if p.LastActivityAt != nil {
		info.PushedAt = p.LastActivityAt
	}
	return info
}
