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

// Package generic is the fallback driver for a bare git remote that is not
// one of the named forges: no repository listing or webhook API exists, so
// the operations it can perform are validating that the remote is reachable
// with the configured credential and resolving a branch's head commit.
package generic

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/temps-platform/control-plane/gitprovider"
	"github.com/temps-platform/control-plane/metrics"
)

type driver struct {
	remoteURL string
	auth      transport.AuthMethod
}

// New builds a driver for a single, operator-configured remote URL. There
// is no account or repository-listing concept for a generic remote: one
// connection maps to exactly one repository.
func New(remoteURL, username, password string) gitprovider.Driver {
	var auth transport.AuthMethod
	if username != "" || password != "" {
		auth = &githttp.BasicAuth{Username: username, Password: password}
	}
	return &driver{remoteURL: remoteURL, auth: auth}
}

func op(name string, fn func() error) error {
	metrics.GitProviderOperationCount.WithLabelValues("generic", name).Inc()
	if err := fn(); err != nil {
		metrics.GitProviderOperationFailedCount.WithLabelValues("generic", name).Inc()
		return err
	}
	return nil
}

func (d *driver) Account(_ context.Context) (gitprovider.AccountInfo, error) {
	return gitprovider.AccountInfo{AccountName: d.remoteURL}, nil
}

// ListRepositories has exactly one entry: the configured remote itself,
// reachability-checked via a remote ls-refs rather than a provider API.
func (d *driver) ListRepositories(ctx context.Context) ([]gitprovider.RepositoryInfo, error) {
	var out []gitprovider.RepositoryInfo
	err := op("list_repositories", func() error {
		remote := git.NewRemote(nil, &config.RemoteConfig{Name: "origin", URLs: []string{d.remoteURL}})
		if _, err := remote.ListContext(ctx, &git.ListOptions{Auth: d.auth}); err != nil {
			return fmt.Errorf("listing refs on %s: %w", d.remoteURL, err)
		}
		out = append(out, gitprovider.RepositoryInfo{
			Name:     remoteName(d.remoteURL),
			FullName: d.remoteURL,
			CloneURL: d.remoteURL,
		})
		return nil
	})
	return out, err
}

func (d *driver) GetRepository(ctx context.Context, _, _ string) (gitprovider.RepositoryInfo, error) {
	repos, err := d.ListRepositories(ctx)
	if err != nil {
		return gitprovider.RepositoryInfo{}, err
	}
	return repos[0], nil
}

// LatestCommit resolves branch to its HEAD sha by listing the remote's
// refs directly, since a bare remote has no branch API to call.
func (d *driver) LatestCommit(ctx context.Context, _, _, branch string) (string, error) {
	var sha string
	err := op("latest_commit", func() error {
		remote := git.NewRemote(nil, &config.RemoteConfig{Name: "origin", URLs: []string{d.remoteURL}})
		refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: d.auth})
		if err != nil {
			return fmt.Errorf("listing refs on %s: %w", d.remoteURL, err)
		}
		want := "refs/heads/" + branch
		for _, ref := range refs {
			if ref.Name().String() == want {
				sha = ref.Hash().String()
				return nil
			}
		}
		return fmt.Errorf("branch %s not found on %s", branch, d.remoteURL)
	})
	return sha, err
}

// EnsureWebhook is a no-op: a bare remote has no webhook API, so repository
// sync for generic connections relies entirely on manual trigger_pipeline
// calls rather than push events.
func (d *driver) EnsureWebhook(context.Context, string, string, string, string) error { return nil }

func remoteName(url string) string {
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '/' {
			return trimGitSuffix(url[i+1:])
		}
	}
	return trimGitSuffix(url)
}

func trimGitSuffix(s string) string {
	const suffix = ".git"
	if len(s) > len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)]
	}
	return s
}
