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

package config

import (
	"crypto/x509"
	"fmt"
	"os"
)

// GitHubAuthType distinguishes the two supported GitHub authentication
// shapes: a single PAT-authenticated client, or a GitHub App that mints
// short-lived installation tokens (4.E token lifecycle).
type GitHubAuthType string

const (
	GitHubAuthTypePAT GitHubAuthType = "pat"
	GitHubAuthTypeApp GitHubAuthType = "app"
)

// GitHubProvider is one configured GitHub App or PAT credential. The system
// hosts multiple GitHub Apps at once (webhook signatures are validated by
// trying each one's secret in turn, see
// gitprovider.Manager.ValidateWebhookSignature).
type GitHubProvider struct {
	Name             string         `toml:"name" json:"name"`
	AuthType         GitHubAuthType `toml:"auth_type" json:"auth_type"`
	BaseURL          string         `toml:"base_url" json:"base_url"`
	APIBaseURL       string         `toml:"api_base_url" json:"api_base_url"`
	CACertBundlePath string         `toml:"ca_cert_bundle" json:"ca_cert_bundle"`
	WebhookSecret    string         `toml:"webhook_secret" json:"webhook_secret"`
	PAT              string         `toml:"pat" json:"pat"`
	App              GitHubApp      `toml:"app" json:"app"`
	IsDefault        bool           `toml:"is_default" json:"is_default"`
}

func (g *GitHubProvider) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("missing provider name")
	}
	if g.WebhookSecret == "" {
		return fmt.Errorf("missing webhook_secret for provider %s", g.Name)
	}
	switch g.AuthType {
	case GitHubAuthTypeApp:
		return g.App.Validate()
	case GitHubAuthTypePAT:
		if g.PAT == "" {
			return fmt.Errorf("missing pat for provider %s", g.Name)
		}
	default:
		return fmt.Errorf("invalid auth_type for provider %s: %s", g.Name, g.AuthType)
	}
	return nil
}

func (g *GitHubProvider) CACertBundle() ([]byte, error) {
	if g.CACertBundlePath == "" {
		return nil, nil
	}
	contents, err := os.ReadFile(g.CACertBundlePath)
	if err != nil {
		return nil, fmt.Errorf("reading ca_cert_bundle: %w", err)
	}
	roots := x509.NewCertPool()
	if ok := roots.AppendCertsFromPEM(contents); !ok {
		return nil, fmt.Errorf("failed to parse CA cert bundle")
	}
	return contents, nil
}

// GitHubApp holds the app's identity and RSA private key location. The key
// itself is read from disk each time an installation client is built
// (PrivateKeyBytes) and its in-memory copy is never persisted; only minted
// installation tokens are stored (encrypted) on the connection row.
type GitHubApp struct {
	AppID          int64  `toml:"app_id" json:"app_id"`
	PrivateKeyPath string `toml:"private_key_path" json:"private_key_path"`
}

func (a *GitHubApp) Validate() error {
	if a.AppID == 0 {
		return fmt.Errorf("missing app_id")
	}
	if a.PrivateKeyPath == "" {
		return fmt.Errorf("missing private_key_path")
	}
	if _, err := os.Stat(a.PrivateKeyPath); err != nil {
		return fmt.Errorf("error accessing private_key_path: %w", err)
	}
	return nil
}

func (a *GitHubApp) PrivateKeyBytes() ([]byte, error) {
	keyBytes, err := os.ReadFile(a.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private_key_path: %w", err)
	}
	return keyBytes, nil
}

// GitLabProvider configures a self-hosted or saas GitLab OAuth application.
type GitLabProvider struct {
	Name         string `toml:"name" json:"name"`
	BaseURL      string `toml:"base_url" json:"base_url"`
	ClientID     string `toml:"client_id" json:"client_id"`
	ClientSecret string `toml:"client_secret" json:"client_secret"`
	PAT          string `toml:"pat" json:"pat"`
}

func (g *GitLabProvider) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("missing provider name")
	}
	if g.PAT == "" && (g.ClientID == "" || g.ClientSecret == "") {
		return fmt.Errorf("provider %s needs either a pat or oauth client credentials", g.Name)
	}
	return nil
}
