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

// Package cmd is tempsctl: an operator CLI that drives the control plane's
// service layer in process, against the same database and analytic
// connections the control plane itself uses. There is no REST API for it
// to call (spec section 1 places that transport out of scope), so every
// subcommand opens its own short-lived connections and exits.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers the "postgres" sql.DB driver analytics/funnel dial with

	"github.com/temps-platform/control-plane/analytics"
	"github.com/temps-platform/control-plane/config"
	"github.com/temps-platform/control-plane/crypto"
	"github.com/temps-platform/control-plane/funnel"
	"github.com/temps-platform/control-plane/gitprovider"
	"github.com/temps-platform/control-plane/logging"
	"github.com/temps-platform/control-plane/project"
	"github.com/temps-platform/control-plane/queue"
	"github.com/temps-platform/control-plane/services"
	"github.com/temps-platform/control-plane/services/docker"
	"github.com/temps-platform/control-plane/store"
)

// app bundles the wiring every subcommand needs, built once per invocation
// from the configured TOML file.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	store    store.Store
	queue    queue.Queue
	gitMgr   *gitprovider.Manager
	project  *project.Service
	funnels  *funnel.Service
	services *services.Manager
}

func loadApp(cfgPath string) (*app, error) {
	cfg, err := config.NewConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log := logging.NewLogger(cfg.Logging)

	st, err := store.NewSQLStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	enc, err := newEncryptionService(cfg.Crypto)
	if err != nil {
		return nil, fmt.Errorf("building crypto service: %w", err)
	}

	q, err := newQueue(cfg.Queue, log)
	if err != nil {
		return nil, fmt.Errorf("building queue: %w", err)
	}

	githubApps := make(map[string]config.GitHubProvider, len(cfg.GitHub))
	for _, gh := range cfg.GitHub {
		githubApps[gh.Name] = gh
	}
	gitlabApps := make(map[string]config.GitLabProvider, len(cfg.GitLab))
	for _, gl := range cfg.GitLab {
		gitlabApps[gl.Name] = gl
	}
	gitMgr := gitprovider.NewManager(st, enc, q, githubApps, gitlabApps, cfg.Default.CallbackBaseURL)

	projectSvc := project.New(st, enc, q, gitMgr)

	var analyticsDB *sqlx.DB
	if cfg.Analytics.DSN != "" {
		analyticsDB, err = sqlx.Connect("postgres", cfg.Analytics.DSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to analytic database: %w", err)
		}
	}
	funnelSvc := funnel.New(st, analyticsDB)

	dockerClient, err := docker.NewClient()
	if err != nil {
		return nil, fmt.Errorf("connecting to docker: %w", err)
	}
	servicesMgr := services.NewManager(st, dockerClient, enc, cfg.Deployment)

	return &app{
		cfg:      cfg,
		log:      log,
		store:    st,
		queue:    q,
		gitMgr:   gitMgr,
		project:  projectSvc,
		funnels:  funnelSvc,
		services: servicesMgr,
	}, nil
}

func newEncryptionService(cfg config.Crypto) (*crypto.EncryptionService, error) {
	if cfg.MasterKeyHex != "" {
		return crypto.NewFromHexKey(cfg.MasterKeyHex)
	}
	return crypto.NewFromPassphrase(cfg.Passphrase)
}

func newQueue(cfg config.Queue, log *slog.Logger) (queue.Queue, error) {
	if cfg.Backend == config.QueueBackendInMemory {
		return queue.NewMemoryQueue(), nil
	}
	return queue.NewRedisQueue(cfg.RedisDSN, log)
}

// analyticsEngine builds a query engine on a fresh connection to the
// configured analytic DSN (the same DSN funnels use), and returns an error
// when no DSN is configured.
func (a *app) analyticsEngine() (*analytics.Engine, error) {
	if a.cfg.Analytics.DSN == "" {
		return nil, fmt.Errorf("no analytics DSN configured")
	}
	db, err := sqlx.Connect("postgres", a.cfg.Analytics.DSN)
	if err != nil {
		return nil, fmt.Errorf("connecting to analytic database: %w", err)
	}
	return analytics.New(db), nil
}
