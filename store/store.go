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

package store

import (
	"context"

	"github.com/google/uuid"
)

// Store is the persistence port every subsystem depends on, generalizing
// the teacher's database/common.Store to the Temps entities.
type Store interface {
	// Projects
	CreateProject(ctx context.Context, p *Project) (*Project, error)
	GetProject(ctx context.Context, id uuid.UUID) (*Project, error)
	GetProjectBySlug(ctx context.Context, slug string) (*Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	UpdateProject(ctx context.Context, p *Project) (*Project, error)
	DeleteProject(ctx context.Context, id uuid.UUID) error

	// Environments
	CreateEnvironment(ctx context.Context, e *Environment) (*Environment, error)
	GetEnvironment(ctx context.Context, id uuid.UUID) (*Environment, error)
	ListProjectEnvironments(ctx context.Context, projectID uuid.UUID) ([]Environment, error)
	DeleteEnvironment(ctx context.Context, id uuid.UUID) error

	// Environment variables
	UpsertEnvVar(ctx context.Context, v *EnvironmentVariable) (*EnvironmentVariable, error)
	ListProjectEnvVars(ctx context.Context, projectID uuid.UUID) ([]EnvironmentVariable, error)
	DeleteEnvVar(ctx context.Context, id uuid.UUID) error

	// External services
	CreateExternalService(ctx context.Context, s *ExternalService) (*ExternalService, error)
	GetExternalService(ctx context.Context, id uuid.UUID) (*ExternalService, error)
	GetExternalServiceBySlug(ctx context.Context, slug string) (*ExternalService, error)
	ListExternalServices(ctx context.Context) ([]ExternalService, error)
	UpdateExternalService(ctx context.Context, s *ExternalService) (*ExternalService, error)
	DeleteExternalService(ctx context.Context, id uuid.UUID) error
	LinkServiceToProject(ctx context.Context, serviceID, projectID uuid.UUID) error
	UnlinkServiceFromProject(ctx context.Context, serviceID, projectID uuid.UUID) error
	ListServiceProjects(ctx context.Context, serviceID uuid.UUID) ([]Project, error)
	ListProjectServices(ctx context.Context, projectID uuid.UUID) ([]ExternalService, error)

	UpsertServiceParam(ctx context.Context, p *ExternalServiceParam) (*ExternalServiceParam, error)
	ListServiceParams(ctx context.Context, serviceID uuid.UUID) ([]ExternalServiceParam, error)

	CreateBackup(ctx context.Context, b *ExternalServiceBackup) (*ExternalServiceBackup, error)
	UpdateBackup(ctx context.Context, b *ExternalServiceBackup) (*ExternalServiceBackup, error)
	ListServiceBackups(ctx context.Context, serviceID uuid.UUID) ([]ExternalServiceBackup, error)

	// Git providers
	CreateGitProvider(ctx context.Context, p *GitProvider) (*GitProvider, error)
	GetGitProvider(ctx context.Context, id uuid.UUID) (*GitProvider, error)
	ListGitProviders(ctx context.Context) ([]GitProvider, error)
	UpdateGitProvider(ctx context.Context, p *GitProvider) (*GitProvider, error)
	DeleteGitProvider(ctx context.Context, id uuid.UUID) error

	CreateConnection(ctx context.Context, c *GitProviderConnection) (*GitProviderConnection, error)
	GetConnection(ctx context.Context, id uuid.UUID) (*GitProviderConnection, error)
	ListProviderConnections(ctx context.Context, providerID uuid.UUID) ([]GitProviderConnection, error)
	UpdateConnection(ctx context.Context, c *GitProviderConnection) (*GitProviderConnection, error)
	DeleteConnection(ctx context.Context, id uuid.UUID) error

	UpsertRepository(ctx context.Context, r *Repository) (*Repository, error)
	ListConnectionRepositories(ctx context.Context, connectionID uuid.UUID) ([]Repository, error)
	GetRepository(ctx context.Context, id uuid.UUID) (*Repository, error)

	// Funnels
	CreateFunnel(ctx context.Context, f *Funnel) (*Funnel, error)
	GetFunnel(ctx context.Context, id uuid.UUID) (*Funnel, error)
	ListProjectFunnels(ctx context.Context, projectID uuid.UUID) ([]Funnel, error)
	UpdateFunnel(ctx context.Context, f *Funnel) (*Funnel, error)
	DeleteFunnel(ctx context.Context, id uuid.UUID) error
}
