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
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/temps-platform/control-plane/config"
	ctlerrors "github.com/temps-platform/control-plane/errors"
)

// sqlStore is the gorm-backed Store implementation. It is the one place in
// the codebase allowed to import gorm directly; every other package talks
// to Store.
type sqlStore struct {
	db *gorm.DB
}

// NewSQLStore opens the configured backend and runs AutoMigrate over every
// entity, mirroring the teacher's database.NewDatabase dial-then-migrate
// sequence.
func NewSQLStore(cfg config.Database) (Store, error) {
	backend, uri, err := cfg.GormParams()
	if err != nil {
		return nil, err
	}

	gormCfg := &gorm.Config{}
	if !cfg.Debug {
		gormCfg.Logger = logger.Default.LogMode(logger.Silent)
	}

	var dialector gorm.Dialector
	switch backend {
	case config.PostgresBackend:
		dialector = postgres.Open(uri)
	case config.MySQLBackend:
		dialector = mysql.Open(uri)
	case config.SQLiteBackend:
		dialector = sqlite.Open(uri)
	default:
		return nil, fmt.Errorf("unsupported database backend: %s", backend)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	if err := db.AutoMigrate(
		&Project{},
		&Environment{},
		&EnvironmentVariable{},
		&ExternalService{},
		&ExternalServiceParam{},
		&ExternalServiceBackup{},
		&GitProvider{},
		&GitProviderConnection{},
		&Repository{},
		&Funnel{},
		&FunnelStep{},
	); err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	return &sqlStore{db: db}, nil
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ctlerrors.ErrNotFound
	}
	return err
}

// --- Projects ---

func (s *sqlStore) CreateProject(ctx context.Context, p *Project) (*Project, error) {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, translateErr(err)
	}
	return p, nil
}

func (s *sqlStore) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	var p Project
	if err := s.db.WithContext(ctx).Preload("Environments").Preload("EnvVars").
		First(&p, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &p, nil
}

func (s *sqlStore) GetProjectBySlug(ctx context.Context, slug string) (*Project, error) {
	var p Project
	if err := s.db.WithContext(ctx).First(&p, "slug = ?", slug).Error; err != nil {
		return nil, translateErr(err)
	}
	return &p, nil
}

func (s *sqlStore) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := s.db.WithContext(ctx).Find(&projects).Error; err != nil {
		return nil, translateErr(err)
	}
	return projects, nil
}

func (s *sqlStore) UpdateProject(ctx context.Context, p *Project) (*Project, error) {
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return nil, translateErr(err)
	}
	return p, nil
}

func (s *sqlStore) DeleteProject(ctx context.Context, id uuid.UUID) error {
	return translateErr(s.db.WithContext(ctx).Delete(&Project{}, "id = ?", id).Error)
}

// --- Environments ---

func (s *sqlStore) CreateEnvironment(ctx context.Context, e *Environment) (*Environment, error) {
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, translateErr(err)
	}
	return e, nil
}

func (s *sqlStore) GetEnvironment(ctx context.Context, id uuid.UUID) (*Environment, error) {
	var e Environment
	if err := s.db.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &e, nil
}

func (s *sqlStore) ListProjectEnvironments(ctx context.Context, projectID uuid.UUID) ([]Environment, error) {
	var envs []Environment
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&envs).Error; err != nil {
		return nil, translateErr(err)
	}
	return envs, nil
}

func (s *sqlStore) DeleteEnvironment(ctx context.Context, id uuid.UUID) error {
	return translateErr(s.db.WithContext(ctx).Delete(&Environment{}, "id = ?", id).Error)
}

// --- Environment variables ---

func (s *sqlStore) UpsertEnvVar(ctx context.Context, v *EnvironmentVariable) (*EnvironmentVariable, error) {
	var existing EnvironmentVariable
	err := s.db.WithContext(ctx).Where("project_id = ? AND key = ?", v.ProjectID, v.Key).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
			return nil, translateErr(err)
		}
		return v, nil
	case err != nil:
		return nil, translateErr(err)
	default:
		existing.EncryptedValue = v.EncryptedValue
		if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return nil, translateErr(err)
		}
		return &existing, nil
	}
}

func (s *sqlStore) ListProjectEnvVars(ctx context.Context, projectID uuid.UUID) ([]EnvironmentVariable, error) {
	var vars []EnvironmentVariable
	if err := s.db.WithContext(ctx).Preload("Environments").Where("project_id = ?", projectID).Find(&vars).Error; err != nil {
		return nil, translateErr(err)
	}
	return vars, nil
}

func (s *sqlStore) DeleteEnvVar(ctx context.Context, id uuid.UUID) error {
	return translateErr(s.db.WithContext(ctx).Delete(&EnvironmentVariable{}, "id = ?", id).Error)
}

// --- External services ---

func (s *sqlStore) CreateExternalService(ctx context.Context, svc *ExternalService) (*ExternalService, error) {
	if err := s.db.WithContext(ctx).Create(svc).Error; err != nil {
		return nil, translateErr(err)
	}
	return svc, nil
}

func (s *sqlStore) GetExternalService(ctx context.Context, id uuid.UUID) (*ExternalService, error) {
	var svc ExternalService
	if err := s.db.WithContext(ctx).Preload("Params").First(&svc, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &svc, nil
}

func (s *sqlStore) GetExternalServiceBySlug(ctx context.Context, slug string) (*ExternalService, error) {
	var svc ExternalService
	if err := s.db.WithContext(ctx).Preload("Params").First(&svc, "slug = ?", slug).Error; err != nil {
		return nil, translateErr(err)
	}
	return &svc, nil
}

func (s *sqlStore) ListExternalServices(ctx context.Context) ([]ExternalService, error) {
	var services []ExternalService
	if err := s.db.WithContext(ctx).Find(&services).Error; err != nil {
		return nil, translateErr(err)
	}
	return services, nil
}

func (s *sqlStore) UpdateExternalService(ctx context.Context, svc *ExternalService) (*ExternalService, error) {
	if err := s.db.WithContext(ctx).Save(svc).Error; err != nil {
		return nil, translateErr(err)
	}
	return svc, nil
}

func (s *sqlStore) DeleteExternalService(ctx context.Context, id uuid.UUID) error {
	return translateErr(s.db.WithContext(ctx).Delete(&ExternalService{}, "id = ?", id).Error)
}

func (s *sqlStore) LinkServiceToProject(ctx context.Context, serviceID, projectID uuid.UUID) error {
	svc := ExternalService{Base: Base{ID: serviceID}}
	proj := Project{Base: Base{ID: projectID}}
	return translateErr(s.db.WithContext(ctx).Model(&svc).Association("Projects").Append(&proj))
}

func (s *sqlStore) UnlinkServiceFromProject(ctx context.Context, serviceID, projectID uuid.UUID) error {
	svc := ExternalService{Base: Base{ID: serviceID}}
	proj := Project{Base: Base{ID: projectID}}
	return translateErr(s.db.WithContext(ctx).Model(&svc).Association("Projects").Delete(&proj))
}

func (s *sqlStore) ListServiceProjects(ctx context.Context, serviceID uuid.UUID) ([]Project, error) {
	var svc ExternalService
	if err := s.db.WithContext(ctx).Preload("Projects").First(&svc, "id = ?", serviceID).Error; err != nil {
		return nil, translateErr(err)
	}
	return svc.Projects, nil
}

func (s *sqlStore) ListProjectServices(ctx context.Context, projectID uuid.UUID) ([]ExternalService, error) {
	var proj Project
	if err := s.db.WithContext(ctx).Preload("ExternalServices").First(&proj, "id = ?", projectID).Error; err != nil {
		return nil, translateErr(err)
	}
	return proj.ExternalServices, nil
}

func (s *sqlStore) UpsertServiceParam(ctx context.Context, p *ExternalServiceParam) (*ExternalServiceParam, error) {
	var existing ExternalServiceParam
	err := s.db.WithContext(ctx).Where("service_id = ? AND key = ?", p.ServiceID, p.Key).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
			return nil, translateErr(err)
		}
		return p, nil
	case err != nil:
		return nil, translateErr(err)
	default:
		existing.Value = p.Value
		existing.Sensitive = p.Sensitive
		if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return nil, translateErr(err)
		}
		return &existing, nil
	}
}

func (s *sqlStore) ListServiceParams(ctx context.Context, serviceID uuid.UUID) ([]ExternalServiceParam, error) {
	var params []ExternalServiceParam
	if err := s.db.WithContext(ctx).Where("service_id = ?", serviceID).Find(&params).Error; err != nil {
		return nil, translateErr(err)
	}
	return params, nil
}

func (s *sqlStore) CreateBackup(ctx context.Context, b *ExternalServiceBackup) (*ExternalServiceBackup, error) {
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return nil, translateErr(err)
	}
	return b, nil
}

func (s *sqlStore) UpdateBackup(ctx context.Context, b *ExternalServiceBackup) (*ExternalServiceBackup, error) {
	if err := s.db.WithContext(ctx).Save(b).Error; err != nil {
		return nil, translateErr(err)
	}
	return b, nil
}

func (s *sqlStore) ListServiceBackups(ctx context.Context, serviceID uuid.UUID) ([]ExternalServiceBackup, error) {
	var backups []ExternalServiceBackup
	if err := s.db.WithContext(ctx).Where("service_id = ?", serviceID).
		Order("started_at desc").Find(&backups).Error; err != nil {
		return nil, translateErr(err)
	}
	return backups, nil
}

// --- Git providers ---

func (s *sqlStore) CreateGitProvider(ctx context.Context, p *GitProvider) (*GitProvider, error) {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, translateErr(err)
	}
	return p, nil
}

func (s *sqlStore) GetGitProvider(ctx context.Context, id uuid.UUID) (*GitProvider, error) {
	var p GitProvider
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &p, nil
}

func (s *sqlStore) ListGitProviders(ctx context.Context) ([]GitProvider, error) {
	var providers []GitProvider
	if err := s.db.WithContext(ctx).Find(&providers).Error; err != nil {
		return nil, translateErr(err)
	}
	return providers, nil
}

func (s *sqlStore) UpdateGitProvider(ctx context.Context, p *GitProvider) (*GitProvider, error) {
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return nil, translateErr(err)
	}
	return p, nil
}

func (s *sqlStore) DeleteGitProvider(ctx context.Context, id uuid.UUID) error {
	return translateErr(s.db.WithContext(ctx).Delete(&GitProvider{}, "id = ?", id).Error)
}

func (s *sqlStore) CreateConnection(ctx context.Context, c *GitProviderConnection) (*GitProviderConnection, error) {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, translateErr(err)
	}
	return c, nil
}

func (s *sqlStore) GetConnection(ctx context.Context, id uuid.UUID) (*GitProviderConnection, error) {
	var c GitProviderConnection
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &c, nil
}

func (s *sqlStore) ListProviderConnections(ctx context.Context, providerID uuid.UUID) ([]GitProviderConnection, error) {
	var conns []GitProviderConnection
	if err := s.db.WithContext(ctx).Where("provider_id = ?", providerID).Find(&conns).Error; err != nil {
		return nil, translateErr(err)
	}
	return conns, nil
}

func (s *sqlStore) UpdateConnection(ctx context.Context, c *GitProviderConnection) (*GitProviderConnection, error) {
	if err := s.db.WithContext(ctx).Save(c).Error; err != nil {
		return nil, translateErr(err)
	}
	return c, nil
}

func (s *sqlStore) DeleteConnection(ctx context.Context, id uuid.UUID) error {
	return translateErr(s.db.WithContext(ctx).Delete(&GitProviderConnection{}, "id = ?", id).Error)
}

func (s *sqlStore) UpsertRepository(ctx context.Context, r *Repository) (*Repository, error) {
	var existing Repository
	err := s.db.WithContext(ctx).Where(
		"git_provider_connection_id = ? AND full_name = ?", r.GitProviderConnectionID, r.FullName,
	).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
			return nil, translateErr(err)
		}
		return r, nil
	case err != nil:
		return nil, translateErr(err)
	default:
		r.ID = existing.ID
		if err := s.db.WithContext(ctx).Model(&existing).Updates(r).Error; err != nil {
			return nil, translateErr(err)
		}
		return &existing, nil
	}
}

func (s *sqlStore) ListConnectionRepositories(ctx context.Context, connectionID uuid.UUID) ([]Repository, error) {
	var repos []Repository
	if err := s.db.WithContext(ctx).Where("git_provider_connection_id = ?", connectionID).
		Find(&repos).Error; err != nil {
		return nil, translateErr(err)
	}
	return repos, nil
}

func (s *sqlStore) GetRepository(ctx context.Context, id uuid.UUID) (*Repository, error) {
	var r Repository
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &r, nil
}

// --- Funnels ---

func (s *sqlStore) CreateFunnel(ctx context.Context, f *Funnel) (*Funnel, error) {
	if err := s.db.WithContext(ctx).Create(f).Error; err != nil {
		return nil, translateErr(err)
	}
	return f, nil
}

func (s *sqlStore) GetFunnel(ctx context.Context, id uuid.UUID) (*Funnel, error) {
	var f Funnel
	if err := s.db.WithContext(ctx).Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("funnel_steps.step_order asc")
	}).First(&f, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &f, nil
}

func (s *sqlStore) ListProjectFunnels(ctx context.Context, projectID uuid.UUID) ([]Funnel, error) {
	var funnels []Funnel
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&funnels).Error; err != nil {
		return nil, translateErr(err)
	}
	return funnels, nil
}

func (s *sqlStore) UpdateFunnel(ctx context.Context, f *Funnel) (*Funnel, error) {
	if err := s.db.WithContext(ctx).Save(f).Error; err != nil {
		return nil, translateErr(err)
	}
	return f, nil
}

func (s *sqlStore) DeleteFunnel(ctx context.Context, id uuid.UUID) error {
	return translateErr(s.db.WithContext(ctx).Delete(&Funnel{}, "id = ?", id).Error)
}
