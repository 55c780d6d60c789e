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

// Package store is the Persistence Model (spec section 4.A / 3): gorm
// entities, their relations, and the Store port every other subsystem
// persists through. Columns that spec section 3 marks as ciphertext are
// plain strings here - encryption/decryption is the caller's job via the
// crypto package, never the store's.
package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Base is embedded by every entity: a UUID primary key assigned on create,
// plus gorm's standard timestamp/soft-delete columns.
type Base struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (b *Base) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// --- Project aggregate (3. Project, Environment, EnvironmentVariable) ---

type Preset string

const (
	PresetStatic   Preset = "static"
	PresetNextJS   Preset = "nextjs"
	PresetDocker   Preset = "docker"
	PresetNixpacks Preset = "nixpacks"
)

type Project struct {
	Base

	Slug      string `gorm:"uniqueIndex;not null"`
	Name      string `gorm:"not null"`
	Owner     string
	RepoName  string
	Directory string `gorm:"not null;default:'.'"`

	MainBranch   string
	Preset       Preset `gorm:"not null"`
	PresetConfig datatypes.JSON

	DeploymentConfig DeploymentConfig `gorm:"embedded;embeddedPrefix:deploy_"`

	Environments      []Environment      `gorm:"constraint:OnDelete:CASCADE"`
	EnvVars           []EnvironmentVariable `gorm:"constraint:OnDelete:CASCADE"`
	ExternalServices  []ExternalService     `gorm:"many2many:project_services;"`
}

// DeploymentConfig is the resource + behavior profile applied to every
// deployment of a project (spec section 3, Project invariants).
type DeploymentConfig struct {
	CPURequestMillicores int64
	CPULimitMillicores   int64
	MemoryRequestMB      int64
	MemoryLimitMB        int64
	Replicas             int64 `gorm:"default:1"`
	ExposedPort          int32
	AutomaticDeploy      bool
	PerformanceMetrics   bool
	SessionRecording     bool
}

func (d DeploymentConfig) Validate() error {
	if d.CPURequestMillicores > d.CPULimitMillicores {
		return errValidation("cpu_request must be <= cpu_limit")
	}
	if d.MemoryRequestMB > d.MemoryLimitMB {
		return errValidation("memory_request must be <= memory_limit")
	}
	if d.Replicas < 1 {
		return errValidation("replicas must be >= 1")
	}
	return nil
}

type Environment struct {
	Base

	ProjectID uuid.UUID `gorm:"type:uuid;index:idx_project_slug,unique"`
	Name      string
	Slug      string `gorm:"index:idx_project_slug,unique"`
	Subdomain string
	Host      string
	Upstreams datatypes.JSON
	MainBranchOverride string

	EnvVars []EnvironmentVariable `gorm:"many2many:env_var_environments;"`
}

// ProductionEnvironmentSlug is created automatically with every project
// (spec section 3, Environment).
const ProductionEnvironmentSlug = "production"

type EnvironmentVariable struct {
	Base

	ProjectID      uuid.UUID `gorm:"type:uuid;index:idx_project_key,unique"`
	Key            string    `gorm:"index:idx_project_key,unique"`
	EncryptedValue string    `gorm:"not null"`

	Environments []Environment `gorm:"many2many:env_var_environments;"`
}

// --- External services (3. ExternalService, ProjectService, backups) ---

type ServiceType string

const (
	ServiceTypePostgres ServiceType = "postgres"
	ServiceTypeRedis    ServiceType = "redis"
	ServiceTypeS3       ServiceType = "s3"
)

type ServiceStatus string

const (
	ServiceStatusPending ServiceStatus = "pending"
	ServiceStatusRunning ServiceStatus = "running"
	ServiceStatusStopped ServiceStatus = "stopped"
	ServiceStatusFailed  ServiceStatus = "failed"
)

type ExternalService struct {
	Base

	Name        string `gorm:"not null"`
	Slug        string `gorm:"uniqueIndex;not null"`
	ServiceType ServiceType `gorm:"not null"`
	Version     string
	Status      ServiceStatus `gorm:"not null;default:pending"`

	Params   []ExternalServiceParam `gorm:"constraint:OnDelete:CASCADE"`
	Projects []Project              `gorm:"many2many:project_services;"`
}

// ExternalServiceParam is the sidecar (service_id, key, value) table. Value
// is ciphertext when the parameter definition marks the key sensitive.
type ExternalServiceParam struct {
	Base

	ServiceID uuid.UUID `gorm:"type:uuid;index:idx_service_param,unique"`
	Key       string    `gorm:"index:idx_service_param,unique"`
	Value     string
	Sensitive bool
}

type BackupType string

const (
	BackupTypeFull        BackupType = "full"
	BackupTypeIncremental BackupType = "incremental"
)

type BackupState string

const (
	BackupStateRunning   BackupState = "running"
	BackupStateCompleted BackupState = "completed"
	BackupStateFailed    BackupState = "failed"
)

type ExternalServiceBackup struct {
	Base

	ServiceID       uuid.UUID `gorm:"type:uuid;index"`
	BackupID        string    `gorm:"uniqueIndex;not null"`
	BackupType      BackupType
	State           BackupState
	StartedAt       time.Time
	FinishedAt      *time.Time
	SizeBytes  int64
	S3Location string
	Metadata   datatypes.JSON
}

// --- Git providers (3. GitProvider, GitProviderConnection, Repository) ---

type GitProviderType string

const (
	GitProviderGitHub  GitProviderType = "github"
	GitProviderGitLab  GitProviderType = "gitlab"
	GitProviderBitbucket GitProviderType = "bitbucket"
	GitProviderGitea   GitProviderType = "gitea"
	GitProviderGeneric GitProviderType = "generic"
)

type GitAuthMethod string

const (
	GitAuthGitHubApp  GitAuthMethod = "github_app"
	GitAuthGitLabApp  GitAuthMethod = "gitlab_app"
	GitAuthOAuth      GitAuthMethod = "oauth"
	GitAuthPAT        GitAuthMethod = "pat"
	GitAuthBasic      GitAuthMethod = "basic"
	GitAuthSSHKey     GitAuthMethod = "ssh_key"
)

type GitProvider struct {
	Base

	Name         string          `gorm:"not null"`
	ProviderType GitProviderType `gorm:"not null"`
	AuthMethod   GitAuthMethod   `gorm:"not null"`
	AuthConfig   string          // encrypted JSON
	BaseURL      string
	APIURL       string
	WebhookSecret string // encrypted
	IsActive     bool    `gorm:"default:true"`
	IsDefault    bool

	Connections []GitProviderConnection `gorm:"constraint:OnDelete:CASCADE"`
}

type GitAccountType string

const (
	GitAccountUser GitAccountType = "user"
	GitAccountOrg  GitAccountType = "org"
)

type GitProviderConnection struct {
	Base

	ProviderID       uuid.UUID `gorm:"type:uuid;index"`
	UserID           *uuid.UUID
	AccountName      string
	AccountType      GitAccountType
	InstallationID   *int64
	AccessTokenEnc   string
	RefreshTokenEnc  string
	TokenExpiresAt   *time.Time
	LastSyncedAt     *time.Time
	Syncing          bool
	IsActive         bool `gorm:"default:true"`
	IsExpired        bool
	Metadata         datatypes.JSON

	Repositories []Repository `gorm:"constraint:OnDelete:CASCADE"`
}

type Repository struct {
	Base

	GitProviderConnectionID uuid.UUID `gorm:"type:uuid;index:idx_conn_fullname,unique"`
	Owner                   string
	Name                    string
	FullName                string `gorm:"index:idx_conn_fullname,unique"`
	Description             string
	Private                 bool
	Fork                    bool
	DefaultBranch           string
	Language                string
	Size                    int64
	StargazersCount         int64
	WatchersCount           int64
	CloneURL                string
	SSHURL                  string
	Preset                  datatypes.JSON
	InstallationID          *int64
	PushedAt                *time.Time
}

// --- Funnels (3. Funnel, FunnelStep) ---

type Funnel struct {
	Base

	ProjectID   uuid.UUID `gorm:"type:uuid;index"`
	Name        string    `gorm:"not null"`
	Description string
	IsActive    bool `gorm:"default:true"`

	Steps []FunnelStep `gorm:"constraint:OnDelete:CASCADE"`
}

type FunnelStep struct {
	Base

	FunnelID   uuid.UUID `gorm:"type:uuid;index:idx_funnel_order,unique"`
	StepOrder  int       `gorm:"index:idx_funnel_order,unique"`
	EventName  string    `gorm:"not null"`
	EventFilter datatypes.JSON
}

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

func errValidation(msg string) error { return &validationError{msg: msg} }
