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

// Package config holds the process-wide configuration for the Temps control
// plane: database connection, encryption master key, deployment mode,
// network name, git provider credentials and the analytic database DSN.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

type (
	DBBackendType    string
	LogLevel         string
	LogFormat        string
	DeploymentMode   string
	QueueBackendType string
)

const (
	// PostgresBackend selects a Postgres relational store. There is no
	// default backend: Database.Validate rejects an empty one.
	PostgresBackend DBBackendType = "postgres"
	MySQLBackend    DBBackendType = "mysql"
	SQLiteBackend   DBBackendType = "sqlite3"
)

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

const (
	// DeploymentModeBaremetal means tooling runs on the host; services must
	// hand back loopback addresses (see services.Manager.GetLocalAddress).
	DeploymentModeBaremetal DeploymentMode = "baremetal"
	// DeploymentModeDocker means consumers run inside the same bridge
	// network as the service containers.
	DeploymentModeDocker DeploymentMode = "docker"
)

const (
	QueueBackendRedis   QueueBackendType = "redis"
	QueueBackendInMemory QueueBackendType = "memory"
)

// NewConfig reads and validates a TOML configuration file.
func NewConfig(cfgFile string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(cfgFile, &cfg); err != nil {
		return nil, fmt.Errorf("error decoding toml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}
	return &cfg, nil
}

// Config is the top level process configuration.
type Config struct {
	Default    Default          `toml:"default" json:"default"`
	Database   Database         `toml:"database" json:"database"`
	Logging    Logging          `toml:"logging" json:"logging"`
	Crypto     Crypto           `toml:"crypto" json:"crypto"`
	Queue      Queue            `toml:"queue" json:"queue"`
	Deployment Deployment       `toml:"deployment" json:"deployment"`
	Analytics  Analytics        `toml:"analytics" json:"analytics"`
	Email      Email            `toml:"email" json:"email"`
	GitHub     []GitHubProvider `toml:"github,omitempty" json:"github,omitempty"`
	GitLab     []GitLabProvider `toml:"gitlab,omitempty" json:"gitlab,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.Deployment.NetworkName == "" {
		c.Deployment.NetworkName = "temps"
	}
	if c.Deployment.LabelPrefix == "" {
		c.Deployment.LabelPrefix = "temps"
	}
	if c.Deployment.Mode == "" {
		c.Deployment.Mode = DeploymentModeDocker
	}
	if c.Queue.Backend == "" {
		c.Queue.Backend = QueueBackendRedis
	}
}

func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("error validating database config: %w", err)
	}
	if err := c.Crypto.Validate(); err != nil {
		return fmt.Errorf("error validating crypto config: %w", err)
	}
	if err := c.Deployment.Validate(); err != nil {
		return fmt.Errorf("error validating deployment config: %w", err)
	}
	for idx, gh := range c.GitHub {
		if err := gh.Validate(); err != nil {
			return fmt.Errorf("error validating github provider %d: %w", idx, err)
		}
	}
	return nil
}

// Default holds process-wide miscellaneous settings.
type Default struct {
	ControllerID string `toml:"controller_id" json:"controller_id"`
	// CallbackBaseURL is this control plane's own externally reachable
	// address, used to build the webhook callback URL a git provider
	// connection registers (gitprovider.Manager.EnsureWebhook).
	CallbackBaseURL string `toml:"callback_base_url" json:"callback_base_url"`
}

// Deployment carries DEPLOYMENT_MODE, NETWORK_NAME and DOCKER_LABEL_PREFIX
// per spec section 6. These are read once at init and treated as immutable.
type Deployment struct {
	Mode        DeploymentMode `toml:"mode" json:"mode"`
	NetworkName string         `toml:"network_name" json:"network_name"`
	LabelPrefix string         `toml:"label_prefix" json:"label_prefix"`
}

func (d *Deployment) Validate() error {
	switch d.Mode {
	case DeploymentModeBaremetal, DeploymentModeDocker:
	default:
		return fmt.Errorf("invalid deployment mode: %s", d.Mode)
	}
	return nil
}

// IsDocker reports whether consuming applications run inside the shared
// bridge network (see services package address-resolution contract).
func (d Deployment) IsDocker() bool {
	return d.Mode == DeploymentModeDocker
}

// Crypto holds the master key material for the encryption service (4.B).
type Crypto struct {
	// MasterKeyHex is a 32-byte key encoded as 64 hex characters.
	MasterKeyHex string `toml:"master_key_hex" json:"master_key_hex"`
	// Passphrase, if MasterKeyHex is empty, is stretched into a key.
	Passphrase string `toml:"passphrase" json:"passphrase"`
}

func (c *Crypto) Validate() error {
	if c.MasterKeyHex == "" && c.Passphrase == "" {
		return fmt.Errorf("either master_key_hex or passphrase must be set")
	}
	if c.MasterKeyHex != "" && len(c.MasterKeyHex) != 64 {
		return fmt.Errorf("master_key_hex must be 64 hex characters (32 bytes)")
	}
	if c.Passphrase != "" {
		strength := zxcvbn.PasswordStrength(c.Passphrase, nil)
		if strength.Score < 3 {
			return fmt.Errorf("crypto passphrase is too weak")
		}
	}
	return nil
}

// Queue configures the job queue backing transport (4.C).
type Queue struct {
	Backend  QueueBackendType `toml:"backend" json:"backend"`
	RedisDSN string           `toml:"redis_dsn" json:"redis_dsn"`
}

// Analytics configures the analytic database connection used by the query
// and funnel engines (4.G, 4.H).
type Analytics struct {
	DSN string `toml:"dsn" json:"dsn"`
}

// Email configures the transactional email domain service.
type Email struct {
	FromDomain string `toml:"from_domain" json:"from_domain"`
}

// Database is the relational store configuration entry.
type Database struct {
	Debug     bool          `toml:"debug" json:"debug"`
	DbBackend DBBackendType `toml:"backend" json:"backend"`
	Postgres  Postgres      `toml:"postgres" json:"postgres"`
	MySQL     MySQL         `toml:"mysql" json:"mysql"`
	SQLite    SQLite        `toml:"sqlite3" json:"sqlite3"`
}

func (d *Database) Validate() error {
	if d.DbBackend == "" {
		return fmt.Errorf("invalid database configuration: backend is required")
	}
	switch d.DbBackend {
	case PostgresBackend:
		return d.Postgres.Validate()
	case MySQLBackend:
		return d.MySQL.Validate()
	case SQLiteBackend:
		return d.SQLite.Validate()
	default:
		return fmt.Errorf("invalid database backend: %s", d.DbBackend)
	}
}

// GormParams returns the database type and connection URI gorm.Open expects.
func (d *Database) GormParams() (dbType DBBackendType, uri string, err error) {
	if err := d.Validate(); err != nil {
		return "", "", err
	}
	switch d.DbBackend {
	case PostgresBackend:
		return PostgresBackend, d.Postgres.ConnectionString(), nil
	case MySQLBackend:
		return MySQLBackend, d.MySQL.ConnectionString(), nil
	case SQLiteBackend:
		return SQLiteBackend, d.SQLite.ConnectionString(), nil
	default:
		return "", "", fmt.Errorf("invalid database backend: %s", d.DbBackend)
	}
}

// Postgres is the config entry for the postgres backend.
type Postgres struct {
	Host     string `toml:"host" json:"host"`
	Port     int    `toml:"port" json:"port"`
	Username string `toml:"username" json:"username"`
	Password string `toml:"password" json:"password"`
	Database string `toml:"database" json:"database"`
	SSLMode  string `toml:"ssl_mode" json:"ssl_mode"`
}

func (p *Postgres) Validate() error {
	if p.Host == "" || p.Database == "" || p.Username == "" {
		return fmt.Errorf("host, database and username are required for postgres backend")
	}
	return nil
}

func (p *Postgres) ConnectionString() string {
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := p.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, port, p.Username, p.Password, p.Database, sslMode)
}

// MySQL is the config entry for the mysql backend.
type MySQL struct {
	Username string `toml:"username" json:"username"`
	Password string `toml:"password" json:"password"`
	Hostname string `toml:"hostname" json:"hostname"`
	Port     int    `toml:"port" json:"port"`
	Database string `toml:"database" json:"database"`
}

func (m *MySQL) Validate() error {
	if m.Username == "" || m.Hostname == "" || m.Database == "" {
		return fmt.Errorf("username, hostname and database are required for mysql backend")
	}
	return nil
}

func (m *MySQL) ConnectionString() string {
	port := m.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		m.Username, m.Password, m.Hostname, port, m.Database)
}

// SQLite is the config entry for the sqlite3 backend, used in tests.
type SQLite struct {
	DBFile string `toml:"db_file" json:"db_file"`
}

func (s *SQLite) Validate() error {
	if s.DBFile == "" {
		return fmt.Errorf("no valid db_file was specified")
	}
	if !filepath.IsAbs(s.DBFile) {
		return fmt.Errorf("please specify an absolute path for db_file")
	}
	if _, err := os.Stat(filepath.Dir(s.DBFile)); err != nil {
		return fmt.Errorf("parent directory of db_file does not exist: %w", err)
	}
	return nil
}

func (s *SQLite) ConnectionString() string {
	return fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=ON&_txlock=immediate", s.DBFile)
}

// Logging configures the slog root logger.
type Logging struct {
	Level   LogLevel  `toml:"level" json:"level"`
	Format  LogFormat `toml:"format" json:"format"`
	LogFile string    `toml:"log_file" json:"log_file"`
}
