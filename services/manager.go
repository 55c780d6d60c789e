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

package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/url"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"

	"github.com/temps-platform/control-plane/config"
	"github.com/temps-platform/control-plane/crypto"
	ctlerrors "github.com/temps-platform/control-plane/errors"
	"github.com/temps-platform/control-plane/locking"
	"github.com/temps-platform/control-plane/metrics"
	"github.com/temps-platform/control-plane/services/docker"
	"github.com/temps-platform/control-plane/store"
)

// maskedValue replaces a sensitive parameter's value in preview output.
const maskedValue = "***"

const containerStopTimeout = 30 * time.Second
const healthCheckMaxWait = 60 * time.Second

// Manager is the External Service Manager (spec section 4.D).
type Manager struct {
	store    store.Store
	docker   *docker.Client
	registry *Registry
	crypto   *crypto.EncryptionService
	deploy   config.Deployment
}

// NewManager wires the manager's dependencies. All are required.
func NewManager(st store.Store, dockerClient *docker.Client, enc *crypto.EncryptionService, deploy config.Deployment) *Manager {
	return &Manager{
		store:    st,
		docker:   dockerClient,
		registry: NewRegistry(),
		crypto:   enc,
		deploy:   deploy,
	}
}

// CreateRequest is the input to CreateService.
type CreateRequest struct {
	Name        string
	ServiceType store.ServiceType
	Version     string
	Parameters  map[string]string
}

// CreateService validates parameters, encrypts sensitive ones, persists
// service+params in a single transaction-equivalent sequence, then
// initializes the backing container.
func (m *Manager) CreateService(ctx context.Context, req CreateRequest) (*store.ExternalService, error) {
	def, err := m.registry.Get(req.ServiceType)
	if err != nil {
		return nil, ctlerrors.NewBadRequestError(err.Error())
	}

	resolved, err := m.validateAndResolve(ctx, def, req.Name, req.Parameters)
	if err != nil {
		return nil, err
	}

	svc := &store.ExternalService{
		Name:        req.Name,
		Slug:        req.Name,
		ServiceType: req.ServiceType,
		Version:     req.Version,
		Status:      store.ServiceStatusPending,
	}
	created, err := m.store.CreateExternalService(ctx, svc)
	if err != nil {
		return nil, err
	}

	if err := m.persistParams(ctx, created.ID, def, resolved); err != nil {
		return nil, err
	}

	metrics.ServiceOperationCount.WithLabelValues(string(req.ServiceType), "create").Inc()
	if err := m.init(ctx, created, def, resolved); err != nil {
		metrics.ServiceOperationFailedCount.WithLabelValues(string(req.ServiceType), "create").Inc()
		created.Status = store.ServiceStatusFailed
		_, _ = m.store.UpdateExternalService(ctx, created)
		return nil, &ctlerrors.InitializationFailed{ServiceID: created.ID.String(), Err: err}
	}

	created.Status = store.ServiceStatusRunning
	return m.store.UpdateExternalService(ctx, created)
}

// validateAndResolve rejects unknown keys and missing required ones, then
// asks the definition to fill in auto-generated parameters.
func (m *Manager) validateAndResolve(ctx context.Context, def Definition, name string, params map[string]string) (map[string]string, error) {
	allowed := map[string]ParamDef{}
	for _, p := range def.Params() {
		allowed[p.Key] = p
	}
	for key := range params {
		if _, ok := allowed[key]; !ok {
			return nil, &ctlerrors.UnknownParameter{ServiceType: string(def.Type()), ParamName: key}
		}
	}
	for _, p := range def.Params() {
		if p.Required && params[p.Key] == "" {
			if p.Default == nil {
				return nil, &ctlerrors.MissingRequiredParameter{ServiceType: string(def.Type()), ParamName: p.Key}
			}
		}
	}
	return def.Resolve(ctx, name, params)
}

func (m *Manager) persistParams(ctx context.Context, serviceID uuid.UUID, def Definition, params map[string]string) error {
	sensitive := map[string]bool{}
	for _, p := range def.Params() {
		sensitive[p.Key] = p.Sensitive
	}
	for key, value := range params {
		stored := value
		if sensitive[key] {
			enc, err := m.crypto.EncryptString(value)
			if err != nil {
				return fmt.Errorf("error encrypting parameter %s: %w", key, err)
			}
			stored = enc
		}
		if _, err := m.store.UpsertServiceParam(ctx, &store.ExternalServiceParam{
			ServiceID: serviceID, Key: key, Value: stored, Sensitive: sensitive[key],
		}); err != nil {
			return fmt.Errorf("error persisting parameter %s: %w", key, err)
		}
	}
	return nil
}

// resolvedParams loads and decrypts every parameter for a service.
func (m *Manager) resolvedParams(ctx context.Context, serviceID uuid.UUID) (map[string]string, error) {
	rows, err := m.store.ListServiceParams(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		if row.Sensitive {
			plain, err := m.crypto.DecryptParam(serviceID.String(), row.Key, row.Value)
			if err != nil {
				return nil, err
			}
			out[row.Key] = plain
			continue
		}
		out[row.Key] = row.Value
	}
	return out, nil
}

// init creates and starts the backing container for a newly created or
// recreated service.
func (m *Manager) init(ctx context.Context, svc *store.ExternalService, def Definition, params map[string]string) error {
	if _, err := m.docker.EnsureNetwork(ctx, m.deploy.NetworkName, nil); err != nil {
		return fmt.Errorf("error ensuring network: %w", err)
	}

	spec := def.ContainerSpec(svc.Name, svc.Version, params)
	if _, err := m.docker.EnsureVolume(ctx, spec.VolumeName, ServiceLabels(m.deploy, svc.ServiceType, svc.Name)); err != nil {
		return fmt.Errorf("error ensuring volume: %w", err)
	}
	if err := m.docker.PullImage(ctx, spec.Image); err != nil {
		return err
	}

	containerID, err := createAndStart(ctx, m.docker, m.deploy, svc.ServiceType, svc.Name, spec)
	if err != nil {
		return &ctlerrors.StartFailed{ServiceID: svc.ID.String(), Err: err}
	}

	if err := m.docker.WaitHealthy(ctx, containerID, healthCheckMaxWait); err != nil {
		return &ctlerrors.HealthCheckTimeout{ServiceID: svc.ID.String(), Waited: healthCheckMaxWait.String()}
	}
	return nil
}

func createAndStart(ctx context.Context, cli *docker.Client, deploy config.Deployment, kind store.ServiceType, name string, spec ContainerSpec) (string, error) {
	hostCfg := hostConfigWithVolume(spec.VolumeName, spec.VolumeTarget)
	if !deploy.IsDocker() && spec.InternalPort > 0 {
		// Baremetal mode: publish the port to a host-assigned loopback
		// binding so get_docker_environment_variables / get_local_address
		// can hand tooling a reachable localhost address.
		port := nat.Port(fmt.Sprintf("%d/tcp", spec.InternalPort))
		hostCfg.PortBindings = nat.PortMap{
			port: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: ""}},
		}
	}
	cfg := dockerContainerConfig(spec, kind, name, deploy)
	containerID, err := cli.CreateContainer(ctx, spec.ContainerName, deploy.NetworkName, cfg, hostCfg)
	if err != nil {
		return "", fmt.Errorf("error creating container: %w", err)
	}
	if err := cli.StartContainer(ctx, containerID); err != nil {
		return "", fmt.Errorf("error starting container: %w", err)
	}
	return containerID, nil
}

// UpdateService replaces parameters atomically and re-runs init.
func (m *Manager) UpdateService(ctx context.Context, id uuid.UUID, name string, params map[string]string) (*store.ExternalService, error) {
	if !locking.TryLock(serviceLockKey(id), "update") {
		return nil, ctlerrors.NewConflictError("service has a lifecycle operation already in progress")
	}
	defer locking.Unlock(serviceLockKey(id), false)

	svc, err := m.store.GetExternalService(ctx, id)
	if err != nil {
		return nil, err
	}
	def, err := m.registry.Get(svc.ServiceType)
	if err != nil {
		return nil, err
	}

	resolved, err := m.validateAndResolve(ctx, def, svc.Name, params)
	if err != nil {
		return nil, err
	}
	if err := m.persistParams(ctx, svc.ID, def, resolved); err != nil {
		return nil, err
	}
	if name != "" {
		svc.Name = name
	}

	metrics.ServiceOperationCount.WithLabelValues(string(svc.ServiceType), "update").Inc()
	if err := m.init(ctx, svc, def, resolved); err != nil {
		metrics.ServiceOperationFailedCount.WithLabelValues(string(svc.ServiceType), "update").Inc()
		svc.Status = store.ServiceStatusFailed
		_, _ = m.store.UpdateExternalService(ctx, svc)
		return nil, err
	}
	svc.Status = store.ServiceStatusRunning
	return m.store.UpdateExternalService(ctx, svc)
}

// Upgrade implements the no-downtime-without-rollback upgrade protocol: it
// (1) pulls newVersion's image and verifies the pull actually succeeds,
// (2) only then stops the running container, (3) recreates the container
// against the same named data volume so state persists. If the pull
// fails, the old container is never touched.
func (m *Manager) Upgrade(ctx context.Context, id uuid.UUID, newVersion string) (*store.ExternalService, error) {
	if !locking.TryLock(serviceLockKey(id), "upgrade") {
		return nil, ctlerrors.NewConflictError("service has a lifecycle operation already in progress")
	}
	defer locking.Unlock(serviceLockKey(id), false)

	svc, err := m.store.GetExternalService(ctx, id)
	if err != nil {
		return nil, err
	}
	def, err := m.registry.Get(svc.ServiceType)
	if err != nil {
		return nil, err
	}
	params, err := m.resolvedParams(ctx, svc.ID)
	if err != nil {
		return nil, err
	}

	newSpec := def.ContainerSpec(svc.Name, newVersion, params)
	metrics.ServiceOperationCount.WithLabelValues(string(svc.ServiceType), "upgrade").Inc()
	if err := m.docker.PullImage(ctx, newSpec.Image); err != nil {
		metrics.ServiceOperationFailedCount.WithLabelValues(string(svc.ServiceType), "upgrade").Inc()
		return nil, &ctlerrors.ImageNotPullable{ServiceID: svc.ID.String(), Image: newSpec.Image, Err: err}
	}

	containerName, _ := ResourceNames(svc.ServiceType, svc.Name)
	containerID, info, err := m.docker.ContainerByName(ctx, containerName)
	if err != nil {
		return nil, err
	}
	if info != nil {
		if err := m.docker.StopContainer(ctx, containerID, containerStopTimeout); err != nil {
			metrics.ServiceOperationFailedCount.WithLabelValues(string(svc.ServiceType), "upgrade").Inc()
			return nil, err
		}
		if err := m.docker.RemoveContainer(ctx, containerID, false); err != nil {
			metrics.ServiceOperationFailedCount.WithLabelValues(string(svc.ServiceType), "upgrade").Inc()
			return nil, err
		}
	}

	svc.Version = newVersion
	newContainerID, err := createAndStart(ctx, m.docker, m.deploy, svc.ServiceType, svc.Name, newSpec)
	if err != nil {
		metrics.ServiceOperationFailedCount.WithLabelValues(string(svc.ServiceType), "upgrade").Inc()
		svc.Status = store.ServiceStatusFailed
		_, _ = m.store.UpdateExternalService(ctx, svc)
		return nil, &ctlerrors.StartFailed{ServiceID: svc.ID.String(), Err: err}
	}
	if err := m.docker.WaitHealthy(ctx, newContainerID, healthCheckMaxWait); err != nil {
		return nil, &ctlerrors.HealthCheckTimeout{ServiceID: svc.ID.String(), Waited: healthCheckMaxWait.String()}
	}

	svc.Status = store.ServiceStatusRunning
	return m.store.UpdateExternalService(ctx, svc)
}

func (m *Manager) StartService(ctx context.Context, id uuid.UUID) error {
	svc, err := m.store.GetExternalService(ctx, id)
	if err != nil {
		return err
	}
	containerName, _ := ResourceNames(svc.ServiceType, svc.Name)
	containerID, info, err := m.docker.ContainerByName(ctx, containerName)
	if err != nil {
		return err
	}
	if info == nil {
		return ctlerrors.ErrNotFound
	}
	metrics.ServiceOperationCount.WithLabelValues(string(svc.ServiceType), "start").Inc()
	if err := m.docker.StartContainer(ctx, containerID); err != nil {
		metrics.ServiceOperationFailedCount.WithLabelValues(string(svc.ServiceType), "start").Inc()
		return &ctlerrors.StartFailed{ServiceID: svc.ID.String(), Reason: err.Error()}
	}
	svc.Status = store.ServiceStatusRunning
	_, err = m.store.UpdateExternalService(ctx, svc)
	return err
}

func (m *Manager) StopService(ctx context.Context, id uuid.UUID) error {
	svc, err := m.store.GetExternalService(ctx, id)
	if err != nil {
		return err
	}
	containerName, _ := ResourceNames(svc.ServiceType, svc.Name)
	containerID, info, err := m.docker.ContainerByName(ctx, containerName)
	if err != nil {
		return err
	}
	if info == nil {
		return ctlerrors.ErrNotFound
	}
	metrics.ServiceOperationCount.WithLabelValues(string(svc.ServiceType), "stop").Inc()
	if err := m.docker.StopContainer(ctx, containerID, containerStopTimeout); err != nil {
		metrics.ServiceOperationFailedCount.WithLabelValues(string(svc.ServiceType), "stop").Inc()
		return err
	}
	svc.Status = store.ServiceStatusStopped
	_, err = m.store.UpdateExternalService(ctx, svc)
	return err
}

// DeleteService removes the container (and, best-effort, its volume) then
// the persisted row. A volume removal failure is ignored, not
// propagated: dangling volumes are the safe failure mode, never silent
// data loss.
func (m *Manager) DeleteService(ctx context.Context, id uuid.UUID) error {
	svc, err := m.store.GetExternalService(ctx, id)
	if err != nil {
		return err
	}
	containerName, volumeName := ResourceNames(svc.ServiceType, svc.Name)
	containerID, info, err := m.docker.ContainerByName(ctx, containerName)
	if err != nil {
		return err
	}
	metrics.ServiceOperationCount.WithLabelValues(string(svc.ServiceType), "delete").Inc()
	if info != nil {
		if err := m.docker.RemoveContainer(ctx, containerID, true); err != nil {
			metrics.ServiceOperationFailedCount.WithLabelValues(string(svc.ServiceType), "delete").Inc()
			return err
		}
	}
	_ = m.docker.RemoveVolume(ctx, volumeName, false)
	return m.store.DeleteExternalService(ctx, id)
}

func (m *Manager) LinkServiceToProject(ctx context.Context, serviceID, projectID uuid.UUID) error {
	return m.store.LinkServiceToProject(ctx, serviceID, projectID)
}

func (m *Manager) UnlinkServiceFromProject(ctx context.Context, serviceID, projectID uuid.UUID) error {
	return m.store.UnlinkServiceFromProject(ctx, serviceID, projectID)
}

func (m *Manager) ListServiceProjects(ctx context.Context, serviceID uuid.UUID) ([]store.Project, error) {
	return m.store.ListServiceProjects(ctx, serviceID)
}

func (m *Manager) ListProjectServices(ctx context.Context, projectID uuid.UUID) ([]store.ExternalService, error) {
	return m.store.ListProjectServices(ctx, projectID)
}

// resolveAddress returns the (host, port) pair to surface to a consumer,
// given the deployment-mode contract: apps inside the cluster always get
// container-routable addresses; host tooling gets loopback addresses only
// in baremetal mode via get_docker_environment_variables / get_local_address.
func (m *Manager) resolveAddress(ctx context.Context, svc *store.ExternalService, def Definition, params map[string]string, hostAware bool) (host, port string, err error) {
	containerName, _ := ResourceNames(svc.ServiceType, svc.Name)
	internalPort := def.ContainerSpec(svc.Name, svc.Version, params).InternalPort

	if hostAware && !m.deploy.IsDocker() {
		containerID, info, err := m.docker.ContainerByName(ctx, containerName)
		if err != nil {
			return "", "", err
		}
		if info == nil {
			return "", "", ctlerrors.ErrNotFound
		}
		hostPort, err := m.docker.HostPortFor(ctx, containerID, internalPort)
		if err != nil {
			return "", "", err
		}
		return "localhost", hostPort, nil
	}
	return containerName, fmt.Sprintf("%d", internalPort), nil
}

// GetServiceEnvironmentVariables returns unmasked connection env vars for
// a service, addressed for in-cluster consumption (get_environment_variables).
func (m *Manager) GetServiceEnvironmentVariables(ctx context.Context, serviceID, _ uuid.UUID) (map[string]string, error) {
	svc, err := m.store.GetExternalService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	def, err := m.registry.Get(svc.ServiceType)
	if err != nil {
		return nil, err
	}
	params, err := m.resolvedParams(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	host, port, err := m.resolveAddress(ctx, svc, def, params, false)
	if err != nil {
		return nil, err
	}
	return def.EnvVars(params, host, port), nil
}

// GetLocalAddress returns "host:port" reachable from the tooling host
// running this control plane — localhost+exposed-port in baremetal mode,
// container-name+internal-port in docker mode (get_local_address in the
// service-polymorphic contract).
func (m *Manager) GetLocalAddress(ctx context.Context, serviceID uuid.UUID) (string, error) {
	svc, err := m.store.GetExternalService(ctx, serviceID)
	if err != nil {
		return "", err
	}
	def, err := m.registry.Get(svc.ServiceType)
	if err != nil {
		return "", err
	}
	params, err := m.resolvedParams(ctx, serviceID)
	if err != nil {
		return "", err
	}
	host, port, err := m.resolveAddress(ctx, svc, def, params, true)
	if err != nil {
		return "", err
	}
	return def.LocalAddress(params, host, port), nil
}

// GetServicePreviewEnvironmentVariablesMasked returns the same shape as
// GetServiceEnvironmentVariables with sensitive values replaced by "***".
func (m *Manager) GetServicePreviewEnvironmentVariablesMasked(ctx context.Context, serviceID uuid.UUID) (map[string]string, error) {
	svc, err := m.store.GetExternalService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	def, err := m.registry.Get(svc.ServiceType)
	if err != nil {
		return nil, err
	}
	rows, err := m.store.ListServiceParams(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	masked := make(map[string]string, len(rows))
	for _, row := range rows {
		if row.Sensitive {
			masked[row.Key] = maskedValue
			continue
		}
		masked[row.Key] = row.Value
	}
	containerName, _ := ResourceNames(svc.ServiceType, svc.Name)
	internalPort := def.ContainerSpec(svc.Name, svc.Version, masked).InternalPort
	return def.EnvVars(masked, containerName, fmt.Sprintf("%d", internalPort)), nil
}

// GetRuntimeEnvVars returns per-tenant isolated connection coordinates: a
// deterministic Redis database number, or a partitioned Postgres
// database/S3 prefix, scoped to (project_slug, environment_slug).
func (m *Manager) GetRuntimeEnvVars(ctx context.Context, serviceID uuid.UUID, projectSlug, environmentSlug string) (map[string]string, error) {
	svc, err := m.store.GetExternalService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	def, err := m.registry.Get(svc.ServiceType)
	if err != nil {
		return nil, err
	}
	params, err := m.resolvedParams(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	host, port, err := m.resolveAddress(ctx, svc, def, params, false)
	if err != nil {
		return nil, err
	}

	tenantKey := projectSlug + "_" + environmentSlug
	env := def.EnvVars(params, host, port)

	switch svc.ServiceType {
	case store.ServiceTypeRedis:
		dbNumber := RedisDBNumber(tenantKey)
		env["REDIS_DATABASE"] = fmt.Sprintf("%d", dbNumber)
		redisURI := url.URL{
			Scheme:   "redis",
			User:     url.UserPassword("", params["password"]),
			Host:     fmt.Sprintf("%s:%s", host, port),
			Path:     fmt.Sprintf("/%d", dbNumber),
		}
		env["REDIS_URL"] = redisURI.String()
	case store.ServiceTypePostgres:
		dbName := tenantDatabaseName(params["database"], tenantKey)
		env["POSTGRES_DB"] = dbName
		pgURI := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(params["username"], params["password"]),
			Host:     fmt.Sprintf("%s:%s", host, port),
			Path:     "/" + dbName,
			RawQuery: "sslmode=disable",
		}
		env["DATABASE_URL"] = pgURI.String()
	case store.ServiceTypeS3:
		env["S3_BUCKET"] = "temps-backups"
		env["S3_PREFIX"] = tenantKey
	}
	return env, nil
}

const redisDBCount = 16

// RedisDBNumber derives a deterministic database number in [0, 16) from a
// tenant key, so two environments never collide on the same database
// without a coordination service.
func RedisDBNumber(tenantKey string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tenantKey))
	return int(h.Sum32() % redisDBCount)
}

func tenantDatabaseName(base, tenantKey string) string {
	return fmt.Sprintf("%s_%s", base, sanitizeIdentifier(tenantKey))
}

func sanitizeIdentifier(in string) string {
	out := make([]rune, 0, len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

func serviceLockKey(id uuid.UUID) string {
	return "service:" + id.String()
}
