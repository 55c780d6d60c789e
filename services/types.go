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

// Package services is the External Service Manager (spec section 4.D): it
// declaratively creates, configures, starts, stops, upgrades, backs up,
// restores and deletes containerized Postgres/Redis/S3-compatible
// instances on a shared bridge network, and synthesizes the environment
// variables a consuming project needs to reach them.
package services

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"

	"github.com/temps-platform/control-plane/config"
	"github.com/temps-platform/control-plane/store"
)

// ParamDef describes one parameter a service definition accepts.
type ParamDef struct {
	Key        string
	Required   bool
	Sensitive  bool
	// Editable marks an "x-editable" parameter: one update_service may change.
	Editable   bool
	Default    func() (string, error)
}

// AddressMode selects which of the two env-var shapes a definition
// surfaces, per the deployment-mode contract in 4.D.
type AddressMode int

const (
	// AddressContainer always returns container-name + internal port.
	AddressContainer AddressMode = iota
	// AddressHostAware returns loopback+exposed-port in baremetal mode and
	// container-name+internal-port in docker mode.
	AddressHostAware
)

// ContainerSpec is what a Definition produces to materialize its
// container: name, image, env, exposed port, command, health check.
type ContainerSpec struct {
	ContainerName string
	VolumeName    string
	Image         string
	Env           []string
	InternalPort  int
	VolumeTarget  string
	HealthCmd     []string
	Labels        map[string]string
	Cmd           []string
}

// Definition is the service-polymorphic contract every concrete service
// (postgres, redis, s3) implements.
type Definition interface {
	Type() store.ServiceType
	Params() []ParamDef
	// Resolve fills in auto-generated/defaulted parameters (passwords,
	// ports) given the current param map, returning the finalized set.
	Resolve(ctx context.Context, name string, params map[string]string) (map[string]string, error)
	// ContainerSpec builds the spec to create/recreate the container for
	// the given name and parameter set.
	ContainerSpec(name string, version string, params map[string]string) ContainerSpec
	// EnvVars returns the connection environment variables for a consumer,
	// using addr (host, port) already resolved for the caller's perspective.
	EnvVars(params map[string]string, host string, port string) map[string]string
	// LocalAddress returns {host}:{port} reachable from the tooling host.
	LocalAddress(params map[string]string, exposedHost, exposedPort string) string
}

// Registry resolves a ServiceType to its Definition.
type Registry struct {
	defs map[store.ServiceType]Definition
}

func NewRegistry() *Registry {
	r := &Registry{defs: map[store.ServiceType]Definition{}}
	r.register(NewPostgresDefinition())
	r.register(NewRedisDefinition())
	r.register(NewS3Definition())
	return r
}

func (r *Registry) register(d Definition) { r.defs[d.Type()] = d }

func (r *Registry) Get(t store.ServiceType) (Definition, error) {
	d, ok := r.defs[t]
	if !ok {
		return nil, fmt.Errorf("unknown service type: %s", t)
	}
	return d, nil
}

// ResourceNames returns the stable container and volume names for a
// service instance, per the "{kind}-{name}" / "{kind}_data_{name}"
// naming contract.
func ResourceNames(kind store.ServiceType, name string) (containerName, volumeName string) {
	return fmt.Sprintf("%s-%s", kind, name), fmt.Sprintf("%s_data_%s", kind, name)
}

// ServiceLabels returns the labels every managed container carries.
func ServiceLabels(cfg config.Deployment, kind store.ServiceType, name string) map[string]string {
	prefix := cfg.LabelPrefix
	return map[string]string{
		prefix + ".service_type": string(kind),
		prefix + ".service_name": name,
	}
}

// hostConfigWithVolume builds the common HostConfig shape (volume mount,
// restart policy) shared by every service definition.
func hostConfigWithVolume(volumeName, target string) *container.HostConfig {
	return &container.HostConfig{
		Binds:         []string{volumeName + ":" + target},
		RestartPolicy: container.RestartPolicy{Name: "unless-stopped"},
	}
}
