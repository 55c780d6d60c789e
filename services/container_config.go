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
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"

	"github.com/temps-platform/control-plane/config"
	"github.com/temps-platform/control-plane/store"
)

// dockerContainerConfig translates a ContainerSpec into the Docker SDK's
// container.Config, attaching the common labels and, whenever the spec has a
// HealthCmd, a healthcheck with exponential-backoff-friendly intervals.
func dockerContainerConfig(spec ContainerSpec, kind store.ServiceType, name string, deploy config.Deployment) *container.Config {
	labels := ServiceLabels(deploy, kind, name)
	for k, v := range spec.Labels {
		labels[k] = v
	}

	exposed := nat.PortSet{}
	if spec.InternalPort > 0 {
		exposed[nat.Port(fmt.Sprintf("%d/tcp", spec.InternalPort))] = struct{}{}
	}

	cfg := &container.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		Labels:       labels,
		ExposedPorts: exposed,
		Cmd:          spec.Cmd,
	}
	if len(spec.HealthCmd) > 0 {
		cfg.Healthcheck = &container.HealthConfig{
			Test:     spec.HealthCmd,
			Interval: 2 * time.Second,
			Timeout:  5 * time.Second,
			Retries:  30,
		}
	}
	return cfg
}
