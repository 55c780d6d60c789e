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
	"net"
	"net/url"
	"strconv"

	"github.com/temps-platform/control-plane/store"
)

const (
	redisInternalPort   = 6379
	redisPasswordLen    = 16
	redisMinPasswordLen = 8
	redisPortProbeMax   = 200
)

type redisDefinition struct{}

func NewRedisDefinition() Definition { return redisDefinition{} }

func (redisDefinition) Type() store.ServiceType { return store.ServiceTypeRedis }

func (redisDefinition) Params() []ParamDef {
	return []ParamDef{
		{Key: "host", Required: false},
		{Key: "port", Required: false},
		{Key: "password", Required: false, Sensitive: true},
		{Key: "docker_image", Required: false, Editable: true, Default: func() (string, error) { return "redis:7-alpine", nil }},
	}
}

// Resolve auto-generates a password when one is missing or too short, and
// probes for a free host port starting at 6379 when none was pinned.
func (d redisDefinition) Resolve(_ context.Context, name string, params map[string]string) (map[string]string, error) {
	out := cloneParams(params)
	if out["docker_image"] == "" {
		out["docker_image"] = "redis:7-alpine"
	}

	if len(out["password"]) < redisMinPasswordLen {
		pw, err := randomString(redisPasswordLen)
		if err != nil {
			return nil, fmt.Errorf("error generating redis password: %w", err)
		}
		out["password"] = pw
	}

	containerName, _ := ResourceNames(d.Type(), name)
	out["host"] = containerName

	if out["port"] == "" {
		port, err := findFreePort(redisInternalPort, redisPortProbeMax)
		if err != nil {
			return nil, err
		}
		out["port"] = strconv.Itoa(port)
	}
	return out, nil
}

func (d redisDefinition) ContainerSpec(name, version string, params map[string]string) ContainerSpec {
	containerName, volumeName := ResourceNames(d.Type(), name)
	image := params["docker_image"]
	if version != "" {
		image = fmt.Sprintf("redis:%s", version)
	}
	cmd := []string{"redis-server", "--requirepass", params["password"]}
	return ContainerSpec{
		ContainerName: containerName,
		VolumeName:    volumeName,
		VolumeTarget:  "/data",
		Image:         image,
		InternalPort:  redisInternalPort,
		Cmd:           cmd,
		HealthCmd:     []string{"CMD-SHELL", "redis-cli -a " + params["password"] + " ping | grep -q PONG"},
	}
}

func (redisDefinition) EnvVars(params map[string]string, host, port string) map[string]string {
	uri := url.URL{
		Scheme: "redis",
		User:   url.UserPassword("", params["password"]),
		Host:   fmt.Sprintf("%s:%s", host, port),
		Path:   "/0",
	}
	return map[string]string{
		"REDIS_HOST":     host,
		"REDIS_PORT":     port,
		"REDIS_PASSWORD": params["password"],
		"REDIS_URL":      uri.String(),
	}
}

func (redisDefinition) LocalAddress(_ map[string]string, exposedHost, exposedPort string) string {
	return fmt.Sprintf("%s:%s", exposedHost, exposedPort)
}

// findFreePort probes starting at start, binding to an ephemeral local
// listener to check availability, stopping after maxProbes attempts.
func findFreePort(start, maxProbes int) (int, error) {
	for port := start; port < start+maxProbes; port++ {
		addr := net.JoinHostPort("", strconv.Itoa(port))
		l, err := net.Listen("tcp", addr)
		if err == nil {
			_ = l.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free port found in range [%d, %d)", start, start+maxProbes)
}
