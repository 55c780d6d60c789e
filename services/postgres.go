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
	"net/url"

	"github.com/temps-platform/control-plane/store"
)

const postgresInternalPort = 5432

type postgresDefinition struct{}

func NewPostgresDefinition() Definition { return postgresDefinition{} }

func (postgresDefinition) Type() store.ServiceType { return store.ServiceTypePostgres }

func (postgresDefinition) Params() []ParamDef {
	return []ParamDef{
		{Key: "host", Required: false},
		{Key: "port", Required: false},
		{Key: "database", Required: true},
		{Key: "username", Required: true},
		{Key: "password", Required: true, Sensitive: true},
		{Key: "docker_image", Required: false, Editable: true, Default: func() (string, error) { return "postgres:16-alpine", nil }},
	}
}

func (d postgresDefinition) Resolve(_ context.Context, name string, params map[string]string) (map[string]string, error) {
	out := cloneParams(params)
	if out["docker_image"] == "" {
		out["docker_image"] = "postgres:16-alpine"
	}
	containerName, _ := ResourceNames(d.Type(), name)
	out["host"] = containerName
	if out["port"] == "" {
		out["port"] = fmt.Sprintf("%d", postgresInternalPort)
	}
	return out, nil
}

func (d postgresDefinition) ContainerSpec(name, version string, params map[string]string) ContainerSpec {
	containerName, volumeName := ResourceNames(d.Type(), name)
	image := params["docker_image"]
	if version != "" {
		image = fmt.Sprintf("postgres:%s", version)
	}
	return ContainerSpec{
		ContainerName: containerName,
		VolumeName:    volumeName,
		VolumeTarget:  "/var/lib/postgresql/data",
		Image:         image,
		InternalPort:  postgresInternalPort,
		Env: []string{
			"POSTGRES_DB=" + params["database"],
			"POSTGRES_USER=" + params["username"],
			"POSTGRES_PASSWORD=" + params["password"],
			"PGDATA=/var/lib/postgresql/data/pgdata",
		},
		HealthCmd: []string{"CMD-SHELL", "pg_isready -U " + params["username"]},
	}
}

func (postgresDefinition) EnvVars(params map[string]string, host, port string) map[string]string {
	uri := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(params["username"], params["password"]),
		Host:     fmt.Sprintf("%s:%s", host, port),
		Path:     "/" + params["database"],
		RawQuery: "sslmode=disable",
	}
	return map[string]string{
		"POSTGRES_HOST":     host,
		"POSTGRES_PORT":     port,
		"POSTGRES_DB":       params["database"],
		"POSTGRES_USER":     params["username"],
		"POSTGRES_PASSWORD": params["password"],
		"DATABASE_URL":      uri.String(),
	}
}

func (postgresDefinition) LocalAddress(_ map[string]string, exposedHost, exposedPort string) string {
	return fmt.Sprintf("%s:%s", exposedHost, exposedPort)
}

func cloneParams(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
