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

	"github.com/temps-platform/control-plane/store"
)

const s3InternalPort = 9000

// s3Definition realizes an S3-compatible object store (MinIO). Buckets are
// not parameters of the service itself. GetRuntimeEnvVars hands every tenant
// the shared temps-backups bucket with the tenant key as S3_PREFIX; it does
// not create a bucket.
type s3Definition struct{}

func NewS3Definition() Definition { return s3Definition{} }

func (s3Definition) Type() store.ServiceType { return store.ServiceTypeS3 }

func (s3Definition) Params() []ParamDef {
	return []ParamDef{
		{Key: "endpoint", Required: false},
		{Key: "region", Required: false, Default: func() (string, error) { return "us-east-1", nil }},
		{Key: "access_key", Required: true, Sensitive: true},
		{Key: "secret_key", Required: true, Sensitive: true},
		{Key: "docker_image", Required: false, Editable: true, Default: func() (string, error) { return "minio/minio:latest", nil }},
	}
}

func (d s3Definition) Resolve(_ context.Context, name string, params map[string]string) (map[string]string, error) {
	out := cloneParams(params)
	if out["docker_image"] == "" {
		out["docker_image"] = "minio/minio:latest"
	}
	if out["region"] == "" {
		out["region"] = "us-east-1"
	}
	containerName, _ := ResourceNames(d.Type(), name)
	out["endpoint"] = fmt.Sprintf("http://%s:%d", containerName, s3InternalPort)
	return out, nil
}

func (d s3Definition) ContainerSpec(name, version string, params map[string]string) ContainerSpec {
	containerName, volumeName := ResourceNames(d.Type(), name)
	image := params["docker_image"]
	if version != "" {
		image = fmt.Sprintf("minio/minio:%s", version)
	}
	return ContainerSpec{
		ContainerName: containerName,
		VolumeName:    volumeName,
		VolumeTarget:  "/data",
		Image:         image,
		InternalPort:  s3InternalPort,
		Env: []string{
			"MINIO_ROOT_USER=" + params["access_key"],
			"MINIO_ROOT_PASSWORD=" + params["secret_key"],
		},
		Cmd:       []string{"server", "/data"},
		HealthCmd: []string{"CMD-SHELL", "curl -sf http://localhost:9000/minio/health/live || exit 1"},
	}
}

func (s3Definition) EnvVars(params map[string]string, host, port string) map[string]string {
	endpoint := fmt.Sprintf("http://%s:%s", host, port)
	return map[string]string{
		"S3_ENDPOINT":   endpoint,
		"S3_REGION":     params["region"],
		"S3_ACCESS_KEY": params["access_key"],
		"S3_SECRET_KEY": params["secret_key"],
	}
}

func (s3Definition) LocalAddress(_ map[string]string, exposedHost, exposedPort string) string {
	return fmt.Sprintf("%s:%s", exposedHost, exposedPort)
}
