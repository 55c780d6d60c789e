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

package gitprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	files map[string][]byte
}

func (f fakeFetcher) GetFileContent(_ context.Context, _, _, _, path string) ([]byte, bool, error) {
	content, ok := f.files[path]
	return content, ok, nil
}

func TestDetectPresetNextJS(t *testing.T) {
	fetcher := fakeFetcher{files: map[string][]byte{
		"package.json": []byte(`{"dependencies": {"next": "14.0.0", "react": "18.0.0"}}`),
	}}
	result, err := DetectPreset(context.Background(), fetcher, "acme", "web", "main", "")
	require.NoError(t, err)
	require.Equal(t, PresetNextJS, result.Preset)
	require.Equal(t, "Next.js", result.PresetLabel)
	require.NotNil(t, result.ExposedPort)
	require.Equal(t, 3000, *result.ExposedPort)
	require.Equal(t, ".", result.Path)
}

func TestDetectPresetDockerWinsWithoutNextDependency(t *testing.T) {
	fetcher := fakeFetcher{files: map[string][]byte{
		"package.json": []byte(`{"dependencies": {"express": "4.0.0"}}`),
		"Dockerfile":   []byte("FROM node:20"),
	}}
	result, err := DetectPreset(context.Background(), fetcher, "acme", "web", "main", "")
	require.NoError(t, err)
	require.Equal(t, PresetDocker, result.Preset)
	require.Nil(t, result.ExposedPort)
}

func TestDetectPresetNixpacks(t *testing.T) {
	fetcher := fakeFetcher{files: map[string][]byte{
		"nixpacks.toml": []byte("[phases.build]"),
	}}
	result, err := DetectPreset(context.Background(), fetcher, "acme", "api", "main", "")
	require.NoError(t, err)
	require.Equal(t, PresetNixpacks, result.Preset)
}

func TestDetectPresetDefaultsToStatic(t *testing.T) {
	fetcher := fakeFetcher{files: map[string][]byte{}}
	result, err := DetectPreset(context.Background(), fetcher, "acme", "docs", "main", "")
	require.NoError(t, err)
	require.Equal(t, PresetStatic, result.Preset)
	require.Equal(t, "Static", result.PresetLabel)
}

func TestDetectPresetHonorsSubdirectory(t *testing.T) {
	fetcher := fakeFetcher{files: map[string][]byte{
		"apps/web/package.json": []byte(`{"devDependencies": {"next": "14.0.0"}}`),
	}}
	result, err := DetectPreset(context.Background(), fetcher, "acme", "monorepo", "main", "/apps/web")
	require.NoError(t, err)
	require.Equal(t, PresetNextJS, result.Preset)
	require.Equal(t, "apps/web", result.Path)
}

func TestDetectPresetIgnoresMalformedPackageJSON(t *testing.T) {
	fetcher := fakeFetcher{files: map[string][]byte{
		"package.json": []byte("not json"),
	}}
	result, err := DetectPreset(context.Background(), fetcher, "acme", "web", "main", "")
	require.NoError(t, err)
	require.Equal(t, PresetStatic, result.Preset)
}
