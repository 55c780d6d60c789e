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
	"encoding/json"
	"path"
	"strings"
)

const (
	PresetStatic   = "static"
	PresetNextJS   = "nextjs"
	PresetDocker   = "docker"
	PresetNixpacks = "nixpacks"
)

var presetLabels = map[string]string{
	PresetStatic:   "Static",
	PresetNextJS:   "Next.js",
	PresetDocker:   "Docker",
	PresetNixpacks: "Nixpacks",
}

// defaultExposedPort holds the well-known dev port for presets that have
// one. Presets with no entry leave ExposedPort nil: the operator picks one
// at deploy time.
var defaultExposedPort = map[string]int{
	PresetNextJS: 3000,
}

// PresetResult is one entry of the {path, preset, preset_label,
// exposed_port?} shape a repository preset response returns.
type PresetResult struct {
	Path        string
	Preset      string
	PresetLabel string
	ExposedPort *int
}

// packageManifest is the subset of package.json DetectPreset inspects.
type packageManifest struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func (m packageManifest) has(dep string) bool {
	if _, ok := m.Dependencies[dep]; ok {
		return true
	}
	_, ok := m.DevDependencies[dep]
	return ok
}

// DetectPreset inspects a single directory of a repository at branch and
// classifies it by the first matching rule: a package.json declaring a
// dependency on "next" is Next.js; a Dockerfile is Docker; an nixpacks.toml
// is Nixpacks; anything else is Static. fetcher is a driver that
// implements ContentFetcher; callers type-assert their Driver before
// calling this.
func DetectPreset(ctx context.Context, fetcher ContentFetcher, owner, name, branch, dir string) (PresetResult, error) {
	dir = normalizeDetectDir(dir)
	result := PresetResult{Path: dir, Preset: PresetStatic, PresetLabel: presetLabels[PresetStatic]}

	pkgContent, found, err := fetcher.GetFileContent(ctx, owner, name, branch, detectJoin(dir, "package.json"))
	if err != nil {
		return PresetResult{}, err
	}
	if found {
		var pkg packageManifest
		if jsonErr := json.Unmarshal(pkgContent, &pkg); jsonErr == nil && pkg.has("next") {
			return withPreset(result, PresetNextJS), nil
		}
	}

	_, found, err = fetcher.GetFileContent(ctx, owner, name, branch, detectJoin(dir, "Dockerfile"))
	if err != nil {
		return PresetResult{}, err
	}
	if found {
		return withPreset(result, PresetDocker), nil
	}

	_, found, err = fetcher.GetFileContent(ctx, owner, name, branch, detectJoin(dir, "nixpacks.toml"))
	if err != nil {
		return PresetResult{}, err
	}
	if found {
		return withPreset(result, PresetNixpacks), nil
	}

	return result, nil
}

func withPreset(result PresetResult, preset string) PresetResult {
	result.Preset = preset
	result.PresetLabel = presetLabels[preset]
	if port, ok := defaultExposedPort[preset]; ok {
		p := port
		result.ExposedPort = &p
	}
	return result
}

func normalizeDetectDir(dir string) string {
	dir = strings.TrimPrefix(dir, "/")
	if dir == "" {
		return "."
	}
	return dir
}

func detectJoin(dir, file string) string {
	if dir == "." || dir == "" {
		return file
	}
	return path.Join(dir, file)
}
