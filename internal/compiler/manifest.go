// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/resourced-io/resourced/internal/resource"
)

// ManifestCompiler is a [Compiler] that reads install dependencies from a
// sidecar ".deps" file next to the raw resource: one virtual resource
// path per line, blank lines and "#"-prefixed lines ignored. It exists
// so the Packaging Task's closure-walking logic (internal/task) has a
// real, file-backed compiler to run against in tests, without pulling in
// a production type-registry bootstrap that is explicitly out of scope
// (spec §1).
type ManifestCompiler struct {
	roots resource.Roots
}

// NewManifestCompiler returns a ManifestCompiler resolving sidecar
// ".deps" files relative to roots.Raw.
func NewManifestCompiler(roots resource.Roots) *ManifestCompiler {
	return &ManifestCompiler{roots: roots}
}

// GetInstallDependencies reads id's sidecar ".deps" file. A missing
// manifest is not an error — it means id has no install dependencies.
func (m *ManifestCompiler) GetInstallDependencies(id resource.ID) ([]resource.ID, error) {
	manifestPath := m.roots.SourcePath(id) + ".deps"

	file, err := os.Open(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening dependency manifest for %s: %w", id, err)
	}
	defer file.Close()

	var deps []resource.ID
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		deps = append(deps, resource.ParseID(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading dependency manifest for %s: %w", id, err)
	}

	return deps, nil
}

// StaticRegistry is a [Registry] that maps resource type tags to a
// [Compiler] instance, configured once at construction. Production
// deployments that need a dynamic or plugin-driven registry can
// implement [Registry] directly instead.
type StaticRegistry struct {
	byTypeTag map[string]Compiler
}

// NewStaticRegistry returns a StaticRegistry with no registered types.
// Use Register to populate it.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{byTypeTag: make(map[string]Compiler)}
}

// Register associates typeTag with c, overwriting any existing
// registration for that tag.
func (r *StaticRegistry) Register(typeTag string, c Compiler) {
	r.byTypeTag[typeTag] = c
}

// GetCompilerForResourceType implements [Registry].
func (r *StaticRegistry) GetCompilerForResourceType(typeTag string) (Compiler, bool) {
	c, ok := r.byTypeTag[typeTag]
	return c, ok
}

// NewManifestRegistry returns a StaticRegistry that registers the same
// [ManifestCompiler] for every type tag in typeTags. This is the
// convenience constructor tests and minimal deployments use: every
// compilable resource type is served by reading its sidecar manifest.
func NewManifestRegistry(roots resource.Roots, typeTags ...string) *StaticRegistry {
	registry := NewStaticRegistry()
	manifestCompiler := NewManifestCompiler(roots)
	for _, tag := range typeTags {
		registry.Register(tag, manifestCompiler)
	}
	return registry
}
