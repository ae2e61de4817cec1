// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"path/filepath"
	"strings"
)

// Roots holds the three filesystem roots resources resolve against:
// raw (authored sources), compiled (normal compile output), and
// packaged (packaging build output). See spec §6.
type Roots struct {
	Raw      string
	Compiled string
	Packaged string
}

// SourcePath returns the filesystem path of id's raw, authored source
// file under roots.Raw.
func (r Roots) SourcePath(id ID) string {
	return filepath.Join(r.Raw, filepath.FromSlash(id.RelativePath()))
}

// DestinationPath returns the filesystem path an id compiles to, routed
// per spec §3's invariant: packaging-origin requests land under the
// packaged root, everything else under the compiled root.
func (r Roots) DestinationPath(id ID, forPackaging bool) string {
	root := r.Compiled
	if forPackaging {
		root = r.Packaged
	}
	return filepath.Join(root, filepath.FromSlash(id.RelativePath()))
}

// IDFromRawFilesystemPath translates an absolute filesystem path
// produced by the file watcher into an ID, relative to roots.Raw. It
// returns an invalid ID (see [ID.IsValid]) if absPath does not lie
// under the raw root or the watcher reports an extensionless file —
// per spec §4.4 step 5, such translations are meant to be silently
// dropped by the caller, not treated as errors.
func (r Roots) IDFromRawFilesystemPath(absPath string) ID {
	rel, err := filepath.Rel(r.Raw, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ID{invalid: "path is outside the raw resource root"}
	}
	return FromRootRelativePath(filepath.ToSlash(rel))
}
