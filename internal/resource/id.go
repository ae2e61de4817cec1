// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"path"
	"strings"
)

// scheme is the required prefix of every virtual resource path, e.g.
// "data://foo/bar.anim".
const scheme = "data://"

// MapTypeTag is the resource type tag reserved for packaging seed
// resources. Only resources carrying this tag may be added to or
// removed from a packaging seed list.
const MapTypeTag = "map"

// ID is an opaque, validated resource identifier derived from a virtual
// resource path. Its fields are unexported to force construction through
// [ParseID] or [FromRootRelativePath], mirroring the validated-identifier
// pattern used elsewhere in this codebase: the zero value is never a
// valid ID, and every accessor is a precomputed, panic-free read.
//
// An ID is permitted to be invalid — [ParseID] on a malformed path does
// not return an error, it returns an ID with valid set to false. Callers
// that need a request to exist even for bad input (the dispatcher's
// create path) rely on this: the ID itself records the failure, and
// downstream code decides what to do with it.
type ID struct {
	valid   bool
	rawPath string // the full virtual path, e.g. "data://foo/bar.anim"
	relPath string // path.Clean'd portion after the scheme, e.g. "foo/bar.anim"
	typeTag string // lowercase extension without the dot, e.g. "anim"
	invalid string // human-readable reason, set only when !valid
}

// ParseID parses a virtual resource path into an ID. The path must begin
// with "data://", contain a non-empty relative component, and end in an
// extension that becomes the resource's type tag. Any violation produces
// an invalid ID rather than an error — see the [ID] doc comment.
func ParseID(rawPath string) ID {
	if rawPath == "" {
		return ID{invalid: "resource path is empty"}
	}
	if !strings.HasPrefix(rawPath, scheme) {
		return ID{rawPath: rawPath, invalid: "resource path " + quote(rawPath) + " is missing the \"data://\" scheme"}
	}

	relPath := path.Clean(strings.TrimPrefix(rawPath, scheme))
	if relPath == "" || relPath == "." || strings.HasPrefix(relPath, "../") || relPath == ".." {
		return ID{rawPath: rawPath, invalid: "resource path " + quote(rawPath) + " has no valid relative component"}
	}

	ext := path.Ext(relPath)
	if ext == "" || ext == "." {
		return ID{rawPath: rawPath, invalid: "resource path " + quote(rawPath) + " has no type extension"}
	}

	return ID{
		valid:   true,
		rawPath: scheme + relPath,
		relPath: relPath,
		typeTag: strings.ToLower(strings.TrimPrefix(ext, ".")),
	}
}

// FromRootRelativePath builds an ID from a path already relative to one
// of the server's filesystem roots (as produced by the file watcher).
// Equivalent to ParseID(scheme + relPath) but avoids round-tripping
// through string concatenation at call sites that already hold a clean
// relative path.
func FromRootRelativePath(relPath string) ID {
	return ParseID(scheme + relPath)
}

func quote(s string) string {
	return "\"" + s + "\""
}

// IsValid reports whether the ID was parsed from a well-formed path.
func (id ID) IsValid() bool { return id.valid }

// InvalidReason returns a human-readable description of why the ID is
// invalid. Empty if IsValid is true.
func (id ID) InvalidReason() string { return id.invalid }

// String returns the full virtual path, e.g. "data://foo/bar.anim". For
// an invalid ID this returns the raw input as supplied, or the bare
// scheme "data://" when the input was empty.
func (id ID) String() string {
	if id.rawPath != "" {
		return id.rawPath
	}
	return scheme
}

// TypeTag returns the resource type, derived from the path extension
// (e.g. "anim", "tex", "map"). Empty for an invalid ID.
func (id ID) TypeTag() string { return id.typeTag }

// IsMap reports whether this ID's type tag is the reserved packaging
// seed type.
func (id ID) IsMap() bool { return id.valid && id.typeTag == MapTypeTag }

// RelativePath returns the path component after the scheme, suitable for
// joining onto any of the three filesystem roots. Empty for an invalid
// ID.
func (id ID) RelativePath() string { return id.relPath }

// MarshalText implements encoding.TextMarshaler so an ID serializes as
// its virtual path string over the wire.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, parsing the
// virtual path the same way [ParseID] does.
func (id *ID) UnmarshalText(text []byte) error {
	*id = ParseID(string(text))
	return nil
}
