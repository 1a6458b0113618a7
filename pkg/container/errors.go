package container

import "errors"

var (
	// ErrNotAContainer means the magic marker is absent. This is a
	// recoverable signal: the shim falls back to the legacy bundle
	// format, and callers should not surface it to end users.
	ErrNotAContainer = errors.New("file carries no container trailer")

	// ErrCorruptContainer means the magic is present but the manifest
	// is undecodable or its offsets are inconsistent with the file.
	// Fatal for the open attempt; no partial recovery.
	ErrCorruptContainer = errors.New("corrupt container")

	// ErrMediaNotFound is returned per request for an id absent from
	// the manifest or the legacy embedded list. Other ids on the same
	// handle remain servable.
	ErrMediaNotFound = errors.New("media not found")

	// ErrWriteFailure wraps any I/O error during a build. The builder
	// never leaves a half-written artifact at the destination path.
	ErrWriteFailure = errors.New("container build failed")

	// ErrNoProjectData is the uniform condition the shim reports when
	// a path is neither a V2 container nor a legacy bundle.
	ErrNoProjectData = errors.New("no project data")

	// ErrDuplicateMediaID rejects manifests or build inputs carrying
	// the same media id twice.
	ErrDuplicateMediaID = errors.New("duplicate media id")
)
