package domain

import "errors"

// ErrInvalidPath is returned when a string is not a well formed absolute prim path.
var ErrInvalidPath = errors.New("invalid prim path")

// ErrPrimNotFound is returned when the stage has no prim at a path.
var ErrPrimNotFound = errors.New("prim not found")

// ErrNodeCreate is returned when the host fails to create or wire a shadow node.
var ErrNodeCreate = errors.New("failed to create shadow node")

// ErrStaleHandle is returned by hosts when an operation targets a deleted node.
var ErrStaleHandle = errors.New("stale node handle")

// ErrSnapshotNotFound is returned when a snapshot ID cannot be found in the store.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrProxyNotFound is returned when no proxy is registered under an ID.
var ErrProxyNotFound = errors.New("proxy not found")

// ErrNothingToUndo is returned when the undo stack is empty.
var ErrNothingToUndo = errors.New("nothing to undo")

// ErrNothingToRedo is returned when the redo stack is empty.
var ErrNothingToRedo = errors.New("nothing to redo")

// ErrNotRequested is returned when dematerializing a path the proxy never materialized.
var ErrNotRequested = errors.New("path is not materialized")
