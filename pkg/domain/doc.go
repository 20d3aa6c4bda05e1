/*
Package domain contains the core models shared by the proxy shape packages.

It defines how USD prims are addressed and why their shadow transform nodes
are kept alive. This package is kept pure and free of external dependencies
like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Path: An absolute, slash separated prim path. "/" is the pseudo-root.
  - Prim: The read only view of a stage prim (type, selectability, payload).
  - Handle: A non-owning reference to a node in the host scene graph.
  - TransformReference: Per-reason counters keeping a shadow node alive.
  - SelectMode: How a set of paths combines with the current selection.
  - Snapshot: The persisted demand state of a proxy.
*/
package domain
