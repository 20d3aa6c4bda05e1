/*
Package ports defines the driven ports (interfaces) between the proxy shape core
and its collaborators.

The core never talks to a host application or a USD stage directly. Everything it
needs is expressed here, so the same engine runs against the in-memory adapters
used by tests and the CLI, or against a real host binding.

# Key Interfaces

  - HostGraph: node creation, wiring and deletion in the host scene graph.
  - HostSelection: the host's native active selection list.
  - Stage: read only prim queries (prim at path, children).
  - Selectability: policy deciding which prims may be selected.
  - SnapshotStore: persistence of proxy demand state.
  - DistributedLocker: serializes access to a proxy across processes.
*/
package ports
