/*
Package proxyshape keeps a host application's scene graph in step with a USD
stage it displays through a proxy shape.

A proxy draws the whole stage itself. Individual prims only get a node of
their own in the host graph (a "shadow node") when something needs one: the
user selected the prim, a translator requires it as a structural parent, or
an explicit request asked for it to be editable. Shadow nodes are reference
counted per demand source and always come with their whole ancestor chain,
so the host hierarchy mirrors the stage hierarchy.

# Concept

The host, the stage and the host's native selection list are ports
(see pkg/ports); the library never assumes a particular application. An
in-memory implementation of each lives in pkg/adapters/memory and doubles as
the test host.

Every selection change is planned first and applied by an undoable op, so
undo restores the selected set, the reference counts and the exact node
handles the host handed out.

# Usage

	stage, _ := memory.LoadStageFile("stage.yaml")
	host := memory.NewHost()

	proxy, err := proxyshape.New("shot010", stage, host,
		proxyshape.WithHostSelection(host),
		proxyshape.WithLogger(logging.New(slog.LevelInfo)),
	)
	if err != nil {
		log.Fatal(err)
	}

	// Select two prims; their chains get shadow nodes.
	if _, err := proxy.Select([]domain.Path{"/world/geo/mesh", "/world/cam"}, domain.SelectReplace); err != nil {
		log.Fatal(err)
	}

	// Changed our mind.
	proxy.Undo()

# Persistence

A proxy's demand state (explicit materializations and selection) can be saved
to any ports.SnapshotStore: memory, file or Redis.
*/
package proxyshape
