package proxyshape

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/proxyshape/internal/chain"
	"github.com/aretw0/proxyshape/internal/logging"
	"github.com/aretw0/proxyshape/internal/refcount"
	"github.com/aretw0/proxyshape/internal/selection"
	"github.com/aretw0/proxyshape/internal/shadow"
	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/aretw0/proxyshape/pkg/ports"
	"github.com/aretw0/proxyshape/pkg/undo"
)

// Proxy is one USD proxy shape: a stage, the host nodes shadowing its prims,
// and the selection over them. It is the high-level entry point of the
// library and wires the internal table, factory, chain builder and selection
// coordinator together.
//
// All methods are safe for concurrent use.
type Proxy struct {
	mu sync.Mutex

	id       string
	stage    ports.Stage
	host     ports.HostGraph
	hostSel  ports.HostSelection
	policy   ports.Selectability
	root     domain.Handle
	ownsRoot bool
	parent   domain.Handle

	table   *refcount.Table
	factory *shadow.Factory
	builder *chain.Builder
	coord   *selection.Coordinator
	bridge  *selection.Bridge
	undo    *undo.Stack

	// requested and subtrees count the explicit materializations held by
	// this proxy, so they can be persisted and released on Close.
	requested map[domain.Path]int
	subtrees  map[domain.Path]int

	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	undoLimit int
}

// Option defines a functional option for configuring the Proxy.
type Option func(*Proxy)

// WithLogger sets a custom structured logger for the proxy.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(p *Proxy) {
		p.hooks = p.hooks.Merge(hooks)
	}
}

// WithHostSelection connects the host's native selection list.
func WithHostSelection(sel ports.HostSelection) Option {
	return func(p *Proxy) {
		p.hostSel = sel
	}
}

// WithSelectability installs a policy deciding which prims may be selected.
func WithSelectability(policy ports.Selectability) Option {
	return func(p *Proxy) {
		p.policy = policy
	}
}

// WithUndoLimit bounds the proxy's undo history.
func WithUndoLimit(n int) Option {
	return func(p *Proxy) {
		p.undoLimit = n
	}
}

// WithRoot uses an existing host node as the proxy root instead of creating one.
func WithRoot(root domain.Handle) Option {
	return func(p *Proxy) {
		p.root = root
	}
}

// WithParent sets where the proxy root node is created (default: the host's scratch root).
func WithParent(parent domain.Handle) Option {
	return func(p *Proxy) {
		p.parent = parent
	}
}

// New creates a proxy over stage, shadowing prims into host.
func New(id string, stage ports.Stage, host ports.HostGraph, opts ...Option) (*Proxy, error) {
	if stage == nil || host == nil {
		return nil, fmt.Errorf("proxy %q: stage and host are required", id)
	}
	p := &Proxy{
		id:        id,
		stage:     stage,
		host:      host,
		requested: make(map[domain.Path]int),
		subtrees:  make(map[domain.Path]int),
		undoLimit: undo.DefaultLimit,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.NewNop()
	}
	if id != "" {
		p.logger = p.logger.With("proxy_id", id)
	}

	if p.root.IsNull() {
		parent := p.parent
		if parent.IsNull() {
			parent = host.Scratch()
		}
		root, err := host.CreateNode(domain.NodeKindProxy, parent)
		if err != nil {
			return nil, fmt.Errorf("proxy %q: %w: %w", id, domain.ErrNodeCreate, err)
		}
		if err := host.SetDisplayName(root, id); err != nil {
			p.logger.Warn("failed to name proxy root", "err", err)
		}
		p.root = root
		p.ownsRoot = true
	}

	p.table = refcount.New(refcount.WithLogger(p.logger))
	p.factory = shadow.New(host,
		shadow.WithLogger(p.logger),
		shadow.WithHooks(p.hooks),
		shadow.WithProxyID(id),
	)
	p.builder = chain.New(p.table, p.factory, stage, p.root, chain.WithLogger(p.logger))

	coordOpts := []selection.Option{
		selection.WithLogger(p.logger),
		selection.WithHooks(p.hooks),
		selection.WithProxyID(id),
	}
	if p.hostSel != nil {
		coordOpts = append(coordOpts, selection.WithHostSelection(p.hostSel))
	}
	if p.policy != nil {
		coordOpts = append(coordOpts, selection.WithSelectability(p.policy))
	}
	p.coord = selection.NewCoordinator(p.builder, coordOpts...)
	p.bridge = selection.NewBridge(p.coord, selection.WithBridgeLogger(p.logger))
	p.undo = undo.New(undo.WithLimit(p.undoLimit), undo.WithLogger(p.logger))

	p.logger.Debug("proxy created", "root", p.root)
	return p, nil
}

// ID returns the proxy identifier.
func (p *Proxy) ID() string { return p.id }

// Root returns the proxy's root node.
func (p *Proxy) Root() domain.Handle { return p.root }

// Stage returns the stage the proxy reads prims from.
func (p *Proxy) Stage() ports.Stage { return p.stage }

// Materialize ensures a shadow node exists for path and each ancestor and
// holds one explicit reference on them. It is recorded for undo.
func (p *Proxy) Materialize(path domain.Path) (domain.Handle, error) {
	return p.materialize(path, false)
}

// MaterializeSubtree is Materialize for path and every descendant prim.
func (p *Proxy) MaterializeSubtree(path domain.Path) (domain.Handle, error) {
	return p.materialize(path, true)
}

func (p *Proxy) materialize(path domain.Path, subtree bool) (domain.Handle, error) {
	if _, err := domain.ParsePath(path.String()); err != nil {
		return domain.NullHandle, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.stage.Prim(path); !ok && !path.IsRoot() {
		return domain.NullHandle, fmt.Errorf("%s: %w", path, domain.ErrPrimNotFound)
	}
	cmd := &materializeCmd{proxy: p, path: path, subtree: subtree}
	if err := p.undo.Execute(cmd); err != nil {
		return domain.NullHandle, err
	}
	return p.builder.Lookup(path), nil
}

// Dematerialize releases one explicit reference taken by Materialize.
func (p *Proxy) Dematerialize(path domain.Path) error {
	return p.dematerialize(path, false)
}

// DematerializeSubtree releases one reference taken by MaterializeSubtree.
func (p *Proxy) DematerializeSubtree(path domain.Path) error {
	return p.dematerialize(path, true)
}

func (p *Proxy) dematerialize(path domain.Path, subtree bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	held := p.requested
	if subtree {
		held = p.subtrees
	}
	if held[path] == 0 {
		return fmt.Errorf("%s: %w", path, domain.ErrNotRequested)
	}
	return p.undo.Execute(&dematerializeCmd{proxy: p, path: path, subtree: subtree})
}

// Require takes a structural reference on path's chain on behalf of a
// translator. It is not recorded for undo.
func (p *Proxy) Require(path domain.Path) (domain.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.builder.MaterializeChain(path, domain.ReasonRequired)
}

// Unrequire releases a reference taken by Require. The reference is always
// released; an error reports nodes the host refused to delete, which stay
// recorded.
func (p *Proxy) Unrequire(path domain.Path) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.builder.DematerializeChain(path, domain.ReasonRequired)
}

// Select changes the selection and records the change for undo. The applied
// op is returned; a change that alters nothing is applied but not recorded.
func (p *Proxy) Select(paths []domain.Path, mode domain.SelectMode) (*selection.Op, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run(p.coord.PlanSelectionChange(paths, mode))
}

// ClearSelection deselects every path, destroying nodes kept only by the
// selection, deepest first.
func (p *Proxy) ClearSelection() (*selection.Op, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run(p.coord.PlanClear())
}

func (p *Proxy) run(op *selection.Op) (*selection.Op, error) {
	if op.IsNoop() {
		return op, op.Do()
	}
	if err := p.undo.Execute(op); err != nil {
		return nil, err
	}
	return op, nil
}

// PostSelect must be called after the host reports a change to its native
// selection list. Paths whose nodes the user deselected in the host are
// dropped from the selection, and the change is recorded for undo.
func (p *Proxy) PostSelect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	op, err := p.bridge.PostSelect()
	if err != nil {
		return err
	}
	if op != nil {
		p.undo.Push(op)
	}
	return nil
}

// Undo reverts the most recent command and returns its name.
func (p *Proxy) Undo() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cmd, err := p.undo.Undo()
	if err != nil {
		return "", err
	}
	p.command(domain.EventUndo, cmd.Name())
	return cmd.Name(), nil
}

// Redo reapplies the most recently undone command and returns its name.
func (p *Proxy) Redo() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cmd, err := p.undo.Redo()
	if err != nil {
		return "", err
	}
	p.command(domain.EventRedo, cmd.Name())
	return cmd.Name(), nil
}

// History lists the commands that can be undone, oldest first.
func (p *Proxy) History() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.undo.Names()
}

func (p *Proxy) command(typ domain.EventType, name string) {
	p.logger.Info("command "+string(typ), "command", name)
	if p.hooks.OnCommand != nil {
		p.hooks.OnCommand(&domain.CommandEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: typ, ProxyID: p.id},
			Command:   name,
		})
	}
}

// Selected returns the selected paths in lexical order.
func (p *Proxy) Selected() []domain.Path {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.coord.Selected()
}

// References returns every shadowed path and its counters in lexical order.
func (p *Proxy) References() []domain.Reference {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.table.References()
}

// Lookup returns the shadow node for path, or the null handle. The root
// path maps to the proxy root.
func (p *Proxy) Lookup(path domain.Path) domain.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.builder.Lookup(path)
}

// FindPayloads walks the stage below root and returns, in depth-first
// order, the prims carrying a payload that pass filter.
func (p *Proxy) FindPayloads(root domain.Path, filter domain.PayloadFilter) []domain.Path {
	if !root.IsRoot() {
		if _, ok := p.stage.Prim(root); !ok {
			return nil
		}
	}
	var out []domain.Path
	var walk func(domain.Path)
	walk = func(path domain.Path) {
		if prim, ok := p.stage.Prim(path); ok && filter.Match(prim) {
			out = append(out, path)
		}
		for _, c := range p.stage.Children(path) {
			walk(c.Path)
		}
	}
	walk(root)
	return out
}

// WithSelectionSnapshot runs fn and afterwards restores the USD and host
// selections to what they were before, whether fn returns normally, fails
// or panics. Nodes fn creates only through selection are gone again.
//
// Commands fn records, undoes or redoes are forgotten: the undo history goes
// back to what it was, or is cleared when fn undid past that point.
// Materializations fn makes stay in place but can no longer be undone.
func (p *Proxy) WithSelectionSnapshot(fn func() error) (err error) {
	p.mu.Lock()
	snap := p.coord.Capture()
	mark := p.undo.Mark()
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.undo.Rewind(mark) {
			p.logger.Debug("undo history rewound after selection snapshot", "depth", len(p.undo.Names()))
		}
		if rerr := snap.Restore(); rerr != nil {
			p.logger.Error("failed to restore selection", "err", rerr)
			if err == nil {
				err = rerr
			}
		}
	}()
	return fn()
}

// Snapshot returns the proxy's persistable demand state.
func (p *Proxy) Snapshot() *domain.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &domain.Snapshot{
		ProxyID:   p.id,
		Requested: expand(p.requested),
		Subtrees:  expand(p.subtrees),
		Selected:  p.coord.Selected(),
		SavedAt:   time.Now(),
	}
}

// Restore brings the proxy to the state recorded in snap: explicit
// materializations are adjusted to match and the selection is replaced.
// The undo history is cleared.
func (p *Proxy) Restore(snap *domain.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.reconcile(p.requested, snap.Requested, false); err != nil {
		return err
	}
	if err := p.reconcile(p.subtrees, snap.Subtrees, true); err != nil {
		return err
	}
	op := p.coord.PlanSelectionChange(snap.Selected, domain.SelectReplace)
	if err := op.Do(); err != nil {
		return fmt.Errorf("restore selection: %w", err)
	}
	p.undo.Clear()
	p.logger.Info("proxy restored",
		"requested", len(snap.Requested),
		"subtrees", len(snap.Subtrees),
		"selected", len(p.coord.Selected()),
	)
	return nil
}

func (p *Proxy) reconcile(held map[domain.Path]int, want []domain.Path, subtree bool) error {
	target := make(map[domain.Path]int)
	for _, path := range want {
		target[path]++
	}
	for path, n := range held {
		for ; n > target[path]; n-- {
			if err := (&dematerializeCmd{proxy: p, path: path, subtree: subtree}).Do(); err != nil {
				return fmt.Errorf("release %s: %w", path, err)
			}
		}
	}
	for path, n := range target {
		for have := held[path]; have < n; have++ {
			if err := (&materializeCmd{proxy: p, path: path, subtree: subtree}).Do(); err != nil {
				return fmt.Errorf("restore %s: %w", path, err)
			}
		}
	}
	return nil
}

// SaveTo persists the proxy's snapshot into store.
func (p *Proxy) SaveTo(ctx context.Context, store ports.SnapshotStore) error {
	return store.Save(ctx, p.id, p.Snapshot())
}

// LoadFrom restores the proxy from the snapshot saved under its ID.
func (p *Proxy) LoadFrom(ctx context.Context, store ports.SnapshotStore) error {
	snap, err := store.Load(ctx, p.id)
	if err != nil {
		return err
	}
	return p.Restore(snap)
}

// Close releases every reference held by the proxy and removes the root
// node if the proxy created it. Nodes held by Require stay until released.
func (p *Proxy) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.coord.PlanClear().Do(); err != nil {
		return err
	}
	if err := p.reconcile(p.requested, nil, false); err != nil {
		return err
	}
	if err := p.reconcile(p.subtrees, nil, true); err != nil {
		return err
	}
	p.undo.Clear()
	if p.ownsRoot && p.table.Len() == 0 && p.host.IsAlive(p.root) {
		if err := p.host.DeleteNode(p.root); err != nil {
			return fmt.Errorf("failed to delete proxy root: %w", err)
		}
	}
	return nil
}

func expand(held map[domain.Path]int) []domain.Path {
	var out []domain.Path
	for path, n := range held {
		for i := 0; i < n; i++ {
			out = append(out, path)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
