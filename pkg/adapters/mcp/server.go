// Package mcp exposes registered proxies as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/proxyshape"
	"github.com/aretw0/proxyshape/internal/logging"
	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/aretw0/proxyshape/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const referencesURIPrefix = "proxyshape://proxies/"

// Registry resolves proxies by ID. *session.Manager implements it.
type Registry interface {
	Get(id string) (session.Proxy, error)
	IDs() []string
}

// PathArgs addresses one prim of a proxy.
type PathArgs struct {
	ProxyID string `json:"proxy_id"`
	Path    string `json:"path"`
	Subtree bool   `json:"subtree,omitempty"`
}

// SelectArgs describes a selection change.
type SelectArgs struct {
	ProxyID string   `json:"proxy_id"`
	Paths   []string `json:"paths"`
	Mode    string   `json:"mode,omitempty"`
}

// ProxyArgs names a proxy.
type ProxyArgs struct {
	ProxyID string `json:"proxy_id"`
}

// PayloadArgs scopes a payload search.
type PayloadArgs struct {
	ProxyID string `json:"proxy_id"`
	Root    string `json:"root,omitempty"`
	Filter  string `json:"filter,omitempty"`
}

// StateResponse is the common tool result: the proxy's selection and
// transform references after the call.
type StateResponse struct {
	ProxyID    string             `json:"proxy_id" jsonschema_description:"The proxy the call ran against"`
	Command    string             `json:"command,omitempty" jsonschema_description:"Name of the undone or redone command"`
	Selected   []domain.Path      `json:"selected" jsonschema_description:"Selected prim paths"`
	References []domain.Reference `json:"references" jsonschema_description:"Transform references held by the proxy"`
}

// PayloadResponse lists payload prims.
type PayloadResponse struct {
	Payloads []domain.Path `json:"payloads" jsonschema_description:"Prim paths carrying a payload"`
}

// Server exposes a Registry as an MCP server.
type Server struct {
	registry  Registry
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(reg Registry, opts ...Option) *Server {
	s := &Server{
		registry:  reg,
		mcpServer: server.NewMCPServer("proxyshape-mcp", strings.TrimSpace(proxyshape.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and shuts it down
// when ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening (sse)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func proxyID() mcp.ToolOption {
	return mcp.WithString("proxy_id", mcp.Required(), mcp.Description("ID of the proxy shape"))
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("materialize",
		mcp.WithDescription("Create the shadow transform chain for a prim, optionally with its whole subtree."),
		proxyID(),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute prim path, e.g. /world/geo")),
		mcp.WithBoolean("subtree", mcp.Description("Also materialize every descendant")),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleMaterialize))

	s.mcpServer.AddTool(mcp.NewTool("dematerialize",
		mcp.WithDescription("Release a prim previously materialized by the user."),
		proxyID(),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute prim path")),
		mcp.WithBoolean("subtree", mcp.Description("Release a subtree materialization")),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleDematerialize))

	s.mcpServer.AddTool(mcp.NewTool("select",
		mcp.WithDescription("Change the prim selection of a proxy."),
		proxyID(),
		mcp.WithArray("paths", mcp.Required(), mcp.Description("Prim paths"), mcp.WithStringItems()),
		mcp.WithString("mode", mcp.Description("How paths combine with the current selection"),
			mcp.Enum("replace", "add", "remove", "toggle")),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleSelect))

	s.mcpServer.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Undo the last selection or materialization command."),
		proxyID(),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleUndo))

	s.mcpServer.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Redo the last undone command."),
		proxyID(),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleRedo))

	s.mcpServer.AddTool(mcp.NewTool("inspect",
		mcp.WithDescription("Report the selection and transform references of a proxy."),
		proxyID(),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleInspect))

	s.mcpServer.AddTool(mcp.NewTool("find_payloads",
		mcp.WithDescription("List prims carrying a payload under a root."),
		proxyID(),
		mcp.WithString("root", mcp.Description("Root prim path, defaults to /")),
		mcp.WithString("filter", mcp.Description("Payload state to match"),
			mcp.Enum("loadable", "loaded", "unloaded")),
		mcp.WithOutputSchema[PayloadResponse](),
	), mcp.NewStructuredToolHandler(s.handleFindPayloads))

	s.mcpServer.AddTool(mcp.NewTool("list_proxies",
		mcp.WithDescription("List the IDs of registered proxies."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		bytes, _ := json.Marshal(s.registry.IDs())
		return mcp.NewToolResultText(string(bytes)), nil
	})
}

func (s *Server) proxy(id string) (*proxyshape.Proxy, error) {
	got, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	p, ok := got.(*proxyshape.Proxy)
	if !ok {
		return nil, fmt.Errorf("proxy %q does not support this API", id)
	}
	return p, nil
}

func state(p *proxyshape.Proxy, command string) StateResponse {
	return StateResponse{
		ProxyID:    p.ID(),
		Command:    command,
		Selected:   p.Selected(),
		References: p.References(),
	}
}

func (s *Server) handleMaterialize(ctx context.Context, request mcp.CallToolRequest, args PathArgs) (StateResponse, error) {
	p, err := s.proxy(args.ProxyID)
	if err != nil {
		return StateResponse{}, err
	}
	materialize := p.Materialize
	if args.Subtree {
		materialize = p.MaterializeSubtree
	}
	if _, err := materialize(domain.Path(args.Path)); err != nil {
		return StateResponse{}, fmt.Errorf("materialize failed: %w", err)
	}
	return state(p, ""), nil
}

func (s *Server) handleDematerialize(ctx context.Context, request mcp.CallToolRequest, args PathArgs) (StateResponse, error) {
	p, err := s.proxy(args.ProxyID)
	if err != nil {
		return StateResponse{}, err
	}
	dematerialize := p.Dematerialize
	if args.Subtree {
		dematerialize = p.DematerializeSubtree
	}
	if err := dematerialize(domain.Path(args.Path)); err != nil {
		return StateResponse{}, fmt.Errorf("dematerialize failed: %w", err)
	}
	return state(p, ""), nil
}

func (s *Server) handleSelect(ctx context.Context, request mcp.CallToolRequest, args SelectArgs) (StateResponse, error) {
	p, err := s.proxy(args.ProxyID)
	if err != nil {
		return StateResponse{}, err
	}
	mode, err := domain.ParseSelectMode(args.Mode)
	if err != nil {
		return StateResponse{}, err
	}
	paths := make([]domain.Path, 0, len(args.Paths))
	for _, raw := range args.Paths {
		path, err := domain.ParsePath(raw)
		if err != nil {
			return StateResponse{}, err
		}
		paths = append(paths, path)
	}
	if _, err := p.Select(paths, mode); err != nil {
		s.logger.Warn("mcp select failed", "proxy_id", args.ProxyID, "err", err)
		return StateResponse{}, fmt.Errorf("select failed: %w", err)
	}
	return state(p, ""), nil
}

func (s *Server) handleUndo(ctx context.Context, request mcp.CallToolRequest, args ProxyArgs) (StateResponse, error) {
	p, err := s.proxy(args.ProxyID)
	if err != nil {
		return StateResponse{}, err
	}
	name, err := p.Undo()
	if err != nil {
		return StateResponse{}, err
	}
	return state(p, name), nil
}

func (s *Server) handleRedo(ctx context.Context, request mcp.CallToolRequest, args ProxyArgs) (StateResponse, error) {
	p, err := s.proxy(args.ProxyID)
	if err != nil {
		return StateResponse{}, err
	}
	name, err := p.Redo()
	if err != nil {
		return StateResponse{}, err
	}
	return state(p, name), nil
}

func (s *Server) handleInspect(ctx context.Context, request mcp.CallToolRequest, args ProxyArgs) (StateResponse, error) {
	p, err := s.proxy(args.ProxyID)
	if err != nil {
		return StateResponse{}, err
	}
	return state(p, ""), nil
}

func (s *Server) handleFindPayloads(ctx context.Context, request mcp.CallToolRequest, args PayloadArgs) (PayloadResponse, error) {
	p, err := s.proxy(args.ProxyID)
	if err != nil {
		return PayloadResponse{}, err
	}
	root := domain.RootPath
	if args.Root != "" {
		if root, err = domain.ParsePath(args.Root); err != nil {
			return PayloadResponse{}, err
		}
	}
	filter, err := domain.ParsePayloadFilter(args.Filter)
	if err != nil {
		return PayloadResponse{}, err
	}
	return PayloadResponse{Payloads: p.FindPayloads(root, filter)}, nil
}

func (s *Server) registerResources() {
	// EXPOSE: proxyshape://proxies/{id}/references
	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(referencesURIPrefix+"{id}/references", "Transform References",
		mcp.WithTemplateDescription("Transform references held by a proxy"),
		mcp.WithTemplateMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		uri := request.Params.URI
		id := strings.TrimSuffix(strings.TrimPrefix(uri, referencesURIPrefix), "/references")
		p, err := s.proxy(id)
		if err != nil {
			return nil, err
		}
		bytes, _ := json.Marshal(p.References())
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(bytes),
			},
		}, nil
	})
}
