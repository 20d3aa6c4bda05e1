package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/proxyshape/internal/logging"
	"github.com/aretw0/proxyshape/pkg/domain"
)

// message is one SSE frame for a proxy.
type message struct {
	Type domain.EventType
	Data string
}

// StreamManager fans proxy lifecycle events out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- message]struct{} // ProxyID -> set of channels
	logger      *slog.Logger
}

// NewStreamManager creates an empty StreamManager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- message]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a subscriber for a proxy. The returned func
// unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(proxyID string) (<-chan message, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan message, 16)
	if _, ok := sm.subscribers[proxyID]; !ok {
		sm.subscribers[proxyID] = make(map[chan<- message]struct{})
	}
	sm.subscribers[proxyID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[proxyID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, proxyID)
				}
			}
		})
	}
}

// Subscribers reports how many clients follow a proxy.
func (sm *StreamManager) Subscribers(proxyID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[proxyID])
}

// Broadcast sends an event to every subscriber of its proxy. Slow clients
// drop messages instead of blocking the proxy.
func (sm *StreamManager) Broadcast(proxyID string, typ domain.EventType, event any) {
	bytes, err := json.Marshal(event)
	if err != nil {
		sm.logger.Error("event encode failed", "proxy_id", proxyID, "err", err)
		return
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for ch := range sm.subscribers[proxyID] {
		select {
		case ch <- message{Type: typ, Data: string(bytes)}:
		default:
			sm.logger.Warn("sse client buffer full, dropping message", "proxy_id", proxyID)
		}
	}
}

// Hooks returns lifecycle hooks that broadcast every event of the proxy
// they are installed on.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeCreated: func(e *domain.NodeEvent) {
			sm.Broadcast(e.ProxyID, e.Type, e)
		},
		OnNodeDestroyed: func(e *domain.NodeEvent) {
			sm.Broadcast(e.ProxyID, e.Type, e)
		},
		OnSelectionChanged: func(e *domain.SelectionEvent) {
			sm.Broadcast(e.ProxyID, e.Type, e)
		},
		OnCommand: func(e *domain.CommandEvent) {
			sm.Broadcast(e.ProxyID, e.Type, e)
		},
	}
}

// SubscribeEvents handles GET /events?proxy_id=...&watch=node_created,undo.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	proxyID := r.URL.Query().Get("proxy_id")
	if proxyID == "" {
		http.Error(w, "proxy_id is required", http.StatusBadRequest)
		return
	}
	if _, err := s.Registry.Get(proxyID); err != nil {
		s.fail(w, err)
		return
	}

	var watch map[domain.EventType]bool
	if q := r.URL.Query().Get("watch"); q != "" {
		watch = make(map[domain.EventType]bool)
		for _, t := range strings.Split(q, ",") {
			watch[domain.EventType(strings.TrimSpace(t))] = true
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(proxyID)
	defer cancel()
	s.logger.Info("sse client subscribed", "proxy_id", proxyID)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("sse client disconnected", "proxy_id", proxyID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if watch != nil && !watch[msg.Type] {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, msg.Data)
			flusher.Flush()
		}
	}
}
