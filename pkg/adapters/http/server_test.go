package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/proxyshape"
	httpadapter "github.com/aretw0/proxyshape/pkg/adapters/http"
	"github.com/aretw0/proxyshape/pkg/adapters/memory"
	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/aretw0/proxyshape/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	handler http.Handler
	proxy   *proxyshape.Proxy
	store   *memory.Store
	streams *httpadapter.StreamManager
}

func setup(t *testing.T) *fixture {
	t.Helper()
	stage := memory.MustStage("/a", "/a/b", "/c")
	require.NoError(t, stage.AddPrim(domain.Prim{Path: "/a/geo", TypeName: "Xform", Transformable: true, HasPayload: true, Loaded: true}))
	require.NoError(t, stage.AddPrim(domain.Prim{Path: "/c/geo", TypeName: "Xform", Transformable: true, HasPayload: true}))

	streams := httpadapter.NewStreamManager(nil)
	host := memory.NewHost()
	p, err := proxyshape.New("shot", stage, host,
		proxyshape.WithHostSelection(host),
		proxyshape.WithLifecycleHooks(streams.Hooks()),
	)
	require.NoError(t, err)

	store := memory.NewStore()
	mgr := session.NewManager(store)
	require.NoError(t, mgr.Register(p))

	return &fixture{
		handler: httpadapter.NewHandler(mgr, httpadapter.WithStreams(streams)),
		proxy:   p,
		store:   store,
		streams: streams,
	}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndInfo(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/info", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, proxyshape.Version, info["version"])

	rec = f.do(t, http.MethodGet, "/proxies", "")
	assert.JSONEq(t, `{"proxies":["shot"]}`, rec.Body.String())
}

func TestMaterializeAndReferences(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/proxies/shot/materialize", `{"path":"/a/b"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var node httpadapter.NodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &node))
	assert.Equal(t, domain.Path("/a/b"), node.Path)
	assert.Equal(t, f.proxy.Lookup("/a/b"), node.Node)

	rec = f.do(t, http.MethodGet, "/proxies/shot/references", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var refs []domain.Reference
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &refs))
	require.Len(t, refs, 2)
	assert.Equal(t, domain.Path("/a/b"), refs[1].Path)
	assert.Equal(t, uint16(1), refs[1].Requested)

	rec = f.do(t, http.MethodPost, "/proxies/shot/dematerialize", `{"path":"/a/b"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.proxy.References())
}

func TestSelectUndoRedo(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/proxies/shot/select", `{"paths":["/a/b","/c"],"mode":"replace"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sel httpadapter.SelectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sel))
	assert.Equal(t, []domain.Path{"/a/b", "/c"}, sel.Selected)
	assert.Len(t, sel.Inserted, 3)
	assert.Empty(t, sel.Removed)

	rec = f.do(t, http.MethodPost, "/proxies/shot/undo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"command":"select replace"}`, rec.Body.String())
	assert.Empty(t, f.proxy.Selected())

	rec = f.do(t, http.MethodPost, "/proxies/shot/redo", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/proxies/shot/selection", "")
	assert.JSONEq(t, `{"selected":["/a/b","/c"]}`, rec.Body.String())
}

func TestPayloads(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodGet, "/proxies/shot/payloads", "")
	assert.JSONEq(t, `{"payloads":["/a/geo","/c/geo"]}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/proxies/shot/payloads?filter=unloaded", "")
	assert.JSONEq(t, `{"payloads":["/c/geo"]}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/proxies/shot/payloads?root=/a", "")
	assert.JSONEq(t, `{"payloads":["/a/geo"]}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/proxies/shot/payloads?filter=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"unknown proxy", http.MethodGet, "/proxies/nope/references", "", http.StatusNotFound},
		{"unknown prim", http.MethodPost, "/proxies/shot/materialize", `{"path":"/missing"}`, http.StatusNotFound},
		{"invalid path", http.MethodPost, "/proxies/shot/materialize", `{"path":"a//b"}`, http.StatusBadRequest},
		{"bad body", http.MethodPost, "/proxies/shot/select", `{`, http.StatusBadRequest},
		{"bad mode", http.MethodPost, "/proxies/shot/select", `{"paths":["/a"],"mode":"xor"}`, http.StatusBadRequest},
		{"not materialized", http.MethodPost, "/proxies/shot/dematerialize", `{"path":"/a"}`, http.StatusConflict},
		{"nothing to undo", http.MethodPost, "/proxies/shot/undo", "", http.StatusConflict},
		{"nothing to redo", http.MethodPost, "/proxies/shot/redo", "", http.StatusConflict},
		{"no snapshot", http.MethodPost, "/proxies/shot/load", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	f := setup(t)

	_, err := f.proxy.Select([]domain.Path{"/a"}, domain.SelectReplace)
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/proxies/shot/save", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	snap, err := f.store.Load(context.Background(), "shot")
	require.NoError(t, err)
	assert.Equal(t, []domain.Path{"/a"}, snap.Selected)

	_, err = f.proxy.Select([]domain.Path{"/c"}, domain.SelectReplace)
	require.NoError(t, err)

	rec = f.do(t, http.MethodPost, "/proxies/shot/load", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []domain.Path{"/a"}, f.proxy.Selected())
}

func TestCORSPreflight(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodOptions, "/proxies/shot/select", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSubscribeEvents(t *testing.T) {
	f := setup(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	rec := f.do(t, http.MethodGet, "/events", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?proxy_id=shot&watch=selection_changed", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: ping\n", line)

	require.Eventually(t, func() bool { return f.streams.Subscribers("shot") == 1 }, time.Second, 10*time.Millisecond)

	// node_created events are filtered out by watch.
	_, err = f.proxy.Select([]domain.Path{"/c"}, domain.SelectReplace)
	require.NoError(t, err)

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	for line != "event: selection_changed\n" {
		require.False(t, strings.HasPrefix(line, "event: node_created"))
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
	}
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))
	var ev domain.SelectionEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data: "))), &ev))
	assert.Equal(t, []domain.Path{"/c"}, ev.Added)
	assert.Equal(t, "shot", ev.ProxyID)
}
