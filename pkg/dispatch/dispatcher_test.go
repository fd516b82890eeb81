package dispatch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeydtaylor/steeze-script/pkg/core"
	"github.com/joeydtaylor/steeze-script/pkg/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"
)

const testRoutes = `
routes = {
  ["/created"] = function(req) return { code = 201, body = "ok" } end,
  ["/raise"] = function(req) error("secret detail") end,
  ["/no-code"] = function(req) return { body = "x" } end,
  ["/no-body"] = function(req) return { code = 200 } end,
  ["/bad-body"] = function(req) return { code = 200, body = {} } end,
  ["/early-hints"] = function(req) return { code = 103, body = "hints" } end,
  ["/header"] = function(req) return { code = 200, body = req.headers["X-Dup"] or "" } end,
  ["/echo"] = function(req)
    return { code = 200, body = req.method .. " " .. req.url .. " " .. req.headers["Host"] .. " [" .. req.body .. "]" }
  end,
}`

func writeScript(t *testing.T, src string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "routes.lua")
	require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
	return p
}

func openLua(t *testing.T, src string) (*script.Context, string) {
	t.Helper()
	p := writeScript(t, src)
	c, err := script.Open(context.Background(), &script.LuaLoader{Path: p})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, p
}

type seqLoader struct {
	mu    sync.Mutex
	snaps []func() (*script.Snapshot, error)
}

func (l *seqLoader) Load(context.Context) (*script.Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.snaps[0]
	if len(l.snaps) > 1 {
		l.snaps = l.snaps[1:]
	}
	return next()
}

func (*seqLoader) Source() string { return "seq" }

func table(rt core.RouteTable) func() (*script.Snapshot, error) {
	return func() (*script.Snapshot, error) { return script.NewSnapshot(rt, nil), nil }
}

func fixed(body string) core.Handler {
	return core.HandlerFunc(func(context.Context, core.Request) (core.Response, error) {
		return core.Response{Code: http.StatusOK, Body: body}, nil
	})
}

func TestDispatcher_Dispatch(t *testing.T) {
	c, _ := openLua(t, testRoutes)
	obs, logs := observer.New(zap.InfoLevel)
	d := New(c, WithLogger(zap.New(obs)))
	ctx := context.Background()

	t.Run("unknown paths are 404", func(t *testing.T) {
		for _, p := range []string{"/", "/nope", "/CREATED", "/created/"} {
			res := d.Dispatch(ctx, core.Request{Method: "GET", Path: p})
			assert.Equal(t, http.StatusNotFound, res.Status, p)
			assert.Equal(t, NotFoundBody, res.Body)
			assert.Equal(t, "text/plain; charset=utf-8", res.Header.Get("Content-Type"))
		}
		assert.NotZero(t, logs.FilterMessage("route not found").FilterField(zap.String("path", "/nope")).Len())
	})

	t.Run("successful handler sets status, body and text/html", func(t *testing.T) {
		res := d.Dispatch(ctx, core.Request{Method: "POST", Path: "/created"})
		assert.Equal(t, http.StatusCreated, res.Status)
		assert.Equal(t, "ok", res.Body)
		assert.Equal(t, ContentTypeHTML, res.Header.Get("Content-Type"))
	})

	t.Run("raising handler is 500 and the server keeps serving", func(t *testing.T) {
		res := d.Dispatch(ctx, core.Request{Path: "/raise"})
		assert.Equal(t, http.StatusInternalServerError, res.Status)
		assert.Equal(t, InternalErrorBody, res.Body)
		assert.NotContains(t, res.Body, "secret detail")

		entries := logs.FilterMessage("handler evaluation failed").All()
		require.NotEmpty(t, entries)
		assert.Contains(t, entries[len(entries)-1].ContextMap()["error"], "secret detail")

		res = d.Dispatch(ctx, core.Request{Path: "/created"})
		assert.Equal(t, http.StatusCreated, res.Status)
	})

	t.Run("contract violations are 500 with the observed type logged", func(t *testing.T) {
		testCases := []struct {
			path     string
			field    string
			observed string
		}{
			{path: "/no-code", field: "code", observed: "nil"},
			{path: "/no-body", field: "body", observed: "nil"},
			{path: "/bad-body", field: "body", observed: "table"},
			{path: "/early-hints", field: "code", observed: "number (103)"},
		}
		for _, tc := range testCases {
			t.Run(tc.path, func(t *testing.T) {
				res := d.Dispatch(ctx, core.Request{Path: tc.path})
				assert.Equal(t, http.StatusInternalServerError, res.Status)
				assert.Equal(t, InternalErrorBody, res.Body)

				found := logs.FilterMessage("handler contract violation").
					FilterField(zap.String("path", tc.path)).
					FilterField(zap.String("field", tc.field)).
					FilterField(zap.String("observed", tc.observed))
				assert.Equal(t, 1, found.Len())
			})
		}
	})
}

func TestDispatcher_NativeHandlers(t *testing.T) {
	c, err := script.Open(context.Background(), &seqLoader{snaps: []func() (*script.Snapshot, error){
		table(core.RouteTable{
			"/panic": core.HandlerFunc(func(context.Context, core.Request) (core.Response, error) {
				panic("native bug")
			}),
			"/error": core.HandlerFunc(func(context.Context, core.Request) (core.Response, error) {
				return core.Response{}, errors.New("native failure")
			}),
			"/zero": core.HandlerFunc(func(context.Context, core.Request) (core.Response, error) {
				return core.Response{Body: "forgot the code"}, nil
			}),
			"/informational": core.HandlerFunc(func(context.Context, core.Request) (core.Response, error) {
				return core.Response{Code: http.StatusContinue, Body: "continue"}, nil
			}),
			"/ok": fixed("fine"),
		}),
	}})
	require.NoError(t, err)
	d := New(c)
	ctx := context.Background()

	for _, p := range []string{"/panic", "/error", "/zero", "/informational"} {
		res := d.Dispatch(ctx, core.Request{Path: p})
		assert.Equal(t, http.StatusInternalServerError, res.Status, p)
	}

	// lock must have been released by every failing path above
	res := d.Dispatch(ctx, core.Request{Path: "/ok"})
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "fine", res.Body)
}

func TestDispatcher_SerializesHandlers(t *testing.T) {
	var (
		counter int
		active  int32
		overlap int32
	)
	slowIncrement := core.HandlerFunc(func(context.Context, core.Request) (core.Response, error) {
		if atomic.AddInt32(&active, 1) > 1 {
			atomic.StoreInt32(&overlap, 1)
		}
		defer atomic.AddInt32(&active, -1)

		seen := counter
		time.Sleep(2 * time.Millisecond)
		counter = seen + 1
		return core.Response{Code: http.StatusOK, Body: strconv.Itoa(counter)}, nil
	})

	c, err := script.Open(context.Background(), &seqLoader{snaps: []func() (*script.Snapshot, error){
		table(core.RouteTable{"/a": slowIncrement, "/b": slowIncrement}),
	}})
	require.NoError(t, err)
	d := New(c)

	const n = 40
	var g errgroup.Group
	for i := 0; i < n; i++ {
		path := "/a"
		if i%2 == 1 {
			path = "/b"
		}
		g.Go(func() error {
			res := d.Dispatch(context.Background(), core.Request{Path: path})
			if res.Status != http.StatusOK {
				return errors.New(res.Body)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, n, counter, "no lost updates")
	assert.Zero(t, atomic.LoadInt32(&overlap), "handlers never ran at the same time")
}

func TestDispatcher_SerializesLuaState(t *testing.T) {
	c, _ := openLua(t, `
hits = 0
local function bump()
  local seen = hits
  local spin = 0
  for i = 1, 2000 do spin = spin + i end
  hits = seen + 1
  return { code = 200, body = tostring(hits) }
end
routes = { ["/a"] = bump, ["/b"] = bump, ["/hits"] = function() return { code = 200, body = tostring(hits) } end }`)
	d := New(c)

	const n = 60
	var g errgroup.Group
	for i := 0; i < n; i++ {
		path := "/a"
		if i%2 == 1 {
			path = "/b"
		}
		g.Go(func() error {
			if res := d.Dispatch(context.Background(), core.Request{Path: path}); res.Status != http.StatusOK {
				return errors.New(res.Body)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	res := d.Dispatch(context.Background(), core.Request{Path: "/hits"})
	assert.Equal(t, strconv.Itoa(n), res.Body)
}

func TestDispatcher_Reload(t *testing.T) {
	t.Run("new path is dispatchable right after reload", func(t *testing.T) {
		c, p := openLua(t, `routes = { ["/old"] = function() return { code = 200, body = "old" } end }`)
		d := New(c)
		ctx := context.Background()

		assert.Equal(t, http.StatusNotFound, d.Dispatch(ctx, core.Request{Path: "/new"}).Status)

		require.NoError(t, os.WriteFile(p, []byte(`routes = {
  ["/old"] = function() return { code = 200, body = "old" } end,
  ["/new"] = function() return { code = 202, body = "new" } end,
}`), 0o644))
		require.NoError(t, c.Reload(ctx))

		res := d.Dispatch(ctx, core.Request{Path: "/new"})
		assert.Equal(t, http.StatusAccepted, res.Status)
		assert.Equal(t, "new", res.Body)
	})

	t.Run("broken reload keeps previous routes", func(t *testing.T) {
		c, p := openLua(t, `routes = { ["/keep"] = function() return { code = 200, body = "kept" } end }`)
		d := New(c)
		ctx := context.Background()

		require.NoError(t, os.WriteFile(p, []byte(`routes = { ["/keep"] = function() return`), 0o644))
		var le *core.LoadError
		require.True(t, errors.As(c.Reload(ctx), &le))

		res := d.Dispatch(ctx, core.Request{Path: "/keep"})
		assert.Equal(t, http.StatusOK, res.Status)
		assert.Equal(t, "kept", res.Body)
	})

	t.Run("in-flight dispatch finishes on the previous table", func(t *testing.T) {
		entered := make(chan struct{})
		release := make(chan struct{})
		blocking := core.HandlerFunc(func(context.Context, core.Request) (core.Response, error) {
			close(entered)
			<-release
			return core.Response{Code: http.StatusOK, Body: "from old table"}, nil
		})

		c, err := script.Open(context.Background(), &seqLoader{snaps: []func() (*script.Snapshot, error){
			table(core.RouteTable{"/slow": blocking}),
			table(core.RouteTable{"/slow": fixed("from new table"), "/added": fixed("added")}),
		}})
		require.NoError(t, err)
		d := New(c)

		inflight := make(chan Result, 1)
		go func() { inflight <- d.Dispatch(context.Background(), core.Request{Path: "/slow"}) }()
		<-entered

		reloaded := make(chan error, 1)
		go func() { reloaded <- c.Reload(context.Background()) }()

		select {
		case <-reloaded:
			t.Fatal("reload installed while a dispatch held the lock")
		case <-time.After(20 * time.Millisecond):
		}

		close(release)
		res := <-inflight
		assert.Equal(t, "from old table", res.Body)
		require.NoError(t, <-reloaded)

		assert.Equal(t, "from new table", d.Dispatch(context.Background(), core.Request{Path: "/slow"}).Body)
		assert.Equal(t, "added", d.Dispatch(context.Background(), core.Request{Path: "/added"}).Body)
	})
}

func TestDispatcher_ServeHTTP(t *testing.T) {
	c, _ := openLua(t, testRoutes)
	d := New(c, WithMaxBodyBytes(16))

	t.Run("duplicate headers collapse to the last value", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/header", nil)
		r.Header.Add("X-Dup", "first")
		r.Header.Add("X-Dup", "second")
		w := httptest.NewRecorder()
		d.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "second", w.Body.String())
		assert.Equal(t, ContentTypeHTML, w.Header().Get("Content-Type"))
	})

	t.Run("request fields reach the handler", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPut, "/echo?x=1&y", strings.NewReader("hi"))
		w := httptest.NewRecorder()
		d.ServeHTTP(w, r)

		assert.Equal(t, "PUT /echo?x=1&y example.com [hi]", w.Body.String())
	})

	t.Run("missing body is an empty string", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/echo", nil)
		w := httptest.NewRecorder()
		d.ServeHTTP(w, r)

		assert.Equal(t, "GET /echo example.com []", w.Body.String())
	})

	t.Run("oversized body is rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(strings.Repeat("x", 17)))
		w := httptest.NewRecorder()
		d.ServeHTTP(w, r)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("informational code is a 500 on the wire", func(t *testing.T) {
		srv := httptest.NewServer(d)
		defer srv.Close()

		res, err := srv.Client().Get(srv.URL + "/early-hints")
		require.NoError(t, err)
		body, err := io.ReadAll(res.Body)
		res.Body.Close()
		require.NoError(t, err)

		assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
		assert.Equal(t, InternalErrorBody, string(body))
	})

	t.Run("unknown path through HTTP", func(t *testing.T) {
		w := httptest.NewRecorder()
		d.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/unknown", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, NotFoundBody, w.Body.String())
	})
}
