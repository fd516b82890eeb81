package script

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/joeydtaylor/steeze-script/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func writeScript(t *testing.T, src string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "routes.lua")
	require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
	return p
}

func invoke(t *testing.T, snap *Snapshot, path string, req core.Request) (core.Response, error) {
	t.Helper()
	h, ok := snap.Routes.Lookup(path)
	require.True(t, ok, "route %s", path)
	return h.Invoke(context.Background(), req)
}

func TestLuaLoader_Load(t *testing.T) {
	t.Run("builds handlers from the routes table", func(t *testing.T) {
		p := writeScript(t, `
routes = {
  ["/hello"] = function(req)
    return { code = 201, body = "hello " .. req.method .. " " .. req.path }
  end,
  ["/not-a-function"] = 42,
  [7] = function(req) return { code = 200, body = "" } end,
}`)
		snap, err := (&LuaLoader{Path: p}).Load(context.Background())
		require.NoError(t, err)
		defer snap.Close()

		assert.ElementsMatch(t, []string{"/hello"}, snap.Routes.Paths())

		res, err := invoke(t, snap, "/hello", core.Request{Method: "GET", Path: "/hello"})
		require.NoError(t, err)
		assert.Equal(t, core.Response{Code: 201, Body: "hello GET /hello"}, res)
	})

	t.Run("exposes headers, body and query to handlers", func(t *testing.T) {
		p := writeScript(t, `
routes = {}
routes["/echo"] = function(req)
  return { code = 200, body = req.headers["X-Token"] .. "|" .. req.body .. "|" .. req.query .. "|" .. req.url }
end`)
		snap, err := (&LuaLoader{Path: p}).Load(context.Background())
		require.NoError(t, err)
		defer snap.Close()

		res, err := invoke(t, snap, "/echo", core.Request{
			URL:     "/echo?a=1",
			Path:    "/echo",
			Query:   "a=1",
			Headers: map[string]string{"X-Token": "t2"},
			Body:    "payload",
		})
		require.NoError(t, err)
		assert.Equal(t, "t2|payload|a=1|/echo?a=1", res.Body)
	})

	t.Run("merges native routes underneath script routes", func(t *testing.T) {
		native := core.RouteTable{
			"/native": core.HandlerFunc(func(context.Context, core.Request) (core.Response, error) {
				return core.Response{Code: 200, Body: "native"}, nil
			}),
			"/both": core.HandlerFunc(func(context.Context, core.Request) (core.Response, error) {
				return core.Response{Code: 200, Body: "native"}, nil
			}),
		}
		p := writeScript(t, `routes = { ["/both"] = function() return { code = 200, body = "lua" } end }`)

		obs, logs := observer.New(zap.WarnLevel)
		snap, err := (&LuaLoader{Path: p, Native: native, Log: zap.New(obs)}).Load(context.Background())
		require.NoError(t, err)
		defer snap.Close()

		res, err := invoke(t, snap, "/both", req0())
		require.NoError(t, err)
		assert.Equal(t, "lua", res.Body)

		res, err = invoke(t, snap, "/native", req0())
		require.NoError(t, err)
		assert.Equal(t, "native", res.Body)

		assert.Equal(t, 1, logs.FilterMessage("script route shadows native route").Len())
	})

	t.Run("fails with a LoadError", func(t *testing.T) {
		testCases := []struct {
			name string
			src  string
		}{
			{name: "syntax error", src: `routes = {`},
			{name: "runtime error", src: `error("nope")`},
			{name: "routes missing", src: `local x = 1`},
			{name: "routes not a table", src: `routes = "nope"`},
			{name: "exit at load", src: `os.exit(0)`},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				p := writeScript(t, tc.src)
				_, err := (&LuaLoader{Path: p}).Load(context.Background())
				var le *core.LoadError
				require.True(t, errors.As(err, &le), "got %v", err)
				assert.Equal(t, p, le.Source)
			})
		}

		t.Run("missing file", func(t *testing.T) {
			_, err := (&LuaLoader{Path: filepath.Join(t.TempDir(), "nope.lua")}).Load(context.Background())
			var le *core.LoadError
			require.True(t, errors.As(err, &le))
			assert.ErrorIs(t, err, os.ErrNotExist)
		})
	})
}

func req0() core.Request { return core.Request{Method: "GET"} }

func TestLuaHandler_Invoke(t *testing.T) {
	p := writeScript(t, `
local hits = 0
routes = {
  ["/raise"] = function(req) error("kaboom") end,
  ["/no-code"] = function(req) return { body = "x" } end,
  ["/string-code"] = function(req) return { code = "200", body = "x" } end,
  ["/no-body"] = function(req) return { code = 200 } end,
  ["/number-body"] = function(req) return { code = 200, body = 5 } end,
  ["/scalar"] = function(req) return 200 end,
  ["/nothing"] = function(req) end,
  ["/exit"] = function(req) os.exit(1) end,
  ["/has-exit"] = function(req) return { code = 200, body = tostring(os.exit ~= nil) .. " " .. type(os.time) } end,
  ["/count"] = function(req)
    hits = hits + 1
    return { code = 200, body = tostring(hits) }
  end,
}`)
	snap, err := (&LuaLoader{Path: p}).Load(context.Background())
	require.NoError(t, err)
	defer snap.Close()

	t.Run("handler errors become EvalError", func(t *testing.T) {
		_, err := invoke(t, snap, "/raise", req0())
		var ee *core.EvalError
		require.True(t, errors.As(err, &ee))
		assert.Equal(t, "/raise", ee.Path)
		assert.Contains(t, err.Error(), "kaboom")
	})

	t.Run("os.exit is unavailable", func(t *testing.T) {
		_, err := invoke(t, snap, "/exit", req0())
		var ee *core.EvalError
		require.True(t, errors.As(err, &ee), "got %v", err)
		assert.Equal(t, "/exit", ee.Path)

		res, err := invoke(t, snap, "/has-exit", req0())
		require.NoError(t, err)
		assert.Equal(t, "false function", res.Body)
	})

	t.Run("malformed results become ContractError", func(t *testing.T) {
		testCases := []struct {
			path     string
			field    string
			observed string
		}{
			{path: "/no-code", field: "code", observed: "nil"},
			{path: "/string-code", field: "code", observed: "string"},
			{path: "/no-body", field: "body", observed: "nil"},
			{path: "/number-body", field: "body", observed: "number"},
			{path: "/scalar", observed: "number"},
			{path: "/nothing", observed: "nil"},
		}
		for _, tc := range testCases {
			t.Run(tc.path, func(t *testing.T) {
				_, err := invoke(t, snap, tc.path, req0())
				var ce *core.ContractError
				require.True(t, errors.As(err, &ce), "got %v", err)
				assert.Equal(t, tc.field, ce.Field)
				assert.Equal(t, tc.observed, ce.Observed)
			})
		}
	})

	t.Run("state survives errors and persists across calls", func(t *testing.T) {
		for want := 1; want <= 3; want++ {
			_, _ = invoke(t, snap, "/raise", req0())
			res, err := invoke(t, snap, "/count", req0())
			require.NoError(t, err)
			assert.Equal(t, core.Response{Code: 200, Body: string(rune('0' + want))}, res)
		}
	})
}

func TestHostModule_Log(t *testing.T) {
	p := writeScript(t, `
steeze.log("loading")
routes = {
  ["/x"] = function(req)
    steeze.log("handled " .. req.path, "warn")
    return { code = 200, body = "" }
  end,
}`)
	obs, logs := observer.New(zap.DebugLevel)
	snap, err := (&LuaLoader{Path: p, Log: zap.New(obs)}).Load(context.Background())
	require.NoError(t, err)
	defer snap.Close()

	_, err = invoke(t, snap, "/x", core.Request{Method: "GET", Path: "/x"})
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("loading").Len())
	warn := logs.FilterMessage("handled /x").All()
	require.Len(t, warn, 1)
	assert.Equal(t, zap.WarnLevel, warn[0].Level)
}
