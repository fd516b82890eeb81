package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joeydtaylor/steeze-script/pkg/core"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RoutesGlobal is the Lua global the script must assign its route table to.
const RoutesGlobal = "routes"

// LuaLoader evaluates a Lua file into a Snapshot. Every Load uses a new
// lua.LState, so a failed evaluation never touches the installed one.
type LuaLoader struct {
	Path string
	// Native routes sit underneath the script's routes; a script route with
	// the same path replaces the native one.
	Native core.RouteTable
	Log    *zap.Logger
}

func (l *LuaLoader) Source() string { return l.Path }

func (l *LuaLoader) Load(_ context.Context) (*Snapshot, error) {
	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}

	src, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, &core.LoadError{Source: l.Path, Err: err}
	}

	L := lua.NewState()
	// os.exit would terminate the whole server.
	if osMod, ok := L.GetGlobal("os").(*lua.LTable); ok {
		osMod.RawSetString("exit", lua.LNil)
	}
	L.SetGlobal("steeze", hostModule(L, log.With(zap.String("script", l.Path))))

	fn, err := L.Load(bytes.NewReader(src), l.Path)
	if err != nil {
		L.Close()
		return nil, &core.LoadError{Source: l.Path, Err: err}
	}
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.Close()
		return nil, &core.LoadError{Source: l.Path, Err: err}
	}

	tbl, ok := L.GetGlobal(RoutesGlobal).(*lua.LTable)
	if !ok {
		got := L.GetGlobal(RoutesGlobal).Type().String()
		L.Close()
		return nil, &core.LoadError{
			Source: l.Path,
			Err:    fmt.Errorf("`%s` is not a table (got %s)", RoutesGlobal, got),
		}
	}

	routes := make(core.RouteTable, len(l.Native)+tbl.Len())
	for p, h := range l.Native {
		routes[p] = h
	}
	tbl.ForEach(func(k, v lua.LValue) {
		path, ok := k.(lua.LString)
		if !ok {
			log.Debug("skipping non-string route key", zap.String("type", k.Type().String()))
			return
		}
		f, ok := v.(*lua.LFunction)
		if !ok {
			log.Debug("skipping non-function route",
				zap.String("path", string(path)),
				zap.String("type", v.Type().String()),
			)
			return
		}
		if _, dup := l.Native[string(path)]; dup {
			log.Warn("script route shadows native route", zap.String("path", string(path)))
		}
		routes[string(path)] = &luaHandler{L: L, fn: f, path: string(path)}
	})

	return NewSnapshot(routes, L.Close), nil
}

// luaHandler calls one function from the routes table. It must only be
// invoked while the owning Context is locked: lua.LState is not safe for
// concurrent use.
type luaHandler struct {
	L    *lua.LState
	fn   *lua.LFunction
	path string
}

func (h *luaHandler) Invoke(_ context.Context, req core.Request) (core.Response, error) {
	top := h.L.GetTop()
	defer h.L.SetTop(top)

	err := h.L.CallByParam(lua.P{Fn: h.fn, NRet: 1, Protect: true}, requestTable(h.L, req))
	if err != nil {
		var apiErr *lua.ApiError
		if errors.As(err, &apiErr) && apiErr.Object != nil {
			err = fmt.Errorf("%s", apiErr.Object.String())
		}
		return core.Response{}, &core.EvalError{Path: h.path, Err: err}
	}
	return core.DecodeResponse(toNative(h.L.Get(-1), 0))
}

func requestTable(L *lua.LState, req core.Request) *lua.LTable {
	headers := L.CreateTable(0, len(req.Headers))
	for k, v := range req.Headers {
		headers.RawSetString(k, lua.LString(v))
	}

	t := L.CreateTable(0, 6)
	t.RawSetString("method", lua.LString(req.Method))
	t.RawSetString("url", lua.LString(req.URL))
	t.RawSetString("path", lua.LString(req.Path))
	t.RawSetString("query", lua.LString(req.Query))
	t.RawSetString("headers", headers)
	t.RawSetString("body", lua.LString(req.Body))
	return t
}

type luaType string

func (t luaType) TypeName() string { return string(t) }

// toNative converts a handler result for core.DecodeResponse. Only the top
// level table is expanded; nested values that are not scalars keep just
// their type name.
func toNative(lv lua.LValue, depth int) any {
	switch lv.Type() {
	case lua.LTNil:
		return nil
	case lua.LTBool:
		return lua.LVAsBool(lv)
	case lua.LTNumber:
		return float64(lv.(lua.LNumber))
	case lua.LTString:
		return string(lv.(lua.LString))
	case lua.LTTable:
		if depth > 0 {
			return luaType("table")
		}
		m := map[string]any{}
		lv.(*lua.LTable).ForEach(func(k, v lua.LValue) {
			if ks, ok := k.(lua.LString); ok {
				m[string(ks)] = toNative(v, depth+1)
			}
		})
		return m
	default:
		return luaType(lv.Type().String())
	}
}

// hostModule is the `steeze` global exposed to scripts.
func hostModule(L *lua.LState, log *zap.Logger) *lua.LTable {
	return L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"log": func(L *lua.LState) int {
			msg := L.CheckString(1)
			switch L.OptString(2, "info") {
			case "debug":
				log.Debug(msg)
			case "warn":
				log.Warn(msg)
			case "error":
				log.Error(msg)
			default:
				log.Info(msg)
			}
			return 0
		},
	})
}
