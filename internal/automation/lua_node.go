package automation

import (
	"time"

	lua "github.com/yuin/gopher-lua"

	"zigbee-node/internal/node"
	"zigbee-node/internal/zcl"
)

const maxHandlersPerScript = 100

// registerNodeModule registers the `node` global table in a Lua state.
func registerNodeModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()

	mod.RawSetString("on", L.NewFunction(func(L *lua.LState) int {
		return nodeOn(L, vm)
	}))

	mod.RawSetString("on_change", L.NewFunction(func(L *lua.LState) int {
		return nodeOnChange(L, vm)
	}))

	mod.RawSetString("get", L.NewFunction(func(L *lua.LState) int {
		return nodeGet(L, e)
	}))

	mod.RawSetString("set", L.NewFunction(func(L *lua.LState) int {
		return nodeSet(L, e)
	}))

	mod.RawSetString("values", L.NewFunction(func(L *lua.LState) int {
		return nodeValues(L, e)
	}))

	mod.RawSetString("after", L.NewFunction(func(L *lua.LState) int {
		return nodeAfter(L, vm, e)
	}))

	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		return nodeLog(L, e)
	}))

	L.SetGlobal("node", mod)
}

// node.on(type, filter, callback)
func nodeOn(L *lua.LState, vm *scriptVM) int {
	eventType := L.CheckString(1)
	filterTable := L.CheckTable(2)
	fn := L.CheckFunction(3)

	h := luaEventHandler{
		eventType: eventType,
		fn:        fn,
	}
	if v := filterTable.RawGetString("key"); v != lua.LNil {
		h.key = v.String()
	}

	return addHandler(L, vm, h)
}

// node.on_change(key, callback) — shorthand for value-change handlers.
func nodeOnChange(L *lua.LState, vm *scriptVM) int {
	key := L.CheckString(1)
	fn := L.CheckFunction(2)

	return addHandler(L, vm, luaEventHandler{
		eventType: node.EventValueChange,
		key:       key,
		fn:        fn,
	})
}

func addHandler(L *lua.LState, vm *scriptVM, h luaEventHandler) int {
	vm.mu.Lock()
	if len(vm.handlers) >= maxHandlersPerScript {
		vm.mu.Unlock()
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	vm.mu.Unlock()
	return 0
}

// node.get(key) — read a device value.
func nodeGet(L *lua.LState, e *Engine) int {
	key := L.CheckString(1)

	v, ok := e.node.Values().Load(zcl.Key(key))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(goToLua(L, v))
	return 1
}

// node.set(key, value) — write a device value. Writes go through the same
// store the attribute model uses, so change events and reports follow.
func nodeSet(L *lua.LState, e *Engine) int {
	key := L.CheckString(1)
	value := L.CheckAny(2)

	e.node.Values().Store(zcl.Key(key), luaToGo(value))
	return 0
}

// node.values() — returns a table snapshot of all device values.
func nodeValues(L *lua.LState, e *Engine) int {
	snapshot := e.node.Values().Snapshot()

	tbl := L.NewTable()
	for k, v := range snapshot {
		tbl.RawSetString(string(k), goToLua(L, v))
	}
	L.Push(tbl)
	return 1
}

// node.after(seconds, callback) — delayed execution on the VM goroutine.
func nodeAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(time.Duration(float64(seconds) * float64(time.Second)))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		select {
		case vm.commands <- func(L *lua.LState) {
			if err := L.CallByParam(lua.P{
				Fn:      fn,
				NRet:    0,
				Protect: true,
			}); err != nil {
				e.logger.Error("after callback error", "err", err)
			}
		}:
		default:
			e.logger.Warn("after: command channel full")
		}
	}()

	return 0
}

// node.log(msg)
func nodeLog(L *lua.LState, e *Engine) int {
	msg := L.CheckString(1)
	e.logger.Info("script log", "msg", msg)
	return 0
}
