// Package luavm provides execution helpers for sideloaded Lua plugin scripts,
// backed by a process-wide bytecode cache so repeated loads of the same script
// skip recompilation.
package luavm

import (
	"sync"

	"github.com/strelay-cli/strelay/filesystem"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

var bytecodeCache sync.Map

// Execute runs a Lua script within the provided LState. The compiled bytecode
// prototype is cached by path, so each script pays the parse cost once per
// process no matter how many states execute it.
func Execute(L *lua.LState, scriptPath string) error {
	if cached, exists := bytecodeCache.Load(scriptPath); exists {
		fn := L.NewFunctionFromProto(cached.(*lua.FunctionProto))
		L.Push(fn)
		return L.PCall(0, lua.MultRet, nil)
	}

	file, err := filesystem.API().Open(scriptPath)
	if err != nil {
		return err
	}
	defer file.Close()

	chunk, err := parse.Parse(file, scriptPath)
	if err != nil {
		return err
	}

	proto, err := lua.Compile(chunk, scriptPath)
	if err != nil {
		return err
	}

	bytecodeCache.Store(scriptPath, proto)

	fn := L.NewFunctionFromProto(proto)
	L.Push(fn)
	return L.PCall(0, lua.MultRet, nil)
}
