// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// sandboxLibraries are the only standard libraries opened in a script
// state. os, io, debug and package stay closed.
var sandboxLibraries = []struct {
	name string
	open lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

// blockedGlobals are base library functions that read files or compile
// chunks at run time.
var blockedGlobals = []string{"dofile", "loadfile", "loadstring", "load"}

// hostFuncs are Go functions installed as script globals.
type hostFuncs map[string]lua.LGFunction

// newSandbox creates a script state with the sandbox libraries open, the
// blocked globals removed, and funcs installed.
func newSandbox(funcs hostFuncs) (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	for _, lib := range sandboxLibraries {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		if err := L.PCall(1, 0, nil); err != nil {
			L.Close()
			return nil, fmt.Errorf("open %s library: %w", lib.name, err)
		}
	}
	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	for name, fn := range funcs {
		L.SetGlobal(name, L.NewFunction(fn))
	}
	return L, nil
}
