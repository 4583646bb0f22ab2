// Package custom bridges the dispatch core and sideloaded Lua plugins: small
// scripts dropped into the plugins directory that claim URLs and emit stream
// specs without recompiling the tool.
package custom

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/samber/mo"
	lua "github.com/yuin/gopher-lua"

	"github.com/strelay-cli/strelay/constant"
	"github.com/strelay-cli/strelay/filesystem"
	"github.com/strelay-cli/strelay/internal/luavm"
	"github.com/strelay-cli/strelay/log"
	"github.com/strelay-cli/strelay/plugin"
	"github.com/strelay-cli/strelay/plugins"
	"github.com/strelay-cli/strelay/stream"
	"github.com/strelay-cli/strelay/util"
)

// Load compiles one Lua script into a registry entry. The script must define
// CanHandleURL(url) and Streams(url); its file stem becomes the plugin name.
func Load(path string) (plugin.Entry, error) {
	state := lua.NewState()
	registerHTTPClient(state)

	if err := luavm.Execute(state, path); err != nil {
		state.Close()
		return plugin.Entry{}, fmt.Errorf("loading %s: %w", path, err)
	}

	name := util.FileStem(path)
	for _, fn := range []string{constant.CanHandleURLFn, constant.StreamsFn} {
		if state.GetGlobal(fn).Type() != lua.LTFunction {
			state.Close()
			return plugin.Entry{}, fmt.Errorf("function %s is required but not defined in %s", fn, name)
		}
	}

	script := &luaScript{name: name, state: state}
	return plugin.Entry{
		Name: name,
		// Sideloaded scripts see every URL; CanHandleURL decides.
		Matchers:     nil,
		PriorityFunc: script.priority,
		New: func(env plugin.Environment, url string, _ map[string]string) plugin.Plugin {
			return &luaPlugin{script: script, env: env, url: url}
		},
	}, nil
}

// LoadDir loads every *.lua script under dir, sorted by name so registration
// order is deterministic. Broken scripts are skipped with a warning.
func LoadDir(dir string) []plugin.Entry {
	names, err := filesystem.API().ReadDir(dir)
	if err != nil {
		log.Debugf("no sideloaded plugins at %s: %v", dir, err)
		return nil
	}

	var paths []string
	for _, info := range names {
		if !info.IsDir() && filepath.Ext(info.Name()) == ".lua" {
			paths = append(paths, filepath.Join(dir, info.Name()))
		}
	}
	sort.Strings(paths)

	var entries []plugin.Entry
	for _, path := range paths {
		entry, err := Load(path)
		if err != nil {
			log.Warnf("skipping plugin %s: %v", path, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// luaScript owns one Lua state. gopher-lua states are single-threaded; calls
// are serialized by the session resolving one URL at a time.
type luaScript struct {
	name  string
	state *lua.LState
}

// priority asks the script whether it claims a URL. Claimed URLs outrank the
// builtin catch-alls.
func (s *luaScript) priority(url string) plugin.Priority {
	val, err := s.call(constant.CanHandleURLFn, lua.LTBool, lua.LString(url))
	if err != nil {
		log.Debugf("plugin %s: %v", s.name, err)
		return plugin.NoPriority
	}
	if lua.LVAsBool(val) {
		return plugin.Normal
	}
	return plugin.NoPriority
}

// call executes a global Lua function safely.
func (s *luaScript) call(fn string, retType lua.LValueType, args ...lua.LValue) (lua.LValue, error) {
	luaFn := s.state.GetGlobal(fn)
	if luaFn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("function %s is not defined", fn)
	}

	err := s.state.CallByParam(lua.P{
		Fn:      luaFn,
		NRet:    1,
		Protect: true,
	}, args...)
	if err != nil {
		return nil, err
	}

	retval := s.state.Get(-1)
	s.state.Pop(1)

	if retval.Type() != retType {
		return nil, fmt.Errorf("%s returned %s, expected %s", fn, retval.Type(), retType)
	}
	return retval, nil
}

// StreamSpec is one entry of a script's Streams() result.
type StreamSpec struct {
	Name string
	Type string
	URL  string
}

// luaPlugin adapts one claimed URL to the Plugin interface.
type luaPlugin struct {
	script *luaScript
	env    plugin.Environment
	url    string
}

func (p *luaPlugin) Name() string { return p.script.name }

// Metadata surfaces the script's optional Title function. A script without
// one, or one that fails, yields empty metadata.
func (p *luaPlugin) Metadata() plugin.Metadata {
	if p.script.state.GetGlobal(constant.TitleFn).Type() != lua.LTFunction {
		return plugin.Metadata{}
	}

	val, err := p.script.call(constant.TitleFn, lua.LTString, lua.LString(p.url))
	if err != nil {
		log.Debugf("plugin %s: %v", p.Name(), err)
		return plugin.Metadata{}
	}
	return plugin.Metadata{Title: mo.Some(val.String())}
}

// Streams runs the script and resolves its specs into concrete streams
// through the builtin scheme constructors.
func (p *luaPlugin) Streams(_ context.Context) (*stream.Map, error) {
	specs, err := p.Specs()
	if err != nil {
		return nil, &plugin.Error{Plugin: p.Name(), Err: err}
	}

	streams := stream.NewMap()
	for _, spec := range specs {
		s, err := plugins.StreamFromSpec(p.env, spec.Type, spec.URL)
		if err != nil {
			log.Warnf("plugin %s: %v", p.Name(), err)
			continue
		}
		streams.Set(spec.Name, s)
	}
	return streams, nil
}

// Specs runs the script's Streams function and decodes its result table.
func (p *luaPlugin) Specs() ([]StreamSpec, error) {
	val, err := p.script.call(constant.StreamsFn, lua.LTTable, lua.LString(p.url))
	if err != nil {
		return nil, err
	}

	var specs []StreamSpec
	var errs []error
	val.(*lua.LTable).ForEach(func(k, v lua.LValue) {
		if k.Type() != lua.LTString || v.Type() != lua.LTTable {
			return
		}
		entry := v.(*lua.LTable)
		spec := StreamSpec{
			Name: k.String(),
			Type: lua.LVAsString(entry.RawGetString("type")),
			URL:  lua.LVAsString(entry.RawGetString("url")),
		}
		if spec.URL == "" {
			errs = append(errs, fmt.Errorf("stream %q has no url", spec.Name))
			return
		}
		if spec.Type == "" {
			spec.Type = "http"
		}
		specs = append(specs, spec)
	})

	if len(specs) == 0 && len(errs) > 0 {
		return nil, errs[0]
	}
	return specs, nil
}
