package config

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/arnodel/golua/lib"
	rt "github.com/arnodel/golua/runtime"
)

// Resource limits applied while a configuration script runs.
const (
	luaCPULimit    = 10_000_000
	luaMemoryLimit = 50 * 1024 * 1024
)

// LuaConfigParser parses Lua configuration scripts. The script assigns the
// taskmon.config table:
//
//	taskmon.config = {
//	    update_interval = 1,
//	    history_size = 60,
//	}
type LuaConfigParser struct {
	runtime *rt.Runtime
	cleanup func()
	mu      sync.Mutex
}

// NewLuaConfigParser creates a new LuaConfigParser with a fresh Lua runtime.
func NewLuaConfigParser() (*LuaConfigParser, error) {
	return NewLuaConfigParserWithOutput(io.Discard)
}

// NewLuaConfigParserWithOutput creates a LuaConfigParser whose print output
// goes to stdout. A nil writer discards output.
func NewLuaConfigParserWithOutput(stdout io.Writer) (*LuaConfigParser, error) {
	if stdout == nil {
		stdout = io.Discard
	}

	runtime := rt.New(stdout)
	cleanup := lib.LoadAll(runtime)

	return &LuaConfigParser{
		runtime: runtime,
		cleanup: cleanup,
	}, nil
}

// Parse executes a Lua configuration and extracts taskmon.config.
// Options missing from the table keep their defaults.
func (p *LuaConfigParser) Parse(content []byte) (*Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cleanup == nil {
		return nil, fmt.Errorf("lua parser is closed")
	}

	p.initTaskmonGlobal()

	closure, err := p.runtime.CompileAndLoadLuaChunk(
		"config",
		content,
		rt.TableValue(p.runtime.GlobalEnv()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile Lua configuration: %w", err)
	}

	if err := p.execute(closure); err != nil {
		return nil, fmt.Errorf("failed to execute Lua configuration: %w", err)
	}

	raw, err := p.extractOptions()
	if err != nil {
		return nil, err
	}
	return applyOptions(raw)
}

// execute runs the compiled chunk under the resource limits. golua panics
// when a hard limit is exceeded, so the panic is turned into an error.
func (p *LuaConfigParser) execute(closure *rt.Closure) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resource limit exceeded: %v", r)
		}
	}()

	p.runtime.PushContext(rt.RuntimeContextDef{
		HardLimits: rt.RuntimeResources{
			Cpu:    luaCPULimit,
			Memory: luaMemoryLimit,
		},
	})
	defer p.runtime.PopContext()

	_, err = rt.Call1(p.runtime.MainThread(), rt.FunctionValue(closure))
	return err
}

// initTaskmonGlobal resets the taskmon global so that a previous parse does
// not leak into this one.
func (p *LuaConfigParser) initTaskmonGlobal() {
	taskmon := rt.NewTable()
	taskmon.Set(rt.StringValue("config"), rt.TableValue(rt.NewTable()))
	p.runtime.GlobalEnv().Set(rt.StringValue("taskmon"), rt.TableValue(taskmon))
}

func (p *LuaConfigParser) extractOptions() (map[string]any, error) {
	raw := make(map[string]any)

	taskmonVal := p.runtime.GlobalEnv().Get(rt.StringValue("taskmon"))
	if taskmonVal.IsNil() {
		return raw, nil
	}
	taskmon, ok := taskmonVal.TryTable()
	if !ok {
		return nil, fmt.Errorf("taskmon is not a table")
	}

	configVal := taskmon.Get(rt.StringValue("config"))
	if configVal.IsNil() {
		return raw, nil
	}
	table, ok := configVal.TryTable()
	if !ok {
		return nil, fmt.Errorf("taskmon.config is not a table")
	}

	for _, key := range optionNames() {
		val := table.Get(rt.StringValue(key))
		if val.IsNil() {
			continue
		}
		v, err := luaToGo(val)
		if err != nil {
			return nil, fmt.Errorf("option %s: %w", key, err)
		}
		raw[key] = v
	}
	return raw, nil
}

// luaToGo converts a scalar Lua value to string, bool, int64 or float64.
func luaToGo(val rt.Value) (any, error) {
	if n, ok := val.TryInt(); ok {
		return n, nil
	}
	if f, ok := val.TryFloat(); ok {
		return f, nil
	}
	if s, ok := val.TryString(); ok {
		return s, nil
	}
	if b, ok := val.TryBool(); ok {
		return b, nil
	}
	return nil, fmt.Errorf("expected a string, number or boolean")
}

func optionNames() []string {
	names := make([]string, 0, len(options))
	for name := range options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases the Lua runtime.
func (p *LuaConfigParser) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cleanup != nil {
		p.cleanup()
		p.cleanup = nil
	}
	return nil
}
