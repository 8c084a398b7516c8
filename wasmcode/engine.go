package wasmcode

import (
	"context"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/realm-runtime/errors"
)

// HostModule is the import module name guests use for realm calls.
const HostModule = "realm"

// StepExport is the function every guest must export:
// step(budget i32) -> i64.
const StepExport = "step"

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// Interpreter forces the interpreter even where the compiler is available.
	Interpreter bool
}

// Engine compiles guest modules against the realm host module. One engine
// serves any number of modules and instances.
type Engine struct {
	runtime   wazero.Runtime
	instances atomic.Int64
}

// NewEngine creates a wazero runtime and instantiates the realm host module
// in it.
func NewEngine(ctx context.Context, cfg Config) (*Engine, error) {
	rc := wazero.NewRuntimeConfig()
	if cfg.Interpreter {
		rc = wazero.NewRuntimeConfigInterpreter()
	}
	if cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rc)
	if _, err := hostModule(rt).Instantiate(ctx); err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Instantiation(err)
	}
	return &Engine{runtime: rt}, nil
}

// Load compiles a guest module and checks that it exports step with the
// expected signature.
func (e *Engine) Load(ctx context.Context, wasm []byte) (*Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load("compile guest module", err)
	}

	def, ok := compiled.ExportedFunctions()[StepExport]
	if !ok {
		_ = compiled.Close(ctx)
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Detail("guest does not export %q", StepExport).
			Build()
	}
	params, results := def.ParamTypes(), def.ResultTypes()
	if len(params) != 1 || params[0] != api.ValueTypeI32 ||
		len(results) != 1 || results[0] != api.ValueTypeI64 {
		_ = compiled.Close(ctx)
		return nil, errors.New(errors.PhaseLoad, errors.KindTypeMismatch).
			Path(StepExport).
			Detail("expected (i32) -> i64, got %v -> %v", names(params), names(results)).
			Build()
	}

	Logger().Debug("guest module loaded",
		zap.Int("bytes", len(wasm)),
		zap.Int("imports", len(compiled.ImportedFunctions())))
	return &Module{engine: e, compiled: compiled}, nil
}

// Instances returns the number of live guest instances.
func (e *Engine) Instances() int64 { return e.instances.Load() }

// Close closes the runtime and every module and instance created from it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

func names(ts []api.ValueType) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = api.ValueTypeName(t)
	}
	return out
}

// Module is a compiled guest. Each process gets its own instance.
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
}

// NewCode instantiates the module as process code. ctx is used for every
// call into the instance.
func (m *Module) NewCode(ctx context.Context) (*Code, error) {
	// Anonymous so that instances can coexist in one runtime.
	inst, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	m.engine.instances.Add(1)
	return &Code{
		ctx:    ctx,
		engine: m.engine,
		inst:   inst,
		step:   inst.ExportedFunction(StepExport),
		stack:  make([]uint64, 1),
	}, nil
}

// Close releases the compiled module. Existing instances keep running.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}
