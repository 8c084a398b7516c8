package wasmcode

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/realm-runtime/errors"
	"github.com/wippyai/realm-runtime/realm"
	"github.com/wippyai/realm-runtime/term"
)

// Step status codes returned in the high 32 bits of step.
const (
	StatusYield     = 0
	StatusBlock     = 1
	StatusExit      = 2
	StatusExitError = 3
)

// Code runs a guest instance as process code. Each Resume calls step once
// with the reduction budget.
type Code struct {
	ctx    context.Context
	engine *Engine
	inst   api.Module
	step   api.Function
	stack  []uint64
	closed bool
}

var _ realm.Code = (*Code)(nil)

type processKey struct{}

// Resume runs one step of the guest.
func (c *Code) Resume(p *realm.Process, budget int) realm.Result {
	ctx := context.WithValue(c.ctx, processKey{}, p)
	c.stack[0] = api.EncodeI32(int32(budget))
	if err := c.step.CallWithStack(ctx, c.stack); err != nil {
		return realm.Fail(errors.Wrap(errors.PhaseRuntime, errors.KindCrash, err, "guest trapped"), budget)
	}

	ret := c.stack[0]
	status, used := uint32(ret>>32), int(uint32(ret))
	switch status {
	case StatusYield:
		return realm.Yield(used)
	case StatusBlock:
		return realm.Block(used)
	case StatusExit:
		return realm.Exit(realm.ReasonNormal, used)
	case StatusExitError:
		return realm.Fail(errors.New(errors.PhaseRuntime, errors.KindCrash).
			Detail("guest exited with error").
			Build(), used)
	}
	return realm.Fail(errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
		Detail("unknown step status %d", status).
		Value(status).
		Build(), used)
}

// TraceRoots is a no-op: guest state lives in linear memory, not on the
// process heap.
func (c *Code) TraceRoots(func(*term.Value)) {}

// Close closes the guest instance. The realm calls it when the process
// exits.
func (c *Code) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.engine.instances.Add(-1)
	if err := c.inst.Close(c.ctx); err != nil {
		Logger().Warn("close guest instance", zap.Error(err))
		return err
	}
	return nil
}

func process(ctx context.Context) *realm.Process {
	p, _ := ctx.Value(processKey{}).(*realm.Process)
	return p
}

// recv_int status codes.
const (
	recvOK      = 0
	recvPending = 1
	recvTimeout = 2
	recvFault   = 3
)

func isInt(v term.Value) bool { return v.IsInt() }
